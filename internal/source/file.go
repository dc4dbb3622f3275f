package source

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"actpipe/internal/model"
)

// CSVFile reads a delimited file with a header row.
type CSVFile struct {
	Path string
}

func (c CSVFile) Name() string { return "csv:" + c.Path }

func (c CSVFile) Read(ctx context.Context) ([]model.RawRecord, error) {
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s has no header", ErrSchemaMismatch, c.Path)
		}
		return nil, fmt.Errorf("%w: header: %v", ErrSourceUnreadable, err)
	}
	present := make(map[string]struct{}, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		header[i] = h
		present[h] = struct{}{}
	}
	if err := checkColumns(present); err != nil {
		return nil, err
	}

	var out []model.RawRecord
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrSourceUnreadable, line, err)
		}
		m := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(row) {
				m[h] = row[i]
			}
		}
		out = append(out, model.RawRecordFromMap(m))
	}
	return out, nil
}

// JSONFile reads a JSON array of objects.
type JSONFile struct {
	Path string
}

func (j JSONFile) Name() string { return "json:" + j.Path }

func (j JSONFile) Read(ctx context.Context) ([]model.RawRecord, error) {
	data, err := os.ReadFile(j.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}
	present := map[string]struct{}{}
	out := make([]model.RawRecord, 0, len(items))
	for i, it := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := decodeObject(it)
		if err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", ErrSourceUnreadable, i, err)
		}
		for k := range m {
			present[k] = struct{}{}
		}
		out = append(out, model.RawRecordFromMap(m))
	}
	if len(items) > 0 {
		if err := checkColumns(present); err != nil {
			return nil, err
		}
	}
	return out, nil
}
