// Package source reads one complete batch of raw records.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"actpipe/internal/model"
)

var (
	// ErrSourceUnreadable is returned when the batch cannot be read at all.
	ErrSourceUnreadable = errors.New("source unreadable")
	// ErrSchemaMismatch is returned when required columns are missing.
	ErrSchemaMismatch = errors.New("schema mismatch")
)

// Source materializes a complete batch before returning.
type Source interface {
	Name() string
	Read(ctx context.Context) ([]model.RawRecord, error)
}

// Acker is implemented by sources that must be told the batch was processed.
type Acker interface {
	Ack(ctx context.Context) error
}

// checkColumns reports the required columns absent from present.
func checkColumns(present map[string]struct{}) error {
	var missing []string
	for _, c := range model.RequiredColumns {
		if _, ok := present[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: missing columns %s", ErrSchemaMismatch, strings.Join(missing, ", "))
	}
	return nil
}

// decodeObject converts one JSON object to a column->text map. Numbers keep their
// literal text, booleans become true/false and null becomes "".
func decodeObject(raw json.RawMessage) (map[string]string, error) {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		switch x := v.(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = x
		case json.Number:
			out[k] = x.String()
		case bool:
			out[k] = strconv.FormatBool(x)
		default:
			b, err := json.Marshal(x)
			if err != nil {
				return nil, err
			}
			out[k] = string(b)
		}
	}
	return out, nil
}
