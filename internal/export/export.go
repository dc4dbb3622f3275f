// Package export serializes the enriched table to its output formats. Files are
// written into a staging directory and promoted only once every format succeeded.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"actpipe/internal/model"
	"actpipe/internal/warehouse"
)

// Output formats.
const (
	FormatJSON    = "json"
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

// BaseName is the file stem shared by every format.
const BaseName = "cleaned_data"

type Writer interface {
	Format() string
	Write(ctx context.Context, path string, records []model.EnrichedRecord) error
}

// FileName returns the output file name of a writer's format.
func FileName(w Writer) string { return BaseName + "." + w.Format() }

// WriterFor returns the writer of a format name.
func WriterFor(format string) (Writer, error) {
	switch format {
	case FormatJSON:
		return JSONWriter{}, nil
	case FormatCSV:
		return CSVWriter{}, nil
	case FormatParquet:
		return ParquetWriter{}, nil
	}
	return nil, fmt.Errorf("unknown output format %q", format)
}

// Writers resolves a list of format names.
func Writers(formats []string) ([]Writer, error) {
	ws := make([]Writer, 0, len(formats))
	for _, f := range formats {
		w, err := WriterFor(f)
		if err != nil {
			return nil, err
		}
		ws = append(ws, w)
	}
	return ws, nil
}

// JSONWriter writes an array of objects.
type JSONWriter struct{}

func (JSONWriter) Format() string { return FormatJSON }

func (JSONWriter) Write(_ context.Context, path string, records []model.EnrichedRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer f.Close()
	if records == nil {
		records = []model.EnrichedRecord{}
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return f.Close()
}

// CSVWriter writes a header row followed by one row per record.
type CSVWriter struct{}

func (CSVWriter) Format() string { return FormatCSV }

func (CSVWriter) Write(_ context.Context, path string, records []model.EnrichedRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(model.EnrichedColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, r := range records {
		if err := w.Write(r.Strings()); err != nil {
			return fmt.Errorf("write record %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return f.Close()
}

// ParquetWriter loads the records into an in-memory DuckDB table and copies it out
// as Parquet.
type ParquetWriter struct{}

func (ParquetWriter) Format() string { return FormatParquet }

func (ParquetWriter) Write(ctx context.Context, path string, records []model.EnrichedRecord) error {
	db, err := warehouse.Open("")
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Load(ctx, warehouse.ActivityTable, records); err != nil {
		return err
	}
	return db.CopyParquet(ctx, warehouse.ActivityTable, path)
}

// File is one promoted output.
type File struct {
	Format string
	Path   string
	Rows   int
}

// Stage holds the outputs of one run until they are promoted.
type Stage struct {
	dataDir string
	dir     string
	backup  string
	staged  []File
}

var rename = os.Rename

// ErrStageCleanup reports that every file was promoted but the stage or backup
// directory could not be removed.
var ErrStageCleanup = errors.New("stage cleanup")

// NewStage creates <dataDir>/.tmp-<runID>. Final files replaced by Promote are
// kept in <dataDir>/.prev-<runID> until every rename succeeded.
func NewStage(dataDir, runID string) (*Stage, error) {
	dir := filepath.Join(dataDir, ".tmp-"+runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir stage: %w", err)
	}
	return &Stage{dataDir: dataDir, dir: dir, backup: filepath.Join(dataDir, ".prev-"+runID)}, nil
}

// Dir is the staging directory.
func (s *Stage) Dir() string { return s.dir }

// Write serializes records with w into the staging directory.
func (s *Stage) Write(ctx context.Context, w Writer, records []model.EnrichedRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := filepath.Join(s.dir, FileName(w))
	if err := w.Write(ctx, path, records); err != nil {
		return fmt.Errorf("write %s: %w", w.Format(), err)
	}
	s.staged = append(s.staged, File{Format: w.Format(), Path: path, Rows: len(records)})
	return nil
}

// Promote moves every staged file into the data directory. It is all or nothing:
// if any file cannot be placed, the files already placed are removed, the previous
// finals are restored and the error is returned. The stage is removed on success.
func (s *Stage) Promote() ([]File, error) {
	for _, f := range s.staged {
		final := filepath.Join(s.dataDir, filepath.Base(f.Path))
		fi, err := os.Lstat(final)
		if err == nil && !fi.Mode().IsRegular() {
			return nil, fmt.Errorf("promote %s: %s exists and is not a regular file", f.Format, final)
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("promote %s: %w", f.Format, err)
		}
	}
	if err := os.MkdirAll(s.backup, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir backup: %w", err)
	}

	var (
		out      []File
		replaced []string
	)
	for _, f := range s.staged {
		name := filepath.Base(f.Path)
		final := filepath.Join(s.dataDir, name)
		if _, err := os.Lstat(final); err == nil {
			if err := rename(final, filepath.Join(s.backup, name)); err != nil {
				return nil, s.rollback(out, replaced, fmt.Errorf("back up %s: %w", f.Format, err))
			}
			replaced = append(replaced, name)
		}
		if err := rename(f.Path, final); err != nil {
			return nil, s.rollback(out, replaced, fmt.Errorf("promote %s: %w", f.Format, err))
		}
		out = append(out, File{Format: f.Format, Path: final, Rows: f.Rows})
	}
	if err := os.RemoveAll(s.backup); err != nil {
		return out, fmt.Errorf("%w: remove backup: %v", ErrStageCleanup, err)
	}
	if err := os.RemoveAll(s.dir); err != nil {
		return out, fmt.Errorf("%w: remove stage: %v", ErrStageCleanup, err)
	}
	return out, nil
}

// rollback undoes a partial promotion. The backup directory is kept if a previous
// final could not be restored.
func (s *Stage) rollback(placed []File, replaced []string, cause error) error {
	errs := []error{cause}
	for _, f := range placed {
		if err := os.Remove(f.Path); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", f.Path, err))
		}
	}
	restored := true
	for _, name := range replaced {
		if err := rename(filepath.Join(s.backup, name), filepath.Join(s.dataDir, name)); err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", name, err))
			restored = false
		}
	}
	if restored {
		if err := os.RemoveAll(s.backup); err != nil {
			errs = append(errs, fmt.Errorf("remove backup: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Discard removes the staging directory and everything in it.
func (s *Stage) Discard() error {
	return os.RemoveAll(s.dir)
}
