// Package snapshot writes the per-run quality snapshot files. Files are created
// exclusively and never rewritten.
package snapshot

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"actpipe/internal/model"
)

const dayLayout = "20060102"

// Files lists the paths written for one snapshot.
type Files struct {
	Cleaning string `json:"cleaning"`
	Quality  string `json:"quality"`
}

// Paths returns the files in write order.
func (f Files) Paths() []string { return []string{f.Cleaning, f.Quality} }

type Snapshotter interface {
	WriteSnapshot(m model.QualityMetrics) (Files, error)
}

type FilesystemSnapshotter struct {
	baseDir string
}

func NewFilesystemSnapshotter(baseDir string) *FilesystemSnapshotter {
	return &FilesystemSnapshotter{baseDir: baseDir}
}

// Dir is the run-date namespace of a snapshot.
func (f *FilesystemSnapshotter) Dir(m model.QualityMetrics) string {
	return filepath.Join(f.baseDir, m.RunAt.UTC().Format(dayLayout))
}

func (f *FilesystemSnapshotter) WriteSnapshot(m model.QualityMetrics) (Files, error) {
	dir := f.Dir(m)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Files{}, fmt.Errorf("mkdir: %w", err)
	}
	files := Files{
		Cleaning: filepath.Join(dir, "cleaning_metrics_"+m.RunID+".csv"),
		Quality:  filepath.Join(dir, "quality_metrics_"+m.RunID+".json"),
	}
	if err := writeExclusive(files.Cleaning, func(out *os.File) error { return encodeCleaning(out, m.Cleaning) }); err != nil {
		return Files{}, err
	}
	if err := writeExclusive(files.Quality, func(out *os.File) error {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(&m)
	}); err != nil {
		_ = os.Remove(files.Cleaning)
		return Files{}, err
	}
	return files, nil
}

func writeExclusive(path string, fill func(*os.File) error) error {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	if err := fill(out); err != nil {
		out.Close()
		_ = os.Remove(path)
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

func encodeCleaning(out *os.File, c model.CleaningCounts) error {
	w := csv.NewWriter(out)
	rows := [][]string{
		{"metric", "value"},
		{"initial_records", strconv.Itoa(c.InitialRecords)},
		{"duplicate_emails_removed", strconv.Itoa(c.DuplicateEmailsRemoved)},
		{"invalid_sessions_removed", strconv.Itoa(c.InvalidSessionsRemoved)},
		{"invalid_prices_removed", strconv.Itoa(c.InvalidPricesRemoved)},
		{"invalid_status_removed", strconv.Itoa(c.InvalidStatusRemoved)},
		{"final_records", strconv.Itoa(c.FinalRecords)},
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return w.Error()
}
