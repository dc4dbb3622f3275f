package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"actpipe/internal/model"
)

func records() []model.EnrichedRecord {
	login := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	return []model.EnrichedRecord{
		{UserID: "u1", Email: "a@example.com", LoginTime: &login, Price: 100, CustomerLifetimeValue: 400},
		{UserID: "u1", Email: "b@example.com", Price: 300, CustomerLifetimeValue: 400},
	}
}

func writeAll(dir, runID string, ws []Writer) ([]File, error) {
	st, err := NewStage(dir, runID)
	if err != nil {
		return nil, err
	}
	for _, w := range ws {
		if err := st.Write(context.Background(), w, records()); err != nil {
			if derr := st.Discard(); derr != nil {
				return nil, derr
			}
			return nil, err
		}
	}
	return st.Promote()
}

func TestStage_PromotesEveryFormat(t *testing.T) {
	dir := t.TempDir()
	ws, err := Writers([]string{FormatJSON, FormatCSV, FormatParquet})
	if err != nil {
		t.Fatalf("writers: %v", err)
	}
	files, err := writeAll(dir, "run1", ws)
	if err != nil {
		t.Fatalf("writeAll: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("want 3 files, got %d", len(files))
	}
	for _, f := range files {
		if filepath.Dir(f.Path) != dir || f.Rows != 2 {
			t.Fatalf("unexpected file: %+v", f)
		}
		if _, err := os.Stat(f.Path); err != nil {
			t.Fatalf("missing %s: %v", f.Path, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, ".tmp-run1")); !os.IsNotExist(err) {
		t.Fatalf("stage dir should be gone, stat err=%v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "cleaned_data.json"))
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	var got []map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if len(got) != 2 || got[0]["login_time"] != "2024-01-01T10:00:00Z" || got[1]["login_time"] != nil {
		t.Fatalf("unexpected json rows: %v", got)
	}

	f, err := os.Open(filepath.Join(dir, "cleaned_data.csv"))
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 || len(rows[0]) != len(model.EnrichedColumns) || rows[1][0] != "u1" {
		t.Fatalf("unexpected csv: %v", rows)
	}
}

type failingWriter struct{}

func (failingWriter) Format() string { return "broken" }
func (failingWriter) Write(context.Context, string, []model.EnrichedRecord) error {
	return errors.New("disk full")
}

func TestStage_DiscardLeavesNoFinalOutput(t *testing.T) {
	dir := t.TempDir()
	_, err := writeAll(dir, "run2", []Writer{CSVWriter{}, failingWriter{}})
	if err == nil {
		t.Fatalf("expected error")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("data dir should be empty, has %d entries", len(entries))
	}
}

func TestWriterFor_Unknown(t *testing.T) {
	if _, err := WriterFor("xml"); err == nil {
		t.Fatalf("expected error")
	}
}

func writeFinal(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func readFinal(t *testing.T, dir, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(b)
}

func TestStage_PromoteReplacesPreviousRun(t *testing.T) {
	dir := t.TempDir()
	writeFinal(t, dir, "cleaned_data.json", "old")
	if _, err := writeAll(dir, "run3", []Writer{JSONWriter{}}); err != nil {
		t.Fatalf("writeAll: %v", err)
	}
	if got := readFinal(t, dir, "cleaned_data.json"); got == "old" {
		t.Fatalf("previous output was not replaced")
	}
	for _, leftover := range []string{".tmp-run3", ".prev-run3"} {
		if _, err := os.Stat(filepath.Join(dir, leftover)); !os.IsNotExist(err) {
			t.Fatalf("%s should be gone, stat err=%v", leftover, err)
		}
	}
}

func TestStage_PromoteFailureRestoresPreviousRun(t *testing.T) {
	dir := t.TempDir()
	writeFinal(t, dir, "cleaned_data.json", "old json")
	writeFinal(t, dir, "cleaned_data.csv", "old csv")

	st, err := NewStage(dir, "run4")
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	for _, w := range []Writer{JSONWriter{}, CSVWriter{}} {
		if err := st.Write(context.Background(), w, records()); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	rename = func(from, to string) error {
		if filepath.Dir(from) == st.Dir() && filepath.Base(to) == "cleaned_data.csv" {
			return errors.New("device busy")
		}
		return os.Rename(from, to)
	}
	t.Cleanup(func() { rename = os.Rename })

	if _, err := st.Promote(); err == nil {
		t.Fatalf("expected promote error")
	}
	if got := readFinal(t, dir, "cleaned_data.json"); got != "old json" {
		t.Fatalf("json not restored: %q", got)
	}
	if got := readFinal(t, dir, "cleaned_data.csv"); got != "old csv" {
		t.Fatalf("csv not restored: %q", got)
	}
	if _, err := os.Stat(filepath.Join(dir, ".prev-run4")); !os.IsNotExist(err) {
		t.Fatalf("backup dir should be gone, stat err=%v", err)
	}
	if err := st.Discard(); err != nil {
		t.Fatalf("discard: %v", err)
	}
}

func TestStage_PromoteRefusesNonFileTarget(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "cleaned_data.csv", "x"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, err := writeAll(dir, "run5", []Writer{JSONWriter{}, CSVWriter{}}); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := os.Stat(filepath.Join(dir, "cleaned_data.json")); !os.IsNotExist(err) {
		t.Fatalf("json must not be promoted, stat err=%v", err)
	}
}
