package pipeline

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"actpipe/internal/export"
	"actpipe/internal/lineage"
	"actpipe/internal/metrics"
	"actpipe/internal/model"
	"actpipe/internal/snapshot"
	"actpipe/internal/source"
	"actpipe/internal/state"
	"actpipe/internal/useragent"
	"actpipe/internal/warehouse"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func raw(userID, email, login, logout, price string) model.RawRecord {
	return model.RawRecord{
		UserID:         userID,
		FirstName:      "Ada",
		LastName:       "Lovelace",
		Email:          email,
		IsActive:       "1",
		AccountCreated: "2023-06-01T00:00:00",
		LoginTime:      login,
		LogoutTime:     logout,
		ProductName:    "widget",
		Price:          price,
		PurchaseStatus: "Completed",
		UserAgent:      chromeUA,
	}
}

func writeCSV(t *testing.T, dir string, recs ...model.RawRecord) string {
	t.Helper()
	path := filepath.Join(dir, "activity.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	w := csv.NewWriter(f)
	require.NoError(t, w.Write(model.RawColumns))
	for _, r := range recs {
		require.NoError(t, w.Write(r.Values()))
	}
	w.Flush()
	require.NoError(t, w.Error())
	return path
}

type harness struct {
	dataDir     string
	metricsDir  string
	manifestDir string
	registry    *metrics.Registry
	opts        Options
}

func newHarness(t *testing.T, src source.Source) *harness {
	t.Helper()
	root := t.TempDir()
	h := &harness{
		dataDir:     filepath.Join(root, "data"),
		metricsDir:  filepath.Join(root, "metrics"),
		manifestDir: filepath.Join(root, "lineage"),
		registry:    metrics.NewRegistry(),
	}
	require.NoError(t, os.MkdirAll(h.dataDir, 0o755))
	clock := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	h.opts = Options{
		Source:      src,
		Classifier:  useragent.Default(),
		NewStore:    func(string) (state.Store, error) { return state.NewInMemoryStore(), nil },
		Snapshotter: snapshot.NewFilesystemSnapshotter(h.metricsDir),
		DataDir:     h.dataDir,
		Writers:     []export.Writer{export.JSONWriter{}, export.CSVWriter{}},
		Manifest:    lineage.NewFilesystemManifest(h.manifestDir),
		Metrics:     h.registry,
		Now:         func() time.Time { return clock },
		NewRunID:    func() string { return "run-1" },
	}
	return h
}

func (h *harness) run(t *testing.T) (Result, error) {
	t.Helper()
	return New(h.opts).Run(context.Background())
}

func TestRun_DuplicateAndNegativePrice(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir,
		raw("u1", "same@example.com", "2024-01-01T10:00:00", "2024-01-01T11:00:00", "120"),
		raw("u2", "same@example.com", "2024-01-02T10:00:00", "2024-01-02T11:00:00", "80"),
		raw("u3", "c@example.com", "2024-01-03T10:00:00", "2024-01-03T11:00:00", "-5"),
	)
	h := newHarness(t, source.CSVFile{Path: path})

	res, err := h.run(t)
	require.NoError(t, err)
	assert.False(t, res.Degraded())
	require.Len(t, res.Records, 1)
	assert.Equal(t, "u1", res.Records[0].UserID)
	assert.Equal(t, 3, res.Metrics.Cleaning.InitialRecords)
	assert.Equal(t, 1, res.Metrics.Cleaning.DuplicateEmailsRemoved)
	assert.Equal(t, 1, res.Metrics.Cleaning.InvalidPricesRemoved)
	assert.Equal(t, 1, res.Metrics.Cleaning.FinalRecords)

	for _, f := range res.Outputs {
		assert.Equal(t, h.dataDir, filepath.Dir(f.Path))
		assert.FileExists(t, f.Path)
	}
	for _, p := range res.Snapshot.Paths() {
		assert.FileExists(t, p)
	}

	m, err := lineage.NewFilesystemManifest(h.manifestDir).ReadLatest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", m.RunID)
	assert.Len(t, m.Outputs, 2)
	assert.Len(t, m.MetricsFiles, 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.registry.Runs.WithLabelValues(metrics.OutcomeSucceeded)))
	assert.Equal(t, 3.0, testutil.ToFloat64(h.registry.RecordsRead))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.registry.RecordsWritten))
}

func TestRun_LogoutBeforeLoginExcluded(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir,
		raw("u1", "a@example.com", "2024-01-01T10:00", "2024-01-01T09:00", "100"),
		raw("u2", "b@example.com", "2024-01-01T10:00", "2024-01-01T12:00", "100"),
	)
	h := newHarness(t, source.CSVFile{Path: path})

	res, err := h.run(t)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "u2", res.Records[0].UserID)
	assert.Equal(t, 1, res.Metrics.Cleaning.InvalidSessionsRemoved)
	for _, r := range res.Records {
		require.NotNil(t, r.LoginTime)
		require.NotNil(t, r.LogoutTime)
		assert.False(t, r.LoginTime.After(*r.LogoutTime))
	}
}

func TestRun_LifetimeValueAcrossRecords(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir,
		raw("u1", "a@example.com", "2024-01-01T10:00:00", "2024-01-01T11:00:00", "100"),
		raw("u2", "x@example.com", "2024-01-01T10:00:00", "2024-01-01T11:00:00", "50"),
		raw("u1", "b@example.com", "2024-02-01T10:00:00", "2024-02-01T11:00:00", "300"),
	)
	h := newHarness(t, source.CSVFile{Path: path})
	h.opts.NewStore = func(runID string) (state.Store, error) {
		return state.NewPebbleStore(filepath.Join(dir, "state", runID), state.RemoveOnClose())
	}

	res, err := h.run(t)
	require.NoError(t, err)
	require.Len(t, res.Records, 3)
	for _, r := range res.Records {
		if r.UserID == "u1" {
			assert.Equal(t, 400.0, r.CustomerLifetimeValue)
		}
		assert.GreaterOrEqual(t, r.CustomerLifetimeValue, r.Price)
		assert.GreaterOrEqual(t, r.UserAgeDays, int64(0))
	}
	assert.NoDirExists(t, filepath.Join(dir, "state", "run-1"))
}

func TestRun_UnrecognizedUserAgentIsDesktop(t *testing.T) {
	dir := t.TempDir()
	rec := raw("u1", "a@example.com", "2024-01-01T10:00:00", "2024-01-01T11:00:00", "100")
	rec.UserAgent = "totally-unknown-agent/0.1"
	path := writeCSV(t, dir, rec)
	h := newHarness(t, source.CSVFile{Path: path})

	res, err := h.run(t)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, useragent.DeviceDesktop, res.Records[0].DeviceType)
	assert.NotContains(t, res.Metrics.DeviceTypeDistribution, useragent.FamilyOther)
}

func TestRun_EmptyBatchFails(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir)
	h := newHarness(t, source.CSVFile{Path: path})

	_, err := h.run(t)
	require.ErrorIs(t, err, ErrEmptyBatch)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageRead, se.Stage)
	assert.Equal(t, "run-1", se.RunID)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.registry.Runs.WithLabelValues(metrics.OutcomeFailed)))
	assertNoOutputs(t, h)
}

func TestRun_SchemaMismatchFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("user_id,email\nu1,a@example.com\n"), 0o644))
	h := newHarness(t, source.CSVFile{Path: path})

	_, err := h.run(t)
	require.ErrorIs(t, err, ErrSchemaMismatch)
	assertNoOutputs(t, h)
}

func TestRun_UnreadableSourceFails(t *testing.T) {
	h := newHarness(t, source.JSONFile{Path: filepath.Join(t.TempDir(), "missing.json")})
	_, err := h.run(t)
	require.ErrorIs(t, err, ErrSourceUnreadable)
}

type brokenWriter struct{}

func (brokenWriter) Format() string { return "broken" }
func (brokenWriter) Write(context.Context, string, []model.EnrichedRecord) error {
	return errors.New("disk full")
}

func TestRun_ExportFailureLeavesNoFinalOutput(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, raw("u1", "a@example.com", "2024-01-01T10:00:00", "2024-01-01T11:00:00", "100"))
	h := newHarness(t, source.CSVFile{Path: path})
	h.opts.Writers = []export.Writer{export.CSVWriter{}, brokenWriter{}}

	_, err := h.run(t)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageExport, se.Stage)
	assertNoOutputs(t, h)
	assert.NoDirExists(t, h.metricsDir)
}

func assertNoOutputs(t *testing.T, h *harness) {
	t.Helper()
	entries, err := os.ReadDir(h.dataDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	_, err = lineage.NewFilesystemManifest(h.manifestDir).ReadLatest(context.Background())
	assert.ErrorIs(t, err, lineage.ErrNoManifest)
}

type ackingSource struct {
	source.CSVFile
	acks int
}

func (a *ackingSource) Ack(context.Context) error {
	a.acks++
	return nil
}

type missingModel struct{}

func (missingModel) Analyze(context.Context, []model.EnrichedRecord) (warehouse.Summary, error) {
	return warehouse.Summary{Skipped: true}, warehouse.ErrTableNotFound
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, []model.EnrichedRecord) (int, error) {
	return 0, errors.New("broker unavailable")
}

func TestRun_DownstreamFailureDegradesRun(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, raw("u1", "a@example.com", "2024-01-01T10:00:00", "2024-01-01T11:00:00", "100"))
	src := &ackingSource{CSVFile: source.CSVFile{Path: path}}
	h := newHarness(t, src)
	h.opts.Analyzer = missingModel{}
	h.opts.Records = failingPublisher{}

	res, err := h.run(t)
	require.NoError(t, err)
	assert.True(t, res.Degraded())
	assert.Len(t, res.Warnings, 2)
	assert.True(t, res.Reports.Skipped)
	assert.Equal(t, 1, src.acks)
	for _, f := range res.Outputs {
		assert.FileExists(t, f.Path)
	}

	m, err := lineage.NewFilesystemManifest(h.manifestDir).ReadLatest(context.Background())
	require.NoError(t, err)
	assert.Len(t, m.Warnings, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.registry.Runs.WithLabelValues(metrics.OutcomeDegraded)))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.registry.Warnings))
}

func TestRun_FailedRunIsNotAcked(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir)
	src := &ackingSource{CSVFile: source.CSVFile{Path: path}}
	h := newHarness(t, src)

	_, err := h.run(t)
	require.Error(t, err)
	assert.Zero(t, src.acks)
}

func TestRun_PromoteFailureLeavesNoOutputOrSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, raw("u1", "a@example.com", "2024-01-01T10:00:00", "2024-01-01T11:00:00", "100"))
	h := newHarness(t, source.CSVFile{Path: path})
	blocker := filepath.Join(h.dataDir, "cleaned_data.csv")
	require.NoError(t, os.MkdirAll(filepath.Join(blocker, "keep"), 0o755))

	_, err := h.run(t)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageExport, se.Stage)

	entries, err := os.ReadDir(h.dataDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cleaned_data.csv", entries[0].Name())
	assert.DirExists(t, filepath.Join(blocker, "keep"))

	var snapshots []string
	err = filepath.WalkDir(h.metricsDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			snapshots = append(snapshots, p)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, snapshots)

	_, err = lineage.NewFilesystemManifest(h.manifestDir).ReadLatest(context.Background())
	assert.ErrorIs(t, err, lineage.ErrNoManifest)
}

func TestRun_LogsLifetimeTotalsAtDebug(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir,
		raw("u1", "a@example.com", "2024-01-01T10:00:00", "2024-01-01T11:00:00", "100"),
		raw("u1", "b@example.com", "2024-02-01T10:00:00", "2024-02-01T11:00:00", "300"),
	)
	h := newHarness(t, source.CSVFile{Path: path})
	var buf bytes.Buffer
	h.opts.Log = slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	_, err := h.run(t)
	require.NoError(t, err)

	var totals []float64
	users := -1.0
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		switch rec["msg"] {
		case "lifetime value":
			assert.Equal(t, "u1", rec["user_id"])
			totals = append(totals, rec["total"].(float64))
		case "lifetime values accumulated":
			users = rec["users"].(float64)
		}
	}
	assert.Equal(t, []float64{400}, totals)
	assert.Equal(t, 1.0, users)
}
