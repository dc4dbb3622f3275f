// Package pipeline runs one batch through cleaning, enrichment, quality accounting
// and the output sinks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"actpipe/internal/clean"
	"actpipe/internal/enrich"
	"actpipe/internal/export"
	"actpipe/internal/lineage"
	"actpipe/internal/metrics"
	"actpipe/internal/model"
	"actpipe/internal/quality"
	"actpipe/internal/snapshot"
	"actpipe/internal/source"
	"actpipe/internal/state"
	"actpipe/internal/warehouse"
)

// RecordPublisher streams the enriched table to a downstream topic.
type RecordPublisher interface {
	Publish(ctx context.Context, records []model.EnrichedRecord) (int, error)
}

// Analyzer runs the analytics reports over the enriched table.
type Analyzer interface {
	Analyze(ctx context.Context, records []model.EnrichedRecord) (warehouse.Summary, error)
}

// Uploader hands the enriched table to object storage.
type Uploader interface {
	Upload(ctx context.Context, records []model.EnrichedRecord, writers []export.Writer) ([]string, error)
}

// Options is the immutable run configuration. Source, Classifier, NewStore,
// Snapshotter and DataDir are required; nil downstream sinks are skipped.
type Options struct {
	Source      source.Source
	Classifier  clean.Classifier
	NewStore    func(runID string) (state.Store, error)
	Snapshotter snapshot.Snapshotter
	DataDir     string
	Writers     []export.Writer

	Records       RecordPublisher
	Analyzer      Analyzer
	Uploader      Uploader
	UploadWriters []export.Writer
	Manifest      lineage.Publisher

	Metrics *metrics.Registry
	// PushURL is the Pushgateway address; empty disables pushing.
	PushURL string
	PushJob string

	Log      *slog.Logger
	Now      func() time.Time
	NewRunID func() string
}

// Result is what a completed run produced. Warnings lists the downstream steps
// that were skipped or failed.
type Result struct {
	RunID    string
	RunAt    time.Time
	Metrics  model.QualityMetrics
	Records  []model.EnrichedRecord
	Outputs  []export.File
	Snapshot snapshot.Files
	Reports  warehouse.Summary
	Objects  []string
	Warnings []string
}

// Degraded reports whether any downstream step failed.
func (r Result) Degraded() bool { return len(r.Warnings) > 0 }

type Orchestrator struct {
	opts Options
}

func New(opts Options) *Orchestrator {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}
	if opts.PushJob == "" {
		opts.PushJob = "actpipe"
	}
	return &Orchestrator{opts: opts}
}

// Run processes one batch. A returned error is a *StageError and no final output
// has been promoted; downstream failures are reported in Result.Warnings instead.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	started := o.opts.Now()
	res := Result{RunID: o.opts.NewRunID(), RunAt: started.UTC()}
	log := o.opts.Log.With("run_id", res.RunID)

	err := o.run(ctx, log, &res)
	outcome := metrics.OutcomeSucceeded
	switch {
	case err != nil:
		outcome = metrics.OutcomeFailed
		log.Error("run failed", "error", err)
	case res.Degraded():
		outcome = metrics.OutcomeDegraded
		log.Warn("run degraded", "warnings", len(res.Warnings))
	default:
		log.Info("run succeeded", "records", len(res.Records))
	}
	if m := o.opts.Metrics; m != nil {
		finished := o.opts.Now()
		m.ObserveRun(outcome, finished.Sub(started), finished)
		if o.opts.PushURL != "" {
			if perr := m.Push(ctx, o.opts.PushURL, o.opts.PushJob); perr != nil {
				log.Warn("metrics push failed", "error", perr)
				if err == nil {
					res.Warnings = append(res.Warnings, perr.Error())
				}
			}
		}
	}
	return res, err
}

func (o *Orchestrator) run(ctx context.Context, log *slog.Logger, res *Result) error {
	raw, err := timed(o, StageRead, func() ([]model.RawRecord, error) { return o.opts.Source.Read(ctx) })
	if err != nil {
		return stageErr(StageRead, res.RunID, err)
	}
	if len(raw) == 0 {
		return stageErr(StageRead, res.RunID, fmt.Errorf("%w: %s", ErrEmptyBatch, o.opts.Source.Name()))
	}
	log.Info("batch read", "stage", StageRead, "source", o.opts.Source.Name(), "records", len(raw))

	basic := clean.Basic(raw)
	log.Info("basic cleaning done", "stage", "basic", "records", len(basic.Records), "duplicates", basic.DuplicatesRemoved)
	adv := clean.Advanced(basic.Records, o.opts.Classifier)
	log.Info("advanced cleaning done", "stage", "advanced", "records", len(adv.Records),
		"invalid_sessions", adv.InvalidSessions, "invalid_prices", adv.InvalidPrices, "invalid_status", adv.InvalidStatus)
	for _, rj := range adv.Rejections {
		log.Debug("record rejected", "index", rj.Index, "email", rj.Email, "reasons", rj.Reasons)
	}

	res.Metrics = quality.Collect(quality.Input{
		RunID:          res.RunID,
		RunAt:          res.RunAt,
		InitialRecords: len(raw),
		Basic:          basic,
		Advanced:       adv,
	})
	if o.opts.Metrics != nil {
		o.opts.Metrics.ObserveCleaning(res.Metrics.Cleaning)
	}

	records, err := o.enrich(log, res.RunID, adv.Records)
	if err != nil {
		return stageErr(StageEnrich, res.RunID, err)
	}
	log.Info("enrichment done", "stage", StageEnrich, "records", len(records))

	stage, err := export.NewStage(o.opts.DataDir, res.RunID)
	if err != nil {
		return stageErr(StageExport, res.RunID, err)
	}
	for _, w := range o.opts.Writers {
		if err := stage.Write(ctx, w, records); err != nil {
			o.discard(log, stage)
			return stageErr(StageExport, res.RunID, err)
		}
	}
	files, err := o.opts.Snapshotter.WriteSnapshot(res.Metrics)
	if err != nil {
		o.discard(log, stage)
		return stageErr(StageSnapshot, res.RunID, err)
	}
	outputs, err := stage.Promote()
	if errors.Is(err, export.ErrStageCleanup) {
		log.Warn("stage cleanup failed", "dir", stage.Dir(), "error", err)
		err = nil
	}
	if err != nil {
		o.discard(log, stage)
		o.discardSnapshot(log, files)
		return stageErr(StageExport, res.RunID, err)
	}
	res.Snapshot = files
	res.Outputs = outputs
	res.Records = records
	if o.opts.Metrics != nil {
		o.opts.Metrics.RecordsWritten.Add(float64(len(records)))
	}
	log.Info("outputs promoted", "stage", StageExport, "files", len(outputs), "records", len(records))

	o.downstream(ctx, log, res)
	return nil
}

func (o *Orchestrator) enrich(log *slog.Logger, runID string, records []model.CleanedRecord) (out []model.EnrichedRecord, err error) {
	st, err := o.opts.NewStore(runID)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close state store: %w", cerr)
		}
	}()
	out, err = timed(o, StageEnrich, func() ([]model.EnrichedRecord, error) { return enrich.Enrich(records, st) })
	if err != nil {
		return nil, err
	}

	users := 0
	err = enrich.Lifetimes(st, func(userID string, ls state.LifetimeState) error {
		users++
		log.Debug("lifetime value", "stage", StageEnrich, "user_id", userID, "total", ls.Total, "records", ls.Count)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list lifetime values: %w", err)
	}
	log.Info("lifetime values accumulated", "stage", StageEnrich, "users", users)
	return out, nil
}

// downstream runs the steps whose failure degrades the run instead of failing it.
func (o *Orchestrator) downstream(ctx context.Context, log *slog.Logger, res *Result) {
	warn := func(step string, err error) {
		log.Warn("downstream step failed", "step", step, "error", err)
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", step, err))
		if o.opts.Metrics != nil {
			o.opts.Metrics.Warnings.Inc()
		}
	}

	if o.opts.Records != nil {
		if n, err := o.opts.Records.Publish(ctx, res.Records); err != nil {
			warn("publish records", err)
		} else {
			log.Info("records published", "records", n)
		}
	}
	if o.opts.Analyzer != nil {
		sum, err := o.opts.Analyzer.Analyze(ctx, res.Records)
		res.Reports = sum
		if err != nil {
			warn("analytics", err)
		}
	}
	if o.opts.Uploader != nil {
		objs, err := o.opts.Uploader.Upload(ctx, res.Records, o.opts.UploadWriters)
		res.Objects = objs
		if err != nil {
			warn("upload", err)
		}
	}
	if o.opts.Manifest != nil {
		m, err := o.manifest(res)
		if err == nil {
			err = o.opts.Manifest.PublishLatest(ctx, m)
		}
		if err != nil {
			warn("manifest", err)
		}
	}
	if acker, ok := o.opts.Source.(source.Acker); ok {
		if err := acker.Ack(ctx); err != nil {
			warn("ack source", err)
		}
	}
}

func (o *Orchestrator) manifest(res *Result) (lineage.Manifest, error) {
	m := lineage.Manifest{
		RunID:     res.RunID,
		RunDate:   res.RunAt.Format("20060102"),
		CreatedAt: o.opts.Now().UTC(),
		Warnings:  append([]string(nil), res.Warnings...),
	}
	for _, f := range res.Outputs {
		out, err := lineage.Describe(f.Format, f.Path, f.Rows)
		if err != nil {
			return lineage.Manifest{}, err
		}
		m.Outputs = append(m.Outputs, out)
	}
	for _, p := range res.Snapshot.Paths() {
		out, err := lineage.Describe("metrics", p, 0)
		if err != nil {
			return lineage.Manifest{}, err
		}
		m.MetricsFiles = append(m.MetricsFiles, out)
	}
	return m, nil
}

// discardSnapshot removes the snapshot of a run whose outputs were not promoted.
func (o *Orchestrator) discardSnapshot(log *slog.Logger, files snapshot.Files) {
	for _, p := range files.Paths() {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("snapshot cleanup failed", "path", p, "error", err)
		}
	}
}

func (o *Orchestrator) discard(log *slog.Logger, st *export.Stage) {
	if err := st.Discard(); err != nil {
		log.Warn("stage cleanup failed", "dir", st.Dir(), "error", err)
	}
}

func timed[T any](o *Orchestrator, stage string, fn func() (T, error)) (T, error) {
	start := o.opts.Now()
	v, err := fn()
	if o.opts.Metrics != nil {
		o.opts.Metrics.ObserveStage(stage, o.opts.Now().Sub(start))
	}
	return v, err
}
