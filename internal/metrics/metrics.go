// Package metrics holds the run counters of the pipeline and pushes them to a
// Prometheus Pushgateway for batch jobs.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"actpipe/internal/model"
)

// Run outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeDegraded  = "degraded"
	OutcomeFailed    = "failed"
)

type Registry struct {
	reg            *prometheus.Registry
	RecordsRead    prometheus.Counter
	RecordsWritten prometheus.Counter
	Duplicates     prometheus.Counter
	InvalidRows    *prometheus.CounterVec
	Runs           *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	StageDuration  *prometheus.HistogramVec
	LastSuccess    prometheus.Gauge
	Warnings       prometheus.Counter
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	read := prometheus.NewCounter(prometheus.CounterOpts{Name: "actpipe_records_read_total"})
	written := prometheus.NewCounter(prometheus.CounterOpts{Name: "actpipe_records_written_total"})
	dups := prometheus.NewCounter(prometheus.CounterOpts{Name: "actpipe_duplicate_emails_removed_total"})
	invalid := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "actpipe_invalid_rows_total"}, []string{"check"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "actpipe_runs_total"}, []string{"outcome"})
	runDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "actpipe_run_duration_seconds",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})
	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "actpipe_stage_duration_seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})
	lastSuccess := prometheus.NewGauge(prometheus.GaugeOpts{Name: "actpipe_last_success_timestamp_seconds"})
	warnings := prometheus.NewCounter(prometheus.CounterOpts{Name: "actpipe_run_warnings_total"})

	r.MustRegister(read, written, dups, invalid, runs, runDuration, stageDuration, lastSuccess, warnings)
	return &Registry{
		reg:            r,
		RecordsRead:    read,
		RecordsWritten: written,
		Duplicates:     dups,
		InvalidRows:    invalid,
		Runs:           runs,
		RunDuration:    runDuration,
		StageDuration:  stageDuration,
		LastSuccess:    lastSuccess,
		Warnings:       warnings,
	}
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// ObserveCleaning adds one run's cleaning counts.
func (r *Registry) ObserveCleaning(c model.CleaningCounts) {
	r.RecordsRead.Add(float64(c.InitialRecords))
	r.Duplicates.Add(float64(c.DuplicateEmailsRemoved))
	r.InvalidRows.WithLabelValues("session").Add(float64(c.InvalidSessionsRemoved))
	r.InvalidRows.WithLabelValues("price").Add(float64(c.InvalidPricesRemoved))
	r.InvalidRows.WithLabelValues("status").Add(float64(c.InvalidStatusRemoved))
}

// ObserveStage records the duration of one pipeline stage.
func (r *Registry) ObserveStage(stage string, d time.Duration) {
	r.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveRun records the end of a run.
func (r *Registry) ObserveRun(outcome string, d time.Duration, finishedAt time.Time) {
	r.Runs.WithLabelValues(outcome).Inc()
	r.RunDuration.Observe(d.Seconds())
	if outcome != OutcomeFailed {
		r.LastSuccess.Set(float64(finishedAt.Unix()))
	}
}

// Push sends every collected metric to a Pushgateway, replacing the job's group.
func (r *Registry) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(r.reg).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
