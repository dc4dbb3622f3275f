package warehouse

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"actpipe/internal/model"
)

type Options struct {
	// Path is the DuckDB database file; empty means in-memory.
	Path       string
	ReportsDir string
	// BuildModel derives the model table from the activity table before reporting.
	BuildModel bool
	ModelTable string
	Now        func() time.Time
}

// Summary lists what one analytics pass produced.
type Summary struct {
	Reports     []string
	Workbook    string
	Performance string
	Skipped     bool
}

type Analyzer struct {
	opts Options
	log  *slog.Logger
}

func NewAnalyzer(opts Options, log *slog.Logger) *Analyzer {
	if opts.ModelTable == "" {
		opts.ModelTable = ModelTable
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Analyzer{opts: opts, log: log}
}

// Analyze loads records into the activity table and runs the report suite over the
// model table. A missing model table skips the reports and returns the summary
// with an error wrapping ErrTableNotFound.
func (a *Analyzer) Analyze(ctx context.Context, records []model.EnrichedRecord) (Summary, error) {
	started := a.opts.Now()
	db, err := Open(a.opts.Path)
	if err != nil {
		return Summary{}, err
	}
	defer db.Close()

	if err := db.Load(ctx, ActivityTable, records); err != nil {
		return Summary{}, err
	}
	if err := db.CreateIndexes(ctx, ActivityTable, activityIndexes); err != nil {
		return Summary{}, err
	}
	a.log.Info("loaded analytics table", "table", ActivityTable, "records", len(records))

	if a.opts.BuildModel {
		if err := db.BuildModel(ctx, ActivityTable, a.opts.ModelTable); err != nil {
			return Summary{}, err
		}
	}

	var sum Summary
	var results []Result
	exists, err := db.TableExists(ctx, a.opts.ModelTable)
	if err != nil {
		return Summary{}, err
	}
	var missing error
	if !exists {
		missing = fmt.Errorf("%w: %s", ErrTableNotFound, a.opts.ModelTable)
		a.log.Warn("model table missing, skipping reports", "table", a.opts.ModelTable)
		sum.Skipped = true
	} else {
		if err := db.CreateIndexes(ctx, a.opts.ModelTable, modelIndexes); err != nil {
			return Summary{}, err
		}
		for _, r := range Reports {
			res, err := db.Run(ctx, r, a.opts.ModelTable, started)
			if err != nil {
				return Summary{}, err
			}
			a.log.Debug("report finished", "report", r.Name, "rows", len(res.Rows), "duration", res.Duration)
			results = append(results, res)
			path, err := WriteCSV(a.opts.ReportsDir, res)
			if err != nil {
				return Summary{}, err
			}
			sum.Reports = append(sum.Reports, path)
		}
		sum.Workbook = filepath.Join(a.opts.ReportsDir, "analytics_"+started.Format("20060102_150405")+".xlsx")
		if err := WriteWorkbook(sum.Workbook, results); err != nil {
			return Summary{}, err
		}
	}

	perf, err := WritePerformance(a.opts.ReportsDir, Performance{
		ExecutedAt:      started,
		Elapsed:         a.opts.Now().Sub(started),
		QueriesExecuted: len(results),
	})
	if err != nil {
		return Summary{}, err
	}
	sum.Performance = perf
	a.log.Info("analytics finished", "reports", len(results), "skipped", sum.Skipped)
	return sum, missing
}
