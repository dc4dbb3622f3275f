package pipeline

import (
	"errors"
	"fmt"

	"actpipe/internal/source"
	"actpipe/internal/warehouse"
)

// Batch-structural and downstream errors.
var (
	ErrEmptyBatch       = errors.New("empty batch")
	ErrSchemaMismatch   = source.ErrSchemaMismatch
	ErrSourceUnreadable = source.ErrSourceUnreadable
	ErrTableNotFound    = warehouse.ErrTableNotFound
)

// Stages that can fail a run.
const (
	StageRead     = "read"
	StageEnrich   = "enrich"
	StageExport   = "export"
	StageSnapshot = "snapshot"
)

// StageError identifies the stage and run a fatal error came from.
type StageError struct {
	Stage string
	RunID string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("run %s: stage %s: %v", e.RunID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage, runID string, err error) error {
	return &StageError{Stage: stage, RunID: runID, Err: err}
}
