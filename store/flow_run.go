package store

import (
	"context"
	"time"
)

// FlowRunStatus is the outcome of one note generation run.
type FlowRunStatus string

const (
	FlowRunSucceeded FlowRunStatus = "SUCCEEDED"
	FlowRunFailed    FlowRunStatus = "FAILED"
)

// FlowRun is the persisted record of one note generation run.
// The core flow never reads it back; it serves the run lookup endpoint.
type FlowRun struct {
	ID int64

	// RunID is the 8 character id of the upload batch.
	RunID     string
	RequestID string

	IdeaPreview     string
	ImageIDs        []string
	ProcessedImages int
	TotalImages     int

	Status       FlowRunStatus
	ErrorMessage string
	Report       string

	DurationMs int64
	CreatedTs  int64
}

// CreatedAt returns CreatedTs as a time.
func (r *FlowRun) CreatedAt() time.Time {
	return time.Unix(r.CreatedTs, 0)
}

// Driver is the database backend of the store.
type Driver interface {
	// SaveFlowRun inserts run, or replaces the record with the same RunID.
	SaveFlowRun(ctx context.Context, run *FlowRun) (*FlowRun, error)
	// GetFlowRun returns nil, nil when no run has the id.
	GetFlowRun(ctx context.Context, runID string) (*FlowRun, error)

	Ping(ctx context.Context) error
	// Migrate creates the schema when missing.
	Migrate(ctx context.Context) error
	Close() error
}
