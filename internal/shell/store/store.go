// Package store persists the pipeline run journal.
package store

import (
	"context"
	"time"

	"github.com/artpar/shipway/internal/core/release"
)

// =============================================================================
// Record Types
// =============================================================================

// RunRecord is the journal row for one pipeline run.
type RunRecord struct {
	ID         string
	Project    string
	Service    string
	Region     string
	VersionTag string
	ImageRef   string
	State      release.State
	FailedStep string
	Error      string
	URL        string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// NewRunRecord builds a journal record from a run's current state.
func NewRunRecord(run *release.Run) *RunRecord {
	rec := &RunRecord{
		ID:         run.ID,
		Project:    run.Config.Project,
		Service:    run.Config.Service,
		Region:     run.Config.Region,
		VersionTag: run.Config.VersionTag,
		ImageRef:   run.Config.Artifact().Ref(),
		State:      run.State,
		FailedStep: run.FailedStep,
		StartedAt:  run.StartedAt,
	}
	if run.Cause != nil {
		rec.Error = run.Cause.Error()
	}
	if run.Endpoint != nil {
		rec.URL = run.Endpoint.URL
	}
	if !run.FinishedAt.IsZero() {
		t := run.FinishedAt
		rec.FinishedAt = &t
	}
	return rec
}

// =============================================================================
// Store Interface
// =============================================================================

// ListOptions controls journal listing.
type ListOptions struct {
	Service string // filter by service name; empty means all
	Limit   int    // max rows; 0 means default
}

// Store defines the persistence interface for the run journal.
type Store interface {
	// CreateRun inserts a run record at pipeline start.
	CreateRun(ctx context.Context, rec *RunRecord) error

	// UpdateRun overwrites the mutable fields of a run record.
	UpdateRun(ctx context.Context, rec *RunRecord) error

	// GetRun fetches a run record by ID.
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// ListRuns returns run records, most recent first.
	ListRuns(ctx context.Context, opts ListOptions) ([]RunRecord, error)

	// LatestResolved returns the most recent successful run for a service,
	// or ErrNotFound.
	LatestResolved(ctx context.Context, service string) (*RunRecord, error)

	// Close releases the underlying connection.
	Close() error
}
