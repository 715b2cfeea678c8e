// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/finmatch/finmatch/internal/model"
)

// Storage defines the contract for the persistence layer.
type Storage interface {
	// SaveRun persists a reconciliation run and its outcomes atomically,
	// returning the run with its assigned ID.
	SaveRun(ctx context.Context, run *model.Run, outcomes []model.MatchOutcome) (*model.Run, error)

	// GetRun returns a stored run by ID, or common.ErrNotFound.
	GetRun(ctx context.Context, id int64) (*model.Run, error)

	// ListRuns returns up to limit runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)

	// GetOutcomes returns a run's outcomes in their stored (report) order.
	GetOutcomes(ctx context.Context, runID int64) ([]model.MatchOutcome, error)

	// Migrate applies pending schema migrations.
	Migrate(ctx context.Context) error

	// Close releases the underlying database handle.
	Close() error
}

// LedgerReader turns a raw ledger source into normalized records. Readers own
// all parsing; the engine never sees raw cell values.
type LedgerReader interface {
	Read(ctx context.Context, path string, side model.LedgerSide) ([]model.Record, error)
}

// ReportWriter exports a reconciliation run to an external report surface.
type ReportWriter interface {
	Write(ctx context.Context, run *model.Run, outcomes []model.MatchOutcome) error
}

// RetryOptions configures retry behavior for transient failures.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
