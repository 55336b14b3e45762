package stepflow

import (
	"context"
	"time"
)

// ExecutionStore implementations should all be tested with adaptertest.RunExecutionStoreTest.
type ExecutionStore interface {
	// Create stores a new execution. The store sets Version to 1.
	Create(ctx context.Context, e *Execution) error

	// Update stores e only if the stored version equals e.Version, and increments e.Version on success. A
	// mismatch returns ErrVersionConflict.
	Update(ctx context.Context, e *Execution) error

	// Lookup returns ErrExecutionNotFound when no execution exists with the provided id.
	Lookup(ctx context.Context, id string) (*Execution, error)

	// ListDue returns unfinished executions of the workflow whose DueAt is not after now, oldest due first.
	ListDue(ctx context.Context, workflowName string, now time.Time, limit int) ([]Execution, error)

	// List returns executions of the workflow ordered by creation, optionally filtered by status.
	List(ctx context.Context, workflowName string, offset, limit int, filters ...ExecutionFilter) ([]Execution, error)
}
