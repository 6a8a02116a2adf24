package store

import (
	"context"
	"errors"

	"github.com/taskforge/taskforge/models"
)

// ErrTaskNotFound is returned when a task identifier has no record.
var ErrTaskNotFound = errors.New("task not found")

// TaskStore defines the contract for durable per-task records.
type TaskStore interface {
	// GetTask retrieves the record for the given task identifier.
	// A missing identifier yields ErrTaskNotFound, never an implicit
	// creation.
	GetTask(ctx context.Context, taskID string) (models.TaskRecord, error)

	// UpsertTask merges the given fields into the record for taskID,
	// inserting the record when absent. Keys are column names; the
	// updated_at column is refreshed by the store on every call and is
	// not settable by callers.
	UpsertTask(ctx context.Context, taskID string, fields map[string]any) error

	// ArchiveRoundOne copies the round-1-era field values into their
	// round1_*-prefixed counterparts. The copy happens at most once per
	// task: a record whose archive is already populated is left
	// untouched and false is returned.
	ArchiveRoundOne(ctx context.Context, taskID string) (bool, error)

	// Close releases the underlying database handle.
	Close() error
}
