package review

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows and pages a task listing. Page is 1-indexed.
type ListFilter struct {
	Page    int
	PerPage int
	Status  TaskStatus // TaskStatusUnspecified means no filter
}

// StatusCounts aggregates per-status task totals.
type StatusCounts struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
}

// SuccessRate returns completed/total*100 rounded to two decimals, or 0 when
// no tasks exist.
func (c StatusCounts) SuccessRate() float64 {
	if c.Total == 0 {
		return 0
	}
	return math.Round(float64(c.Completed)/float64(c.Total)*100*100) / 100
}

// TaskRepository is the durable task record store. Exactly one record exists
// per task identity; identity is never reused.
type TaskRepository interface {
	// CreateTask persists a new PENDING task record.
	CreateTask(ctx context.Context, task *Task) error

	// GetTask loads the record for the given id, or ErrTaskNotFound.
	GetTask(ctx context.Context, id uuid.UUID) (*Task, error)

	// UpdateTask persists the task's current state (status, timestamps,
	// results, metadata, error detail). Writes are idempotent: re-applying
	// an equivalent state is safe under at-least-once redelivery.
	UpdateTask(ctx context.Context, task *Task) error

	// MarkTaskFailed writes a FAILED terminal state directly by id. It must
	// succeed even when the record was never loaded into a domain aggregate.
	MarkTaskFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) error

	// RequestCancel flags a still-PENDING record for best-effort
	// cancellation without mutating its status. It reports whether the flag
	// was applied.
	RequestCancel(ctx context.Context, id uuid.UUID) (bool, error)

	// DeleteTask removes the record, or returns ErrTaskNotFound.
	DeleteTask(ctx context.Context, id uuid.UUID) error

	// ListTasks returns records ordered newest-created-first along with the
	// total count matching the filter.
	ListTasks(ctx context.Context, filter ListFilter) ([]*Task, int, error)

	// CountByStatus returns aggregate per-status totals.
	CountByStatus(ctx context.Context) (StatusCounts, error)
}
