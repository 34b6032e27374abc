package review

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the read side.
var (
	// ErrTaskNotFound indicates no record exists for the requested task id.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskNotCompleted indicates results were requested for a task that
	// has not reached COMPLETED.
	ErrTaskNotCompleted = errors.New("task not completed")
)

// ValidationError indicates the submitted inputs were malformed. It is fatal
// and surfaces to the caller at submission time or fails the task during the
// initialize stage.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError constructs a ValidationError for the given field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// DispatchError indicates the broker was unavailable at submission time. The
// PENDING record is rolled back before this surfaces.
type DispatchError struct {
	Err error
}

func (e *DispatchError) Error() string { return fmt.Sprintf("dispatching task: %v", e.Err) }
func (e *DispatchError) Unwrap() error { return e.Err }

// TransportError indicates the external data fetcher failed. It is fatal for
// the task.
type TransportError struct {
	Operation string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fetching change data (%s): %v", e.Operation, e.Err)
}
func (e *TransportError) Unwrap() error { return e.Err }

// GenerationError indicates the review generator failed. It is non-fatal:
// the pipeline records the reason and completes with a nil review.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return fmt.Sprintf("generating review: %v", e.Err) }
func (e *GenerationError) Unwrap() error { return e.Err }

// PersistenceError indicates a record-store write failed. On the failure path
// it is logged and swallowed so the original task failure is not masked.
type PersistenceError struct {
	Operation string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persisting task state (%s): %v", e.Operation, e.Err)
}
func (e *PersistenceError) Unwrap() error { return e.Err }
