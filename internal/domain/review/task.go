package review

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Metadata holds the change-request facts derived from fetched data. It is
// populated when a task completes.
type Metadata struct {
	Title      string
	Author     string
	FilesCount int
	Additions  int
	Deletions  int
}

// Task is the unit of submitted review work. It owns the forward-only status
// state machine and the associated timestamps, error detail, and results.
type Task struct {
	id           uuid.UUID
	repoURL      string
	changeNumber int
	status       TaskStatus
	timeline     *Timeline
	errorMessage string
	results      *ResultPayload
	metadata     Metadata
	cancelWanted bool
}

// NewTask creates a new Task in the PENDING state with created_at anchored
// at the current time.
func NewTask(id uuid.UUID, repoURL string, changeNumber int) *Task {
	return &Task{
		id:           id,
		repoURL:      repoURL,
		changeNumber: changeNumber,
		status:       TaskStatusPending,
		timeline:     NewTimeline(new(realTimeProvider)),
	}
}

// ReconstructTask creates a Task instance from stored fields, bypassing
// creation invariants. This should only be used by repositories when loading
// from storage.
func ReconstructTask(
	id uuid.UUID,
	repoURL string,
	changeNumber int,
	status TaskStatus,
	timeline *Timeline,
	errorMessage string,
	results *ResultPayload,
	metadata Metadata,
	cancelWanted bool,
) *Task {
	return &Task{
		id:           id,
		repoURL:      repoURL,
		changeNumber: changeNumber,
		status:       status,
		timeline:     timeline,
		errorMessage: errorMessage,
		results:      results,
		metadata:     metadata,
		cancelWanted: cancelWanted,
	}
}

// ID returns the unique identifier for this task.
func (t *Task) ID() uuid.UUID { return t.id }

// RepoURL returns the immutable repository reference supplied at submission.
func (t *Task) RepoURL() string { return t.repoURL }

// ChangeNumber returns the immutable change-request number supplied at
// submission.
func (t *Task) ChangeNumber() int { return t.changeNumber }

// Status returns the current lifecycle state.
func (t *Task) Status() TaskStatus { return t.status }

// CreatedAt returns when the task was submitted.
func (t *Task) CreatedAt() time.Time { return t.timeline.CreatedAt() }

// StartedAt returns when pipeline execution began, or the zero time if the
// task has not started.
func (t *Task) StartedAt() time.Time { return t.timeline.StartedAt() }

// CompletedAt returns when the task reached a terminal state, or the zero
// time if it has not.
func (t *Task) CompletedAt() time.Time { return t.timeline.CompletedAt() }

// ErrorMessage returns the failure detail; populated only on FAILED.
func (t *Task) ErrorMessage() string { return t.errorMessage }

// Results returns the stored result payload; populated only on COMPLETED.
func (t *Task) Results() *ResultPayload { return t.results }

// Metadata returns the derived change-request metadata.
func (t *Task) Metadata() Metadata { return t.metadata }

// CancelRequested reports whether a best-effort cancel was requested while
// the task was still PENDING.
func (t *Task) CancelRequested() bool { return t.cancelWanted }

// Start transitions the task to PROCESSING and records started_at. Calling
// Start on a task that is already PROCESSING is a no-op so redelivered work
// can safely re-enter the pipeline. Starting a terminal task is an error.
func (t *Task) Start() error {
	if t.status == TaskStatusProcessing {
		return nil
	}
	if err := t.status.ValidateTransition(TaskStatusProcessing); err != nil {
		return err
	}

	t.timeline.MarkStarted()
	t.status = TaskStatusProcessing
	return nil
}

// Complete transitions the task to COMPLETED, storing the result payload and
// derived metadata and recording completed_at.
func (t *Task) Complete(results *ResultPayload, md Metadata) error {
	if err := t.status.ValidateTransition(TaskStatusCompleted); err != nil {
		return err
	}
	if results == nil {
		return fmt.Errorf("completing task %s: results payload is required", t.id)
	}

	t.timeline.MarkCompleted()
	t.status = TaskStatusCompleted
	t.results = results
	t.metadata = md
	return nil
}

// Fail transitions the task to FAILED with the given reason and records
// completed_at. The reason should be a plain message, never a stack trace.
func (t *Task) Fail(reason string) error {
	if err := t.status.ValidateTransition(TaskStatusFailed); err != nil {
		return err
	}

	t.timeline.MarkCompleted()
	t.status = TaskStatusFailed
	t.errorMessage = reason
	return nil
}
