package review

import (
	"errors"
	"fmt"
	"strings"
)

// TaskStatus represents the lifecycle state of an individual review task. It
// enables tracking of task progress from submission through completion or
// failure.
type TaskStatus string

// ErrTaskStatusUnknown is returned when a task status is unknown.
var ErrTaskStatusUnknown = errors.New("task status unknown")

const (
	// TaskStatusPending indicates a task is created but not yet started.
	TaskStatusPending TaskStatus = "PENDING"

	// TaskStatusProcessing indicates a task's pipeline is actively executing.
	TaskStatusProcessing TaskStatus = "PROCESSING"

	// TaskStatusCompleted indicates a task finished successfully.
	TaskStatusCompleted TaskStatus = "COMPLETED"

	// TaskStatusFailed indicates a task encountered an unrecoverable error.
	TaskStatusFailed TaskStatus = "FAILED"

	// TaskStatusUnspecified is used when a task status is unknown. It is
	// the zero value so an unset status field means "unspecified".
	TaskStatusUnspecified TaskStatus = ""
)

// String returns the string representation of the TaskStatus.
func (s TaskStatus) String() string { return string(s) }

// Lower returns the lowercase wire representation used by the HTTP API.
func (s TaskStatus) Lower() string { return strings.ToLower(string(s)) }

// IsTerminal reports whether no further transitions are possible.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// ParseTaskStatus converts a string to a TaskStatus. Both the canonical
// uppercase form and the lowercase wire form are accepted.
func ParseTaskStatus(s string) TaskStatus {
	switch strings.ToUpper(s) {
	case "PENDING":
		return TaskStatusPending
	case "PROCESSING":
		return TaskStatusProcessing
	case "COMPLETED":
		return TaskStatusCompleted
	case "FAILED":
		return TaskStatusFailed
	default:
		return TaskStatusUnspecified
	}
}

// ValidateTransition checks if a status transition is valid and returns an
// error if not.
func (s TaskStatus) ValidateTransition(target TaskStatus) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid task status transition from %s to %s", s, target)
	}
	return nil
}

// isValidTransition enforces the forward-only task lifecycle:
// PENDING -> PROCESSING -> {COMPLETED | FAILED}.
func (s TaskStatus) isValidTransition(target TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return target == TaskStatusProcessing
	case TaskStatusProcessing:
		return target == TaskStatusCompleted || target == TaskStatusFailed
	case TaskStatusCompleted, TaskStatusFailed:
		// Terminal states - no further transitions allowed.
		return false
	default:
		return false
	}
}
