package review

import "time"

// TimeProvider is an interface that provides a Now method to get the current time.
type TimeProvider interface {
	Now() time.Time
}

// Real implementation for production.
type realTimeProvider struct{}

func (r *realTimeProvider) Now() time.Time { return time.Now().UTC() }

// RealTimeProvider returns a TimeProvider backed by the wall clock in UTC.
func RealTimeProvider() TimeProvider { return new(realTimeProvider) }

// Timeline tracks temporal aspects of a review task. Each timestamp is set
// exactly once: at creation, at PROCESSING entry, and at terminal entry.
type Timeline struct {
	createdAt    time.Time
	startedAt    time.Time
	completedAt  time.Time
	timeProvider TimeProvider
}

// NewTimeline creates a new Timeline instance anchored at the provider's
// current time.
func NewTimeline(timeProvider TimeProvider) *Timeline {
	return &Timeline{
		createdAt:    timeProvider.Now(),
		timeProvider: timeProvider,
	}
}

// ReconstructTimeline rebuilds a Timeline from persisted timestamps.
// This should only be used by repositories when loading from storage.
func ReconstructTimeline(createdAt, startedAt, completedAt time.Time) *Timeline {
	return &Timeline{
		createdAt:    createdAt,
		startedAt:    startedAt,
		completedAt:  completedAt,
		timeProvider: new(realTimeProvider),
	}
}

// CreatedAt returns the time the task was submitted.
func (t *Timeline) CreatedAt() time.Time { return t.createdAt }

// StartedAt returns the time pipeline execution began.
func (t *Timeline) StartedAt() time.Time { return t.startedAt }

// CompletedAt returns the time the task reached a terminal state.
func (t *Timeline) CompletedAt() time.Time { return t.completedAt }

// MarkStarted records the execution start time. Subsequent calls are no-ops
// so redelivered work cannot move the timestamp.
func (t *Timeline) MarkStarted() {
	if t.startedAt.IsZero() {
		t.startedAt = t.timeProvider.Now()
	}
}

// MarkCompleted records the terminal transition time.
func (t *Timeline) MarkCompleted() {
	if t.completedAt.IsZero() {
		t.completedAt = t.timeProvider.Now()
	}
}
