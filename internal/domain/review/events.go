package review

import (
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/reviewhound/internal/domain/events"
)

// Event types relevant to review tasks.
const (
	EventTypeTaskSubmitted  events.EventType = "TaskSubmitted"
	EventTypeTaskProgressed events.EventType = "TaskProgressed"
	EventTypeTaskCompleted  events.EventType = "TaskCompleted"
	EventTypeTaskFailed     events.EventType = "TaskFailed"
)

// TaskSubmittedEvent carries a new task's inputs from the dispatcher to a
// worker. It is the enqueue message of the job queue.
type TaskSubmittedEvent struct {
	occurredAt   time.Time
	TaskID       uuid.UUID `json:"task_id"`
	RepoURL      string    `json:"repo_url"`
	ChangeNumber int       `json:"change_number"`
	Token        string    `json:"token,omitempty"`
}

func NewTaskSubmittedEvent(taskID uuid.UUID, repoURL string, changeNumber int, token string) TaskSubmittedEvent {
	return TaskSubmittedEvent{
		occurredAt:   time.Now(),
		TaskID:       taskID,
		RepoURL:      repoURL,
		ChangeNumber: changeNumber,
		Token:        token,
	}
}

func (e TaskSubmittedEvent) EventType() events.EventType { return EventTypeTaskSubmitted }
func (e TaskSubmittedEvent) OccurredAt() time.Time       { return e.occurredAt }

// TaskProgressedEvent signals a new pipeline progress update was produced.
type TaskProgressedEvent struct {
	occurredAt time.Time
	Progress   Progress `json:"progress"`
}

func NewTaskProgressedEvent(p Progress) TaskProgressedEvent {
	return TaskProgressedEvent{occurredAt: time.Now(), Progress: p}
}

func (e TaskProgressedEvent) EventType() events.EventType { return EventTypeTaskProgressed }
func (e TaskProgressedEvent) OccurredAt() time.Time       { return e.occurredAt }

// TaskCompletedEvent means the pipeline finished successfully and the durable
// record holds the results. Live progress for the task is dropped on receipt.
type TaskCompletedEvent struct {
	occurredAt time.Time
	TaskID     uuid.UUID `json:"task_id"`
}

func NewTaskCompletedEvent(taskID uuid.UUID) TaskCompletedEvent {
	return TaskCompletedEvent{occurredAt: time.Now(), TaskID: taskID}
}

func (e TaskCompletedEvent) EventType() events.EventType { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) OccurredAt() time.Time       { return e.occurredAt }

// TaskFailedEvent is the terminal failure notice published on the progress
// channel. Reason is a transportable message, never a stack trace.
type TaskFailedEvent struct {
	occurredAt time.Time
	TaskID     uuid.UUID `json:"task_id"`
	Reason     string    `json:"reason"`
}

func NewTaskFailedEvent(taskID uuid.UUID, reason string) TaskFailedEvent {
	return TaskFailedEvent{occurredAt: time.Now(), TaskID: taskID, Reason: reason}
}

func (e TaskFailedEvent) EventType() events.EventType { return EventTypeTaskFailed }
func (e TaskFailedEvent) OccurredAt() time.Time       { return e.occurredAt }
