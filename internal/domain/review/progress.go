package review

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TotalPipelineSteps is the fixed number of pipeline stages a task moves
// through.
const TotalPipelineSteps = 4

// Progress represents a point-in-time status update from an executing
// pipeline. It is ephemeral: once a task reaches a terminal state the
// progress entry for it ceases to exist and consumers must fall back to the
// durable record.
type Progress struct {
	taskID      uuid.UUID
	currentStep int
	totalSteps  int
	phase       string
	sequenceNum int64
	timestamp   time.Time
}

// NewProgress creates a new Progress update for a task.
func NewProgress(taskID uuid.UUID, currentStep int, phase string, sequenceNum int64, timestamp time.Time) Progress {
	return Progress{
		taskID:      taskID,
		currentStep: currentStep,
		totalSteps:  TotalPipelineSteps,
		phase:       phase,
		sequenceNum: sequenceNum,
		timestamp:   timestamp,
	}
}

// TaskID returns the task this update belongs to.
func (p Progress) TaskID() uuid.UUID { return p.taskID }

// CurrentStep returns the 1-based index of the most recently started stage.
func (p Progress) CurrentStep() int { return p.currentStep }

// TotalSteps returns the fixed stage count.
func (p Progress) TotalSteps() int { return p.totalSteps }

// Phase returns the human-readable label of the current stage.
func (p Progress) Phase() string { return p.phase }

// SequenceNum orders updates from the same task.
func (p Progress) SequenceNum() int64 { return p.sequenceNum }

// Timestamp returns when this update was produced.
func (p Progress) Timestamp() time.Time { return p.timestamp }

type progressJSON struct {
	TaskID      uuid.UUID `json:"task_id"`
	CurrentStep int       `json:"current"`
	TotalSteps  int       `json:"total"`
	Phase       string    `json:"status"`
	SequenceNum int64     `json:"seq"`
	Timestamp   time.Time `json:"timestamp"`
}

// MarshalJSON implements json.Marshaler so progress can cross process
// boundaries inside event envelopes.
func (p Progress) MarshalJSON() ([]byte, error) {
	return json.Marshal(progressJSON{
		TaskID:      p.taskID,
		CurrentStep: p.currentStep,
		TotalSteps:  p.totalSteps,
		Phase:       p.phase,
		SequenceNum: p.sequenceNum,
		Timestamp:   p.timestamp,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Progress) UnmarshalJSON(data []byte) error {
	var pj progressJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return err
	}
	*p = Progress{
		taskID:      pj.TaskID,
		currentStep: pj.CurrentStep,
		totalSteps:  pj.TotalSteps,
		phase:       pj.Phase,
		sequenceNum: pj.SequenceNum,
		timestamp:   pj.Timestamp,
	}
	return nil
}
