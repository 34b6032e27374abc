package review

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ahrav/reviewhound/internal/domain/events"
	"github.com/ahrav/reviewhound/internal/domain/review"
	"github.com/ahrav/reviewhound/pkg/common/logger"
)

// ProgressTracker maintains the in-memory view of live pipeline progress.
// It consumes progress events off the bus and keeps only the latest update
// per task, ordered by sequence number so out-of-order delivery cannot move
// progress backwards. Terminal events drop the entry: progress is ephemeral
// and the durable record is authoritative once a task finishes.
type ProgressTracker struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]review.Progress
	logger  *logger.Logger
}

var _ LiveProgress = (*ProgressTracker)(nil)

// NewProgressTracker creates an empty tracker.
func NewProgressTracker(logger *logger.Logger) *ProgressTracker {
	return &ProgressTracker{
		entries: make(map[uuid.UUID]review.Progress),
		logger:  logger,
	}
}

// Subscribe registers the tracker's handler for progress and terminal events
// on the given bus.
func (t *ProgressTracker) Subscribe(ctx context.Context, bus events.EventBus) error {
	types := []events.EventType{
		review.EventTypeTaskProgressed,
		review.EventTypeTaskCompleted,
		review.EventTypeTaskFailed,
	}
	return bus.Subscribe(ctx, types, t.handleEvent)
}

func (t *ProgressTracker) handleEvent(ctx context.Context, envelope events.EventEnvelope, ack events.AckFunc) error {
	defer ack(nil)

	switch evt := envelope.Payload.(type) {
	case review.TaskProgressedEvent:
		t.record(evt.Progress)
	case review.TaskCompletedEvent:
		t.drop(evt.TaskID)
	case review.TaskFailedEvent:
		t.drop(evt.TaskID)
	default:
		t.logger.Warn(ctx, "progress tracker received unexpected event type",
			"event_type", string(envelope.Type),
		)
	}
	return nil
}

func (t *ProgressTracker) record(p review.Progress) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.entries[p.TaskID()]; ok && prev.SequenceNum() >= p.SequenceNum() {
		return
	}
	t.entries[p.TaskID()] = p
}

func (t *ProgressTracker) drop(taskID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, taskID)
}

// Peek returns the latest known progress for a task, if any.
func (t *ProgressTracker) Peek(taskID uuid.UUID) (review.Progress, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.entries[taskID]
	return p, ok
}
