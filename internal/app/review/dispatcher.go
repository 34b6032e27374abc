package review

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/reviewhound/internal/domain/events"
	"github.com/ahrav/reviewhound/internal/domain/review"
	"github.com/ahrav/reviewhound/pkg/common/logger"
)

// Dispatcher accepts new review tasks, assigns them a unique identity,
// persists the initial PENDING record, and enqueues an execution request on
// the event bus. It also supports best-effort cancellation of not-yet-started
// work.
type Dispatcher struct {
	store     review.TaskRepository
	publisher events.DomainEventPublisher
	logger    *logger.Logger
	tracer    trace.Tracer
}

// NewDispatcher creates a Dispatcher with the given record store and event
// publisher.
func NewDispatcher(
	store review.TaskRepository,
	publisher events.DomainEventPublisher,
	logger *logger.Logger,
	tracer trace.Tracer,
) *Dispatcher {
	return &Dispatcher{
		store:     store,
		publisher: publisher,
		logger:    logger,
		tracer:    tracer,
	}
}

// Submit validates the inputs, creates the PENDING task record, and enqueues
// the execution request. When enqueueing fails the record is rolled back so
// no orphaned PENDING record survives, and a DispatchError is returned.
func (d *Dispatcher) Submit(ctx context.Context, repoURL string, changeNumber int, token string) (uuid.UUID, error) {
	ctx, span := d.tracer.Start(ctx, "dispatcher.submit",
		trace.WithAttributes(
			attribute.String("repo_url", repoURL),
			attribute.Int("change_number", changeNumber),
		))
	defer span.End()

	if _, _, err := review.ParseRepoURL(repoURL); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid repository url")
		return uuid.Nil, err
	}
	if changeNumber <= 0 {
		err := review.NewValidationError("change_number", "must be positive")
		span.RecordError(err)
		return uuid.Nil, err
	}

	taskID := uuid.New()
	span.SetAttributes(attribute.String("task_id", taskID.String()))

	task := review.NewTask(taskID, repoURL, changeNumber)
	if err := d.store.CreateTask(ctx, task); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create task record")
		return uuid.Nil, &review.PersistenceError{Operation: "create_task", Err: err}
	}

	evt := review.NewTaskSubmittedEvent(taskID, repoURL, changeNumber, token)
	if err := d.publisher.PublishDomainEvent(ctx, evt, events.WithKey(taskID.String())); err != nil {
		// Roll back the record so submission is all-or-nothing. A rollback
		// failure leaves an orphan which the delete path can still clean up.
		if delErr := d.store.DeleteTask(ctx, taskID); delErr != nil {
			d.logger.Error(ctx, "failed to roll back task record after dispatch failure",
				"task_id", taskID.String(),
				"error", delErr,
			)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to enqueue task")
		return uuid.Nil, &review.DispatchError{Err: err}
	}

	d.logger.Info(ctx, "task submitted",
		"task_id", taskID.String(),
		"repo_url", repoURL,
		"change_number", changeNumber,
	)

	return taskID, nil
}

// Cancel requests that a not-yet-started task never begins executing. It is
// only meaningful while the task is PENDING; a PROCESSING task runs to its
// natural end. The task record itself is not mutated beyond the cancel flag.
func (d *Dispatcher) Cancel(ctx context.Context, taskID uuid.UUID) error {
	ctx, span := d.tracer.Start(ctx, "dispatcher.cancel",
		trace.WithAttributes(attribute.String("task_id", taskID.String())))
	defer span.End()

	applied, err := d.store.RequestCancel(ctx, taskID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("requesting cancel for task %s: %w", taskID, err)
	}

	span.SetAttributes(attribute.Bool("cancel_applied", applied))
	d.logger.Info(ctx, "task cancel requested", "task_id", taskID.String(), "applied", applied)

	return nil
}
