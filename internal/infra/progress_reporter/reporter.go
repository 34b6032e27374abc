// Package progressreporter publishes pipeline progress as domain events. It
// implements the application's ProgressReporter port on top of the event
// publishing infrastructure, so live progress can cross process boundaries
// from workers to the API without touching the durable store.
package progressreporter

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	appReview "github.com/ahrav/reviewhound/internal/app/review"
	"github.com/ahrav/reviewhound/internal/domain/events"
	"github.com/ahrav/reviewhound/internal/domain/review"
)

var _ appReview.ProgressReporter = (*DomainEventProgressReporter)(nil)

// DomainEventProgressReporter publishes domain events for task progress
// updates and terminal notices.
type DomainEventProgressReporter struct {
	workerID string

	domainPublisher events.DomainEventPublisher
	tracer          trace.Tracer
}

// New creates a new DomainEventProgressReporter.
func New(workerID string, domainPublisher events.DomainEventPublisher, tracer trace.Tracer) *DomainEventProgressReporter {
	return &DomainEventProgressReporter{workerID: workerID, domainPublisher: domainPublisher, tracer: tracer}
}

// ReportProgress publishes a TaskProgressedEvent containing the current
// pipeline progress, keyed by task id so per-task ordering is preserved.
func (r *DomainEventProgressReporter) ReportProgress(ctx context.Context, p review.Progress) error {
	ctx, span := r.tracer.Start(
		ctx,
		"progress_reporter.report_progress",
		trace.WithAttributes(
			attribute.String("worker_id", r.workerID),
			attribute.String("task_id", p.TaskID().String()),
			attribute.Int("seq_num", int(p.SequenceNum())),
		),
	)
	defer span.End()

	evt := review.NewTaskProgressedEvent(p)
	opts := []events.PublishOption{
		events.WithKey(p.TaskID().String()),
		events.WithHeaders(map[string]string{"worker_id": r.workerID}),
	}
	if err := r.domainPublisher.PublishDomainEvent(ctx, evt, opts...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish task progressed event")
		return fmt.Errorf("failed to publish task progressed event: %w", err)
	}
	span.SetStatus(codes.Ok, "task progressed event published")
	span.AddEvent("task_progressed_event_published")

	return nil
}

// ReportCompletion publishes the terminal success notice so live progress
// consumers can drop their entry for this task.
func (r *DomainEventProgressReporter) ReportCompletion(ctx context.Context, taskID uuid.UUID) error {
	ctx, span := r.tracer.Start(
		ctx,
		"progress_reporter.report_completion",
		trace.WithAttributes(
			attribute.String("worker_id", r.workerID),
			attribute.String("task_id", taskID.String()),
		),
	)
	defer span.End()

	evt := review.NewTaskCompletedEvent(taskID)
	opts := []events.PublishOption{
		events.WithKey(taskID.String()),
		events.WithHeaders(map[string]string{"worker_id": r.workerID}),
	}
	if err := r.domainPublisher.PublishDomainEvent(ctx, evt, opts...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish task completed event")
		return fmt.Errorf("failed to publish task completed event: %w", err)
	}
	span.AddEvent("task_completed_event_published")

	return nil
}

// ReportFailure publishes the terminal failure notice with a transportable
// reason message.
func (r *DomainEventProgressReporter) ReportFailure(ctx context.Context, taskID uuid.UUID, reason string) error {
	ctx, span := r.tracer.Start(
		ctx,
		"progress_reporter.report_failure",
		trace.WithAttributes(
			attribute.String("worker_id", r.workerID),
			attribute.String("task_id", taskID.String()),
		),
	)
	defer span.End()

	evt := review.NewTaskFailedEvent(taskID, reason)
	opts := []events.PublishOption{
		events.WithKey(taskID.String()),
		events.WithHeaders(map[string]string{"worker_id": r.workerID}),
	}
	if err := r.domainPublisher.PublishDomainEvent(ctx, evt, opts...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish task failed event")
		return fmt.Errorf("failed to publish task failed event: %w", err)
	}
	span.AddEvent("task_failed_event_published")

	return nil
}
