package review

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/reviewhound/internal/domain/review"
	"github.com/ahrav/reviewhound/pkg/common/logger"
)

// ProgressView is the live-progress fragment overlaid on a status view while
// a task is PROCESSING.
type ProgressView struct {
	Current int
	Total   int
	Phase   string
}

// StatusView is the merged durable + live answer to "what is happening with
// this task right now".
type StatusView struct {
	TaskID       uuid.UUID
	RepoURL      string
	ChangeNumber int
	Status       review.TaskStatus
	Progress     *ProgressView
	CreatedAt    time.Time
	StartedAt    time.Time
	CompletedAt  time.Time
	ErrorMessage string
	Metadata     review.Metadata
}

// TaskSummaryView is one row of a task listing.
type TaskSummaryView struct {
	TaskID       uuid.UUID
	RepoURL      string
	ChangeNumber int
	Status       review.TaskStatus
	CreatedAt    time.Time
	CompletedAt  time.Time
	Title        string
	Author       string
	FilesCount   int
}

// TaskPageView is one page of a task listing, newest-created-first.
type TaskPageView struct {
	Tasks   []TaskSummaryView
	Page    int
	PerPage int
	Total   int
	Pages   int
}

// StatsView aggregates per-status counts across all tasks.
type StatsView struct {
	Total       int
	Pending     int
	Processing  int
	Completed   int
	Failed      int
	SuccessRate float64
}

// TaskCanceler requests that a not-yet-started task never executes.
type TaskCanceler interface {
	Cancel(ctx context.Context, taskID uuid.UUID) error
}

// StatusService is the read side of the task lifecycle. It merges durable
// record-store state with live in-flight progress without ever blocking on
// the live channel, and owns the deletion path.
type StatusService struct {
	store    review.TaskRepository
	progress LiveProgress
	canceler TaskCanceler
	logger   *logger.Logger
	tracer   trace.Tracer
}

// NewStatusService creates a StatusService over the given store, live
// progress source, and canceler.
func NewStatusService(
	store review.TaskRepository,
	progress LiveProgress,
	canceler TaskCanceler,
	logger *logger.Logger,
	tracer trace.Tracer,
) *StatusService {
	return &StatusService{
		store:    store,
		progress: progress,
		canceler: canceler,
		logger:   logger,
		tracer:   tracer,
	}
}

// GetStatus loads the durable record and, only while it is PROCESSING,
// overlays the ephemeral progress tuple. A missing or expired progress entry
// degrades the view to durable-only fields; it never fails the call.
func (s *StatusService) GetStatus(ctx context.Context, taskID uuid.UUID) (StatusView, error) {
	ctx, span := s.tracer.Start(ctx, "status_service.get_status",
		trace.WithAttributes(attribute.String("task_id", taskID.String())))
	defer span.End()

	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		span.RecordError(err)
		return StatusView{}, err
	}

	view := StatusView{
		TaskID:       task.ID(),
		RepoURL:      task.RepoURL(),
		ChangeNumber: task.ChangeNumber(),
		Status:       task.Status(),
		CreatedAt:    task.CreatedAt(),
		StartedAt:    task.StartedAt(),
		CompletedAt:  task.CompletedAt(),
		ErrorMessage: task.ErrorMessage(),
		Metadata:     task.Metadata(),
	}

	if task.Status() == review.TaskStatusProcessing {
		if p, ok := s.progress.Peek(taskID); ok {
			view.Progress = &ProgressView{
				Current: p.CurrentStep(),
				Total:   p.TotalSteps(),
				Phase:   p.Phase(),
			}
		}
	}

	return view, nil
}

// GetResults returns the stored review findings for a completed task.
// A missing task yields ErrTaskNotFound; any non-terminal-success status
// yields ErrTaskNotCompleted.
func (s *StatusService) GetResults(ctx context.Context, taskID uuid.UUID) (*review.ResultPayload, error) {
	ctx, span := s.tracer.Start(ctx, "status_service.get_results",
		trace.WithAttributes(attribute.String("task_id", taskID.String())))
	defer span.End()

	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if task.Status() != review.TaskStatusCompleted {
		return nil, review.ErrTaskNotCompleted
	}
	return task.Results(), nil
}

// ListTasks returns one page of tasks ordered newest-created-first.
// Pagination is 1-indexed; page count is ceil(total / per_page).
func (s *StatusService) ListTasks(ctx context.Context, filter review.ListFilter) (TaskPageView, error) {
	ctx, span := s.tracer.Start(ctx, "status_service.list_tasks",
		trace.WithAttributes(
			attribute.Int("page", filter.Page),
			attribute.Int("per_page", filter.PerPage),
		))
	defer span.End()

	tasks, total, err := s.store.ListTasks(ctx, filter)
	if err != nil {
		span.RecordError(err)
		return TaskPageView{}, err
	}

	summaries := make([]TaskSummaryView, 0, len(tasks))
	for _, t := range tasks {
		summaries = append(summaries, TaskSummaryView{
			TaskID:       t.ID(),
			RepoURL:      t.RepoURL(),
			ChangeNumber: t.ChangeNumber(),
			Status:       t.Status(),
			CreatedAt:    t.CreatedAt(),
			CompletedAt:  t.CompletedAt(),
			Title:        t.Metadata().Title,
			Author:       t.Metadata().Author,
			FilesCount:   t.Metadata().FilesCount,
		})
	}

	pages := 0
	if filter.PerPage > 0 {
		pages = (total + filter.PerPage - 1) / filter.PerPage
	}

	return TaskPageView{
		Tasks:   summaries,
		Page:    filter.Page,
		PerPage: filter.PerPage,
		Total:   total,
		Pages:   pages,
	}, nil
}

// DeleteTask removes a task record. A PENDING task gets a best-effort cancel
// first so the worker never starts it; removal does not wait on cancellation
// succeeding and never blocks on in-flight execution.
func (s *StatusService) DeleteTask(ctx context.Context, taskID uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "status_service.delete_task",
		trace.WithAttributes(attribute.String("task_id", taskID.String())))
	defer span.End()

	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if task.Status() == review.TaskStatusPending {
		if cancelErr := s.canceler.Cancel(ctx, taskID); cancelErr != nil {
			s.logger.Warn(ctx, "best-effort cancel failed before delete",
				"task_id", taskID.String(),
				"error", cancelErr,
			)
		}
	}

	if err := s.store.DeleteTask(ctx, taskID); err != nil {
		span.RecordError(err)
		return err
	}

	s.logger.Info(ctx, "task deleted", "task_id", taskID.String(), "status", task.Status().String())
	return nil
}

// GetStats returns per-status counts and the overall success rate.
func (s *StatusService) GetStats(ctx context.Context) (StatsView, error) {
	ctx, span := s.tracer.Start(ctx, "status_service.get_stats")
	defer span.End()

	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		span.RecordError(err)
		return StatsView{}, err
	}

	return StatsView{
		Total:       counts.Total,
		Pending:     counts.Pending,
		Processing:  counts.Processing,
		Completed:   counts.Completed,
		Failed:      counts.Failed,
		SuccessRate: counts.SuccessRate(),
	}, nil
}
