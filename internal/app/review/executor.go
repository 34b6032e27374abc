package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/reviewhound/internal/domain/review"
	"github.com/ahrav/reviewhound/pkg/common/logger"
)

// Stage labels reported as the pipeline advances. Clients surface these
// verbatim while polling, so they are part of the external contract.
const (
	stageInitializing = "Initializing analyzer"
	stageFetching     = "Fetching change data"
	stageReviewing    = "Running code review"
	stagePersisting   = "Saving results"
)

// Executor runs the review pipeline for a single submitted task: initialize
// the fetcher, pull change metadata and file diffs, generate the AI review,
// and persist the combined results. Execution is idempotent with respect to
// redelivery: terminal tasks are skipped, and restarting a PROCESSING task
// simply runs the pipeline again.
type Executor struct {
	store    review.TaskRepository
	fetchers FetcherFactory
	reviewer Reviewer
	reporter ProgressReporter
	clock    review.TimeProvider
	logger   *logger.Logger
	tracer   trace.Tracer
}

// NewExecutor creates an Executor wired to the given store, fetcher factory,
// reviewer, and progress reporter.
func NewExecutor(
	store review.TaskRepository,
	fetchers FetcherFactory,
	reviewer Reviewer,
	reporter ProgressReporter,
	logger *logger.Logger,
	tracer trace.Tracer,
) *Executor {
	return &Executor{
		store:    store,
		fetchers: fetchers,
		reviewer: reviewer,
		reporter: reporter,
		clock:    review.RealTimeProvider(),
		logger:   logger,
		tracer:   tracer,
	}
}

// SetTimeProvider overrides the clock used for progress timestamps.
// It exists for deterministic tests.
func (e *Executor) SetTimeProvider(tp review.TimeProvider) { e.clock = tp }

// Execute runs the full pipeline for the task identified by evt. The returned
// error reports why the task failed; callers should still acknowledge the
// message since the failure has been recorded durably.
func (e *Executor) Execute(ctx context.Context, evt review.TaskSubmittedEvent) (err error) {
	ctx, span := e.tracer.Start(ctx, "executor.execute",
		trace.WithAttributes(
			attribute.String("task_id", evt.TaskID.String()),
			attribute.String("repo_url", evt.RepoURL),
			attribute.Int("change_number", evt.ChangeNumber),
		))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = e.fail(ctx, evt.TaskID, fmt.Errorf("panic during execution: %v", r))
			span.SetStatus(codes.Error, "panic during execution")
		}
	}()

	task, getErr := e.store.GetTask(ctx, evt.TaskID)
	if getErr != nil {
		if errors.Is(getErr, review.ErrTaskNotFound) {
			// Record was deleted between enqueue and delivery. Nothing to do.
			e.logger.Info(ctx, "skipping execution for deleted task", "task_id", evt.TaskID.String())
			return nil
		}
		span.RecordError(getErr)
		return &review.PersistenceError{Operation: "get_task", Err: getErr}
	}

	if task.Status().IsTerminal() {
		e.logger.Info(ctx, "skipping execution for terminal task",
			"task_id", evt.TaskID.String(),
			"status", task.Status().String(),
		)
		return nil
	}

	if task.Status() == review.TaskStatusPending && task.CancelRequested() {
		e.logger.Info(ctx, "skipping execution for cancelled task", "task_id", evt.TaskID.String())
		return nil
	}

	if startErr := task.Start(); startErr != nil {
		span.RecordError(startErr)
		return startErr
	}
	if updErr := e.store.UpdateTask(ctx, task); updErr != nil {
		span.RecordError(updErr)
		return &review.PersistenceError{Operation: "update_task", Err: updErr}
	}

	var seq int64
	report := func(step int, label string) {
		seq++
		progress := review.NewProgress(evt.TaskID, step, label, seq, e.clock.Now())
		if repErr := e.reporter.ReportProgress(ctx, progress); repErr != nil {
			e.logger.Warn(ctx, "failed to report progress",
				"task_id", evt.TaskID.String(),
				"step", step,
				"error", repErr,
			)
		}
	}

	report(1, stageInitializing)
	fetcher, err := e.fetchers.NewFetcher(evt.RepoURL, evt.ChangeNumber, evt.Token)
	if err != nil {
		return e.fail(ctx, evt.TaskID, err)
	}

	report(2, stageFetching)
	// Metadata and the file list are independent requests; fetch them
	// concurrently and bail out if either fails.
	var (
		meta  review.ChangeMetadata
		files []review.ChangedFile
	)
	g, fetchCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var fetchErr error
		meta, fetchErr = fetcher.Metadata(fetchCtx)
		return fetchErr
	})
	g.Go(func() error {
		var fetchErr error
		files, fetchErr = fetcher.ChangedFiles(fetchCtx)
		return fetchErr
	})
	if err := g.Wait(); err != nil {
		return e.fail(ctx, evt.TaskID, err)
	}

	report(3, stageReviewing)
	input := review.BuildReviewInput(meta, files)
	results, revErr := e.reviewer.Review(ctx, input)
	if revErr != nil {
		// A failed generation does not fail the task: the fetched change
		// data is still worth persisting, with a null review attached.
		e.logger.Warn(ctx, "review generation failed, persisting without review",
			"task_id", evt.TaskID.String(),
			"error", revErr,
		)
		span.RecordError(revErr)
		results = nil
	} else {
		results.Recount()
	}

	report(4, stagePersisting)
	payload := &review.ResultPayload{
		PRInfo:      input.PRInfo,
		CodeChanges: input.CodeChanges,
		Review:      results,
	}
	md := metadataFromChange(meta, files)
	if compErr := task.Complete(payload, md); compErr != nil {
		return e.fail(ctx, evt.TaskID, compErr)
	}
	if updErr := e.store.UpdateTask(ctx, task); updErr != nil {
		return e.fail(ctx, evt.TaskID, &review.PersistenceError{Operation: "update_task", Err: updErr})
	}

	if repErr := e.reporter.ReportCompletion(ctx, evt.TaskID); repErr != nil {
		e.logger.Warn(ctx, "failed to report completion",
			"task_id", evt.TaskID.String(),
			"error", repErr,
		)
	}

	e.logger.Info(ctx, "task completed",
		"task_id", evt.TaskID.String(),
		"files", md.FilesCount,
	)

	return nil
}

// fail records the failure durably and broadcasts it. Persistence errors on
// the failure path are logged and swallowed so the original cause surfaces.
func (e *Executor) fail(ctx context.Context, taskID uuid.UUID, cause error) error {
	if markErr := e.store.MarkTaskFailed(ctx, taskID, cause.Error(), e.clock.Now()); markErr != nil {
		e.logger.Error(ctx, "failed to record task failure",
			"task_id", taskID.String(),
			"error", markErr,
			"cause", cause,
		)
	}
	if repErr := e.reporter.ReportFailure(ctx, taskID, cause.Error()); repErr != nil {
		e.logger.Warn(ctx, "failed to report task failure",
			"task_id", taskID.String(),
			"error", repErr,
		)
	}
	e.logger.Error(ctx, "task failed", "task_id", taskID.String(), "error", cause)
	return cause
}

func metadataFromChange(meta review.ChangeMetadata, files []review.ChangedFile) review.Metadata {
	var additions, deletions int
	for _, f := range files {
		additions += f.Additions
		deletions += f.Deletions
	}
	return review.Metadata{
		Title:      meta.Title,
		Author:     meta.Author,
		FilesCount: len(files),
		Additions:  additions,
		Deletions:  deletions,
	}
}
