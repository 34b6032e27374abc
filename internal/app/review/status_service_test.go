package review

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/reviewhound/internal/domain/review"
	"github.com/ahrav/reviewhound/pkg/common/logger"
)

func newTestStatusService(store *fakeStore, progress LiveProgress, canceler TaskCanceler) *StatusService {
	if progress == nil {
		progress = NewProgressTracker(logger.Noop())
	}
	if canceler == nil {
		canceler = &fakeCanceler{}
	}
	return NewStatusService(store, progress, canceler, logger.Noop(), noop.NewTracerProvider().Tracer("test"))
}

func TestStatusServiceGetStatusPending(t *testing.T) {
	store := newFakeStore()
	taskID := uuid.New()
	require.NoError(t, store.CreateTask(context.Background(), review.NewTask(taskID, "https://github.com/owner/repo", 42)))

	svc := newTestStatusService(store, nil, nil)
	view, err := svc.GetStatus(context.Background(), taskID)
	require.NoError(t, err)

	assert.Equal(t, review.TaskStatusPending, view.Status)
	assert.Nil(t, view.Progress)
	assert.False(t, view.CreatedAt.IsZero())
	assert.True(t, view.StartedAt.IsZero())
}

func TestStatusServiceGetStatusOverlaysLiveProgress(t *testing.T) {
	store := newFakeStore()
	tracker := NewProgressTracker(logger.Noop())
	taskID := uuid.New()

	task := review.NewTask(taskID, "https://github.com/owner/repo", 42)
	require.NoError(t, task.Start())
	require.NoError(t, store.CreateTask(context.Background(), task))
	tracker.record(review.NewProgress(taskID, 3, "Running code review", 3, time.Now()))

	svc := newTestStatusService(store, tracker, nil)
	view, err := svc.GetStatus(context.Background(), taskID)
	require.NoError(t, err)

	require.NotNil(t, view.Progress)
	assert.Equal(t, 3, view.Progress.Current)
	assert.Equal(t, 4, view.Progress.Total)
	assert.Equal(t, "Running code review", view.Progress.Phase)
}

func TestStatusServiceGetStatusDegradesWithoutLiveProgress(t *testing.T) {
	store := newFakeStore()
	taskID := uuid.New()

	task := review.NewTask(taskID, "https://github.com/owner/repo", 42)
	require.NoError(t, task.Start())
	require.NoError(t, store.CreateTask(context.Background(), task))

	svc := newTestStatusService(store, nil, nil)
	view, err := svc.GetStatus(context.Background(), taskID)
	require.NoError(t, err)

	assert.Equal(t, review.TaskStatusProcessing, view.Status)
	assert.Nil(t, view.Progress)
}

func TestStatusServiceGetStatusNoOverlayOnTerminal(t *testing.T) {
	store := newFakeStore()
	tracker := NewProgressTracker(logger.Noop())
	taskID := uuid.New()

	task := review.NewTask(taskID, "https://github.com/owner/repo", 42)
	require.NoError(t, task.Start())
	require.NoError(t, task.Fail("fetch failed"))
	require.NoError(t, store.CreateTask(context.Background(), task))
	// A stale progress entry must not leak into a terminal view.
	tracker.record(review.NewProgress(taskID, 2, "Fetching change data", 2, time.Now()))

	svc := newTestStatusService(store, tracker, nil)
	view, err := svc.GetStatus(context.Background(), taskID)
	require.NoError(t, err)

	assert.Equal(t, review.TaskStatusFailed, view.Status)
	assert.Nil(t, view.Progress)
	assert.Equal(t, "fetch failed", view.ErrorMessage)
}

func TestStatusServiceGetStatusNotFound(t *testing.T) {
	svc := newTestStatusService(newFakeStore(), nil, nil)
	_, err := svc.GetStatus(context.Background(), uuid.New())
	assert.ErrorIs(t, err, review.ErrTaskNotFound)
}

func TestStatusServiceGetResults(t *testing.T) {
	store := newFakeStore()
	taskID := uuid.New()

	task := review.NewTask(taskID, "https://github.com/owner/repo", 42)
	require.NoError(t, task.Start())
	payload := &review.ResultPayload{
		PRInfo: review.PRInfo{Title: "Add parser"},
		CodeChanges: []review.FileChange{
			{Filename: "parser.go", Language: "go", Diff: "@@"},
		},
		Review: &review.ReviewResults{Summary: review.Summary{TotalFiles: 1}},
	}
	require.NoError(t, task.Complete(payload, review.Metadata{FilesCount: 1}))
	require.NoError(t, store.CreateTask(context.Background(), task))

	svc := newTestStatusService(store, nil, nil)
	got, err := svc.GetResults(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestStatusServiceGetResultsInvalidState(t *testing.T) {
	store := newFakeStore()
	svc := newTestStatusService(store, nil, nil)

	for _, status := range []review.TaskStatus{review.TaskStatusPending, review.TaskStatusProcessing, review.TaskStatusFailed} {
		taskID := uuid.New()
		task := review.NewTask(taskID, "https://github.com/owner/repo", 1)
		if status != review.TaskStatusPending {
			require.NoError(t, task.Start())
		}
		if status == review.TaskStatusFailed {
			require.NoError(t, task.Fail("boom"))
		}
		require.NoError(t, store.CreateTask(context.Background(), task))

		_, err := svc.GetResults(context.Background(), taskID)
		assert.ErrorIs(t, err, review.ErrTaskNotCompleted, "status %s", status)
	}
}

func TestStatusServiceGetResultsNotFound(t *testing.T) {
	svc := newTestStatusService(newFakeStore(), nil, nil)
	_, err := svc.GetResults(context.Background(), uuid.New())
	assert.ErrorIs(t, err, review.ErrTaskNotFound)
}

func TestStatusServiceListTasksPagination(t *testing.T) {
	store := newFakeStore()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		taskID := uuid.New()
		timeline := review.ReconstructTimeline(base.Add(time.Duration(i)*time.Minute), time.Time{}, time.Time{})
		task := review.ReconstructTask(
			taskID,
			fmt.Sprintf("https://github.com/owner/repo%d", i),
			i+1,
			review.TaskStatusPending,
			timeline,
			"", nil, review.Metadata{}, false,
		)
		require.NoError(t, store.CreateTask(context.Background(), task))
	}

	svc := newTestStatusService(store, nil, nil)
	page, err := svc.ListTasks(context.Background(), review.ListFilter{Page: 2, PerPage: 5})
	require.NoError(t, err)

	assert.Len(t, page.Tasks, 5)
	assert.Equal(t, 12, page.Total)
	assert.Equal(t, 3, page.Pages)
	assert.Equal(t, 2, page.Page)

	// Newest-created-first: page 2 of 12 holds creation minutes 6..2.
	for i := 1; i < len(page.Tasks); i++ {
		assert.True(t, page.Tasks[i-1].CreatedAt.After(page.Tasks[i].CreatedAt))
	}
}

func TestStatusServiceListTasksStatusFilter(t *testing.T) {
	store := newFakeStore()
	pending := review.NewTask(uuid.New(), "https://github.com/owner/a", 1)
	processing := review.NewTask(uuid.New(), "https://github.com/owner/b", 2)
	require.NoError(t, processing.Start())
	require.NoError(t, store.CreateTask(context.Background(), pending))
	require.NoError(t, store.CreateTask(context.Background(), processing))

	svc := newTestStatusService(store, nil, nil)
	page, err := svc.ListTasks(context.Background(), review.ListFilter{Page: 1, PerPage: 10, Status: review.TaskStatusProcessing})
	require.NoError(t, err)

	require.Len(t, page.Tasks, 1)
	assert.Equal(t, processing.ID(), page.Tasks[0].TaskID)
}

func TestStatusServiceListTasksZeroFilterReturnsAllStatuses(t *testing.T) {
	store := newFakeStore()
	pending := review.NewTask(uuid.New(), "https://github.com/owner/a", 1)
	processing := review.NewTask(uuid.New(), "https://github.com/owner/b", 2)
	require.NoError(t, processing.Start())
	require.NoError(t, store.CreateTask(context.Background(), pending))
	require.NoError(t, store.CreateTask(context.Background(), processing))

	svc := newTestStatusService(store, nil, nil)

	// An unset Status field means no filter: nothing may be dropped.
	page, err := svc.ListTasks(context.Background(), review.ListFilter{Page: 1, PerPage: 10})
	require.NoError(t, err)

	assert.Len(t, page.Tasks, 2)
	assert.Equal(t, 2, page.Total)
}

func TestStatusServiceDeleteTaskCancelsPending(t *testing.T) {
	store := newFakeStore()
	canceler := &fakeCanceler{}
	taskID := uuid.New()
	require.NoError(t, store.CreateTask(context.Background(), review.NewTask(taskID, "https://github.com/owner/repo", 1)))

	svc := newTestStatusService(store, nil, canceler)
	require.NoError(t, svc.DeleteTask(context.Background(), taskID))

	assert.Equal(t, []uuid.UUID{taskID}, canceler.cancelled)
	_, err := store.GetTask(context.Background(), taskID)
	assert.ErrorIs(t, err, review.ErrTaskNotFound)
}

func TestStatusServiceDeleteTaskSkipsCancelWhenStarted(t *testing.T) {
	store := newFakeStore()
	canceler := &fakeCanceler{}
	taskID := uuid.New()
	task := review.NewTask(taskID, "https://github.com/owner/repo", 1)
	require.NoError(t, task.Start())
	require.NoError(t, store.CreateTask(context.Background(), task))

	svc := newTestStatusService(store, nil, canceler)
	require.NoError(t, svc.DeleteTask(context.Background(), taskID))

	assert.Empty(t, canceler.cancelled)
}

func TestStatusServiceDeleteTaskCancelFailureIsNonFatal(t *testing.T) {
	store := newFakeStore()
	canceler := &fakeCanceler{err: errBoom}
	taskID := uuid.New()
	require.NoError(t, store.CreateTask(context.Background(), review.NewTask(taskID, "https://github.com/owner/repo", 1)))

	svc := newTestStatusService(store, nil, canceler)
	require.NoError(t, svc.DeleteTask(context.Background(), taskID))

	_, err := store.GetTask(context.Background(), taskID)
	assert.ErrorIs(t, err, review.ErrTaskNotFound)
}

func TestStatusServiceDeleteTaskNotFound(t *testing.T) {
	svc := newTestStatusService(newFakeStore(), nil, nil)
	err := svc.DeleteTask(context.Background(), uuid.New())
	assert.ErrorIs(t, err, review.ErrTaskNotFound)
}

func TestStatusServiceGetStats(t *testing.T) {
	store := newFakeStore()
	mkTask := func(status review.TaskStatus) {
		task := review.NewTask(uuid.New(), "https://github.com/owner/repo", 1)
		switch status {
		case review.TaskStatusProcessing:
			require.NoError(t, task.Start())
		case review.TaskStatusCompleted:
			require.NoError(t, task.Start())
			require.NoError(t, task.Complete(&review.ResultPayload{}, review.Metadata{}))
		case review.TaskStatusFailed:
			require.NoError(t, task.Start())
			require.NoError(t, task.Fail("boom"))
		}
		require.NoError(t, store.CreateTask(context.Background(), task))
	}

	mkTask(review.TaskStatusCompleted)
	mkTask(review.TaskStatusCompleted)
	mkTask(review.TaskStatusPending)
	mkTask(review.TaskStatusFailed)

	svc := newTestStatusService(store, nil, nil)
	stats, err := svc.GetStats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Completed)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 50.0, stats.SuccessRate)
}

func TestStatusServiceGetStatsEmpty(t *testing.T) {
	svc := newTestStatusService(newFakeStore(), nil, nil)
	stats, err := svc.GetStats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	assert.Zero(t, stats.SuccessRate)
}
