package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/reviewhound/internal/domain/review"
)

func TestMemoryTaskStoreLifecycle(t *testing.T) {
	store := NewTaskStore()
	task := review.NewTask(uuid.New(), "https://github.com/owner/repo", 42)
	require.NoError(t, store.CreateTask(context.Background(), task))

	loaded, err := store.GetTask(context.Background(), task.ID())
	require.NoError(t, err)
	assert.Equal(t, review.TaskStatusPending, loaded.Status())

	require.NoError(t, loaded.Start())
	require.NoError(t, store.UpdateTask(context.Background(), loaded))

	require.NoError(t, loaded.Complete(&review.ResultPayload{}, review.Metadata{FilesCount: 3}))
	require.NoError(t, store.UpdateTask(context.Background(), loaded))

	final, err := store.GetTask(context.Background(), task.ID())
	require.NoError(t, err)
	assert.Equal(t, review.TaskStatusCompleted, final.Status())
	assert.Equal(t, 3, final.Metadata().FilesCount)
	assert.NotNil(t, final.Results())
}

func TestMemoryTaskStoreReadsAreIsolated(t *testing.T) {
	store := NewTaskStore()
	task := review.NewTask(uuid.New(), "https://github.com/owner/repo", 1)
	require.NoError(t, store.CreateTask(context.Background(), task))

	first, err := store.GetTask(context.Background(), task.ID())
	require.NoError(t, err)
	require.NoError(t, first.Start())

	// Mutating a loaded aggregate without UpdateTask must not leak into
	// the store.
	second, err := store.GetTask(context.Background(), task.ID())
	require.NoError(t, err)
	assert.Equal(t, review.TaskStatusPending, second.Status())
}

func TestMemoryTaskStoreRequestCancel(t *testing.T) {
	store := NewTaskStore()
	task := review.NewTask(uuid.New(), "https://github.com/owner/repo", 1)
	require.NoError(t, store.CreateTask(context.Background(), task))

	applied, err := store.RequestCancel(context.Background(), task.ID())
	require.NoError(t, err)
	assert.True(t, applied)

	loaded, err := store.GetTask(context.Background(), task.ID())
	require.NoError(t, err)
	assert.True(t, loaded.CancelRequested())

	// The flag survives a subsequent UpdateTask from an aggregate that
	// never saw it.
	stale, err := store.GetTask(context.Background(), task.ID())
	require.NoError(t, err)
	require.NoError(t, store.UpdateTask(context.Background(), stale))
	reloaded, err := store.GetTask(context.Background(), task.ID())
	require.NoError(t, err)
	assert.True(t, reloaded.CancelRequested())
}

func TestMemoryTaskStoreMarkFailedAndDelete(t *testing.T) {
	store := NewTaskStore()
	task := review.NewTask(uuid.New(), "https://github.com/owner/repo", 1)
	require.NoError(t, store.CreateTask(context.Background(), task))

	at := time.Now().UTC()
	require.NoError(t, store.MarkTaskFailed(context.Background(), task.ID(), "boom", at))

	loaded, err := store.GetTask(context.Background(), task.ID())
	require.NoError(t, err)
	assert.Equal(t, review.TaskStatusFailed, loaded.Status())
	assert.Equal(t, "boom", loaded.ErrorMessage())
	assert.Equal(t, at, loaded.CompletedAt())

	require.NoError(t, store.DeleteTask(context.Background(), task.ID()))
	assert.ErrorIs(t, store.DeleteTask(context.Background(), task.ID()), review.ErrTaskNotFound)
}

func TestMemoryTaskStoreListAndCounts(t *testing.T) {
	store := NewTaskStore()
	for i := 0; i < 7; i++ {
		task := review.NewTask(uuid.New(), "https://github.com/owner/repo", i+1)
		require.NoError(t, store.CreateTask(context.Background(), task))
	}

	tasks, total, err := store.ListTasks(context.Background(), review.ListFilter{Page: 2, PerPage: 3})
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	assert.Len(t, tasks, 3)

	counts, err := store.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, counts.Total)
	assert.Equal(t, 7, counts.Pending)
}
