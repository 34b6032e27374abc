package review

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTask_Lifecycle(t *testing.T) {
	t.Parallel()

	task := NewTask(uuid.New(), "https://github.com/owner/repo", 42)

	assert.Equal(t, TaskStatusPending, task.Status())
	assert.False(t, task.CreatedAt().IsZero())
	assert.True(t, task.StartedAt().IsZero())
	assert.True(t, task.CompletedAt().IsZero())
	assert.Nil(t, task.Results())
	assert.Empty(t, task.ErrorMessage())

	require.NoError(t, task.Start())
	assert.Equal(t, TaskStatusProcessing, task.Status())
	assert.False(t, task.StartedAt().IsZero())

	payload := &ResultPayload{Review: &ReviewResults{}}
	md := Metadata{Title: "fix bug", Author: "octocat", FilesCount: 3, Additions: 10, Deletions: 2}
	require.NoError(t, task.Complete(payload, md))

	assert.Equal(t, TaskStatusCompleted, task.Status())
	assert.False(t, task.CompletedAt().IsZero())
	assert.Equal(t, payload, task.Results())
	assert.Equal(t, md, task.Metadata())

	// created_at <= started_at <= completed_at.
	assert.False(t, task.StartedAt().Before(task.CreatedAt()))
	assert.False(t, task.CompletedAt().Before(task.StartedAt()))
}

func TestTask_FailFromProcessing(t *testing.T) {
	t.Parallel()

	task := NewTask(uuid.New(), "https://github.com/owner/repo", 7)
	require.NoError(t, task.Start())
	require.NoError(t, task.Fail("GitHub API error: 404"))

	assert.Equal(t, TaskStatusFailed, task.Status())
	assert.Equal(t, "GitHub API error: 404", task.ErrorMessage())
	assert.Nil(t, task.Results())
	assert.False(t, task.CompletedAt().IsZero())
}

func TestTask_StartIsReentrant(t *testing.T) {
	t.Parallel()

	task := NewTask(uuid.New(), "https://github.com/owner/repo", 1)
	require.NoError(t, task.Start())
	started := task.StartedAt()

	// A redelivered job may call Start again; the timestamp must not move.
	require.NoError(t, task.Start())
	assert.Equal(t, started, task.StartedAt())
	assert.Equal(t, TaskStatusProcessing, task.Status())
}

func TestTask_InvalidTransitions(t *testing.T) {
	t.Parallel()

	t.Run("complete before start", func(t *testing.T) {
		t.Parallel()
		task := NewTask(uuid.New(), "https://github.com/owner/repo", 1)
		assert.Error(t, task.Complete(&ResultPayload{}, Metadata{}))
	})

	t.Run("fail before start", func(t *testing.T) {
		t.Parallel()
		task := NewTask(uuid.New(), "https://github.com/owner/repo", 1)
		assert.Error(t, task.Fail("boom"))
	})

	t.Run("start after completion", func(t *testing.T) {
		t.Parallel()
		task := NewTask(uuid.New(), "https://github.com/owner/repo", 1)
		require.NoError(t, task.Start())
		require.NoError(t, task.Complete(&ResultPayload{}, Metadata{}))
		assert.Error(t, task.Start())
	})

	t.Run("complete without payload", func(t *testing.T) {
		t.Parallel()
		task := NewTask(uuid.New(), "https://github.com/owner/repo", 1)
		require.NoError(t, task.Start())
		assert.Error(t, task.Complete(nil, Metadata{}))
	})
}

func TestReconstructTask(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	started := created.Add(time.Second)
	completed := created.Add(2 * time.Second)

	task := ReconstructTask(
		id,
		"https://github.com/owner/repo",
		42,
		TaskStatusCompleted,
		ReconstructTimeline(created, started, completed),
		"",
		&ResultPayload{},
		Metadata{FilesCount: 1},
		false,
	)

	assert.Equal(t, id, task.ID())
	assert.Equal(t, 42, task.ChangeNumber())
	assert.Equal(t, TaskStatusCompleted, task.Status())
	assert.Equal(t, created, task.CreatedAt())
	assert.Equal(t, started, task.StartedAt())
	assert.Equal(t, completed, task.CompletedAt())
	assert.Equal(t, 1, task.Metadata().FilesCount)
}
