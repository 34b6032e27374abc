// Package memory provides an in-memory implementation of the task record
// store for tests and single-process development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/reviewhound/internal/domain/review"
)

var _ review.TaskRepository = (*TaskStore)(nil)

// TaskStore is an in-memory review.TaskRepository. All operations are
// safe for concurrent use.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*taskRecord
}

// taskRecord is the flattened stored form; the domain aggregate is
// reconstructed on every read so callers never share mutable state.
type taskRecord struct {
	id              uuid.UUID
	repoURL         string
	changeNumber    int
	status          review.TaskStatus
	createdAt       time.Time
	startedAt       time.Time
	completedAt     time.Time
	errorMessage    string
	results         *review.ResultPayload
	metadata        review.Metadata
	cancelRequested bool
}

// NewTaskStore creates an empty in-memory task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[uuid.UUID]*taskRecord)}
}

func recordFromTask(task *review.Task, cancelRequested bool) *taskRecord {
	return &taskRecord{
		id:              task.ID(),
		repoURL:         task.RepoURL(),
		changeNumber:    task.ChangeNumber(),
		status:          task.Status(),
		createdAt:       task.CreatedAt(),
		startedAt:       task.StartedAt(),
		completedAt:     task.CompletedAt(),
		errorMessage:    task.ErrorMessage(),
		results:         task.Results(),
		metadata:        task.Metadata(),
		cancelRequested: cancelRequested,
	}
}

func (r *taskRecord) toTask() *review.Task {
	return review.ReconstructTask(
		r.id,
		r.repoURL,
		r.changeNumber,
		r.status,
		review.ReconstructTimeline(r.createdAt, r.startedAt, r.completedAt),
		r.errorMessage,
		r.results,
		r.metadata,
		r.cancelRequested,
	)
}

// CreateTask stores a new task record.
func (s *TaskStore) CreateTask(_ context.Context, task *review.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID()] = recordFromTask(task, task.CancelRequested())
	return nil
}

// GetTask returns a reconstructed aggregate for the given id.
func (s *TaskStore) GetTask(_ context.Context, id uuid.UUID) (*review.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.tasks[id]
	if !ok {
		return nil, review.ErrTaskNotFound
	}
	return record.toTask(), nil
}

// UpdateTask overwrites the stored state for the task. The cancel flag is
// preserved since the aggregate does not own it once persisted.
func (s *TaskStore) UpdateTask(_ context.Context, task *review.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.tasks[task.ID()]
	if !ok {
		return review.ErrTaskNotFound
	}
	s.tasks[task.ID()] = recordFromTask(task, existing.cancelRequested)
	return nil
}

// MarkTaskFailed writes a FAILED terminal state directly by id.
func (s *TaskStore) MarkTaskFailed(_ context.Context, id uuid.UUID, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.tasks[id]
	if !ok {
		return review.ErrTaskNotFound
	}
	record.status = review.TaskStatusFailed
	record.completedAt = at
	record.errorMessage = reason
	return nil
}

// RequestCancel flags a still-PENDING record for cancellation.
func (s *TaskStore) RequestCancel(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.tasks[id]
	if !ok || record.status != review.TaskStatusPending {
		return false, nil
	}
	record.cancelRequested = true
	return true, nil
}

// DeleteTask removes the record for the given id.
func (s *TaskStore) DeleteTask(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return review.ErrTaskNotFound
	}
	delete(s.tasks, id)
	return nil
}

// ListTasks returns one page of records ordered newest-created-first.
func (s *TaskStore) ListTasks(_ context.Context, filter review.ListFilter) ([]*review.Task, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matching []*taskRecord
	for _, record := range s.tasks {
		if filter.Status != review.TaskStatusUnspecified && record.status != filter.Status {
			continue
		}
		matching = append(matching, record)
	}
	sort.Slice(matching, func(i, j int) bool {
		return matching[i].createdAt.After(matching[j].createdAt)
	})

	total := len(matching)
	start := (filter.Page - 1) * filter.PerPage
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := start + filter.PerPage
	if end > total {
		end = total
	}

	tasks := make([]*review.Task, 0, end-start)
	for _, record := range matching[start:end] {
		tasks = append(tasks, record.toTask())
	}
	return tasks, total, nil
}

// CountByStatus returns aggregate per-status totals.
func (s *TaskStore) CountByStatus(_ context.Context) (review.StatusCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var counts review.StatusCounts
	for _, record := range s.tasks {
		counts.Total++
		switch record.status {
		case review.TaskStatusPending:
			counts.Pending++
		case review.TaskStatusProcessing:
			counts.Processing++
		case review.TaskStatusCompleted:
			counts.Completed++
		case review.TaskStatusFailed:
			counts.Failed++
		}
	}
	return counts, nil
}
