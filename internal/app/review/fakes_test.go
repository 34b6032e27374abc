package review

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/reviewhound/internal/domain/events"
	"github.com/ahrav/reviewhound/internal/domain/review"
)

// fakeStore is an in-memory TaskRepository for exercising the application
// services without a database.
type fakeStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*review.Task

	createErr error
	getErr    error
	updateErr error
	deleteErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: make(map[uuid.UUID]*review.Task)}
}

func (s *fakeStore) CreateTask(_ context.Context, task *review.Task) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID()] = task
	return nil
}

func (s *fakeStore) GetTask(_ context.Context, id uuid.UUID) (*review.Task, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, review.ErrTaskNotFound
	}
	return task, nil
}

func (s *fakeStore) UpdateTask(_ context.Context, task *review.Task) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID()]; !ok {
		return review.ErrTaskNotFound
	}
	s.tasks[task.ID()] = task
	return nil
}

func (s *fakeStore) MarkTaskFailed(_ context.Context, id uuid.UUID, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.tasks[id]
	if !ok {
		return review.ErrTaskNotFound
	}
	s.tasks[id] = review.ReconstructTask(
		id,
		existing.RepoURL(),
		existing.ChangeNumber(),
		review.TaskStatusFailed,
		review.ReconstructTimeline(existing.CreatedAt(), existing.StartedAt(), at),
		reason,
		nil,
		existing.Metadata(),
		existing.CancelRequested(),
	)
	return nil
}

func (s *fakeStore) RequestCancel(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.tasks[id]
	if !ok || existing.Status() != review.TaskStatusPending {
		return false, nil
	}
	s.tasks[id] = review.ReconstructTask(
		id,
		existing.RepoURL(),
		existing.ChangeNumber(),
		existing.Status(),
		review.ReconstructTimeline(existing.CreatedAt(), existing.StartedAt(), existing.CompletedAt()),
		existing.ErrorMessage(),
		existing.Results(),
		existing.Metadata(),
		true,
	)
	return true, nil
}

func (s *fakeStore) DeleteTask(_ context.Context, id uuid.UUID) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return review.ErrTaskNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *fakeStore) ListTasks(_ context.Context, filter review.ListFilter) ([]*review.Task, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matching []*review.Task
	for _, t := range s.tasks {
		if filter.Status != review.TaskStatusUnspecified && t.Status() != filter.Status {
			continue
		}
		matching = append(matching, t)
	}
	sort.Slice(matching, func(i, j int) bool {
		return matching[i].CreatedAt().After(matching[j].CreatedAt())
	})

	total := len(matching)
	start := (filter.Page - 1) * filter.PerPage
	if start > total {
		start = total
	}
	end := start + filter.PerPage
	if end > total {
		end = total
	}
	return matching[start:end], total, nil
}

func (s *fakeStore) CountByStatus(_ context.Context) (review.StatusCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var counts review.StatusCounts
	for _, t := range s.tasks {
		counts.Total++
		switch t.Status() {
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

// fakePublisher records published domain events and optionally fails.
type fakePublisher struct {
	mu        sync.Mutex
	published []events.DomainEvent
	keys      []string
	err       error
}

func (p *fakePublisher) PublishDomainEvent(_ context.Context, event events.DomainEvent, opts ...events.PublishOption) error {
	if p.err != nil {
		return p.err
	}
	params := events.PublishParams{}
	for _, opt := range opts {
		opt(&params)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, event)
	p.keys = append(p.keys, params.Key)
	return nil
}

// fakeReporter captures progress reports in order.
type fakeReporter struct {
	mu          sync.Mutex
	progress    []review.Progress
	completions []uuid.UUID
	failures    map[uuid.UUID]string
	progressErr error
}

func newFakeReporter() *fakeReporter {
	return &fakeReporter{failures: make(map[uuid.UUID]string)}
}

func (r *fakeReporter) ReportProgress(_ context.Context, p review.Progress) error {
	if r.progressErr != nil {
		return r.progressErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
	return nil
}

func (r *fakeReporter) ReportCompletion(_ context.Context, taskID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completions = append(r.completions, taskID)
	return nil
}

func (r *fakeReporter) ReportFailure(_ context.Context, taskID uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[taskID] = reason
	return nil
}

// fakeFetcher returns canned change data or errors.
type fakeFetcher struct {
	meta     review.ChangeMetadata
	files    []review.ChangedFile
	metaErr  error
	filesErr error
}

func (f *fakeFetcher) Metadata(context.Context) (review.ChangeMetadata, error) {
	if f.metaErr != nil {
		return review.ChangeMetadata{}, f.metaErr
	}
	return f.meta, nil
}

func (f *fakeFetcher) ChangedFiles(context.Context) ([]review.ChangedFile, error) {
	if f.filesErr != nil {
		return nil, f.filesErr
	}
	return f.files, nil
}

type fakeFetcherFactory struct {
	fetcher *fakeFetcher
	err     error
}

func (f *fakeFetcherFactory) NewFetcher(string, int, string) (Fetcher, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.fetcher, nil
}

// fakeReviewer returns a canned report or error.
type fakeReviewer struct {
	results *review.ReviewResults
	err     error
	calls   int
}

func (r *fakeReviewer) Review(_ context.Context, _ review.ReviewInput) (*review.ReviewResults, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.results, nil
}

// fakeCanceler records cancel requests.
type fakeCanceler struct {
	cancelled []uuid.UUID
	err       error
}

func (c *fakeCanceler) Cancel(_ context.Context, taskID uuid.UUID) error {
	if c.err != nil {
		return c.err
	}
	c.cancelled = append(c.cancelled, taskID)
	return nil
}

// fixedClock returns the same instant on every call.
type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

var errBoom = errors.New("boom")
