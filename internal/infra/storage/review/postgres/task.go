// Package postgres provides the Postgres-backed implementation of the task
// record store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/reviewhound/internal/domain/review"
	"github.com/ahrav/reviewhound/internal/infra/storage"
)

var defaultDBAttributes = []attribute.KeyValue{attribute.String("db.system", "postgresql")}

// Ensure taskStore implements review.TaskRepository at compile time.
var _ review.TaskRepository = (*taskStore)(nil)

// taskStore implements review.TaskRepository using Postgres. It provides the
// durable record per task that survives worker restarts: lifecycle state,
// timestamps, derived metadata, and the result document.
type taskStore struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// NewTaskStore creates a TaskRepository backed by PostgreSQL.
func NewTaskStore(pool *pgxpool.Pool, tracer trace.Tracer) *taskStore {
	return &taskStore{pool: pool, tracer: tracer}
}

func nullableTime(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: !t.IsZero()}
}

// CreateTask persists a new task's initial PENDING state.
func (s *taskStore) CreateTask(ctx context.Context, task *review.Task) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("task_id", task.ID().String()),
		attribute.String("status", task.Status().String()),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.create_task", dbAttrs, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO review_tasks (task_id, repo_url, change_number, status, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			pgtype.UUID{Bytes: task.ID(), Valid: true},
			task.RepoURL(),
			task.ChangeNumber(),
			task.Status().String(),
			pgtype.Timestamptz{Time: task.CreatedAt(), Valid: true},
		)
		if err != nil {
			return fmt.Errorf("insert review task: %w", err)
		}
		return nil
	})
}

// GetTask loads a task's current state and reconstructs the domain aggregate,
// including the stored result document when present.
func (s *taskStore) GetTask(ctx context.Context, taskID uuid.UUID) (*review.Task, error) {
	dbAttrs := append(defaultDBAttributes, attribute.String("task_id", taskID.String()))

	var task *review.Task
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.get_task", dbAttrs, func(ctx context.Context) error {
		row := s.pool.QueryRow(ctx, `
			SELECT task_id, repo_url, change_number, status,
			       created_at, started_at, completed_at,
			       error_message, results,
			       title, author, files_count, additions, deletions,
			       cancel_requested
			FROM review_tasks
			WHERE task_id = $1`,
			pgtype.UUID{Bytes: taskID, Valid: true},
		)

		loaded, err := scanTask(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("select review task: %w", err)
		}
		task = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, review.ErrTaskNotFound
	}
	return task, nil
}

// UpdateTask persists the task's full current state. The write is idempotent:
// re-applying an equivalent state under at-least-once redelivery is safe.
func (s *taskStore) UpdateTask(ctx context.Context, task *review.Task) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("task_id", task.ID().String()),
		attribute.String("status", task.Status().String()),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.update_task", dbAttrs, func(ctx context.Context) error {
		var resultsJSON []byte
		if task.Results() != nil {
			var err error
			resultsJSON, err = json.Marshal(task.Results())
			if err != nil {
				return fmt.Errorf("marshal results: %w", err)
			}
		}

		md := task.Metadata()
		tag, err := s.pool.Exec(ctx, `
			UPDATE review_tasks
			SET status = $2,
			    started_at = $3,
			    completed_at = $4,
			    error_message = $5,
			    results = $6,
			    title = $7,
			    author = $8,
			    files_count = $9,
			    additions = $10,
			    deletions = $11
			WHERE task_id = $1`,
			pgtype.UUID{Bytes: task.ID(), Valid: true},
			task.Status().String(),
			nullableTime(task.StartedAt()),
			nullableTime(task.CompletedAt()),
			task.ErrorMessage(),
			resultsJSON,
			md.Title,
			md.Author,
			md.FilesCount,
			md.Additions,
			md.Deletions,
		)
		if err != nil {
			return fmt.Errorf("update review task: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return review.ErrTaskNotFound
		}
		return nil
	})
}

// MarkTaskFailed writes a FAILED terminal state directly by id. It works even
// when the record was never loaded into a domain aggregate, which matters on
// the failure path.
func (s *taskStore) MarkTaskFailed(ctx context.Context, taskID uuid.UUID, reason string, at time.Time) error {
	dbAttrs := append(defaultDBAttributes, attribute.String("task_id", taskID.String()))

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.mark_task_failed", dbAttrs, func(ctx context.Context) error {
		tag, err := s.pool.Exec(ctx, `
			UPDATE review_tasks
			SET status = $2,
			    completed_at = $3,
			    error_message = $4
			WHERE task_id = $1`,
			pgtype.UUID{Bytes: taskID, Valid: true},
			review.TaskStatusFailed.String(),
			pgtype.Timestamptz{Time: at, Valid: true},
			reason,
		)
		if err != nil {
			return fmt.Errorf("mark review task failed: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return review.ErrTaskNotFound
		}
		return nil
	})
}

// RequestCancel flags a still-PENDING record for best-effort cancellation.
// The status itself is never mutated here.
func (s *taskStore) RequestCancel(ctx context.Context, taskID uuid.UUID) (bool, error) {
	dbAttrs := append(defaultDBAttributes, attribute.String("task_id", taskID.String()))

	var applied bool
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.request_cancel", dbAttrs, func(ctx context.Context) error {
		tag, err := s.pool.Exec(ctx, `
			UPDATE review_tasks
			SET cancel_requested = TRUE
			WHERE task_id = $1 AND status = $2`,
			pgtype.UUID{Bytes: taskID, Valid: true},
			review.TaskStatusPending.String(),
		)
		if err != nil {
			return fmt.Errorf("request cancel: %w", err)
		}
		applied = tag.RowsAffected() > 0
		return nil
	})
	return applied, err
}

// DeleteTask removes the record for the given id.
func (s *taskStore) DeleteTask(ctx context.Context, taskID uuid.UUID) error {
	dbAttrs := append(defaultDBAttributes, attribute.String("task_id", taskID.String()))

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.delete_task", dbAttrs, func(ctx context.Context) error {
		tag, err := s.pool.Exec(ctx, `DELETE FROM review_tasks WHERE task_id = $1`,
			pgtype.UUID{Bytes: taskID, Valid: true})
		if err != nil {
			return fmt.Errorf("delete review task: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return review.ErrTaskNotFound
		}
		return nil
	})
}

// ListTasks returns one page of records ordered newest-created-first along
// with the total count matching the filter.
func (s *taskStore) ListTasks(ctx context.Context, filter review.ListFilter) ([]*review.Task, int, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.Int("page", filter.Page),
		attribute.Int("per_page", filter.PerPage),
	)

	var tasks []*review.Task
	var total int
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.list_tasks", dbAttrs, func(ctx context.Context) error {
		// TaskStatusUnspecified is the zero value, so this is the raw
		// filter either way; the SQL treats '' as "no filter".
		statusFilter := filter.Status.String()

		if err := s.pool.QueryRow(ctx, `
			SELECT COUNT(*) FROM review_tasks
			WHERE ($1::text = '' OR status::text = $1::text)`,
			statusFilter,
		).Scan(&total); err != nil {
			return fmt.Errorf("count review tasks: %w", err)
		}

		offset := (filter.Page - 1) * filter.PerPage
		rows, err := s.pool.Query(ctx, `
			SELECT task_id, repo_url, change_number, status,
			       created_at, started_at, completed_at,
			       error_message, results,
			       title, author, files_count, additions, deletions,
			       cancel_requested
			FROM review_tasks
			WHERE ($1::text = '' OR status::text = $1::text)
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3`,
			statusFilter, filter.PerPage, offset,
		)
		if err != nil {
			return fmt.Errorf("select review tasks: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			task, err := scanTask(rows)
			if err != nil {
				return fmt.Errorf("scan review task row: %w", err)
			}
			tasks = append(tasks, task)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

// CountByStatus returns aggregate per-status totals in one scan.
func (s *taskStore) CountByStatus(ctx context.Context) (review.StatusCounts, error) {
	var counts review.StatusCounts
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.count_by_status", defaultDBAttributes, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM review_tasks GROUP BY status`)
		if err != nil {
			return fmt.Errorf("count by status: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var status string
			var n int
			if err := rows.Scan(&status, &n); err != nil {
				return fmt.Errorf("scan status count: %w", err)
			}
			counts.Total += n
			switch review.ParseTaskStatus(status) {
			case review.TaskStatusPending:
				counts.Pending = n
			case review.TaskStatusProcessing:
				counts.Processing = n
			case review.TaskStatusCompleted:
				counts.Completed = n
			case review.TaskStatusFailed:
				counts.Failed = n
			}
		}
		return rows.Err()
	})
	if err != nil {
		return review.StatusCounts{}, err
	}
	return counts, nil
}

// scanTask reconstructs a domain Task from one result row. The column order
// must match the SELECT lists above.
func scanTask(row pgx.Row) (*review.Task, error) {
	var (
		id              pgtype.UUID
		repoURL         string
		changeNumber    int
		status          string
		createdAt       pgtype.Timestamptz
		startedAt       pgtype.Timestamptz
		completedAt     pgtype.Timestamptz
		errorMessage    pgtype.Text
		resultsJSON     []byte
		title           pgtype.Text
		author          pgtype.Text
		filesCount      pgtype.Int4
		additions       pgtype.Int4
		deletions       pgtype.Int4
		cancelRequested bool
	)

	if err := row.Scan(
		&id, &repoURL, &changeNumber, &status,
		&createdAt, &startedAt, &completedAt,
		&errorMessage, &resultsJSON,
		&title, &author, &filesCount, &additions, &deletions,
		&cancelRequested,
	); err != nil {
		return nil, err
	}

	var results *review.ResultPayload
	if len(resultsJSON) > 0 {
		var payload review.ResultPayload
		if err := json.Unmarshal(resultsJSON, &payload); err != nil {
			return nil, fmt.Errorf("unmarshal results: %w", err)
		}
		results = &payload
	}

	timeline := review.ReconstructTimeline(createdAt.Time, startedAt.Time, completedAt.Time)

	return review.ReconstructTask(
		id.Bytes,
		repoURL,
		changeNumber,
		review.ParseTaskStatus(status),
		timeline,
		errorMessage.String,
		results,
		review.Metadata{
			Title:      title.String,
			Author:     author.String,
			FilesCount: int(filesCount.Int32),
			Additions:  int(additions.Int32),
			Deletions:  int(deletions.Int32),
		},
		cancelRequested,
	), nil
}
