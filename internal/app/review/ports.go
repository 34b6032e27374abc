// Package review contains the application services that orchestrate the
// asynchronous review pipeline: job dispatch, stage execution, live progress
// tracking, and the read side.
package review

import (
	"context"

	"github.com/google/uuid"

	"github.com/ahrav/reviewhound/internal/domain/review"
)

// Fetcher retrieves change-request data from the external hosting service.
// Implementations are bound to one (repo, change number, credential) tuple.
type Fetcher interface {
	// Metadata returns the change request's title, description and author.
	Metadata(ctx context.Context) (review.ChangeMetadata, error)

	// ChangedFiles returns the list of files modified by the change request.
	ChangedFiles(ctx context.Context) ([]review.ChangedFile, error)
}

// FetcherFactory constructs a Fetcher for the given repository reference.
// Construction validates the reference; a malformed URL is a ValidationError.
type FetcherFactory interface {
	NewFetcher(repoURL string, changeNumber int, token string) (Fetcher, error)
}

// Reviewer produces a structured findings report for normalized change data.
// Any error it returns is non-fatal to the surrounding task.
type Reviewer interface {
	Review(ctx context.Context, input review.ReviewInput) (*review.ReviewResults, error)
}

// ProgressReporter publishes ephemeral execution progress for a task. All
// methods are best-effort from the executor's point of view: a reporting
// failure never fails the pipeline.
type ProgressReporter interface {
	// ReportProgress publishes a stage-transition progress update.
	ReportProgress(ctx context.Context, p review.Progress) error

	// ReportCompletion publishes the terminal success notice so live
	// progress consumers can drop their state.
	ReportCompletion(ctx context.Context, taskID uuid.UUID) error

	// ReportFailure publishes the terminal failure notice.
	ReportFailure(ctx context.Context, taskID uuid.UUID, reason string) error
}

// LiveProgress is the read side of the ephemeral progress channel. Lookups
// must never block on in-flight pipeline work.
type LiveProgress interface {
	// Peek returns the most recent progress update for the task, if any.
	Peek(taskID uuid.UUID) (review.Progress, bool)
}
