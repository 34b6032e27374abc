// Package github implements the external data fetcher against the GitHub
// REST API. It retrieves pull request metadata and the changed-file list for
// the review pipeline's fetch stage.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	appReview "github.com/ahrav/reviewhound/internal/app/review"
	"github.com/ahrav/reviewhound/internal/domain/review"
	"github.com/ahrav/reviewhound/pkg/common"
)

const (
	defaultBaseURL = "https://api.github.com"
	acceptHeader   = "application/vnd.github.v3+json"
	userAgent      = "reviewhound"

	// GitHub allows 5000 authenticated requests per hour; stay well under.
	defaultRPS   = 1.0
	defaultBurst = 5

	// Throttle hard once the reported remaining quota drops this low.
	lowQuotaThreshold = 20
	throttledRPS      = 0.2
)

var _ appReview.FetcherFactory = (*ClientFactory)(nil)

// ClientFactory builds per-task Fetcher clients that share one HTTP client
// and rate limiter across all tasks a worker executes.
type ClientFactory struct {
	baseURL      string
	defaultToken string
	httpClient   *http.Client
	rateLimiter  *common.RateLimiter
	tracer       trace.Tracer
}

// FactoryOption customizes a ClientFactory.
type FactoryOption func(*ClientFactory)

// WithBaseURL overrides the GitHub API base URL, for GitHub Enterprise or
// tests.
func WithBaseURL(url string) FactoryOption {
	return func(f *ClientFactory) { f.baseURL = url }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) FactoryOption {
	return func(f *ClientFactory) { f.httpClient = client }
}

// WithDefaultToken sets the credential used when a submission carries none.
func WithDefaultToken(token string) FactoryOption {
	return func(f *ClientFactory) { f.defaultToken = token }
}

// NewClientFactory creates a factory for GitHub fetchers. Outbound requests
// are traced via otelhttp and rate limited to stay inside API quotas.
func NewClientFactory(tracer trace.Tracer, opts ...FactoryOption) *ClientFactory {
	f := &ClientFactory{
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		rateLimiter: common.NewRateLimiter(defaultRPS, defaultBurst),
		tracer:      tracer,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewFetcher validates the repository reference and binds a Fetcher to one
// (repo, change number, credential) tuple. A malformed URL is a
// ValidationError, which fails the task's initialize stage.
func (f *ClientFactory) NewFetcher(repoURL string, changeNumber int, token string) (appReview.Fetcher, error) {
	owner, name, err := review.ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}
	if token == "" {
		token = f.defaultToken
	}

	return &Fetcher{
		factory:      f,
		owner:        owner,
		repo:         name,
		changeNumber: changeNumber,
		token:        token,
	}, nil
}

// adjustRateLimit throttles the shared limiter when GitHub reports a nearly
// exhausted quota and restores the default rate once headroom returns.
func (f *ClientFactory) adjustRateLimit(h http.Header) {
	remaining, err := strconv.Atoi(h.Get("X-RateLimit-Remaining"))
	if err != nil {
		return
	}
	if remaining < lowQuotaThreshold {
		f.rateLimiter.UpdateLimits(throttledRPS, 1)
		return
	}
	f.rateLimiter.UpdateLimits(defaultRPS, defaultBurst)
}

var _ appReview.Fetcher = (*Fetcher)(nil)

// Fetcher retrieves one pull request's data from the GitHub REST API.
type Fetcher struct {
	factory      *ClientFactory
	owner        string
	repo         string
	changeNumber int
	token        string
}

// prDetails is the subset of the pull request response the pipeline needs.
type prDetails struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	User  struct {
		Login string `json:"login"`
	} `json:"user"`
}

// prFile is one entry of the pull request files listing.
type prFile struct {
	Filename  string `json:"filename"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Patch     string `json:"patch"`
}

// Metadata returns the pull request's title, description, and author.
// Network or API failures surface as TransportError, which is fatal for the
// task.
func (c *Fetcher) Metadata(ctx context.Context) (review.ChangeMetadata, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d", c.factory.baseURL, c.owner, c.repo, c.changeNumber)

	var details prDetails
	if err := c.getJSON(ctx, "get_metadata", url, &details); err != nil {
		return review.ChangeMetadata{}, err
	}

	return review.ChangeMetadata{
		Title:       details.Title,
		Description: details.Body,
		Author:      details.User.Login,
	}, nil
}

// ChangedFiles returns the files modified by the pull request. The patch
// field may be empty when GitHub omits the diff (binary or oversized files).
func (c *Fetcher) ChangedFiles(ctx context.Context) ([]review.ChangedFile, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/files", c.factory.baseURL, c.owner, c.repo, c.changeNumber)

	var files []prFile
	if err := c.getJSON(ctx, "get_changed_files", url, &files); err != nil {
		return nil, err
	}

	changed := make([]review.ChangedFile, 0, len(files))
	for _, f := range files {
		changed = append(changed, review.ChangedFile{
			Filename:  f.Filename,
			Additions: f.Additions,
			Deletions: f.Deletions,
			Patch:     f.Patch,
		})
	}
	return changed, nil
}

func (c *Fetcher) getJSON(ctx context.Context, operation, url string, out any) error {
	ctx, span := c.factory.tracer.Start(ctx, "github_fetcher."+operation)
	defer span.End()

	if err := c.factory.rateLimiter.Wait(ctx); err != nil {
		return &review.TransportError{Operation: operation, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &review.TransportError{Operation: operation, Err: err}
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	resp, err := c.factory.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return &review.TransportError{Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	c.factory.adjustRateLimit(resp.Header)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("github api returned %d: %s", resp.StatusCode, body)
		span.RecordError(err)
		return &review.TransportError{Operation: operation, Err: err}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		span.RecordError(err)
		return &review.TransportError{Operation: operation, Err: err}
	}
	return nil
}
