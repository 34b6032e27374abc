// Package openai implements the review generator on top of the OpenAI chat
// completion API. It asks the model for a structured findings report and
// parses the JSON response into the domain result types.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	appReview "github.com/ahrav/reviewhound/internal/app/review"
	"github.com/ahrav/reviewhound/internal/domain/review"
)

const defaultModel = openai.GPT4oMini

var _ appReview.Reviewer = (*Reviewer)(nil)

// completionClient is the slice of the OpenAI client the reviewer needs.
// It exists so tests can substitute canned responses.
type completionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Reviewer generates structured code review findings via OpenAI chat
// completions. All failures surface as GenerationError, which the pipeline
// treats as non-fatal.
type Reviewer struct {
	client completionClient
	model  string
	tracer trace.Tracer
}

// Option customizes a Reviewer.
type Option func(*Reviewer)

// WithModel overrides the completion model.
func WithModel(model string) Option {
	return func(r *Reviewer) { r.model = model }
}

// WithClient overrides the completion client, for tests.
func WithClient(client completionClient) Option {
	return func(r *Reviewer) { r.client = client }
}

// NewReviewer creates a Reviewer using the given API key.
func NewReviewer(apiKey string, tracer trace.Tracer, opts ...Option) *Reviewer {
	r := &Reviewer{
		client: openai.NewClient(apiKey),
		model:  defaultModel,
		tracer: tracer,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Review asks the model for a findings report over the normalized change
// data. Summary counts in the response are recomputed by the caller, so only
// the per-file findings need to parse cleanly.
func (r *Reviewer) Review(ctx context.Context, input review.ReviewInput) (*review.ReviewResults, error) {
	ctx, span := r.tracer.Start(ctx, "openai_reviewer.review",
		trace.WithAttributes(
			attribute.String("model", r.model),
			attribute.Int("files", len(input.CodeChanges)),
		))
	defer span.End()

	if len(input.CodeChanges) == 0 {
		err := &review.GenerationError{Err: fmt.Errorf("no code changes to review")}
		span.RecordError(err)
		return nil, err
	}

	prompt, err := buildPrompt(input)
	if err != nil {
		return nil, &review.GenerationError{Err: err}
	}

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.model,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: "Please analyze this change and provide a comprehensive code review in the specified format.",
			},
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat completion failed")
		return nil, &review.GenerationError{Err: err}
	}
	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no completion choices returned")
		span.RecordError(err)
		return nil, &review.GenerationError{Err: err}
	}

	var results review.ReviewResults
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &results); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unparseable completion")
		return nil, &review.GenerationError{Err: fmt.Errorf("parsing review response: %w", err)}
	}

	span.SetAttributes(attribute.Int("issues", countIssues(results)))
	return &results, nil
}

func countIssues(results review.ReviewResults) int {
	var n int
	for _, f := range results.Files {
		n += len(f.Issues)
	}
	return n
}

// buildPrompt renders the review instructions plus the serialized change
// data. Line numbers come from the diff when identifiable.
func buildPrompt(input review.ReviewInput) (string, error) {
	changesJSON, err := json.MarshalIndent(input.CodeChanges, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal code changes: %w", err)
	}

	var b strings.Builder
	b.WriteString(`You are an expert pull request reviewer. Analyze the change based on the following criteria:

- Code style and formatting issues
- Potential bugs or errors
- Performance improvements
- Best practices

Analyze every file in the change and include review results for all files in the output.
For each file, identify specific issues with line numbers (if available from the diff) and provide concrete suggestions.

`)
	fmt.Fprintf(&b, "Change Information:\nTitle: %s\nDescription: %s\n\n", orNA(input.PRInfo.Title), orNA(input.PRInfo.Description))
	fmt.Fprintf(&b, "Files to review: %d\n\nCode Changes:\n%s\n\n", len(input.CodeChanges), changesJSON)
	b.WriteString(`Return a JSON object in the following structure:
- "files": array of objects with "name" and "issues"
- "summary": object with "total_files", "total_issues", and "critical_issues" counts

Each issue must have:
- "type": one of "bug", "style", "performance", "security", "best_practice"
- "line": line number when identifiable from the diff, otherwise null
- "description": clear description of the issue
- "suggestion": actionable suggestion to fix the issue

Consider "bug" and "security" issues as critical.`)

	return b.String(), nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
