package openai

import (
	"context"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/reviewhound/internal/domain/review"
)

type stubClient struct {
	req     openai.ChatCompletionRequest
	content string
	err     error
}

func (s *stubClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.req = req
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: s.content}},
		},
	}, nil
}

func newTestReviewer(client *stubClient) *Reviewer {
	return NewReviewer("test-key", noop.NewTracerProvider().Tracer("test"), WithClient(client))
}

func sampleInput() review.ReviewInput {
	return review.ReviewInput{
		PRInfo: review.PRInfo{Title: "Add parser", Description: "desc"},
		CodeChanges: []review.FileChange{
			{Filename: "parser.go", Language: "go", Diff: "@@ -1 +1 @@"},
		},
	}
}

func TestReviewerParsesStructuredResponse(t *testing.T) {
	client := &stubClient{content: `{
		"files": [
			{"name": "parser.go", "issues": [
				{"type": "bug", "line": 12, "description": "off by one", "suggestion": "use <="},
				{"type": "style", "line": null, "description": "naming", "suggestion": "rename"}
			]}
		],
		"summary": {"total_files": 1, "total_issues": 2, "critical_issues": 1}
	}`}

	results, err := newTestReviewer(client).Review(context.Background(), sampleInput())
	require.NoError(t, err)
	require.Len(t, results.Files, 1)
	require.Len(t, results.Files[0].Issues, 2)

	first := results.Files[0].Issues[0]
	assert.Equal(t, review.IssueTypeBug, first.Type)
	require.NotNil(t, first.Line)
	assert.Equal(t, 12, *first.Line)
	assert.True(t, first.IsCritical())
	assert.Nil(t, results.Files[0].Issues[1].Line)
}

func TestReviewerRequestShape(t *testing.T) {
	client := &stubClient{content: `{"files":[],"summary":{}}`}
	_, err := newTestReviewer(client).Review(context.Background(), sampleInput())
	require.NoError(t, err)

	assert.Equal(t, openai.GPT4oMini, client.req.Model)
	require.NotNil(t, client.req.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, client.req.ResponseFormat.Type)
	require.Len(t, client.req.Messages, 2)
	assert.Contains(t, client.req.Messages[0].Content, "parser.go")
	assert.Contains(t, client.req.Messages[0].Content, "Title: Add parser")
}

func TestReviewerEmptyChanges(t *testing.T) {
	client := &stubClient{content: `{}`}
	_, err := newTestReviewer(client).Review(context.Background(), review.ReviewInput{})
	require.Error(t, err)

	var gErr *review.GenerationError
	assert.ErrorAs(t, err, &gErr)
}

func TestReviewerAPIFailure(t *testing.T) {
	client := &stubClient{err: assert.AnError}
	_, err := newTestReviewer(client).Review(context.Background(), sampleInput())

	var gErr *review.GenerationError
	assert.ErrorAs(t, err, &gErr)
}

func TestReviewerUnparseableResponse(t *testing.T) {
	client := &stubClient{content: "sorry, I cannot help with that"}
	_, err := newTestReviewer(client).Review(context.Background(), sampleInput())

	var gErr *review.GenerationError
	assert.ErrorAs(t, err, &gErr)
}
