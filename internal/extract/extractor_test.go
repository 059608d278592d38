package extract

import (
	"context"
	"testing"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cityscout/events-cli/internal/config"
	"github.com/cityscout/events-cli/internal/model"
	"github.com/cityscout/events-cli/internal/resilience"
	"github.com/cityscout/events-cli/pkg/anthropic"
)

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func newTestExtractor(client anthropic.Client) *Extractor {
	x := New(client, config.ExtractConfig{
		MaxInputChars:     24000,
		MaxAttempts:       3,
		RetryDelaySecs:    1,
		RateLimitAttempts: 3,
		RateLimitBaseSecs: 1,
		TargetRegion:      "Berlin",
	}, config.AnthropicConfig{Model: "claude-haiku-4-5-20251001", MaxTokens: 4096})
	// No real sleeping in tests.
	x.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return x
}

var extrSource = model.Source{ID: "src-1", Name: "Club X", Kind: model.SourceKindLocation}

func page(content string) model.Page {
	return model.Page{URL: "https://clubx.example/events", Content: content}
}

func TestExtract_SingleEventPage(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(&anthropic.MessageResponse{Text: validResponse, StopReason: "end_turn"}, nil).Once()

	x := newTestExtractor(client)
	cands, err := x.Extract(context.Background(), extrSource, page("EVENT: Midnight Special ..."))
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "Midnight Special", cands[0].Title)
	assert.True(t, model.ValidCategory(string(cands[0].Category)))
	client.AssertExpectations(t)
}

func TestExtract_OutOfRegionPageYieldsZero(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(&anthropic.MessageResponse{Text: `{"events": []}`, StopReason: "end_turn"}, nil).Once()

	x := newTestExtractor(client)
	cands, err := x.Extract(context.Background(), extrSource, page("Events in Munich only"))
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestExtract_RetriesOnValidationFailure(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(&anthropic.MessageResponse{Text: `{"events": [{"title": "A"}]}`, StopReason: "end_turn"}, nil).Twice()
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(&anthropic.MessageResponse{Text: validResponse, StopReason: "end_turn"}, nil).Once()

	x := newTestExtractor(client)
	cands, err := x.Extract(context.Background(), extrSource, page("content"))
	require.NoError(t, err)
	assert.Len(t, cands, 1)
	client.AssertExpectations(t)
}

func TestExtract_ExhaustsValidationRetries(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(&anthropic.MessageResponse{Text: `not json`, StopReason: "end_turn"}, nil).Times(3)

	x := newTestExtractor(client)
	_, err := x.Extract(context.Background(), extrSource, page("content"))
	assert.ErrorContains(t, err, "failed after 3 attempts")
	client.AssertExpectations(t)
}

func TestExtract_RepairsEmbeddedQuotes(t *testing.T) {
	broken := `{"events": [{"title": "Warehouse "23"-Night", "start_time": "2026-09-12T23:00:00", "detail_url": "https://x.example/e/1", "category": "club_night"}]}`
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(&anthropic.MessageResponse{Text: broken, StopReason: "end_turn"}, nil).Once()

	x := newTestExtractor(client)
	cands, err := x.Extract(context.Background(), extrSource, page("content"))
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, `Warehouse "23"-Night`, cands[0].Title)
}

func TestExtract_TruncatedOutputStillParsed(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(&anthropic.MessageResponse{Text: validResponse, StopReason: "max_tokens"}, nil).Once()

	x := newTestExtractor(client)
	cands, err := x.Extract(context.Background(), extrSource, page("content"))
	require.NoError(t, err)
	assert.Len(t, cands, 1)
}

func TestExtract_RateLimitBackoffThenError(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, &sdk.Error{StatusCode: 429}).Times(3)

	x := newTestExtractor(client)
	_, err := x.Extract(context.Background(), extrSource, page("content"))
	require.Error(t, err)
	assert.True(t, resilience.IsRateLimited(err))
	client.AssertExpectations(t)
}

func TestExtract_NonRateLimitAPIErrorNotRetried(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, &sdk.Error{StatusCode: 400}).Once()

	x := newTestExtractor(client)
	_, err := x.Extract(context.Background(), extrSource, page("content"))
	require.Error(t, err)
	assert.False(t, resilience.IsRateLimited(err))
	client.AssertExpectations(t)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	assert.Equal(t, "abcdef", Truncate("abcdef", 0))
}

func TestBuildSystemPrompt_ContainsRules(t *testing.T) {
	p := BuildSystemPrompt("Berlin", time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC))
	assert.Contains(t, p, "Berlin")
	assert.Contains(t, p, "club_night")
	assert.Contains(t, p, "2026")
	assert.Contains(t, p, "2027")
	assert.Contains(t, p, "detail_url")
	assert.Contains(t, p, "20:00:00")
	assert.Contains(t, p, "10:00:00")
}
