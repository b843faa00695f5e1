package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/komo-relay/internal/budget"
	"github.com/capitalize-ai/komo-relay/internal/llm"
	"github.com/capitalize-ai/komo-relay/internal/model"
	"github.com/capitalize-ai/komo-relay/pkg/logger"
)

// MockLLMClient implements llm.Client for testing.
type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*llm.CompletionResponse)
	return resp, args.Error(1)
}

func (m *MockLLMClient) Name() string {
	return "mock"
}

func (m *MockLLMClient) Models() []string {
	return []string{"mock-model"}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.RelayEvent
	err    error
}

func (p *recordingPublisher) PublishEvent(_ context.Context, event *model.RelayEvent) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	p.events = append(p.events, *event)
	return uint64(len(p.events)), nil
}

func (p *recordingPublisher) types() []model.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// 2025-05-04 20:00 UTC is Monday 5 May in UTC+7.
var fixedNow = time.Date(2025, 5, 4, 20, 0, 0, 0, time.UTC)

func newTestService(client llm.Client, pub EventPublisher, opts ChatOptions) *ChatService {
	opts.Now = func() time.Time { return fixedNow }
	if opts.Location == nil {
		opts.Location = time.FixedZone("WIB", 7*60*60)
	}
	return NewChatService(client, pub, logger.Nop(), opts)
}

func TestSystemPrompt(t *testing.T) {
	s := newTestService(nil, nil, ChatOptions{})
	prompt := s.SystemPrompt()

	assert.True(t, strings.HasPrefix(prompt, "You are Komo"))
	assert.True(t, strings.HasSuffix(prompt, "- Today: Senin, 5 Mei 2025."), prompt)

	custom := newTestService(nil, nil, ChatOptions{SystemPrompt: "Be terse.", Location: time.UTC})
	assert.Equal(t, "Be terse.\n- Today: Minggu, 4 Mei 2025.", custom.SystemPrompt())
}

func TestPrepareInjectsSystemPrompt(t *testing.T) {
	s := newTestService(nil, nil, ChatOptions{})
	conv := model.Conversation{model.NewTurn(model.RoleUser, "hello")}

	out, prep := s.Prepare(context.Background(), conv)

	require.Len(t, out, 2)
	assert.True(t, prep.SystemInjected)
	assert.Equal(t, model.RoleSystem, out[0].Role)
	assert.Equal(t, s.SystemPrompt(), out[0].Content.String())
	assert.Equal(t, conv[0], out[1])
	assert.Len(t, conv, 1)
}

func TestPrepareKeepsExistingSystem(t *testing.T) {
	s := newTestService(nil, nil, ChatOptions{})
	conv := model.Conversation{
		model.NewTurn(model.RoleUser, "earlier"),
		model.NewTurn(model.RoleSystem, "custom persona"),
		model.NewTurn(model.RoleUser, "now"),
	}

	out, prep := s.Prepare(context.Background(), conv)

	assert.False(t, prep.SystemInjected)
	assert.Equal(t, conv, out)
}

func TestPrepareRedactsLatestUserTurn(t *testing.T) {
	pub := &recordingPublisher{}
	s := newTestService(nil, pub, ChatOptions{})
	conv := model.Conversation{
		model.NewTurn(model.RoleUser, "old mail: old@example.com"),
		model.NewTurn(model.RoleAssistant, "ok"),
		model.NewTurn(model.RoleUser, "mail me at budi@example.co.id"),
	}
	ctx := logger.ContextWithCorrelationID(context.Background(), "corr-1")

	out, prep := s.Prepare(ctx, conv)

	assert.True(t, prep.Redaction.Changed)
	assert.Equal(t, "mail me at [EMAIL_REDACTED]", out[len(out)-1].Content.String())
	assert.Equal(t, "old mail: old@example.com", out[1].Content.String())
	assert.Equal(t, "mail me at budi@example.co.id", conv[2].Content.String())

	require.Len(t, pub.events, 1)
	event := pub.events[0]
	assert.Equal(t, model.EventTypePIIRedacted, event.Type)
	assert.Equal(t, "corr-1", event.CorrelationID)
	assert.Equal(t, []string{"email"}, event.Metadata["categories"])
	assert.NotContains(t, event.Reason, "budi")
}

func TestPrepareTruncates(t *testing.T) {
	pub := &recordingPublisher{}
	s := newTestService(nil, pub, ChatOptions{MaxContextTokens: 120})

	conv := model.Conversation{model.NewTurn(model.RoleSystem, "be brief")}
	for i := 0; i < 10; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		conv = append(conv, model.NewTurn(role, strings.Repeat("x", 200)))
	}
	conv = append(conv, model.NewTurn(model.RoleUser, strings.Repeat("y", 200)))

	out, prep := s.Prepare(context.Background(), conv)

	assert.True(t, prep.Budget.Truncated)
	assert.LessOrEqual(t, budget.EstimateConversation(out), 120)
	assert.Equal(t, prep.Budget.After, budget.EstimateConversation(out))
	require.Len(t, out, 3)
	assert.Equal(t, conv[0], out[0])
	assert.Equal(t, conv[len(conv)-1], out[2])
	assert.Equal(t, len(conv)-3, prep.Budget.Dropped)
	assert.Equal(t, []model.EventType{model.EventTypeContextTruncated}, pub.types())
}

func TestPrepareWithinBudget(t *testing.T) {
	pub := &recordingPublisher{}
	s := newTestService(nil, pub, ChatOptions{})

	conv := model.Conversation{model.NewTurn(model.RoleSystem, "sys"), model.NewTurn(model.RoleUser, "hi")}
	out, prep := s.Prepare(context.Background(), conv)

	assert.False(t, prep.Budget.Truncated)
	assert.Equal(t, conv, out)
	assert.Empty(t, pub.events)
}

func TestReply(t *testing.T) {
	client := new(MockLLMClient)
	client.On("Complete", mock.Anything, mock.MatchedBy(func(req *llm.CompletionRequest) bool {
		return len(req.Messages) == 2 &&
			req.Messages[0].Role == model.RoleSystem &&
			req.Messages[1].Content.String() == "call me on [PHONE_REDACTED]" &&
			req.MaxTokens == 1024 &&
			req.Temperature != nil && *req.Temperature == 0.7
	})).Return(&llm.CompletionResponse{Content: "  Sure!\n", Model: "mock-model", TokensIn: 40, TokensOut: 2}, nil)

	s := newTestService(client, nil, ChatOptions{ReplyMaxTokens: 1024, Temperature: 0.7})
	resp, err := s.Reply(context.Background(), model.Conversation{
		model.NewTurn(model.RoleUser, "call me on 081234567890"),
	})

	require.NoError(t, err)
	assert.Equal(t, "Sure!", resp.Reply)
	assert.Equal(t, "mock-model", resp.Model)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, fixedNow, resp.Timestamp)
	assert.Empty(t, resp.Note)
	client.AssertExpectations(t)
}

func TestReplyNotConfigured(t *testing.T) {
	s := newTestService(nil, nil, ChatOptions{FallbackReplies: true})

	_, err := s.Reply(context.Background(), model.Conversation{model.NewTurn(model.RoleUser, "hi")})
	assert.ErrorIs(t, err, ErrUpstreamNotConfigured)
	assert.False(t, s.Configured())
	assert.Empty(t, s.Provider())
	assert.Nil(t, s.Models())
}

func TestReplyUpstreamFailure(t *testing.T) {
	tests := []struct {
		name string
		resp *llm.CompletionResponse
		err  error
		kind string
	}{
		{"error", nil, errors.New("connection reset"), "error"},
		{"empty reply", &llm.CompletionResponse{Content: "   "}, nil, "empty_reply"},
		{"nil response", nil, nil, "empty_reply"},
		{"timeout", nil, fmt.Errorf("post: %w", context.DeadlineExceeded), "timeout"},
		{"status echoing input", nil, &openai.APIError{
			HTTPStatusCode: http.StatusBadRequest,
			Message:        "invalid content: my NIK is 3201234567890123",
		}, "http_400"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(MockLLMClient)
			client.On("Complete", mock.Anything, mock.Anything).Return(tt.resp, tt.err)
			pub := &recordingPublisher{}

			s := newTestService(client, pub, ChatOptions{})
			_, err := s.Reply(context.Background(), model.Conversation{model.NewTurn(model.RoleUser, "hi")})

			assert.ErrorIs(t, err, ErrUpstreamUnavailable)
			require.Equal(t, []model.EventType{model.EventTypeUpstreamError}, pub.types())

			event := pub.events[0]
			assert.Equal(t, "upstream call failed", event.Reason)
			assert.Equal(t, tt.kind, event.Metadata["error_kind"])
			assert.Equal(t, "mock", event.Metadata["provider"])
			assert.NotContains(t, event.Reason, "3201234567890123")
		})
	}
}

func TestReplyFallback(t *testing.T) {
	client := new(MockLLMClient)
	client.On("Complete", mock.Anything, mock.Anything).Return(nil, errors.New("503 from router"))
	pub := &recordingPublisher{}

	s := newTestService(client, pub, ChatOptions{FallbackReplies: true})
	resp, err := s.Reply(context.Background(), model.Conversation{model.NewTurn(model.RoleUser, "hi")})

	require.NoError(t, err)
	assert.Equal(t, FallbackModel, resp.Model)
	assert.Contains(t, fallbackReplies, resp.Reply)
	assert.NotEmpty(t, resp.Note)
	assert.Equal(t, []model.EventType{model.EventTypeUpstreamError, model.EventTypeFallback}, pub.types())
}

func TestPublishFailureDoesNotFailReply(t *testing.T) {
	client := new(MockLLMClient)
	client.On("Complete", mock.Anything, mock.Anything).Return(&llm.CompletionResponse{Content: "ok", Model: "m"}, nil)
	pub := &recordingPublisher{err: errors.New("nats down")}

	s := newTestService(client, pub, ChatOptions{})
	resp, err := s.Reply(context.Background(), model.Conversation{model.NewTurn(model.RoleUser, "me@example.com")})

	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Reply)
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "Jumat, 17 Agustus 1945", formatDate(time.Date(1945, 8, 17, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, "Rabu, 1 Januari 2025", formatDate(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
}
