// Package service provides the relay's business logic.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/capitalize-ai/komo-relay/internal/budget"
	"github.com/capitalize-ai/komo-relay/internal/llm"
	"github.com/capitalize-ai/komo-relay/internal/model"
	"github.com/capitalize-ai/komo-relay/internal/redact"
	"github.com/capitalize-ai/komo-relay/pkg/logger"
	"github.com/capitalize-ai/komo-relay/pkg/metrics"
	"github.com/capitalize-ai/komo-relay/pkg/tracing"
)

var (
	// ErrUpstreamNotConfigured is returned when no LLM client is available.
	ErrUpstreamNotConfigured = errors.New("upstream LLM is not configured")
	// ErrUpstreamUnavailable is returned when the upstream fails or returns no reply.
	ErrUpstreamUnavailable = errors.New("upstream LLM unavailable")

	errEmptyReply = errors.New("no reply from upstream")
)

// BasePrompt is the default assistant persona. The current date is appended.
const BasePrompt = `You are Komo — a privacy-first multilingual AI assistant.
- Respect privacy: backend redacts PII.
- Default: reply in English. If the user's message is in another language, reply in that language.
- Translate only when explicitly requested; preserve meaning and tone.
- Avoid mixing languages; use clear, natural sentences.
- Keep formatting and line breaks; do not add extra commentary.`

// FallbackModel is reported as the model of canned replies.
const FallbackModel = "fallback"

const fallbackNote = "Using fallback due to AI service unavailable"

var fallbackReplies = []string{
	"I'm here to help! What would you like to know?",
	"Hello! I'm Komo AI. How can I assist you today?",
	"I understand your question. Let me help you with that.",
	"Thanks for your message! I'm ready to assist you.",
}

// EventPublisher receives relay audit events.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *model.RelayEvent) (uint64, error)
}

// ChatOptions configures a ChatService.
type ChatOptions struct {
	// MaxContextTokens is the budget for the forwarded conversation.
	MaxContextTokens int
	ReplyMaxTokens   int
	Temperature      float64
	Model            string
	SystemPrompt     string
	Location         *time.Location
	FallbackReplies  bool
	Now              func() time.Time
}

// Preparation describes what Prepare did to a conversation.
type Preparation struct {
	Redaction      redact.Result
	SystemInjected bool
	Budget         budget.Report
}

// ChatService prepares conversations and relays them to the upstream model.
type ChatService struct {
	llmClient llm.Client
	redactor  *redact.Redactor
	budgeter  budget.Budgeter
	events    EventPublisher
	logger    *logger.Logger
	opts      ChatOptions
}

// NewChatService creates a new chat service. llmClient and events may be nil.
func NewChatService(llmClient llm.Client, events EventPublisher, log *logger.Logger, opts ChatOptions) *ChatService {
	if log == nil {
		log = logger.Nop()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = BasePrompt
	}
	return &ChatService{
		llmClient: llmClient,
		redactor:  redact.New(),
		budgeter:  budget.NewBudgeter(opts.MaxContextTokens),
		events:    events,
		logger:    log,
		opts:      opts,
	}
}

// Configured reports whether an upstream client is available.
func (s *ChatService) Configured() bool {
	return s.llmClient != nil
}

// Provider returns the upstream provider name, or "" when not configured.
func (s *ChatService) Provider() string {
	if s.llmClient == nil {
		return ""
	}
	return s.llmClient.Name()
}

// Models returns the upstream's models, or nil when not configured.
func (s *ChatService) Models() []string {
	if s.llmClient == nil {
		return nil
	}
	return s.llmClient.Models()
}

// Prepare redacts the newest user turn, injects the system prompt when the
// conversation has none, and fits the result into the token budget.
// conv is never modified.
func (s *ChatService) Prepare(ctx context.Context, conv model.Conversation) (model.Conversation, Preparation) {
	log := s.logger.WithCorrelation(logger.CorrelationIDFromContext(ctx))
	var prep Preparation

	out, res := s.redactor.RedactLatestUser(conv)
	prep.Redaction = res
	if res.Changed {
		categories := categoryNames(res.Categories)
		log.Info("PII data redacted", zap.Strings("categories", categories))
		metrics.RecordRedaction(categories)
		s.publish(ctx, model.EventTypePIIRedacted, "", map[string]any{"categories": categories})
	}

	if !out.HasSystem() {
		system := model.NewTurn(model.RoleSystem, s.SystemPrompt())
		out = append(model.Conversation{system}, out...)
		prep.SystemInjected = true
	}

	out, report := s.budgeter.Fit(out)
	prep.Budget = report
	metrics.ContextTokens.Observe(float64(report.After))
	if report.Truncated {
		log.Info("context truncated",
			zap.Int("tokens_before", report.Before),
			zap.Int("tokens_after", report.After),
			zap.Int("turns_dropped", report.Dropped),
		)
		metrics.RecordTruncation(report.Dropped)
		s.publish(ctx, model.EventTypeContextTruncated, "", map[string]any{
			"tokens_before": report.Before,
			"tokens_after":  report.After,
			"turns_dropped": report.Dropped,
			"budget":        s.budgeter.Limit(),
		})
	}

	return out, prep
}

// SystemPrompt returns the persona prompt stamped with today's date.
func (s *ChatService) SystemPrompt() string {
	today := formatDate(s.opts.Now().In(s.opts.Location))
	return fmt.Sprintf("%s\n- Today: %s.", s.opts.SystemPrompt, today)
}

// Reply prepares conv and returns the upstream model's reply.
func (s *ChatService) Reply(ctx context.Context, conv model.Conversation) (*model.ChatResponse, error) {
	ctx, span := tracing.Tracer().Start(ctx, "ChatService.Reply")
	defer span.End()

	log := s.logger.WithCorrelation(logger.CorrelationIDFromContext(ctx))

	prepared, prep := s.Prepare(ctx, conv)
	span.SetAttributes(
		attribute.Int("relay.turns", len(prepared)),
		attribute.Int("relay.tokens_estimated", prep.Budget.After),
		attribute.Bool("relay.truncated", prep.Budget.Truncated),
		attribute.Bool("relay.redacted", prep.Redaction.Changed),
	)

	if s.llmClient == nil {
		span.SetStatus(codes.Error, ErrUpstreamNotConfigured.Error())
		log.Error("upstream not configured")
		return nil, ErrUpstreamNotConfigured
	}

	resp, err := s.complete(ctx, prepared)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream failed")
		log.Error("upstream call failed", zap.String("provider", s.llmClient.Name()), zap.Error(err))
		s.publish(ctx, model.EventTypeUpstreamError, "upstream call failed", map[string]any{
			"provider":   s.llmClient.Name(),
			"error_kind": upstreamErrorKind(err),
		})

		if s.opts.FallbackReplies {
			return s.fallback(ctx), nil
		}
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}

	return &model.ChatResponse{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Reply:     resp.Content,
		Model:     resp.Model,
		Timestamp: s.opts.Now().UTC(),
	}, nil
}

func (s *ChatService) complete(ctx context.Context, conv model.Conversation) (*llm.CompletionResponse, error) {
	ctx, span := tracing.Tracer().Start(ctx, "llm.Complete")
	defer span.End()

	provider := s.llmClient.Name()
	span.SetAttributes(attribute.String("llm.provider", provider))

	start := time.Now()
	temperature := s.opts.Temperature
	resp, err := s.llmClient.Complete(ctx, &llm.CompletionRequest{
		Model:       s.opts.Model,
		Messages:    conv,
		MaxTokens:   s.opts.ReplyMaxTokens,
		Temperature: &temperature,
	})
	duration := time.Since(start).Seconds()

	if err == nil && (resp == nil || strings.TrimSpace(resp.Content) == "") {
		err = errEmptyReply
	}
	if err != nil {
		span.RecordError(err)
		metrics.RecordLLMCall(provider, "", "error", duration, 0, 0)
		return nil, err
	}

	resp.Content = strings.TrimSpace(resp.Content)
	span.SetAttributes(
		attribute.String("llm.model", resp.Model),
		attribute.Int("llm.tokens_in", resp.TokensIn),
		attribute.Int("llm.tokens_out", resp.TokensOut),
	)
	metrics.RecordLLMCall(provider, resp.Model, "success", duration, resp.TokensIn, resp.TokensOut)
	return resp, nil
}

func upstreamErrorKind(err error) string {
	if errors.Is(err, errEmptyReply) {
		return "empty_reply"
	}
	return llm.ErrorKind(err)
}

func (s *ChatService) fallback(ctx context.Context) *model.ChatResponse {
	metrics.FallbackRepliesTotal.Inc()
	s.publish(ctx, model.EventTypeFallback, fallbackNote, nil)
	return &model.ChatResponse{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Reply:     fallbackReplies[rand.IntN(len(fallbackReplies))],
		Model:     FallbackModel,
		Timestamp: s.opts.Now().UTC(),
		Note:      fallbackNote,
	}
}

// publish sends an audit event. Failures are logged and never reach the caller.
func (s *ChatService) publish(ctx context.Context, eventType model.EventType, reason string, metadata map[string]any) {
	if s.events == nil {
		return
	}

	correlationID := logger.CorrelationIDFromContext(ctx)
	event := &model.RelayEvent{
		ID:            uuid.Must(uuid.NewV7()).String(),
		CorrelationID: correlationID,
		Type:          eventType,
		Reason:        reason,
		Metadata:      metadata,
		CreatedAt:     s.opts.Now().UTC(),
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if _, err := s.events.PublishEvent(pubCtx, event); err != nil {
		metrics.RelayEventsTotal.WithLabelValues(string(eventType), "error").Inc()
		s.logger.WithCorrelation(correlationID).Warn("failed to publish relay event",
			zap.String("type", string(eventType)),
			zap.Error(err),
		)
		return
	}
	metrics.RelayEventsTotal.WithLabelValues(string(eventType), "success").Inc()
}

func categoryNames(categories []redact.Category) []string {
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = string(c)
	}
	return names
}

var (
	indonesianDays   = [...]string{"Minggu", "Senin", "Selasa", "Rabu", "Kamis", "Jumat", "Sabtu"}
	indonesianMonths = [...]string{
		"Januari", "Februari", "Maret", "April", "Mei", "Juni",
		"Juli", "Agustus", "September", "Oktober", "November", "Desember",
	}
)

// formatDate renders t the way an id-ID long date reads, e.g. "Senin, 5 Mei 2025".
func formatDate(t time.Time) string {
	return fmt.Sprintf("%s, %d %s %d", indonesianDays[t.Weekday()], t.Day(), indonesianMonths[t.Month()-1], t.Year())
}
