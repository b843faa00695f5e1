// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// LLMCallDuration tracks upstream model call duration.
	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_call_duration_seconds",
			Help:    "Upstream LLM call duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 45, 60},
		},
		[]string{"provider", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens reported by the upstream.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// PIIRedactionsTotal counts redacted messages by PII category.
	PIIRedactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pii_redactions_total",
			Help: "Messages with PII redacted, by category",
		},
		[]string{"category"},
	)

	// ContextTruncationsTotal counts conversations trimmed to fit the budget.
	ContextTruncationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "context_truncations_total",
			Help: "Conversations truncated to fit the token budget",
		},
	)

	// ContextTurnsDroppedTotal counts turns dropped by truncation.
	ContextTurnsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "context_turns_dropped_total",
			Help: "Turns dropped to fit the token budget",
		},
	)

	// ContextTokens tracks the estimated size of forwarded conversations.
	ContextTokens = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "context_estimated_tokens",
			Help:    "Estimated tokens of conversations sent upstream",
			Buckets: prometheus.ExponentialBuckets(16, 2, 12),
		},
	)

	// FallbackRepliesTotal counts canned replies served when the upstream failed.
	FallbackRepliesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fallback_replies_total",
			Help: "Canned replies served instead of an upstream reply",
		},
	)

	// RelayEventsTotal counts relay events published to NATS.
	RelayEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_total",
			Help: "Relay events published",
		},
		[]string{"type", "status"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMCall records metrics for an upstream model call.
func RecordLLMCall(provider, model, status string, duration float64, tokensIn, tokensOut int) {
	LLMCallDuration.WithLabelValues(provider, status).Observe(duration)
	if model == "" {
		return
	}
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// RecordRedaction records the PII categories found in one message.
func RecordRedaction(categories []string) {
	for _, c := range categories {
		PIIRedactionsTotal.WithLabelValues(c).Inc()
	}
}

// RecordTruncation records a conversation that was trimmed to fit the budget.
func RecordTruncation(dropped int) {
	ContextTruncationsTotal.Inc()
	ContextTurnsDroppedTotal.Add(float64(dropped))
}
