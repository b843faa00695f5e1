package model

import (
	"time"
)

// EventType represents the type of relay event.
type EventType string

const (
	EventTypePIIRedacted      EventType = "pii_redacted"
	EventTypeContextTruncated EventType = "context_truncated"
	EventTypeUpstreamError    EventType = "upstream_error"
	EventTypeFallback         EventType = "fallback"
)

// RelayEvent is an audit record of something the relay did to a request.
// It never carries message text.
type RelayEvent struct {
	ID            string         `json:"id"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Type          EventType      `json:"type"`
	Reason        string         `json:"reason,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	Sequence      uint64         `json:"sequence,omitempty"`
}

// ListEventsResponse is the response for listing relay events.
type ListEventsResponse struct {
	Events       []RelayEvent `json:"events"`
	HasMore      bool         `json:"has_more"`
	LastSequence uint64       `json:"last_sequence"`
}
