package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/komo-relay/internal/model"
)

const (
	// StreamName is the name of the relay events stream.
	StreamName = "RELAY"

	// SubjectPrefix is the prefix for all relay subjects.
	SubjectPrefix = "relay"

	// DefaultListLimit bounds ListEvents when the caller passes no limit.
	DefaultListLimit = 50
	// MaxListLimit is the largest page ListEvents will fetch.
	MaxListLimit = 500
)

// StreamManager handles JetStream stream operations.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream ensures the relay stream exists with proper configuration.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		MaxBytes:    1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Relay audit events (redactions, truncations, upstream failures)",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// EventSubject returns the subject for an event.
func EventSubject(eventType model.EventType) string {
	return fmt.Sprintf("%s.event.%s", SubjectPrefix, eventType)
}

// EventFilter returns the filter subject matching every relay event.
func EventFilter() string {
	return fmt.Sprintf("%s.event.>", SubjectPrefix)
}

// PublishEvent publishes an event to JetStream.
func (m *StreamManager) PublishEvent(ctx context.Context, event *model.RelayEvent) (uint64, error) {
	subject := EventSubject(event.Type)

	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}

	ack, err := m.client.JetStream().Publish(ctx, subject, data, jetstream.WithMsgID(event.ID))
	if err != nil {
		return 0, fmt.Errorf("failed to publish event: %w", err)
	}

	return ack.Sequence, nil
}

// ListEvents retrieves relay events starting after a stream sequence.
func (m *StreamManager) ListEvents(ctx context.Context, afterSequence uint64, limit int) ([]model.RelayEvent, uint64, bool, error) {
	limit = clampLimit(limit)
	js := m.client.JetStream()

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject:     EventFilter(),
		AckPolicy:         jetstream.AckNonePolicy,
		DeliverPolicy:     jetstream.DeliverAllPolicy,
		InactiveThreshold: 30 * time.Second,
	}

	if afterSequence > 0 {
		consumerConfig.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		consumerConfig.OptStartSeq = afterSequence + 1
	}

	consumer, err := js.CreateConsumer(ctx, StreamName, consumerConfig)
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to create consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to fetch events: %w", err)
	}

	page := newEventPage(afterSequence, limit)
	for msg := range batch.Messages() {
		page.add(msg)
	}

	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, jetstream.ErrNoMessages) {
		return nil, 0, false, fmt.Errorf("batch error: %w", err)
	}

	return page.events, page.lastSequence, page.fetched == limit, nil
}

// eventPage collects one fetched batch. Undecodable messages are skipped but
// still count as fetched and still advance lastSequence.
type eventPage struct {
	events       []model.RelayEvent
	lastSequence uint64
	fetched      int
}

func newEventPage(afterSequence uint64, limit int) *eventPage {
	return &eventPage{
		events:       make([]model.RelayEvent, 0, limit),
		lastSequence: afterSequence,
	}
}

func (p *eventPage) add(msg jetstream.Msg) {
	p.fetched++

	meta, err := msg.Metadata()
	if err == nil {
		p.lastSequence = meta.Sequence.Stream
	}

	var event model.RelayEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		return
	}
	if meta != nil {
		event.Sequence = meta.Sequence.Stream
	}
	p.events = append(p.events, event)
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}
