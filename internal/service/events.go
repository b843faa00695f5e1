package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/capitalize-ai/komo-relay/internal/model"
	"github.com/capitalize-ai/komo-relay/pkg/logger"
)

// ErrEventsDisabled is returned when no event store is configured.
var ErrEventsDisabled = errors.New("relay events are disabled")

// EventStore reads relay events back from the stream.
type EventStore interface {
	ListEvents(ctx context.Context, afterSequence uint64, limit int) ([]model.RelayEvent, uint64, bool, error)
}

// EventService handles relay event queries.
type EventService struct {
	store  EventStore
	logger *logger.Logger
}

// NewEventService creates a new event service. store may be nil.
func NewEventService(store EventStore, log *logger.Logger) *EventService {
	if log == nil {
		log = logger.Nop()
	}
	return &EventService{store: store, logger: log}
}

// Enabled reports whether events can be listed.
func (s *EventService) Enabled() bool {
	return s.store != nil
}

// List retrieves relay events after a stream sequence.
func (s *EventService) List(ctx context.Context, afterSequence uint64, limit int) (*model.ListEventsResponse, error) {
	if s.store == nil {
		return nil, ErrEventsDisabled
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	events, lastSeq, hasMore, err := s.store.ListEvents(ctx, afterSequence, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	if events == nil {
		events = []model.RelayEvent{}
	}

	return &model.ListEventsResponse{
		Events:       events,
		HasMore:      hasMore,
		LastSequence: lastSeq,
	}, nil
}
