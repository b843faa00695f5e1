package handler

import (
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/capitalize-ai/komo-relay/internal/middleware"
	"github.com/capitalize-ai/komo-relay/internal/service"
	"github.com/capitalize-ai/komo-relay/pkg/logger"
)

// EventHandler handles relay event endpoints.
type EventHandler struct {
	eventService *service.EventService
	logger       *logger.Logger
}

// NewEventHandler creates a new event handler.
func NewEventHandler(svc *service.EventService, log *logger.Logger) *EventHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &EventHandler{
		eventService: svc,
		logger:       log,
	}
}

// List handles GET /api/v1/events
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	afterSequence := uint64(0)
	limit := 50

	if seq := r.URL.Query().Get("after_sequence"); seq != "" {
		parsed, err := strconv.ParseUint(seq, 10, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "after_sequence must be a non-negative integer")
			return
		}
		afterSequence = parsed
	}

	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	resp, err := h.eventService.List(ctx, afterSequence, limit)
	if errors.Is(err, service.ErrEventsDisabled) {
		writeError(w, r, http.StatusNotFound, "relay events are disabled")
		return
	}
	if err != nil {
		h.logger.WithCorrelation(middleware.GetCorrelationID(ctx)).Error("failed to list events", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "failed to list events")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
