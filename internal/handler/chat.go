// Package handler provides HTTP handlers for the relay API.
package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/komo-relay/internal/middleware"
	"github.com/capitalize-ai/komo-relay/internal/model"
	"github.com/capitalize-ai/komo-relay/internal/service"
	"github.com/capitalize-ai/komo-relay/pkg/logger"
)

// maxBodyBytes bounds a chat request body.
const maxBodyBytes = 4 << 20

// ChatHandler handles chat relay endpoints.
type ChatHandler struct {
	chatService *service.ChatService
	logger      *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(svc *service.ChatService, log *logger.Logger) *ChatHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ChatHandler{
		chatService: svc,
		logger:      log,
	}
}

// Chat handles POST /chat and POST /api/v1/chat
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.logger.WithCorrelation(middleware.GetCorrelationID(ctx))

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req model.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}

	conv, err := conversationFromRequest(&req)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.chatService.Reply(ctx, conv)
	switch {
	case errors.Is(err, service.ErrUpstreamNotConfigured):
		writeError(w, r, http.StatusServiceUnavailable, "AI service is not configured")
		return
	case errors.Is(err, service.ErrUpstreamUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "No reply from AI")
		return
	case err != nil:
		log.Error("chat relay failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// conversationFromRequest accepts either a messages array or a single
// message string. The array form wins when both are present.
func conversationFromRequest(req *model.ChatRequest) (model.Conversation, error) {
	raw := bytes.TrimSpace(req.Messages)
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		conv, ok := model.DecodeConversation(raw)
		if !ok {
			return nil, &middleware.ValidationError{Field: "messages", Message: "must be a non-empty array"}
		}
		if err := middleware.ValidateConversation(conv); err != nil {
			return nil, err
		}
		return conv, nil
	}

	if req.Message != "" {
		if err := middleware.ValidateMessage(req.Message); err != nil {
			return nil, err
		}
		return model.Conversation{model.NewTurn(model.RoleUser, req.Message)}, nil
	}

	return nil, &middleware.ValidationError{Field: "messages", Message: "must be a non-empty array"}
}
