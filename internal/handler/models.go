package handler

import (
	"net/http"

	"github.com/capitalize-ai/komo-relay/internal/model"
	"github.com/capitalize-ai/komo-relay/internal/service"
)

// ModelsHandler handles model listing.
type ModelsHandler struct {
	chatService *service.ChatService
}

// NewModelsHandler creates a new models handler.
func NewModelsHandler(svc *service.ChatService) *ModelsHandler {
	return &ModelsHandler{chatService: svc}
}

// List handles GET /api/v1/models
func (h *ModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.chatService.Configured() {
		writeError(w, r, http.StatusServiceUnavailable, "AI service is not configured")
		return
	}

	models := h.chatService.Models()
	resp := model.ModelsResponse{
		Provider: h.chatService.Provider(),
		Models:   models,
	}
	if len(models) > 0 {
		resp.Default = models[0]
	}

	writeJSON(w, http.StatusOK, resp)
}
