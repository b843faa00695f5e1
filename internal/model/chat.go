package model

import (
	"encoding/json"
	"time"
)

// ChatRequest is the body of a chat relay request. Messages is kept raw so
// it can be decoded leniently; Message is the single-message form.
type ChatRequest struct {
	Messages json.RawMessage `json:"messages,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// ChatResponse is the finalized reply returned to the caller.
type ChatResponse struct {
	ID        string    `json:"id"`
	Reply     string    `json:"reply"`
	Model     string    `json:"model"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
}

// ModelsResponse lists the models offered by the configured upstream.
type ModelsResponse struct {
	Provider string   `json:"provider"`
	Default  string   `json:"default"`
	Models   []string `json:"models"`
}
