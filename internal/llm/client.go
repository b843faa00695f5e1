// Package llm provides LLM client interfaces and implementations.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/capitalize-ai/komo-relay/internal/model"
)

// Request defaults used when a CompletionRequest leaves them unset.
const (
	DefaultMaxTokens   = 1024
	DefaultTemperature = 0.7
)

// ErrMissingAPIKey is returned when a provider is selected without credentials.
var ErrMissingAPIKey = errors.New("llm: API key is required")

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model       string
	Messages    model.Conversation
	MaxTokens   int
	// Temperature is optional; nil means DefaultTemperature. Zero is sent as is.
	Temperature *float64
}

// CompletionResponse represents a completion response.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// Client is the interface for LLM providers.
type Client interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string

	// Models returns available models, the default first.
	Models() []string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderHuggingFace Provider = "huggingface"
	ProviderOpenAI      Provider = "openai"
	ProviderAnthropic   Provider = "anthropic"
)

// Hugging Face router defaults.
const (
	HuggingFaceBaseURL = "https://router.huggingface.co/v1"
	HuggingFaceModel   = "meta-llama/Llama-3.1-8B-Instruct:novita"
)

// Options configures NewClient.
type Options struct {
	Provider Provider
	APIKey   string
	BaseURL  string
	Model    string
	Timeout  time.Duration
}

// NewClient creates a new LLM client based on provider. On error the
// returned Client is nil.
func NewClient(opts Options) (Client, error) {
	switch opts.Provider {
	case ProviderHuggingFace, "":
		if opts.BaseURL == "" {
			opts.BaseURL = HuggingFaceBaseURL
		}
		if opts.Model == "" {
			opts.Model = HuggingFaceModel
		}
		opts.Provider = ProviderHuggingFace
		c, err := NewOpenAIClient(opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	case ProviderOpenAI:
		c, err := NewOpenAIClient(opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	case ProviderAnthropic:
		c, err := NewAnthropicClient(opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", opts.Provider)
	}
}

func withDefaults(req *CompletionRequest, fallbackModel string) (modelName string, maxTokens int, temperature float64) {
	modelName = req.Model
	if modelName == "" {
		modelName = fallbackModel
	}
	maxTokens = req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	temperature = DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	return modelName, maxTokens, temperature
}

// textOf flattens a turn to plain text for providers without multi-part support.
func textOf(c model.Content) string {
	switch c.Kind {
	case model.ContentText, model.ContentOther:
		return c.Text
	case model.ContentParts:
		var out string
		for _, p := range c.Parts {
			if p.Kind != model.PartText && p.Kind != model.PartString {
				continue
			}
			if out != "" && p.Text != "" {
				out += "\n"
			}
			out += p.Text
		}
		return out
	default:
		return ""
	}
}
