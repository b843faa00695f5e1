package llm

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/capitalize-ai/komo-relay/internal/model"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint,
// including the Hugging Face router.
type OpenAIClient struct {
	client *openai.Client
	name   Provider
	model  string
}

// NewOpenAIClient creates a new OpenAI-compatible client.
func NewOpenAIClient(opts Options) (*OpenAIClient, error) {
	if opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	config := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		config.BaseURL = opts.BaseURL
	}
	if opts.Timeout > 0 {
		config.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}

	name := opts.Provider
	if name == "" {
		name = ProviderOpenAI
	}
	modelName := opts.Model
	if modelName == "" {
		modelName = defaultOpenAIModel
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		name:   name,
		model:  modelName,
	}, nil
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string {
	return string(c.name)
}

// Models returns available models.
func (c *OpenAIClient) Models() []string {
	if c.name != ProviderOpenAI {
		return []string{c.model}
	}
	models := []string{c.model}
	for _, m := range []string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "gpt-3.5-turbo"} {
		if m != c.model {
			models = append(models, m)
		}
	}
	return models
}

// Complete sends a completion request.
func (c *OpenAIClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()
	modelName, maxTokens, temperature := withDefaults(req, c.model)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       modelName,
		Messages:    toOpenAIMessages(req.Messages),
		MaxTokens:   maxTokens,
		Temperature: openAITemperature(temperature),
	})
	if err != nil {
		return nil, err
	}

	var content, stopReason string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
		stopReason = string(resp.Choices[0].FinishReason)
	}

	respModel := resp.Model
	if respModel == "" {
		respModel = modelName
	}

	return &CompletionResponse{
		Content:    content,
		Model:      respModel,
		TokensIn:   resp.Usage.PromptTokens,
		TokensOut:  resp.Usage.CompletionTokens,
		StopReason: stopReason,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

// openAITemperature maps zero to the smallest positive float32. The request
// field is omitempty, so a literal zero would fall back to the server default.
func openAITemperature(t float64) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

func toOpenAIMessages(conv model.Conversation) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, len(conv))
	for i, turn := range conv {
		msg := openai.ChatCompletionMessage{Role: string(turn.Role)}
		switch turn.Content.Kind {
		case model.ContentParts:
			msg.MultiContent = toOpenAIParts(turn.Content.Parts)
		default:
			msg.Content = textOf(turn.Content)
		}
		messages[i] = msg
	}
	return messages
}

// toOpenAIParts keeps text and image_url parts; audio and unknown parts have
// no chat completions equivalent and are dropped.
func toOpenAIParts(parts []model.Part) []openai.ChatMessagePart {
	out := make([]openai.ChatMessagePart, 0, len(parts))
	for _, p := range parts {
		switch p.Kind {
		case model.PartText, model.PartString:
			out = append(out, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: p.Text,
			})
		case model.PartImageURL:
			if p.ImageURL == "" {
				continue
			}
			out = append(out, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: p.ImageURL},
			})
		}
	}
	return out
}
