// Package config provides environment configuration for the relay server.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string        `env:"PORT" envDefault:"3030"`
	ServerReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"30s"`
	ServerWriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"120s"`

	// Context budget
	MaxModelTokens int `env:"MAX_MODEL_TOKENS" envDefault:"2048"`

	// Upstream LLM settings
	LLMProvider     string        `env:"LLM_PROVIDER" envDefault:"huggingface"`
	HFToken         string        `env:"HF_TOKEN"`
	HFModel         string        `env:"HF_MODEL" envDefault:"meta-llama/Llama-3.1-8B-Instruct:novita"`
	HFBaseURL       string        `env:"HF_BASE_URL" envDefault:"https://router.huggingface.co/v1"`
	OpenAIAPIKey    string        `env:"OPENAI_API_KEY"`
	OpenAIModel     string        `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	AnthropicAPIKey string        `env:"ANTHROPIC_API_KEY"`
	AnthropicModel  string        `env:"ANTHROPIC_MODEL" envDefault:"claude-3-5-haiku-20241022"`
	ReplyMaxTokens  int           `env:"REPLY_MAX_TOKENS" envDefault:"1024"`
	Temperature     float64       `env:"LLM_TEMPERATURE" envDefault:"0.7"`
	LLMTimeout      time.Duration `env:"LLM_TIMEOUT" envDefault:"30s"`

	// Assistant persona
	SystemPrompt    string `env:"SYSTEM_PROMPT"`
	Timezone        string `env:"TIMEZONE" envDefault:"Asia/Jakarta"`
	FallbackReplies bool   `env:"FALLBACK_REPLIES" envDefault:"false"`

	// JWT settings; auth is disabled when the secret is empty
	JWTSecret string `env:"JWT_SECRET"`

	// Rate limiting
	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"60"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	// NATS settings; events are disabled when the URL is empty
	NATSURL      string `env:"NATS_URL"`
	NATSCAFile   string `env:"NATS_CA_FILE"`
	NATSCertFile string `env:"NATS_CERT_FILE"`
	NATSKeyFile  string `env:"NATS_KEY_FILE"`
	NATSToken    string `env:"NATS_TOKEN"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Tracing
	TracingEndpoint string `env:"TRACING_ENDPOINT" envDefault:"localhost:4318"`
	TracingEnabled  bool   `env:"TRACING_ENABLED" envDefault:"false"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	// HF_API_KEY is accepted as an alias of HF_TOKEN.
	if cfg.HFToken == "" {
		cfg.HFToken = os.Getenv("HF_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that env parsing cannot.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxModelTokens <= 0 {
		errs = append(errs, fmt.Errorf("MAX_MODEL_TOKENS must be positive, got %d", c.MaxModelTokens))
	}
	if c.ReplyMaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("REPLY_MAX_TOKENS must be positive, got %d", c.ReplyMaxTokens))
	}
	if c.RateLimitRequests <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_REQUESTS must be positive, got %d", c.RateLimitRequests))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("LLM_TEMPERATURE must be between 0 and 2, got %g", c.Temperature))
	}
	switch c.LLMProvider {
	case "huggingface", "openai", "anthropic":
	default:
		errs = append(errs, fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err))
	}
	return errors.Join(errs...)
}

// Location returns the configured time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NATSEnabled reports whether relay events should be published.
func (c *Config) NATSEnabled() bool {
	return c.NATSURL != ""
}

// AuthEnabled reports whether API routes require a bearer token.
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}
