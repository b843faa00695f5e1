// Package main is the entry point for the relay server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/capitalize-ai/komo-relay/internal/config"
	"github.com/capitalize-ai/komo-relay/internal/handler"
	"github.com/capitalize-ai/komo-relay/internal/llm"
	natsclient "github.com/capitalize-ai/komo-relay/internal/nats"
	"github.com/capitalize-ai/komo-relay/internal/service"
	"github.com/capitalize-ai/komo-relay/pkg/logger"
	"github.com/capitalize-ai/komo-relay/pkg/tracing"
)

const serviceName = "komo-relay"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run() (err error) {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	logger.SetGlobal(log)

	log.Info("starting relay server",
		zap.String("provider", cfg.LLMProvider),
		zap.Int("max_model_tokens", cfg.MaxModelTokens),
	)

	ctx := context.Background()

	var tp *sdktrace.TracerProvider
	if cfg.TracingEnabled {
		tp, err = tracing.InitTracer(ctx, serviceName, cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		}
	}

	llmClient, err := newLLMClient(cfg)
	if err != nil {
		log.Warn("LLM client unavailable, chat requests will return 503", zap.Error(err))
	}

	var (
		natsClient *natsclient.Client
		publisher  service.EventPublisher
		store      service.EventStore
		events     handler.ConnectionChecker
	)
	if cfg.NATSEnabled() {
		natsClient, err = natsclient.Connect(natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}

		streamManager := natsclient.NewStreamManager(natsClient)
		if err := streamManager.EnsureStream(ctx); err != nil {
			natsClient.Close()
			return fmt.Errorf("failed to ensure stream: %w", err)
		}
		publisher, store, events = streamManager, streamManager, natsClient
	}

	chatService := service.NewChatService(llmClient, publisher, log, service.ChatOptions{
		MaxContextTokens: cfg.MaxModelTokens,
		ReplyMaxTokens:   cfg.ReplyMaxTokens,
		Temperature:      cfg.Temperature,
		SystemPrompt:     cfg.SystemPrompt,
		Location:         cfg.Location(),
		FallbackReplies:  cfg.FallbackReplies,
	})
	eventService := service.NewEventService(store, log)

	server := &http.Server{
		Addr: ":" + cfg.ServerPort,
		Handler: newRouter(routerDeps{
			cfg:          cfg,
			log:          log,
			chatService:  chatService,
			eventService: eventService,
			events:       events,
		}),
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var listenErr error
	select {
	case <-quit:
	case listenErr = <-serverErr:
		if listenErr != nil {
			log.Error("server error", zap.Error(listenErr))
		}
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err = multierr.Combine(
		listenErr,
		server.Shutdown(shutdownCtx),
		tracing.Shutdown(shutdownCtx, tp),
	)
	natsClient.Close()

	if err != nil {
		log.Error("unclean shutdown", zap.Error(err))
		return err
	}
	log.Info("server stopped")
	return nil
}

func newLLMClient(cfg *config.Config) (llm.Client, error) {
	opts := llm.Options{
		Provider: llm.Provider(cfg.LLMProvider),
		Timeout:  cfg.LLMTimeout,
	}
	switch opts.Provider {
	case llm.ProviderOpenAI:
		opts.APIKey = cfg.OpenAIAPIKey
		opts.Model = cfg.OpenAIModel
	case llm.ProviderAnthropic:
		opts.APIKey = cfg.AnthropicAPIKey
		opts.Model = cfg.AnthropicModel
	default:
		opts.APIKey = cfg.HFToken
		opts.Model = cfg.HFModel
		opts.BaseURL = cfg.HFBaseURL
	}
	return llm.NewClient(opts)
}
