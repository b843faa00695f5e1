package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/komo-relay/internal/config"
	"github.com/capitalize-ai/komo-relay/internal/handler"
	"github.com/capitalize-ai/komo-relay/internal/middleware"
	"github.com/capitalize-ai/komo-relay/internal/service"
	"github.com/capitalize-ai/komo-relay/pkg/logger"
)

type routerDeps struct {
	cfg          *config.Config
	log          *logger.Logger
	chatService  *service.ChatService
	eventService *service.EventService
	events       handler.ConnectionChecker
}

func newRouter(d routerDeps) http.Handler {
	healthHandler := handler.NewHealthHandler(d.chatService.Configured(), d.events)
	chatHandler := handler.NewChatHandler(d.chatService, d.log)
	modelsHandler := handler.NewModelsHandler(d.chatService)
	eventHandler := handler.NewEventHandler(d.eventService, d.log)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(d.log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(d.cfg.CORSAllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	rateLimit := middleware.RateLimit(d.cfg.RateLimitRequests, d.cfg.RateLimitWindow)

	// Browser route, same contract as the API route but never authenticated
	r.With(rateLimit).Post("/chat", chatHandler.Chat)

	r.Route("/api/v1", func(r chi.Router) {
		if d.cfg.AuthEnabled() {
			r.Use(middleware.Auth(d.cfg.JWTSecret))
		}
		r.Use(rateLimit)

		r.Post("/chat", chatHandler.Chat)
		r.Get("/models", modelsHandler.List)

		if d.cfg.AuthEnabled() {
			r.With(middleware.RequireScope(middleware.ScopeEventsRead)).Get("/events", eventHandler.List)
		} else {
			r.Get("/events", eventHandler.List)
		}
	})

	return r
}
