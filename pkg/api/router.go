// Package api provides HTTP API server components.
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/goclaw/manifest/config"
	"github.com/goclaw/manifest/pkg/api/handlers"
	"github.com/goclaw/manifest/pkg/api/middleware"
	"github.com/goclaw/manifest/pkg/logger"
)

// Handlers holds all HTTP handlers. Nil handlers leave their routes
// unregistered.
type Handlers struct {
	// Chat serves the OpenAI-compatible proxy endpoint
	Chat *handlers.ChatHandler

	// Resolve serves dry-run routing decisions
	Resolve *handlers.ResolveHandler

	// Health handles health check endpoints
	Health *handlers.HealthHandler

	// Events streams routing decisions over websocket
	Events *handlers.WebSocketHandler

	// Auth authenticates agent requests. Nil leaves routes open.
	Auth middleware.Authenticator

	// RateLimit throttles authenticated agents
	RateLimit middleware.Limiter

	// Metrics is the optional metrics recorder
	Metrics middleware.MetricsRecorder

	// RateLimitMetrics observes rejected requests
	RateLimitMetrics middleware.RateLimitRecorder
}

// NewRouter creates a new chi router with middleware and routes.
func NewRouter(cfg *config.Config, log logger.Logger, h *Handlers) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID())
	if cfg.Tracing.Enabled {
		r.Use(middleware.Tracing(middleware.DefaultTracingOptions()))
	}
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))

	if h.Metrics != nil {
		r.Use(middleware.Metrics(h.Metrics))
	}

	r.Use(middleware.CORS(&cfg.Server.CORS))

	RegisterRoutes(r, cfg, log, h)

	return r
}

// RegisterRoutes registers all API routes.
func RegisterRoutes(r chi.Router, cfg *config.Config, log logger.Logger, h *Handlers) {
	agent := func(r chi.Router) {
		if h.Auth != nil {
			r.Use(middleware.Auth(h.Auth, log))
		}
		if h.RateLimit != nil {
			r.Use(middleware.RateLimit(h.RateLimit, h.RateLimitMetrics))
		}
	}

	// Streaming responses outlive the request timeout; the proxy is bounded
	// by the upstream timeout instead.
	if h.Chat != nil {
		r.Group(func(r chi.Router) {
			agent(r)
			r.Post("/v1/chat/completions", h.Chat.Completions)
		})
	}

	r.Route("/api/v1", func(r chi.Router) {
		agent(r)
		if cfg.Server.HTTP.RequestTimeout > 0 {
			r.Use(middleware.Timeout(cfg.Server.HTTP.RequestTimeout))
		}
		if h.Resolve != nil {
			r.Post("/resolve", h.Resolve.Resolve)
		}
	})

	if h.Events != nil && cfg.Server.WebSocket.Enabled {
		r.Group(func(r chi.Router) {
			if h.Auth != nil {
				r.Use(middleware.Auth(h.Auth, log))
			}
			r.Get("/ws/events", h.Events.ServeHTTP)
		})
	}

	// Health check routes (not versioned)
	if h.Health != nil {
		r.Get("/health", h.Health.Health)
		r.Get("/ready", h.Health.Ready)
		r.Get("/status", h.Health.Status)
	}

	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)
}
