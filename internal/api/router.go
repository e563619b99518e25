// Package api provides the HTTP API for zipcast.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/zipcast/zipcast/internal/api/handler"
	"github.com/zipcast/zipcast/internal/api/middleware"
	"github.com/zipcast/zipcast/internal/provider/resilience"
	"github.com/zipcast/zipcast/internal/session"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	RequireTLS  bool
	Sessions    *session.Manager
	Registry    *resilience.Registry
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "zipcast-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement behind a proxy
	r.Use(middleware.ContentTypeJSON)            // JSON content type

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Registry, cfg.Sessions)
	sessionHandler := handler.NewSessionHandler(cfg.Sessions)

	createRateLimit := middleware.RateLimitByIP(middleware.SessionCreateRateLimit)   // 20 req/min per IP
	lookupRateLimit := middleware.RateLimitBySession(middleware.LookupRateLimit)     // 30 req/min per session
	standardRateLimit := middleware.RateLimitBySession(middleware.StandardRateLimit) // 100 req/min per session

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Use(middleware.RequireJSON)
			r.With(createRateLimit).Post("/", sessionHandler.CreateSession)

			r.Route("/{"+middleware.SessionIDParam+"}", func(r chi.Router) {
				r.With(standardRateLimit).Get("/", sessionHandler.GetSession)
				r.With(standardRateLimit).Delete("/", sessionHandler.DeleteSession)

				// These may reach the weather provider.
				r.With(lookupRateLimit).Put("/postal-code", sessionHandler.SetPostalCode)
				r.With(lookupRateLimit).Post("/position", sessionHandler.ReportPosition)
				r.With(lookupRateLimit).Put("/units", sessionHandler.SetUnits)
			})
		})
	})

	return r
}
