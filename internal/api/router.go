// Package api provides the HTTP API for EV trip planning.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/evroute/evroute/internal/api/handler"
	"github.com/evroute/evroute/internal/api/middleware"
	"github.com/evroute/evroute/internal/auth"
	"github.com/evroute/evroute/internal/provider/resilience"
	"github.com/evroute/evroute/internal/trip"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	RequireTLS  bool

	Planner  *trip.Planner
	Tokens   *auth.JWTService
	Registry *resilience.Registry

	// ReadinessChecks are run by /v1/ops/ready and /v1/ops/status.
	ReadinessChecks map[string]handler.DependencyCheck

	// Rate limits; zero values use the package defaults.
	SessionCreateLimit middleware.RateLimitConfig
	ExpensiveLimit     middleware.RateLimitConfig
	StandardLimit      middleware.RateLimitConfig
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "evroute-api"
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

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Registry, cfg.ReadinessChecks)
	vehicleHandler := handler.NewVehicleHandler(cfg.Planner.Catalog())
	tripHandler := handler.NewTripHandler(cfg.Planner, cfg.Tokens, cfg.Logger)

	sessionAuth := middleware.SessionAuth(cfg.Tokens)

	createLimit := middleware.RateLimitByIP(orDefault(cfg.SessionCreateLimit, middleware.SessionCreateRateLimit))
	standardIPLimit := middleware.RateLimitByIP(orDefault(cfg.StandardLimit, middleware.StandardRateLimit))
	standardLimit := middleware.RateLimitBySession(orDefault(cfg.StandardLimit, middleware.StandardRateLimit))
	expensiveLimit := middleware.RateLimitBySession(orDefault(cfg.ExpensiveLimit, middleware.ExpensiveRateLimit))

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(standardIPLimit).Get("/status", opsHandler.SystemStatus)
		})

		r.With(standardIPLimit).Get("/vehicles/catalog", vehicleHandler.GetCatalog)

		r.Route("/trips", func(r chi.Router) {
			r.With(createLimit).Post("/", tripHandler.CreateTrip)

			// Everything below needs the session's bearer token
			r.Route("/{"+middleware.TripIDParam+"}", func(r chi.Router) {
				r.Use(sessionAuth)
				r.Use(middleware.RequireJSON)

				r.With(standardLimit).Get("/", tripHandler.GetTrip)
				r.With(standardLimit).Delete("/", tripHandler.DeleteTrip)
				r.With(standardLimit).Put("/vehicle", tripHandler.SetVehicle)
				r.With(standardLimit).Put("/selection", tripHandler.SelectCandidate)
				r.With(standardLimit).Post("/stops", tripHandler.AddStop)
				r.With(standardLimit).Post("/stops:apply-optimized", tripHandler.ApplyOptimized)

				// Provider fan-out
				r.With(expensiveLimit).Put("/route", tripHandler.PlanRoute)
				r.With(expensiveLimit).Post("/optimize", tripHandler.Optimize)
				r.With(expensiveLimit).Post("/finalize", tripHandler.Finalize)
			})
		})
	})

	return r
}

func orDefault(cfg, def middleware.RateLimitConfig) middleware.RateLimitConfig {
	if cfg.RequestLimit <= 0 || cfg.WindowLength <= 0 {
		return def
	}
	return cfg
}
