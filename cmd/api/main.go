// Package main provides the entrypoint for the EV route planner API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/evroute/evroute/internal/api"
	"github.com/evroute/evroute/internal/api/handler"
	"github.com/evroute/evroute/internal/api/middleware"
	"github.com/evroute/evroute/internal/auth"
	"github.com/evroute/evroute/internal/charger"
	"github.com/evroute/evroute/internal/config"
	"github.com/evroute/evroute/internal/database"
	"github.com/evroute/evroute/internal/distcache"
	"github.com/evroute/evroute/internal/optimizer"
	"github.com/evroute/evroute/internal/places/googleplaces"
	"github.com/evroute/evroute/internal/provider/resilience"
	"github.com/evroute/evroute/internal/routing"
	"github.com/evroute/evroute/internal/routing/googlemaps"
	"github.com/evroute/evroute/internal/routing/openrouteservice"
	"github.com/evroute/evroute/internal/telemetry"
	"github.com/evroute/evroute/internal/trip"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "evroute-api"

func main() {
	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(level)
	} else {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		log = log.Level(zerolog.InfoLevel)
	}

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Environment).
		Msg("starting EV route planner API")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry
	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTelEnabled,
		SampleRatio:    cfg.TraceSampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.OTelEnabled {
		log.Info().
			Str("otlp_endpoint", cfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize HTTP metrics")
	}
	providerMetrics, err := telemetry.NewProviderMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize provider metrics")
	}
	plannerMetrics, err := telemetry.NewPlannerMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize planner metrics")
	}

	registry := resilience.NewRegistry()
	checks := map[string]handler.DependencyCheck{}

	// Map providers. Geocoding and nearby search always use Google.
	google := googlemaps.NewClient(googlemaps.ClientConfig{
		APIKey:   cfg.GoogleMapsAPIKey,
		Timeout:  cfg.ProviderTimeout,
		Registry: registry,
		Logger:   log,
	})
	var provider routing.Provider = google
	if cfg.RoutingProvider == config.ProviderOpenRouteService {
		provider = openrouteservice.NewClient(openrouteservice.ClientConfig{
			APIKey:   cfg.ORSAPIKey,
			Timeout:  cfg.ProviderTimeout,
			Registry: registry,
			Logger:   log,
		})
	}
	placesClient := googleplaces.NewClient(googleplaces.ClientConfig{
		APIKey:            cfg.GoogleMapsAPIKey,
		Timeout:           cfg.ProviderTimeout,
		Registry:          registry,
		RequestsPerSecond: cfg.PlacesQPS,
		Logger:            log,
	})
	log.Info().
		Str("routing_provider", provider.Name()).
		Float64("places_qps", cfg.PlacesQPS).
		Msg("map providers initialized")

	distances, closeCache, err := openDistanceCache(ctx, cfg, checks)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.DistanceCache).Msg("failed to open distance cache")
	}
	defer closeCache()
	log.Info().
		Str("backend", cfg.DistanceCache).
		Dur("ttl", cfg.DistanceCacheTTL).
		Msg("distance cache ready")

	routingService := routing.NewService(routing.ServiceConfig{
		Provider:      provider,
		Geocoder:      google,
		DistanceCache: distances,
		FlightTimeout: cfg.ProviderTimeout,
		Metrics:       providerMetrics,
		Logger:        log,
	})

	discovery := charger.DiscoverOptions{
		Stride:       cfg.DiscoveryStride,
		RadiusMeters: cfg.DiscoveryRadiusMeters,
		Keyword:      cfg.DiscoveryKeyword,
	}
	discoverer := charger.NewDiscoverer(charger.DiscovererConfig{
		Searcher:    placesClient,
		Concurrency: cfg.FanoutConcurrency,
		Defaults:    discovery,
		Logger:      log,
	})
	annotator := charger.NewAnnotator(routingService, cfg.FanoutConcurrency, log)
	selector := optimizer.New(optimizer.Config{
		Distances:   routingService,
		Concurrency: cfg.FanoutConcurrency,
		Logger:      log,
	})

	catalog, err := trip.LoadCatalog(cfg.VehicleCatalogPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.VehicleCatalogPath).Msg("failed to load vehicle catalog")
	}

	store := trip.NewInMemoryStore(cfg.SessionTTL, log)
	go store.RunJanitor(ctx, time.Minute)

	planner := trip.NewPlanner(trip.PlannerConfig{
		Router:          routingService,
		Discoverer:      discoverer,
		Annotator:       annotator,
		Optimizer:       selector,
		Store:           store,
		Catalog:         catalog,
		FinalizeMode:    trip.FinalizeMode(cfg.FinalizeMode),
		MapsBaseURL:     cfg.MapsBaseURL,
		ProviderTimeout: cfg.ProviderTimeout,
		Discovery:       discovery,
		Metrics:         plannerMetrics,
		Logger:          log,
	})
	log.Info().
		Str("finalize_mode", cfg.FinalizeMode).
		Dur("session_ttl", cfg.SessionTTL).
		Msg("trip planner initialized")

	if cfg.SessionSigningKey == config.DevSigningKey {
		log.Warn().Msg("using default session signing key - not secure for production")
	}
	tokens := auth.NewJWTService(auth.JWTConfig{
		SigningKey: cfg.SessionSigningKey,
		Issuer:     "https://api.evroute.app",
		Audience:   serviceName,
		Expiry:     cfg.SessionTTL,
	})

	router := api.NewRouter(api.RouterConfig{
		Version:         Version,
		BuildTime:       BuildTime,
		Logger:          log,
		ServiceName:     serviceName,
		Metrics:         httpMetrics,
		RequireTLS:      cfg.RequireTLS,
		Planner:         planner,
		Tokens:          tokens,
		Registry:        registry,
		ReadinessChecks: checks,
	})

	// Planning fans out to many provider calls, so writes get more room
	// than plain CRUD would.
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}

// openDistanceCache builds the configured distance cache backend and
// registers a readiness check for it. The returned func releases it.
func openDistanceCache(ctx context.Context, cfg *config.Config, checks map[string]handler.DependencyCheck) (routing.DistanceCache, func(), error) {
	switch cfg.DistanceCache {
	case config.CacheRedis:
		client, err := distcache.OpenRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		checks["redis"] = func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}
		return distcache.NewRedis(client, cfg.DistanceCacheTTL), func() { _ = client.Close() }, nil

	case config.CachePostgres:
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		cache := distcache.NewPostgres(pool, cfg.DistanceCacheTTL)
		if err := cache.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		checks["database"] = pool.Ping
		return cache, pool.Close, nil

	default:
		return distcache.NewMemory(cfg.DistanceCacheTTL), func() {}, nil
	}
}
