// Package main runs background maintenance for the shared distance cache.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/evroute/evroute/internal/api/response"
	"github.com/evroute/evroute/internal/config"
	"github.com/evroute/evroute/internal/database"
	"github.com/evroute/evroute/internal/distcache"
	"github.com/evroute/evroute/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", "evroute-worker").
		Str("version", Version).
		Logger()

	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(level)
	}

	log.Info().Str("build_time", BuildTime).Msg("starting worker")

	// Memory and Redis backends expire entries on their own.
	if cfg.DistanceCache != config.CachePostgres {
		log.Info().
			Str("backend", cfg.DistanceCache).
			Msg("distance cache needs no purging, exiting")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	cache := distcache.NewPostgres(pool, cfg.DistanceCacheTTL)
	if err := cache.EnsureSchema(ctx); err != nil {
		log.Error().Err(err).Msg("failed to ensure distance cache schema")
		return
	}

	job := worker.NewPurgeJob(cache, worker.DefaultPurgeConfig(), log)

	// Health endpoint for the container platform
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := "healthy"
		if err := pool.Ping(r.Context()); err != nil {
			status = "degraded"
		}
		response.JSON(w, r, http.StatusOK, map[string]interface{}{
			"status":  status,
			"version": Version,
			"purge":   job.MetricsSnapshot(),
		})
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	job.Run(ctx)

	log.Info().Msg("shutting down worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
