// Package config loads service configuration from the environment, after
// merging an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/evroute/evroute/internal/database"
	"github.com/evroute/evroute/internal/distcache"
)

// DevSigningKey is used for session tokens when none is configured outside production.
const DevSigningKey = "local-dev-signing-key-change-in-production"

// Routing providers.
const (
	ProviderGoogleMaps       = "googlemaps"
	ProviderOpenRouteService = "openrouteservice"
)

// Distance cache backends.
const (
	CacheMemory   = "memory"
	CacheRedis    = "redis"
	CachePostgres = "postgres"
)

// Config is the full service configuration.
type Config struct {
	Port        string
	Environment string
	LogLevel    string

	OTelEnabled      bool
	OTLPEndpoint     string
	TraceSampleRatio float64

	RoutingProvider  string
	GoogleMapsAPIKey string
	ORSAPIKey        string

	// PlacesQPS throttles nearby searches.
	PlacesQPS       float64
	ProviderTimeout time.Duration

	FanoutConcurrency     int
	DiscoveryStride       int
	DiscoveryRadiusMeters int
	DiscoveryKeyword      string

	FinalizeMode string
	MapsBaseURL  string

	DistanceCache    string
	DistanceCacheTTL time.Duration
	Redis            distcache.RedisConfig
	Database         database.Config

	SessionSigningKey  string
	SessionTTL         time.Duration
	VehicleCatalogPath string
	RequireTLS         bool
}

// Load reads envFile if it exists, then the process environment. Variables
// already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	p := &parser{}
	cfg := &Config{
		Port:        getEnvOrDefault("APP_PORT", "8080"),
		Environment: getEnvOrDefault("APP_ENV", "development"),
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),

		OTelEnabled:      p.bool("OTEL_ENABLED", false),
		OTLPEndpoint:     getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		TraceSampleRatio: p.float("OTEL_TRACE_SAMPLE_RATIO", 1),

		RoutingProvider:  strings.ToLower(getEnvOrDefault("ROUTING_PROVIDER", ProviderGoogleMaps)),
		GoogleMapsAPIKey: os.Getenv("GOOGLE_MAPS_API_KEY"),
		ORSAPIKey:        os.Getenv("ORS_API_KEY"),
		PlacesQPS:        p.float("PLACES_QPS", 10),
		ProviderTimeout:  p.duration("PROVIDER_TIMEOUT", 10*time.Second),

		FanoutConcurrency:     p.int("FANOUT_CONCURRENCY", 8),
		DiscoveryStride:       p.int("DISCOVERY_STRIDE", 5),
		DiscoveryRadiusMeters: p.int("DISCOVERY_RADIUS_METERS", 10000),
		DiscoveryKeyword:      getEnvOrDefault("DISCOVERY_KEYWORD", "EV Charging Station"),

		FinalizeMode: strings.ToLower(getEnvOrDefault("FINALIZE_MODE", "deeplink")),
		MapsBaseURL:  getEnvOrDefault("MAPS_BASE_URL", "https://www.google.com/maps/dir/"),

		DistanceCache:    strings.ToLower(getEnvOrDefault("DISTANCE_CACHE", CacheMemory)),
		DistanceCacheTTL: p.duration("DISTANCE_CACHE_TTL", 24*time.Hour),
		Redis:            distcache.RedisConfigFromEnv(),
		Database:         database.ConfigFromEnv(),

		SessionSigningKey:  getEnvOrDefault("SESSION_SIGNING_KEY", DevSigningKey),
		SessionTTL:         p.duration("SESSION_TTL", 2*time.Hour),
		VehicleCatalogPath: os.Getenv("VEHICLE_CATALOG_PATH"),
		RequireTLS:         p.bool("REQUIRE_TLS", false),
	}
	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Validate checks value ranges and cross-field requirements.
func (c *Config) Validate() error {
	var errs []error

	switch c.RoutingProvider {
	case ProviderGoogleMaps:
	case ProviderOpenRouteService:
		if c.ORSAPIKey == "" {
			errs = append(errs, errors.New("ORS_API_KEY is required when ROUTING_PROVIDER=openrouteservice"))
		}
	default:
		errs = append(errs, fmt.Errorf("ROUTING_PROVIDER must be %s or %s, got %q", ProviderGoogleMaps, ProviderOpenRouteService, c.RoutingProvider))
	}
	// Nearby search always goes through Google Places.
	if c.GoogleMapsAPIKey == "" {
		errs = append(errs, errors.New("GOOGLE_MAPS_API_KEY is required"))
	}

	switch c.DistanceCache {
	case CacheMemory, CacheRedis, CachePostgres:
	default:
		errs = append(errs, fmt.Errorf("DISTANCE_CACHE must be memory, redis or postgres, got %q", c.DistanceCache))
	}
	if c.FinalizeMode != "recompute" && c.FinalizeMode != "deeplink" {
		errs = append(errs, fmt.Errorf("FINALIZE_MODE must be recompute or deeplink, got %q", c.FinalizeMode))
	}

	if c.PlacesQPS <= 0 {
		errs = append(errs, errors.New("PLACES_QPS must be positive"))
	}
	if c.ProviderTimeout <= 0 {
		errs = append(errs, errors.New("PROVIDER_TIMEOUT must be positive"))
	}
	if c.FanoutConcurrency <= 0 {
		errs = append(errs, errors.New("FANOUT_CONCURRENCY must be positive"))
	}
	if c.DiscoveryStride <= 0 {
		errs = append(errs, errors.New("DISCOVERY_STRIDE must be positive"))
	}
	if c.DiscoveryRadiusMeters <= 0 || c.DiscoveryRadiusMeters > 50000 {
		errs = append(errs, errors.New("DISCOVERY_RADIUS_METERS must be between 1 and 50000"))
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		errs = append(errs, errors.New("OTEL_TRACE_SAMPLE_RATIO must be between 0 and 1"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.IsProduction() && c.SessionSigningKey == DevSigningKey {
		errs = append(errs, errors.New("SESSION_SIGNING_KEY must be set in production"))
	}

	return errors.Join(errs...)
}

// parser collects conversion errors so all bad keys are reported at once.
type parser struct {
	errs []error
}

func (p *parser) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func (p *parser) bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
