package routing

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/evroute/evroute/internal/telemetry"
)

// DistanceCache stores point-to-point legs between calls and across processes.
type DistanceCache interface {
	Get(ctx context.Context, from, to Coordinate) (Leg, bool, error)
	Set(ctx context.Context, from, to Coordinate, leg Leg) error
}

// ServiceConfig configures the routing Service.
type ServiceConfig struct {
	Provider Provider
	Geocoder Geocoder

	// DistanceCache is optional. Cache failures are logged and treated as misses.
	DistanceCache DistanceCache

	Metrics *telemetry.ProviderMetrics
	Logger  zerolog.Logger

	// CacheTTL is how long directions and geocodes stay fresh (default: 10 minutes).
	CacheTTL time.Duration

	// CacheGridSize quantizes coordinates in cache keys, in degrees (default: 0.0001, about 11 m).
	CacheGridSize float64

	// StaleIfErrorTTL allows serving stale directions on provider errors (default: 30 minutes).
	StaleIfErrorTTL time.Duration

	// CleanupInterval is how often expired entries are swept (default: 5 minutes).
	CleanupInterval time.Duration

	// FlightTimeout bounds a provider call shared by concurrent callers. The
	// call outlives any single caller, so it gets its own deadline
	// (default: 30 seconds).
	FlightTimeout time.Duration

	now func() time.Time
}

// Service is the routing gateway used by the planner. It adds validation,
// caching and request collapsing on top of a Provider and a Geocoder.
type Service struct {
	provider        Provider
	geocoder        Geocoder
	distances       DistanceCache
	metrics         *telemetry.ProviderMetrics
	logger          zerolog.Logger
	cacheTTL        time.Duration
	cacheGridSize   float64
	staleIfErrorTTL time.Duration
	cleanupInterval time.Duration
	flightTimeout   time.Duration
	now             func() time.Time

	flight singleflight.Group

	mu          sync.RWMutex
	directions  map[string]*cachedDirections
	geocodes    map[string]cachedGeocode
	lastCleanup time.Time
}

type cachedDirections struct {
	response  *DirectionsResponse
	fetchedAt time.Time
	expiresAt time.Time
}

type cachedGeocode struct {
	point     Coordinate
	expiresAt time.Time
}

// NewService builds a Service. Geocoder may be nil when the provider also geocodes.
func NewService(cfg ServiceConfig) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.CacheGridSize <= 0 {
		cfg.CacheGridSize = 0.0001
	}
	if cfg.StaleIfErrorTTL <= 0 {
		cfg.StaleIfErrorTTL = 30 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if cfg.FlightTimeout <= 0 {
		cfg.FlightTimeout = 30 * time.Second
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	if cfg.Geocoder == nil {
		if g, ok := cfg.Provider.(Geocoder); ok {
			cfg.Geocoder = g
		}
	}

	return &Service{
		provider:        cfg.Provider,
		geocoder:        cfg.Geocoder,
		distances:       cfg.DistanceCache,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
		cacheTTL:        cfg.CacheTTL,
		cacheGridSize:   cfg.CacheGridSize,
		staleIfErrorTTL: cfg.StaleIfErrorTTL,
		cleanupInterval: cfg.CleanupInterval,
		flightTimeout:   cfg.FlightTimeout,
		now:             cfg.now,
		directions:      make(map[string]*cachedDirections),
		geocodes:        make(map[string]cachedGeocode),
	}
}

// ProviderName returns the directions provider's name.
func (s *Service) ProviderName() string {
	return s.provider.Name()
}

// GetDirections returns a driving route, serving from cache when fresh and
// falling back to stale data when the provider fails.
func (s *Service) GetDirections(ctx context.Context, req DirectionsRequest) (*DirectionsResponse, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	key := s.directionsKey(req)

	s.mu.RLock()
	cached, ok := s.directions[key]
	s.mu.RUnlock()
	if ok && s.now().Before(cached.expiresAt) {
		s.metrics.RecordCacheHit(ctx, s.provider.Name(), "directions")
		s.logger.Debug().Str("cache_key", key).Msg("cache hit for directions")
		return cached.response, nil
	}
	s.metrics.RecordCacheMiss(ctx, s.provider.Name(), "directions")

	v, err := s.shared(ctx, "dir:"+key, func(ctx context.Context) (any, error) {
		return s.fetchDirections(ctx, req, key)
	})
	if err != nil {
		return nil, err
	}
	return v.(*DirectionsResponse), nil
}

func (s *Service) fetchDirections(ctx context.Context, req DirectionsRequest, key string) (*DirectionsResponse, error) {
	s.logger.Debug().
		Str("origin", req.Origin.String()).
		Str("destination", req.Destination.String()).
		Int("waypoints", len(req.Waypoints)).
		Str("provider", s.provider.Name()).
		Msg("fetching directions from provider")

	start := s.now()
	resp, err := s.provider.GetDirections(ctx, req)
	s.metrics.RecordRequest(ctx, s.provider.Name(), "directions", time.Since(start), err)

	if err != nil {
		s.logger.Error().Err(err).
			Str("origin", req.Origin.String()).
			Str("destination", req.Destination.String()).
			Msg("failed to fetch directions")

		s.mu.RLock()
		cached, ok := s.directions[key]
		s.mu.RUnlock()
		if ok && s.now().Before(cached.fetchedAt.Add(s.staleIfErrorTTL)) {
			s.logger.Warn().
				Time("fetched_at", cached.fetchedAt).
				Str("cache_key", key).
				Msg("serving stale directions due to provider error")
			return cached.response, nil
		}
		return nil, err
	}

	now := s.now()
	s.mu.Lock()
	s.directions[key] = &cachedDirections{
		response:  resp,
		fetchedAt: now,
		expiresAt: now.Add(s.cacheTTL),
	}
	s.cleanupLocked(now)
	s.mu.Unlock()

	return resp, nil
}

// Geocode resolves an address, caching successful lookups.
func (s *Service) Geocode(ctx context.Context, address string) (Coordinate, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return Coordinate{}, &Error{
			Provider: s.geocoderName(),
			Code:     "EMPTY_ADDRESS",
			Message:  "geocoding failed for empty address",
			Err:      ErrAddressNotFound,
		}
	}
	if s.geocoder == nil {
		return Coordinate{}, &Error{
			Provider: s.provider.Name(),
			Code:     "NO_GEOCODER",
			Message:  "no geocoder configured",
			Err:      ErrProviderUnavailable,
		}
	}

	key := strings.ToLower(address)
	s.mu.RLock()
	cached, ok := s.geocodes[key]
	s.mu.RUnlock()
	if ok && s.now().Before(cached.expiresAt) {
		s.metrics.RecordCacheHit(ctx, s.geocoder.Name(), "geocode")
		return cached.point, nil
	}
	s.metrics.RecordCacheMiss(ctx, s.geocoder.Name(), "geocode")

	v, err := s.shared(ctx, "geo:"+key, func(ctx context.Context) (any, error) {
		start := s.now()
		point, err := s.geocoder.Geocode(ctx, address)
		s.metrics.RecordRequest(ctx, s.geocoder.Name(), "geocode", time.Since(start), err)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.geocodes[key] = cachedGeocode{point: point, expiresAt: s.now().Add(s.cacheTTL)}
		s.mu.Unlock()
		return point, nil
	})
	if err != nil {
		return Coordinate{}, err
	}
	return v.(Coordinate), nil
}

// Distance returns the driving leg from one point to another. Identical
// concurrent queries share a single provider call.
func (s *Service) Distance(ctx context.Context, from, to Coordinate) (Leg, error) {
	if err := from.Validate(); err != nil {
		return Leg{}, s.invalid("INVALID_ORIGIN", "invalid origin coordinates")
	}
	if err := to.Validate(); err != nil {
		return Leg{}, s.invalid("INVALID_DESTINATION", "invalid destination coordinates")
	}

	if s.distances != nil {
		leg, ok, err := s.distances.Get(ctx, from, to)
		switch {
		case err != nil:
			s.logger.Warn().Err(err).Msg("distance cache read failed")
		case ok:
			s.metrics.RecordCacheHit(ctx, s.provider.Name(), "distance")
			return leg, nil
		}
		s.metrics.RecordCacheMiss(ctx, s.provider.Name(), "distance")
	}

	v, err := s.shared(ctx, "dist:"+PairKey(from, to), func(ctx context.Context) (any, error) {
		return s.fetchDistance(ctx, from, to)
	})
	if err != nil {
		return Leg{}, err
	}
	return v.(Leg), nil
}

// shared runs fn once for all concurrent callers of key. fn runs on a context
// detached from the caller that started it, bounded by the flight timeout, so
// one caller being cancelled never fails the others. Each caller still
// returns as soon as its own ctx is done.
func (s *Service) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := s.flight.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.flightTimeout)
		defer cancel()
		return fn(fctx)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) fetchDistance(ctx context.Context, from, to Coordinate) (Leg, error) {
	start := s.now()
	resp, err := s.provider.GetDirections(ctx, DirectionsRequest{
		Origin:      PointLocation(from),
		Destination: PointLocation(to),
	})
	s.metrics.RecordRequest(ctx, s.provider.Name(), "distance", time.Since(start), err)
	if err != nil {
		return Leg{}, err
	}
	if len(resp.Legs) == 0 {
		return Leg{}, &Error{
			Provider: s.provider.Name(),
			Code:     "NO_LEGS",
			Message:  "provider returned a route without legs",
			Err:      ErrNoRouteFound,
		}
	}

	leg := resp.Legs[0]
	if s.distances != nil {
		if err := s.distances.Set(ctx, from, to, leg); err != nil {
			s.logger.Warn().Err(err).Msg("distance cache write failed")
		}
	}
	return leg, nil
}

func (s *Service) validateRequest(req DirectionsRequest) error {
	if err := req.Origin.Validate(); err != nil {
		return s.invalid("INVALID_ORIGIN", "invalid origin")
	}
	if err := req.Destination.Validate(); err != nil {
		return s.invalid("INVALID_DESTINATION", "invalid destination")
	}
	for i, wp := range req.Waypoints {
		if err := wp.Validate(); err != nil {
			return s.invalid("INVALID_WAYPOINT", fmt.Sprintf("invalid waypoint %d", i))
		}
	}
	return nil
}

func (s *Service) invalid(code, msg string) error {
	return &Error{
		Provider: s.provider.Name(),
		Code:     code,
		Message:  msg,
		Err:      ErrInvalidCoordinates,
	}
}

func (s *Service) geocoderName() string {
	if s.geocoder != nil {
		return s.geocoder.Name()
	}
	return s.provider.Name()
}

// directionsKey quantizes coordinates to the cache grid; addresses are keyed
// case-insensitively.
func (s *Service) directionsKey(req DirectionsRequest) string {
	var b strings.Builder
	b.WriteString(s.locationKey(req.Origin))
	b.WriteByte('|')
	b.WriteString(s.locationKey(req.Destination))
	for _, wp := range req.Waypoints {
		b.WriteByte('|')
		b.WriteString(s.pointKey(wp))
	}
	return b.String()
}

func (s *Service) locationKey(l Location) string {
	if l.Point != nil {
		return s.pointKey(*l.Point)
	}
	return "addr:" + strings.ToLower(strings.TrimSpace(l.Address))
}

func (s *Service) pointKey(c Coordinate) string {
	lat := math.Floor(c.Lat/s.cacheGridSize) * s.cacheGridSize
	lon := math.Floor(c.Lon/s.cacheGridSize) * s.cacheGridSize
	return fmt.Sprintf("%.5f,%.5f", lat, lon)
}

// cleanupLocked drops entries past the stale window. Caller holds s.mu.
func (s *Service) cleanupLocked(now time.Time) {
	if now.Sub(s.lastCleanup) < s.cleanupInterval {
		return
	}
	s.lastCleanup = now

	expired := 0
	for key, c := range s.directions {
		if now.After(c.fetchedAt.Add(s.staleIfErrorTTL)) {
			delete(s.directions, key)
			expired++
		}
	}
	for key, g := range s.geocodes {
		if now.After(g.expiresAt) {
			delete(s.geocodes, key)
			expired++
		}
	}

	if expired > 0 {
		s.logger.Debug().Int("expired_entries", expired).Msg("cleaned up routing cache")
	}
}

// InvalidateCache clears the in-memory directions and geocode caches.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.directions = make(map[string]*cachedDirections)
	s.geocodes = make(map[string]cachedGeocode)
}

// CacheStats describes the in-memory caches.
type CacheStats struct {
	DirectionEntries int
	FreshDirections  int
	StaleDirections  int
	GeocodeEntries   int
	Provider         string
}

// CacheStats returns cache counters.
func (s *Service) CacheStats() CacheStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	stats := CacheStats{
		DirectionEntries: len(s.directions),
		GeocodeEntries:   len(s.geocodes),
		Provider:         s.provider.Name(),
	}
	for _, c := range s.directions {
		switch {
		case now.Before(c.expiresAt):
			stats.FreshDirections++
		case now.Before(c.fetchedAt.Add(s.staleIfErrorTTL)):
			stats.StaleDirections++
		}
	}
	return stats
}
