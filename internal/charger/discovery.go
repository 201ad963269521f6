package charger

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/evroute/evroute/internal/fanout"
	"github.com/evroute/evroute/internal/places"
	"github.com/evroute/evroute/internal/routing"
	"github.com/evroute/evroute/pkg/polyline"
)

// Discovery defaults.
const (
	DefaultStride       = 5
	DefaultRadiusMeters = 10000
	DefaultKeyword      = "EV Charging Station"
)

// DiscoverOptions tunes a discovery run. Zero fields take the defaults.
type DiscoverOptions struct {
	// Stride samples every Nth route vertex, starting with the first.
	Stride       int
	RadiusMeters int
	Keyword      string
}

func (o DiscoverOptions) withDefaults() DiscoverOptions {
	if o.Stride <= 0 {
		o.Stride = DefaultStride
	}
	if o.RadiusMeters <= 0 {
		o.RadiusMeters = DefaultRadiusMeters
	}
	if o.Keyword == "" {
		o.Keyword = DefaultKeyword
	}
	return o
}

// Discovery is the merged result of one run.
type Discovery struct {
	Candidates     []Candidate
	SampledPoints  int
	FailedSearches int
	Duration       time.Duration
}

// DiscovererConfig configures a Discoverer.
type DiscovererConfig struct {
	Searcher    places.Searcher
	Concurrency int
	Defaults    DiscoverOptions
	Logger      zerolog.Logger
}

// Discoverer finds charging stations near a route.
type Discoverer struct {
	searcher    places.Searcher
	concurrency int
	defaults    DiscoverOptions
	logger      zerolog.Logger
}

// NewDiscoverer creates a Discoverer.
func NewDiscoverer(cfg DiscovererConfig) *Discoverer {
	return &Discoverer{
		searcher:    cfg.Searcher,
		concurrency: cfg.Concurrency,
		defaults:    cfg.Defaults.withDefaults(),
		logger:      cfg.Logger,
	}
}

// Defaults returns the options used when a run passes zero values.
func (d *Discoverer) Defaults() DiscoverOptions {
	return d.defaults
}

// Discover searches around every sampled vertex of geometry and merges the
// hits. Searches that fail contribute nothing; the only error returned is a
// cancelled context.
func (d *Discoverer) Discover(ctx context.Context, geometry []routing.Coordinate, opts DiscoverOptions) (*Discovery, error) {
	start := time.Now()
	opts = d.merge(opts)

	idx := polyline.Stride(len(geometry), opts.Stride)
	points := make([]routing.Coordinate, len(idx))
	for i, j := range idx {
		points[i] = geometry[j]
	}

	results := fanout.Run(ctx, points, d.concurrency, func(ctx context.Context, p routing.Coordinate) ([]places.Place, error) {
		return d.searcher.NearbySearch(ctx, places.NearbyRequest{
			Center:       p,
			RadiusMeters: opts.RadiusMeters,
			Keyword:      opts.Keyword,
		})
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Merge in sample order so "first occurrence" is reproducible.
	seen := make(map[string]struct{})
	candidates := make([]Candidate, 0)
	failed := 0
	for i, r := range results {
		if r.Err != nil {
			failed++
			d.logger.Warn().Err(r.Err).
				Int("sample", i).
				Str("center", points[i].String()).
				Msg("nearby search failed, skipping sample")
			continue
		}
		for _, p := range r.Value {
			c := FromPlace(p)
			key := c.DedupKey()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			candidates = append(candidates, c)
		}
	}

	out := &Discovery{
		Candidates:     candidates,
		SampledPoints:  len(points),
		FailedSearches: failed,
		Duration:       time.Since(start),
	}

	d.logger.Info().
		Int("route_points", len(geometry)).
		Int("sampled", out.SampledPoints).
		Int("failed", out.FailedSearches).
		Int("candidates", len(out.Candidates)).
		Dur("duration", out.Duration).
		Msg("charger discovery completed")

	return out, nil
}

func (d *Discoverer) merge(o DiscoverOptions) DiscoverOptions {
	if o.Stride <= 0 {
		o.Stride = d.defaults.Stride
	}
	if o.RadiusMeters <= 0 {
		o.RadiusMeters = d.defaults.RadiusMeters
	}
	if o.Keyword == "" {
		o.Keyword = d.defaults.Keyword
	}
	return o
}
