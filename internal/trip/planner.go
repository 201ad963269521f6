package trip

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/evroute/evroute/internal/charger"
	"github.com/evroute/evroute/internal/optimizer"
	"github.com/evroute/evroute/internal/routing"
	"github.com/evroute/evroute/internal/telemetry"
)

// Router resolves addresses and computes routes.
type Router interface {
	Geocode(ctx context.Context, address string) (routing.Coordinate, error)
	GetDirections(ctx context.Context, req routing.DirectionsRequest) (*routing.DirectionsResponse, error)
}

// Discoverer finds charging candidates along a route.
type Discoverer interface {
	Discover(ctx context.Context, geometry []routing.Coordinate, opts charger.DiscoverOptions) (*charger.Discovery, error)
}

// Annotator fills origin distance and time on candidates.
type Annotator interface {
	Annotate(ctx context.Context, origin routing.Coordinate, candidates []charger.Candidate) []charger.Candidate
}

// Optimizer selects stops within the vehicle range.
type Optimizer interface {
	Optimize(ctx context.Context, in optimizer.Input) (*optimizer.Result, error)
}

// PlannerConfig configures a Planner.
type PlannerConfig struct {
	Router     Router
	Discoverer Discoverer
	Annotator  Annotator
	Optimizer  Optimizer
	Store      Store

	// Catalog validates vehicles. Nil accepts any vehicle with a positive range.
	Catalog *Catalog

	// FinalizeMode is used when a finalize request names no mode (default: deeplink).
	FinalizeMode FinalizeMode
	MapsBaseURL  string

	// ProviderTimeout bounds each geocode and directions call. Zero disables it.
	ProviderTimeout time.Duration

	Discovery charger.DiscoverOptions
	Metrics   *telemetry.PlannerMetrics
	Logger    zerolog.Logger

	now   func() time.Time
	newID func() string
}

// Planner runs planning sessions end to end.
type Planner struct {
	router       Router
	discoverer   Discoverer
	annotator    Annotator
	optimizer    Optimizer
	store        Store
	catalog      *Catalog
	finalizeMode FinalizeMode
	mapsBaseURL  string
	timeout      time.Duration
	discovery    charger.DiscoverOptions
	metrics      *telemetry.PlannerMetrics
	logger       zerolog.Logger
	tracer       trace.Tracer
	now          func() time.Time
	newID        func() string
}

// NewPlanner creates a Planner.
func NewPlanner(cfg PlannerConfig) *Planner {
	if cfg.FinalizeMode == "" {
		cfg.FinalizeMode = FinalizeDeepLink
	}
	if cfg.MapsBaseURL == "" {
		cfg.MapsBaseURL = DefaultMapsBaseURL
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	if cfg.newID == nil {
		cfg.newID = func() string { return "trp_" + uuid.NewString() }
	}
	return &Planner{
		router:       cfg.Router,
		discoverer:   cfg.Discoverer,
		annotator:    cfg.Annotator,
		optimizer:    cfg.Optimizer,
		store:        cfg.Store,
		catalog:      cfg.Catalog,
		finalizeMode: cfg.FinalizeMode,
		mapsBaseURL:  cfg.MapsBaseURL,
		timeout:      cfg.ProviderTimeout,
		discovery:    cfg.Discovery,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		tracer:       telemetry.Tracer("github.com/evroute/evroute/internal/trip"),
		now:          cfg.now,
		newID:        cfg.newID,
	}
}

// Catalog returns the vehicle catalog, or nil.
func (p *Planner) Catalog() *Catalog {
	return p.catalog
}

// CreateSession starts an empty session.
func (p *Planner) CreateSession(ctx context.Context) (Snapshot, error) {
	s := newSession(p.newID(), p.now())
	if err := p.store.Create(ctx, s); err != nil {
		return Snapshot{}, fmt.Errorf("create session: %w", err)
	}
	p.logger.Debug().Str("trip_id", s.id).Msg("trip session created")

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), nil
}

// Session returns a snapshot of a session.
func (p *Planner) Session(ctx context.Context, id string) (Snapshot, error) {
	s, err := p.store.Get(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), nil
}

// DeleteSession drops a session and cancels its in-flight runs.
func (p *Planner) DeleteSession(ctx context.Context, id string) error {
	if _, err := p.store.Get(ctx, id); err != nil {
		return err
	}
	return p.store.Delete(ctx, id)
}

type planResult struct {
	origin      routing.Coordinate
	destination routing.Coordinate
	route       *Route
	candidates  []charger.Candidate
}

// PlanTrip geocodes both addresses, routes between them, discovers chargers
// along the route and annotates them. The session is updated only when every
// stage finished and no newer PlanTrip was issued meanwhile; the optimized
// result, the ledger and the selection are reset.
func (p *Planner) PlanTrip(ctx context.Context, id, originAddress, destinationAddress string) (Snapshot, error) {
	ctx, span := p.tracer.Start(ctx, "trip.PlanTrip", trace.WithAttributes(attribute.String("trip.id", id)))
	defer span.End()

	originAddress = strings.TrimSpace(originAddress)
	destinationAddress = strings.TrimSpace(destinationAddress)
	if originAddress == "" || destinationAddress == "" {
		return Snapshot{}, fmt.Errorf("%w: origin and destination are required", ErrGeocodeFailed)
	}

	s, err := p.store.Get(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	if s.finalized != nil {
		s.mu.Unlock()
		return Snapshot{}, ErrSessionFinalized
	}
	s.planSeq++
	seq := s.planSeq
	if s.planCancel != nil {
		s.planCancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.planCancel = cancel
	s.mu.Unlock()
	defer cancel()

	res, err := p.plan(runCtx, originAddress, destinationAddress)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalized != nil {
		return Snapshot{}, ErrSessionFinalized
	}
	if seq != s.planSeq {
		p.metrics.RecordSuperseded(ctx, "plan")
		p.logger.Debug().Str("trip_id", id).Uint64("seq", seq).Msg("plan result discarded")
		return Snapshot{}, ErrSuperseded
	}
	s.planCancel = nil
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Snapshot{}, err
	}

	s.originAddress = originAddress
	s.destinationAddress = destinationAddress
	s.origin = &res.origin
	s.destination = &res.destination
	s.route = res.route
	s.candidates = res.candidates
	s.optimized = nil
	s.ledger = Ledger{}
	s.selected = nil
	s.touchLocked(p.now())

	// An optimize run still in flight was working on the previous candidates.
	s.optSeq++
	if s.optCancel != nil {
		s.optCancel()
		s.optCancel = nil
	}

	span.SetAttributes(attribute.Int("trip.candidates", len(res.candidates)))
	p.logger.Info().
		Str("trip_id", id).
		Int("route_points", len(res.route.Geometry)).
		Int("distance_m", res.route.TotalDistanceMeters).
		Int("candidates", len(res.candidates)).
		Msg("trip planned")

	return s.snapshotLocked(), nil
}

func (p *Planner) plan(ctx context.Context, originAddress, destinationAddress string) (*planResult, error) {
	res := &planResult{}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := p.geocode(gctx, originAddress)
		res.origin = c
		return err
	})
	g.Go(func() error {
		c, err := p.geocode(gctx, destinationAddress)
		res.destination = c
		return err
	})
	err := g.Wait()
	p.metrics.RecordStage(ctx, "geocode", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	start = time.Now()
	callCtx, cancel := p.callContext(ctx)
	resp, err := p.router.GetDirections(callCtx, routing.DirectionsRequest{
		Origin:      routing.PointLocation(res.origin),
		Destination: routing.PointLocation(res.destination),
	})
	cancel()
	p.metrics.RecordStage(ctx, "route", time.Since(start), err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", ErrRouteFailed, err)
	}
	res.route = newRoute(resp)

	start = time.Now()
	found, err := p.discoverer.Discover(ctx, resp.Geometry, p.discovery)
	p.metrics.RecordStage(ctx, "discover", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	p.metrics.RecordCandidates(ctx, len(found.Candidates))

	start = time.Now()
	res.candidates = p.annotator.Annotate(ctx, res.origin, found.Candidates)
	p.metrics.RecordStage(ctx, "annotate", time.Since(start), ctx.Err())
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func (p *Planner) geocode(ctx context.Context, address string) (routing.Coordinate, error) {
	callCtx, cancel := p.callContext(ctx)
	defer cancel()
	c, err := p.router.Geocode(callCtx, address)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return routing.Coordinate{}, ctxErr
		}
		return routing.Coordinate{}, fmt.Errorf("%w: %q: %w", ErrGeocodeFailed, address, err)
	}
	return c, nil
}

func (p *Planner) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

// SetVehicle validates v against the catalog and stores it. Any optimized
// result is discarded since it was computed for the previous range.
func (p *Planner) SetVehicle(ctx context.Context, id string, v VehicleProfile) (Snapshot, error) {
	resolved, err := p.resolveVehicle(v)
	if err != nil {
		return Snapshot{}, err
	}

	return p.update(ctx, id, func(s *Session) error {
		s.vehicle = &resolved
		s.optimized = nil
		s.optSeq++
		if s.optCancel != nil {
			s.optCancel()
			s.optCancel = nil
		}
		return nil
	})
}

func (p *Planner) resolveVehicle(v VehicleProfile) (VehicleProfile, error) {
	if p.catalog != nil {
		return p.catalog.Resolve(v)
	}
	if v.RangeKm <= 0 {
		return VehicleProfile{}, fmt.Errorf("%w: range must be positive", ErrInvalidVehicle)
	}
	return v, nil
}

// Optimize runs the stop selector over the current candidates. Only the
// latest Optimize call for a session may commit its result.
func (p *Planner) Optimize(ctx context.Context, id string) (Snapshot, error) {
	ctx, span := p.tracer.Start(ctx, "trip.Optimize", trace.WithAttributes(attribute.String("trip.id", id)))
	defer span.End()

	s, err := p.store.Get(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	switch {
	case s.finalized != nil:
		s.mu.Unlock()
		return Snapshot{}, ErrSessionFinalized
	case s.route == nil:
		s.mu.Unlock()
		return Snapshot{}, ErrTripNotPlanned
	case s.vehicle == nil:
		s.mu.Unlock()
		return Snapshot{}, ErrVehicleRequired
	}
	in := optimizer.Input{
		Origin:      *s.origin,
		Destination: *s.destination,
		RangeKm:     s.vehicle.RangeKm,
		Candidates:  append([]charger.Candidate{}, s.candidates...),
	}
	s.optSeq++
	seq := s.optSeq
	if s.optCancel != nil {
		s.optCancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.optCancel = cancel
	s.mu.Unlock()
	defer cancel()

	start := time.Now()
	res, err := p.optimizer.Optimize(runCtx, in)
	p.metrics.RecordStage(ctx, "optimize", time.Since(start), err)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalized != nil {
		return Snapshot{}, ErrSessionFinalized
	}
	if seq != s.optSeq {
		p.metrics.RecordSuperseded(ctx, "optimize")
		return Snapshot{}, ErrSuperseded
	}
	s.optCancel = nil
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Snapshot{}, err
	}

	s.optimized = res
	s.touchLocked(p.now())
	p.metrics.RecordOutcome(ctx, string(res.Outcome), len(res.Stops))
	span.SetAttributes(
		attribute.String("optimizer.outcome", string(res.Outcome)),
		attribute.Int("optimizer.stops", len(res.Stops)),
	)
	return s.snapshotLocked(), nil
}

// SelectCandidate marks a candidate or stop for detail display. An empty
// candidateID clears the selection.
func (p *Planner) SelectCandidate(ctx context.Context, id, candidateID string) (Snapshot, error) {
	return p.update(ctx, id, func(s *Session) error {
		if candidateID == "" {
			s.selected = nil
			return nil
		}
		c, ok := s.findLocked(candidateID)
		if !ok {
			return ErrCandidateNotFound
		}
		s.selected = &c
		return nil
	})
}

// AddStop appends a discovered candidate to the ledger. Adding a candidate
// that is already a stop leaves the ledger unchanged; added reports which
// case applied.
func (p *Planner) AddStop(ctx context.Context, id, candidateID string) (snap Snapshot, added bool, err error) {
	snap, err = p.update(ctx, id, func(s *Session) error {
		for _, c := range s.candidates {
			if c.ID == candidateID {
				added = s.ledger.Add(c)
				return nil
			}
		}
		if s.ledger.Contains(candidateID) {
			return nil
		}
		return ErrCandidateNotFound
	})
	return snap, added, err
}

// ApplyOptimized replaces the ledger with the optimizer's stops.
func (p *Planner) ApplyOptimized(ctx context.Context, id string) (Snapshot, error) {
	return p.update(ctx, id, func(s *Session) error {
		if s.optimized == nil {
			return ErrNotOptimized
		}
		s.ledger.Replace(s.optimized.Stops)
		return nil
	})
}

// Finalize commits the trip. In recompute mode the route is requested again
// with the stops as ordered waypoints; in deeplink mode a maps URL is built.
// Either way the session becomes read-only and its candidates are cleared.
func (p *Planner) Finalize(ctx context.Context, id string, mode FinalizeMode) (Snapshot, error) {
	ctx, span := p.tracer.Start(ctx, "trip.Finalize", trace.WithAttributes(attribute.String("trip.id", id)))
	defer span.End()

	if mode == "" {
		mode = p.finalizeMode
	}
	if !mode.Valid() {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrInvalidFinalizeMode, mode)
	}
	span.SetAttributes(attribute.String("trip.finalize_mode", string(mode)))

	s, err := p.store.Get(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	if s.finalized != nil {
		s.mu.Unlock()
		return Snapshot{}, ErrSessionFinalized
	}
	if s.route == nil {
		s.mu.Unlock()
		return Snapshot{}, ErrTripNotPlanned
	}
	version := s.version
	origin, destination := *s.origin, *s.destination
	originAddress, destinationAddress := s.originAddress, s.destinationAddress
	stops := s.ledger.Stops()
	s.mu.Unlock()

	fin := &Finalization{Mode: mode}
	switch mode {
	case FinalizeRecompute:
		waypoints := make([]routing.Coordinate, len(stops))
		for i, st := range stops {
			waypoints[i] = st.Location
		}
		start := time.Now()
		callCtx, cancel := p.callContext(ctx)
		resp, err := p.router.GetDirections(callCtx, routing.DirectionsRequest{
			Origin:      routing.PointLocation(origin),
			Destination: routing.PointLocation(destination),
			Waypoints:   waypoints,
		})
		cancel()
		p.metrics.RecordStage(ctx, "finalize", time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Snapshot{}, ctxErr
			}
			return Snapshot{}, fmt.Errorf("%w: %w", ErrRouteFailed, err)
		}
		fin.Route = newRoute(resp)
	case FinalizeDeepLink:
		fin.DeepLink = DeepLink(p.mapsBaseURL, originAddress, destinationAddress, stops)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized != nil {
		return Snapshot{}, ErrSessionFinalized
	}
	if s.version != version {
		return Snapshot{}, ErrSuperseded
	}

	now := p.now()
	fin.FinalizedAt = now
	s.finalized = fin
	if fin.Route != nil {
		s.route = fin.Route
	}
	s.candidates = []charger.Candidate{}
	s.selected = nil
	s.cancelRunsLocked()
	s.touchLocked(now)

	p.logger.Info().
		Str("trip_id", id).
		Str("mode", string(mode)).
		Int("stops", len(stops)).
		Msg("trip finalized")

	return s.snapshotLocked(), nil
}

// update applies fn to a non-finalized session under its lock.
func (p *Planner) update(ctx context.Context, id string, fn func(*Session) error) (Snapshot, error) {
	s, err := p.store.Get(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized != nil {
		return Snapshot{}, ErrSessionFinalized
	}
	if err := fn(s); err != nil {
		return Snapshot{}, err
	}
	s.touchLocked(p.now())
	return s.snapshotLocked(), nil
}
