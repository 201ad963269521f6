package trip

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evroute/evroute/internal/charger"
	"github.com/evroute/evroute/internal/optimizer"
	"github.com/evroute/evroute/internal/places"
	"github.com/evroute/evroute/internal/routing"
)

var (
	amsterdam = routing.Coordinate{Lat: 52.37, Lon: 4.89}
	paris     = routing.Coordinate{Lat: 48.85, Lon: 2.35}
)

type fakeRouter struct {
	mu         sync.Mutex
	geocodes   map[string]routing.Coordinate
	geocodeErr error
	routeErr   error
	requests   []routing.DirectionsRequest
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{geocodes: map[string]routing.Coordinate{"Amsterdam": amsterdam, "Paris": paris}}
}

func (f *fakeRouter) Geocode(_ context.Context, address string) (routing.Coordinate, error) {
	if f.geocodeErr != nil {
		return routing.Coordinate{}, f.geocodeErr
	}
	c, ok := f.geocodes[address]
	if !ok {
		return routing.Coordinate{}, &routing.Error{Provider: "fake", Code: "NOT_FOUND", Err: routing.ErrAddressNotFound}
	}
	return c, nil
}

func (f *fakeRouter) GetDirections(_ context.Context, req routing.DirectionsRequest) (*routing.DirectionsResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.routeErr != nil {
		return nil, f.routeErr
	}
	legs := make([]routing.Leg, len(req.Waypoints)+1)
	for i := range legs {
		legs[i] = routing.Leg{DistanceMeters: 500000 / len(legs), DurationSeconds: 18000 / len(legs)}
	}
	return &routing.DirectionsResponse{
		Geometry: []routing.Coordinate{*req.Origin.Point, {Lat: 50.5, Lon: 3.5}, *req.Destination.Point},
		Legs:     legs,
		Provider: "fake",
	}, nil
}

func (f *fakeRouter) lastRequest() routing.DirectionsRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type fakeDiscoverer struct {
	candidates []charger.Candidate
	// block, when set, holds the first call until its context is cancelled.
	block   bool
	started chan struct{}

	mu    sync.Mutex
	calls int
}

func (f *fakeDiscoverer) Discover(ctx context.Context, _ []routing.Coordinate, _ charger.DiscoverOptions) (*charger.Discovery, error) {
	f.mu.Lock()
	f.calls++
	first := f.calls == 1
	f.mu.Unlock()
	if f.block && first {
		close(f.started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &charger.Discovery{Candidates: append([]charger.Candidate{}, f.candidates...)}, nil
}

type passAnnotator struct{}

func (passAnnotator) Annotate(_ context.Context, _ routing.Coordinate, c []charger.Candidate) []charger.Candidate {
	out := make([]charger.Candidate, len(c))
	for i, x := range c {
		x.DistanceFromOrigin = "1 km"
		x.TimeFromOrigin = "1 min"
		out[i] = x
	}
	return out
}

type fakeOptimizer struct {
	block   bool
	started chan struct{}

	mu     sync.Mutex
	calls  int
	inputs []optimizer.Input
}

func (f *fakeOptimizer) Optimize(ctx context.Context, in optimizer.Input) (*optimizer.Result, error) {
	f.mu.Lock()
	f.calls++
	first := f.calls == 1
	f.inputs = append(f.inputs, in)
	f.mu.Unlock()
	if f.block && first {
		close(f.started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	stops := in.Candidates
	if len(stops) > 2 {
		stops = stops[len(stops)-2:]
	}
	return &optimizer.Result{Stops: stops, Outcome: optimizer.OutcomeDone}, nil
}

type fixture struct {
	planner    *Planner
	router     *fakeRouter
	discoverer *fakeDiscoverer
	optimizer  *fakeOptimizer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		router: newFakeRouter(),
		discoverer: &fakeDiscoverer{candidates: []charger.Candidate{
			stop("c1", 51.9, 4.4), stop("c2", 51.2, 4.4), stop("c3", 50.6, 3.1),
		}},
		optimizer: &fakeOptimizer{},
	}
	f.planner = NewPlanner(PlannerConfig{
		Router:          f.router,
		Discoverer:      f.discoverer,
		Annotator:       passAnnotator{},
		Optimizer:       f.optimizer,
		Store:           NewInMemoryStore(time.Hour, zerolog.Nop()),
		Catalog:         DefaultCatalog(),
		ProviderTimeout: time.Second,
		Logger:          zerolog.Nop(),
	})
	return f
}

func (f *fixture) planned(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	snap, err := f.planner.CreateSession(ctx)
	require.NoError(t, err)
	_, err = f.planner.PlanTrip(ctx, snap.ID, "Amsterdam", "Paris")
	require.NoError(t, err)
	return snap.ID
}

func TestPlanner_CreateSession(t *testing.T) {
	f := newFixture(t)
	snap, err := f.planner.CreateSession(context.Background())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(snap.ID, "trp_"))
	assert.Empty(t, snap.Candidates)
	assert.Empty(t, snap.Stops)
	assert.Nil(t, snap.Route)

	_, err = f.planner.Session(context.Background(), "trp_missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestPlanner_PlanTrip(t *testing.T) {
	f := newFixture(t)
	id := f.planned(t)

	snap, err := f.planner.Session(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Amsterdam", snap.OriginAddress)
	assert.Equal(t, amsterdam, *snap.Origin)
	assert.Equal(t, paris, *snap.Destination)
	require.NotNil(t, snap.Route)
	assert.Equal(t, 500000, snap.Route.TotalDistanceMeters)
	assert.Equal(t, "500 km", snap.Route.TotalDistanceText)
	assert.Equal(t, "5 hours", snap.Route.TotalDurationText)
	assert.Equal(t, []string{"c1", "c2", "c3"}, stopIDs(snap.Candidates))
	assert.Equal(t, "1 km", snap.Candidates[0].DistanceFromOrigin)

	req := f.router.lastRequest()
	assert.Equal(t, amsterdam, *req.Origin.Point)
	assert.Empty(t, req.Waypoints)
}

func TestPlanner_PlanTripGeocodeFailure(t *testing.T) {
	f := newFixture(t)
	snap, err := f.planner.CreateSession(context.Background())
	require.NoError(t, err)

	_, err = f.planner.PlanTrip(context.Background(), snap.ID, "Atlantis", "Paris")
	assert.ErrorIs(t, err, ErrGeocodeFailed)
	assert.ErrorIs(t, err, routing.ErrAddressNotFound)

	_, err = f.planner.PlanTrip(context.Background(), snap.ID, "  ", "Paris")
	assert.ErrorIs(t, err, ErrGeocodeFailed)

	got, _ := f.planner.Session(context.Background(), snap.ID)
	assert.Nil(t, got.Route)
}

func TestPlanner_PlanTripRouteFailure(t *testing.T) {
	f := newFixture(t)
	f.router.routeErr = &routing.Error{Provider: "fake", Code: "ZERO_RESULTS", Err: routing.ErrNoRouteFound}
	snap, err := f.planner.CreateSession(context.Background())
	require.NoError(t, err)

	_, err = f.planner.PlanTrip(context.Background(), snap.ID, "Amsterdam", "Paris")
	assert.ErrorIs(t, err, ErrRouteFailed)
	assert.ErrorIs(t, err, routing.ErrNoRouteFound)
}

func TestPlanner_ReplanResetsDerivedState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.planned(t)

	_, err := f.planner.SetVehicle(ctx, id, VehicleProfile{Brand: "Tesla", Model: "Model 3", RangeKm: 200})
	require.NoError(t, err)
	_, err = f.planner.Optimize(ctx, id)
	require.NoError(t, err)
	_, _, err = f.planner.AddStop(ctx, id, "c1")
	require.NoError(t, err)
	_, err = f.planner.SelectCandidate(ctx, id, "c2")
	require.NoError(t, err)

	snap, err := f.planner.PlanTrip(ctx, id, "Paris", "Amsterdam")
	require.NoError(t, err)
	assert.Nil(t, snap.Optimized)
	assert.Empty(t, snap.Stops)
	assert.Nil(t, snap.Selected)
	require.NotNil(t, snap.Vehicle)
	assert.Equal(t, paris, *snap.Origin)
}

func TestPlanner_SetVehicle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.planned(t)

	snap, err := f.planner.SetVehicle(ctx, id, VehicleProfile{Brand: "hyundai", Model: "ioniq 5"})
	require.NoError(t, err)
	assert.Equal(t, &VehicleProfile{Brand: "Hyundai", Model: "Ioniq 5", RangeKm: 450}, snap.Vehicle)

	_, err = f.planner.SetVehicle(ctx, id, VehicleProfile{Brand: "Hyundai", Model: "Pony", RangeKm: 100})
	assert.ErrorIs(t, err, ErrInvalidVehicle)

	_, err = f.planner.Optimize(ctx, id)
	require.NoError(t, err)
	snap, err = f.planner.SetVehicle(ctx, id, VehicleProfile{Brand: "Hyundai", Model: "Ioniq 5", RangeKm: 300})
	require.NoError(t, err)
	assert.Nil(t, snap.Optimized)
}

func TestPlanner_OptimizePreconditions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	snap, err := f.planner.CreateSession(ctx)
	require.NoError(t, err)
	_, err = f.planner.Optimize(ctx, snap.ID)
	assert.ErrorIs(t, err, ErrTripNotPlanned)

	id := f.planned(t)
	_, err = f.planner.Optimize(ctx, id)
	assert.ErrorIs(t, err, ErrVehicleRequired)
}

func TestPlanner_OptimizeAndApply(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.planned(t)

	_, err := f.planner.ApplyOptimized(ctx, id)
	assert.ErrorIs(t, err, ErrNotOptimized)

	_, err = f.planner.SetVehicle(ctx, id, VehicleProfile{Brand: "Nissan", Model: "Leaf", RangeKm: 150})
	require.NoError(t, err)

	snap, err := f.planner.Optimize(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, snap.Optimized)
	assert.Equal(t, optimizer.OutcomeDone, snap.Optimized.Outcome)
	assert.Equal(t, []string{"c2", "c3"}, stopIDs(snap.Optimized.Stops))

	in := f.optimizer.inputs[0]
	assert.Equal(t, 150.0, in.RangeKm)
	assert.Equal(t, amsterdam, in.Origin)
	assert.Equal(t, paris, in.Destination)

	_, _, err = f.planner.AddStop(ctx, id, "c1")
	require.NoError(t, err)
	snap, err = f.planner.ApplyOptimized(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"c2", "c3"}, stopIDs(snap.Stops))
}

func TestPlanner_AddStop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.planned(t)

	_, added, err := f.planner.AddStop(ctx, id, "c3")
	require.NoError(t, err)
	assert.True(t, added)
	_, added, err = f.planner.AddStop(ctx, id, "c1")
	require.NoError(t, err)
	assert.True(t, added)

	snap, added, err := f.planner.AddStop(ctx, id, "c3")
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, []string{"c3", "c1"}, stopIDs(snap.Stops))

	_, _, err = f.planner.AddStop(ctx, id, "nope")
	assert.ErrorIs(t, err, ErrCandidateNotFound)
}

func TestPlanner_SelectCandidate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.planned(t)

	snap, err := f.planner.SelectCandidate(ctx, id, "c2")
	require.NoError(t, err)
	require.NotNil(t, snap.Selected)
	assert.Equal(t, "c2", snap.Selected.ID)

	_, err = f.planner.SelectCandidate(ctx, id, "zz")
	assert.ErrorIs(t, err, ErrCandidateNotFound)

	snap, err = f.planner.SelectCandidate(ctx, id, "")
	require.NoError(t, err)
	assert.Nil(t, snap.Selected)
}

func TestPlanner_FinalizeDeepLink(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.planned(t)

	_, _, err := f.planner.AddStop(ctx, id, "c2")
	require.NoError(t, err)

	snap, err := f.planner.Finalize(ctx, id, "")
	require.NoError(t, err)
	require.NotNil(t, snap.Finalized)
	assert.Equal(t, FinalizeDeepLink, snap.Finalized.Mode)
	assert.Equal(t,
		"https://www.google.com/maps/dir/?api=1&origin=Amsterdam&destination=Paris&waypoints=51.2%2C4.4",
		snap.Finalized.DeepLink)
	assert.Empty(t, snap.Candidates)
	assert.Equal(t, []string{"c2"}, stopIDs(snap.Stops))

	_, _, err = f.planner.AddStop(ctx, id, "c1")
	assert.ErrorIs(t, err, ErrSessionFinalized)
	_, err = f.planner.PlanTrip(ctx, id, "Amsterdam", "Paris")
	assert.ErrorIs(t, err, ErrSessionFinalized)
	_, err = f.planner.Finalize(ctx, id, FinalizeDeepLink)
	assert.ErrorIs(t, err, ErrSessionFinalized)
}

func TestPlanner_FinalizeRecompute(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.planned(t)

	_, _, err := f.planner.AddStop(ctx, id, "c3")
	require.NoError(t, err)
	_, _, err = f.planner.AddStop(ctx, id, "c1")
	require.NoError(t, err)

	snap, err := f.planner.Finalize(ctx, id, FinalizeRecompute)
	require.NoError(t, err)
	assert.Equal(t, FinalizeRecompute, snap.Finalized.Mode)
	require.NotNil(t, snap.Finalized.Route)
	assert.Len(t, snap.Route.Legs, 3)

	req := f.router.lastRequest()
	assert.Equal(t, []routing.Coordinate{{Lat: 50.6, Lon: 3.1}, {Lat: 51.9, Lon: 4.4}}, req.Waypoints)
}

func TestPlanner_FinalizeRecomputeFailureKeepsSessionOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.planned(t)

	f.router.routeErr = errors.New("upstream down")
	_, err := f.planner.Finalize(ctx, id, FinalizeRecompute)
	assert.ErrorIs(t, err, ErrRouteFailed)

	snap, err := f.planner.Session(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, snap.Finalized)
	assert.NotEmpty(t, snap.Candidates)
}

func TestPlanner_FinalizeValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	snap, err := f.planner.CreateSession(ctx)
	require.NoError(t, err)
	_, err = f.planner.Finalize(ctx, snap.ID, FinalizeDeepLink)
	assert.ErrorIs(t, err, ErrTripNotPlanned)

	_, err = f.planner.Finalize(ctx, snap.ID, "email")
	assert.ErrorIs(t, err, ErrInvalidFinalizeMode)
}

func TestPlanner_StalePlanIsDiscarded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.discoverer.block = true
	f.discoverer.started = make(chan struct{})

	snap, err := f.planner.CreateSession(ctx)
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := f.planner.PlanTrip(ctx, snap.ID, "Amsterdam", "Paris")
		errc <- err
	}()
	<-f.discoverer.started

	got, err := f.planner.PlanTrip(ctx, snap.ID, "Paris", "Amsterdam")
	require.NoError(t, err)
	assert.Equal(t, paris, *got.Origin)

	assert.ErrorIs(t, <-errc, ErrSuperseded)

	got, err = f.planner.Session(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, "Paris", got.OriginAddress)
}

func TestPlanner_StaleOptimizeIsDiscarded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.planned(t)
	_, err := f.planner.SetVehicle(ctx, id, VehicleProfile{Brand: "BMW", Model: "i3"})
	require.NoError(t, err)

	f.optimizer.block = true
	f.optimizer.started = make(chan struct{})

	errc := make(chan error, 1)
	go func() {
		_, err := f.planner.Optimize(ctx, id)
		errc <- err
	}()
	<-f.optimizer.started

	snap, err := f.planner.Optimize(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, snap.Optimized)

	assert.ErrorIs(t, <-errc, ErrSuperseded)
}

// gatedMaps is a routing provider and geocoder whose calls wait for gate, so
// tests can overlap runs on a real routing.Service.
type gatedMaps struct {
	gate  chan struct{}
	calls atomic.Int32
}

func (g *gatedMaps) wait(ctx context.Context) error {
	g.calls.Add(1)
	select {
	case <-g.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gatedMaps) Name() string { return "gated" }

func (g *gatedMaps) Geocode(ctx context.Context, address string) (routing.Coordinate, error) {
	if err := g.wait(ctx); err != nil {
		return routing.Coordinate{}, err
	}
	if address == "Paris" {
		return paris, nil
	}
	return amsterdam, nil
}

func (g *gatedMaps) GetDirections(ctx context.Context, req routing.DirectionsRequest) (*routing.DirectionsResponse, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	return &routing.DirectionsResponse{
		Geometry: []routing.Coordinate{*req.Origin.Point, *req.Destination.Point},
		Legs:     []routing.Leg{{DistanceMeters: 100000, DurationSeconds: 3600}},
		Provider: "gated",
	}, nil
}

func TestPlanner_ReplanWithSameAddressesSurvivesCancelledRun(t *testing.T) {
	ctx := context.Background()
	maps := &gatedMaps{gate: make(chan struct{})}
	svc := routing.NewService(routing.ServiceConfig{Provider: maps, Geocoder: maps, Logger: zerolog.Nop()})
	planner := NewPlanner(PlannerConfig{
		Router:          svc,
		Discoverer:      &fakeDiscoverer{candidates: []charger.Candidate{stop("c1", 50.5, 3.5)}},
		Annotator:       passAnnotator{},
		Optimizer:       &fakeOptimizer{},
		Store:           NewInMemoryStore(time.Hour, zerolog.Nop()),
		ProviderTimeout: 5 * time.Second,
		Logger:          zerolog.Nop(),
	})

	snap, err := planner.CreateSession(ctx)
	require.NoError(t, err)

	firstErr := make(chan error, 1)
	go func() {
		_, err := planner.PlanTrip(ctx, snap.ID, "Amsterdam", "Paris")
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return maps.calls.Load() == 2 }, time.Second, time.Millisecond)

	type result struct {
		snap Snapshot
		err  error
	}
	second := make(chan result, 1)
	go func() {
		s, err := planner.PlanTrip(ctx, snap.ID, "Amsterdam", "Paris")
		second <- result{s, err}
	}()

	// The second run cancels the first, then joins its geocodes.
	assert.ErrorIs(t, <-firstErr, ErrSuperseded)
	time.Sleep(20 * time.Millisecond)
	close(maps.gate)

	got := <-second
	require.NoError(t, got.err)
	require.NotNil(t, got.snap.Origin)
	assert.Equal(t, amsterdam, *got.snap.Origin)
	assert.Equal(t, paris, *got.snap.Destination)
	assert.Len(t, got.snap.Candidates, 1)
}

func TestPlanner_ReoptimizeSurvivesCancelledRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	maps := &gatedMaps{gate: make(chan struct{})}
	svc := routing.NewService(routing.ServiceConfig{Provider: maps, Logger: zerolog.Nop()})
	f.planner.optimizer = optimizer.New(optimizer.Config{Distances: svc, Logger: zerolog.Nop()})

	id := f.planned(t)
	_, err := f.planner.SetVehicle(ctx, id, VehicleProfile{Brand: "BMW", Model: "i3"})
	require.NoError(t, err)

	firstErr := make(chan error, 1)
	go func() {
		_, err := f.planner.Optimize(ctx, id)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return maps.calls.Load() == 1 }, time.Second, time.Millisecond)

	type result struct {
		snap Snapshot
		err  error
	}
	second := make(chan result, 1)
	go func() {
		s, err := f.planner.Optimize(ctx, id)
		second <- result{s, err}
	}()

	assert.ErrorIs(t, <-firstErr, ErrSuperseded)
	time.Sleep(20 * time.Millisecond)
	close(maps.gate)

	// The destination is 100 km away, inside the i3's range: no stops. A
	// failed destination query would have sent the run into a stop round.
	got := <-second
	require.NoError(t, got.err)
	require.NotNil(t, got.snap.Optimized)
	assert.Equal(t, optimizer.OutcomeDone, got.snap.Optimized.Outcome)
	assert.Empty(t, got.snap.Optimized.Stops)
	assert.Equal(t, 100000, got.snap.Optimized.FinalLegMeters)
}

func TestPlanner_DeleteSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.planned(t)

	require.NoError(t, f.planner.DeleteSession(ctx, id))
	_, err := f.planner.Session(ctx, id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, f.planner.DeleteSession(ctx, id), ErrSessionNotFound)
}

// fakeSearcher and legTable drive the real discovery, annotation and
// selection stages through the planner.
type fakeSearcher struct {
	byLat map[float64][]places.Place
}

func (f fakeSearcher) NearbySearch(_ context.Context, req places.NearbyRequest) ([]places.Place, error) {
	return f.byLat[req.Center.Lat], nil
}

func (fakeSearcher) Name() string { return "fake" }

type legTable map[string]int

func (l legTable) Distance(_ context.Context, from, to routing.Coordinate) (routing.Leg, error) {
	m, ok := l[from.String()+">"+to.String()]
	if !ok {
		return routing.Leg{}, errors.New("no route")
	}
	return routing.Leg{DistanceMeters: m, DistanceText: routing.FormatDistance(m)}, nil
}

func TestPlanner_EndToEnd(t *testing.T) {
	ctx := context.Background()
	mid := routing.Coordinate{Lat: 50.5, Lon: 3.5}
	station := places.Place{ID: "s1", Name: "Lille Fast", Address: "1 Rue A", Location: mid}
	dup := places.Place{ID: "s1b", Name: "Lille Fast 2", Address: "1 Rue A", Location: mid}

	distances := legTable{
		amsterdam.String() + ">" + paris.String(): 500000,
		amsterdam.String() + ">" + mid.String():   280000,
		mid.String() + ">" + paris.String():       220000,
	}
	planner := NewPlanner(PlannerConfig{
		Router: newFakeRouter(),
		Discoverer: charger.NewDiscoverer(charger.DiscovererConfig{
			Searcher: fakeSearcher{byLat: map[float64][]places.Place{amsterdam.Lat: {station}, paris.Lat: {dup}}},
			Defaults: charger.DiscoverOptions{Stride: 2},
		}),
		Annotator: charger.NewAnnotator(distances, 2, zerolog.Nop()),
		Optimizer: optimizer.New(optimizer.Config{Distances: distances, Concurrency: 2, Logger: zerolog.Nop()}),
		Store:     NewInMemoryStore(time.Hour, zerolog.Nop()),
		Catalog:   DefaultCatalog(),
	})

	snap, err := planner.CreateSession(ctx)
	require.NoError(t, err)
	id := snap.ID

	snap, err = planner.PlanTrip(ctx, id, "Amsterdam", "Paris")
	require.NoError(t, err)
	require.Len(t, snap.Candidates, 1)
	assert.Equal(t, "280 km", snap.Candidates[0].DistanceFromOrigin)

	_, err = planner.SetVehicle(ctx, id, VehicleProfile{Brand: "Tesla", Model: "Model Y", RangeKm: 300})
	require.NoError(t, err)
	snap, err = planner.Optimize(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, optimizer.OutcomeDone, snap.Optimized.Outcome)
	assert.Equal(t, []string{"s1"}, stopIDs(snap.Optimized.Stops))

	_, err = planner.SetVehicle(ctx, id, VehicleProfile{Brand: "Tesla", Model: "Model Y", RangeKm: 200})
	require.NoError(t, err)
	snap, err = planner.Optimize(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, optimizer.OutcomeStuck, snap.Optimized.Outcome)
	assert.Empty(t, snap.Optimized.Stops)

	_, err = planner.ApplyOptimized(ctx, id)
	require.NoError(t, err)
	snap, err = planner.Finalize(ctx, id, FinalizeDeepLink)
	require.NoError(t, err)
	assert.NotContains(t, snap.Finalized.DeepLink, "waypoints")
}
