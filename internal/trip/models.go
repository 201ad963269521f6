// Package trip owns EV trip planning sessions: the planned route, the
// discovered charging candidates, the vehicle, the optimizer output and the
// stop ledger, plus finalization into a recomputed route or a maps deep link.
package trip

import (
	"errors"
	"time"

	"github.com/evroute/evroute/internal/charger"
	"github.com/evroute/evroute/internal/optimizer"
	"github.com/evroute/evroute/internal/routing"
)

// Planner errors.
var (
	ErrSessionNotFound     = errors.New("trip session not found")
	ErrGeocodeFailed       = errors.New("address could not be geocoded")
	ErrRouteFailed         = errors.New("no drivable route")
	ErrVehicleRequired     = errors.New("vehicle profile is required")
	ErrInvalidVehicle      = errors.New("invalid vehicle profile")
	ErrTripNotPlanned      = errors.New("trip has no planned route")
	ErrNotOptimized        = errors.New("trip has no optimized stops")
	ErrCandidateNotFound   = errors.New("charging candidate not found")
	ErrSuperseded          = errors.New("superseded by a newer request")
	ErrSessionFinalized    = errors.New("trip session is finalized")
	ErrInvalidFinalizeMode = errors.New("invalid finalize mode")
)

// FinalizeMode selects how a trip is committed.
type FinalizeMode string

const (
	// FinalizeRecompute asks the routing provider for a route through the stops.
	FinalizeRecompute FinalizeMode = "recompute"
	// FinalizeDeepLink emits a shareable maps URL.
	FinalizeDeepLink FinalizeMode = "deeplink"
)

// Valid reports whether m is a known mode.
func (m FinalizeMode) Valid() bool {
	return m == FinalizeRecompute || m == FinalizeDeepLink
}

// VehicleProfile is the vehicle the trip is planned for.
type VehicleProfile struct {
	Brand   string  `json:"brand"`
	Model   string  `json:"model"`
	RangeKm float64 `json:"rangeKm"`
}

// Route is a planned route with its totals.
type Route struct {
	Geometry             []routing.Coordinate `json:"geometry"`
	EncodedPolyline      string               `json:"encodedPolyline,omitempty"`
	Legs                 []routing.Leg        `json:"legs"`
	TotalDistanceMeters  int                  `json:"totalDistanceMeters"`
	TotalDistanceText    string               `json:"totalDistanceText"`
	TotalDurationSeconds int                  `json:"totalDurationSeconds"`
	TotalDurationText    string               `json:"totalDurationText"`
	Provider             string               `json:"provider"`
}

func newRoute(resp *routing.DirectionsResponse) *Route {
	meters := resp.TotalDistanceMeters()
	seconds := resp.TotalDurationSeconds()
	return &Route{
		Geometry:             resp.Geometry,
		EncodedPolyline:      resp.EncodedPolyline,
		Legs:                 resp.Legs,
		TotalDistanceMeters:  meters,
		TotalDistanceText:    routing.FormatDistance(meters),
		TotalDurationSeconds: seconds,
		TotalDurationText:    routing.FormatDuration(seconds),
		Provider:             resp.Provider,
	}
}

// Finalization records how and when a session was committed.
type Finalization struct {
	Mode        FinalizeMode `json:"mode"`
	Route       *Route       `json:"route,omitempty"`
	DeepLink    string       `json:"deepLink,omitempty"`
	FinalizedAt time.Time    `json:"finalizedAt"`
}

// Snapshot is a read-only copy of a session. Slices are never shared with the
// live session.
type Snapshot struct {
	ID                 string              `json:"id"`
	OriginAddress      string              `json:"originAddress,omitempty"`
	DestinationAddress string              `json:"destinationAddress,omitempty"`
	Origin             *routing.Coordinate `json:"origin,omitempty"`
	Destination        *routing.Coordinate `json:"destination,omitempty"`
	Route              *Route              `json:"route,omitempty"`
	Candidates         []charger.Candidate `json:"candidates"`
	Vehicle            *VehicleProfile     `json:"vehicle,omitempty"`
	Optimized          *optimizer.Result   `json:"optimized,omitempty"`
	Stops              []charger.Candidate `json:"stops"`
	Selected           *charger.Candidate  `json:"selected,omitempty"`
	Finalized          *Finalization       `json:"finalized,omitempty"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
}
