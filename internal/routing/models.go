// Package routing computes driving routes, point-to-point distances and
// address geocodes through an external maps provider.
package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Sentinel errors for routing and geocoding.
var (
	// ErrProviderUnavailable means the provider is down or its circuit breaker is open.
	ErrProviderUnavailable = errors.New("routing provider unavailable")
	// ErrNoRouteFound means the provider found no drivable route.
	ErrNoRouteFound = errors.New("no route found between the given points")
	// ErrAddressNotFound means an address could not be resolved to a coordinate.
	ErrAddressNotFound = errors.New("address not found")
	// ErrRateLimitExceeded means the provider quota was exhausted.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidRequest means the provider rejected the request (bad key, malformed input).
	ErrInvalidRequest = errors.New("request rejected by provider")
	// ErrInvalidCoordinates means a coordinate is outside the valid lat/lon range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)

// Provider computes driving directions.
type Provider interface {
	// GetDirections returns the route from Origin through Waypoints (in order,
	// as stopovers) to Destination, with one Leg per consecutive pair.
	GetDirections(ctx context.Context, req DirectionsRequest) (*DirectionsResponse, error)
	Name() string
}

// Geocoder resolves free-form addresses to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Coordinate, error)
	Name() string
}

// Coordinate is a WGS84 point.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lng"`
}

// String renders the point as "lat,lng", the form maps APIs accept.
func (c Coordinate) String() string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lon, 'f', -1, 64)
}

// PairKey identifies a directed point-to-point query. Coordinates are rounded
// to five decimals (about 1 m), so callers that differ only by float noise
// share both the in-flight provider call and the cached leg.
func PairKey(from, to Coordinate) string {
	return fmt.Sprintf("%.5f,%.5f->%.5f,%.5f",
		roundPair(from.Lat), roundPair(from.Lon), roundPair(to.Lat), roundPair(to.Lon))
}

func roundPair(v float64) float64 {
	return math.Round(v*100000) / 100000
}

// Validate reports whether the point lies within the valid lat/lon range.
func (c Coordinate) Validate() error {
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %f out of range [-90, 90]", ErrInvalidCoordinates, c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("%w: longitude %f out of range [-180, 180]", ErrInvalidCoordinates, c.Lon)
	}
	return nil
}

// Location is either a free-form address or a coordinate. Point wins when both are set.
type Location struct {
	Address string
	Point   *Coordinate
}

// AddressLocation wraps an address.
func AddressLocation(address string) Location {
	return Location{Address: address}
}

// PointLocation wraps a coordinate.
func PointLocation(c Coordinate) Location {
	return Location{Point: &c}
}

// String renders the location as a provider query value.
func (l Location) String() string {
	if l.Point != nil {
		return l.Point.String()
	}
	return l.Address
}

// Validate checks that the location is usable.
func (l Location) Validate() error {
	if l.Point != nil {
		return l.Point.Validate()
	}
	if l.Address == "" {
		return fmt.Errorf("%w: empty location", ErrInvalidRequest)
	}
	return nil
}

// DirectionsRequest asks for a driving route.
type DirectionsRequest struct {
	Origin      Location
	Destination Location
	Waypoints   []Coordinate
}

// Leg is one segment of a route between consecutive stops.
type Leg struct {
	DistanceMeters  int    `json:"distanceMeters"`
	DistanceText    string `json:"distanceText"`
	DurationSeconds int    `json:"durationSeconds"`
	DurationText    string `json:"durationText"`
}

// DirectionsResponse is a computed route.
type DirectionsResponse struct {
	// Geometry is the decoded overview path, origin first.
	Geometry        []Coordinate
	EncodedPolyline string
	Legs            []Leg
	Provider        string
	FetchedAt       time.Time
}

// TotalDistanceMeters sums the leg distances.
func (r *DirectionsResponse) TotalDistanceMeters() int {
	total := 0
	for _, l := range r.Legs {
		total += l.DistanceMeters
	}
	return total
}

// TotalDurationSeconds sums the leg durations.
func (r *DirectionsResponse) TotalDurationSeconds() int {
	total := 0
	for _, l := range r.Legs {
		total += l.DurationSeconds
	}
	return total
}

// Error carries provider detail alongside one of the sentinel errors.
type Error struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the failure is transient.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}
