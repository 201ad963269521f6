// Package places defines the nearby-search gateway used to find charging
// infrastructure around points on a route.
package places

import (
	"context"
	"errors"

	"github.com/evroute/evroute/internal/routing"
)

var (
	// ErrSearchFailed means the provider answered with a non-success status.
	ErrSearchFailed = errors.New("nearby search failed")
	// ErrProviderUnavailable means the provider could not be reached.
	ErrProviderUnavailable = errors.New("places provider unavailable")
)

// Place is one nearby-search hit.
type Place struct {
	ID       string
	Name     string
	Address  string
	Location routing.Coordinate
	Rating   *float64
}

// NearbyRequest describes a keyword search within a radius of Center.
type NearbyRequest struct {
	Center       routing.Coordinate
	RadiusMeters int
	Keyword      string
}

// Searcher runs nearby searches. An empty result is not an error.
type Searcher interface {
	NearbySearch(ctx context.Context, req NearbyRequest) ([]Place, error)
	Name() string
}

// Error carries provider detail alongside ErrSearchFailed or ErrProviderUnavailable.
type Error struct {
	Provider string
	Status   string
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
