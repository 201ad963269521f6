// Package charger discovers charging stations along a route and annotates
// them with their distance from the trip origin.
package charger

import (
	"context"

	"github.com/evroute/evroute/internal/places"
	"github.com/evroute/evroute/internal/routing"
)

// Display values for annotation fields and missing addresses.
const (
	PendingAnnotation     = "Calculating..."
	UnavailableAnnotation = "N/A"
	UnknownAddress        = "Unknown Address"
)

// Candidate is a charging station that may become a stop.
type Candidate struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Address  string             `json:"address"`
	Location routing.Coordinate `json:"location"`
	Rating   *float64           `json:"rating,omitempty"`

	// Display-only annotations, never read by the optimizer.
	DistanceFromOrigin string `json:"distanceFromOrigin"`
	TimeFromOrigin     string `json:"timeFromOrigin"`

	addressMissing bool
}

// FromPlace converts a search hit into an unannotated candidate.
func FromPlace(p places.Place) Candidate {
	c := Candidate{
		ID:                 p.ID,
		Name:               p.Name,
		Address:            p.Address,
		Location:           p.Location,
		Rating:             p.Rating,
		DistanceFromOrigin: PendingAnnotation,
		TimeFromOrigin:     PendingAnnotation,
	}
	if c.Address == "" {
		c.Address = UnknownAddress
		c.addressMissing = true
	}
	return c
}

// DedupKey is the identity used when merging search results. Stations are
// merged by address; a station without an address only matches itself.
func (c Candidate) DedupKey() string {
	if c.addressMissing {
		return "id:" + c.ID
	}
	return "addr:" + c.Address
}

// DistanceSource answers point-to-point driving distance queries.
type DistanceSource interface {
	Distance(ctx context.Context, from, to routing.Coordinate) (routing.Leg, error)
}
