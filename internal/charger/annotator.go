package charger

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/evroute/evroute/internal/fanout"
	"github.com/evroute/evroute/internal/routing"
)

// Annotator fills the origin distance and time of each candidate.
type Annotator struct {
	distances   DistanceSource
	concurrency int
	logger      zerolog.Logger
}

// NewAnnotator creates an Annotator.
func NewAnnotator(distances DistanceSource, concurrency int, logger zerolog.Logger) *Annotator {
	return &Annotator{distances: distances, concurrency: concurrency, logger: logger}
}

// Annotate queries origin->candidate for every candidate in parallel and
// returns annotated copies in the same order. A failed query sets both
// fields to UnavailableAnnotation. The input slice is not modified.
func (a *Annotator) Annotate(ctx context.Context, origin routing.Coordinate, candidates []Candidate) []Candidate {
	results := fanout.Run(ctx, candidates, a.concurrency, func(ctx context.Context, c Candidate) (routing.Leg, error) {
		return a.distances.Distance(ctx, origin, c.Location)
	})

	out := make([]Candidate, len(candidates))
	failed := 0
	for i, c := range candidates {
		r := results[i]
		if r.Err != nil {
			failed++
			c.DistanceFromOrigin = UnavailableAnnotation
			c.TimeFromOrigin = UnavailableAnnotation
			a.logger.Debug().Err(r.Err).Str("candidate", c.ID).Msg("origin distance unavailable")
		} else {
			c.DistanceFromOrigin = r.Value.DistanceText
			c.TimeFromOrigin = r.Value.DurationText
		}
		out[i] = c
	}

	a.logger.Debug().
		Int("candidates", len(candidates)).
		Int("failed", failed).
		Msg("annotation completed")

	return out
}
