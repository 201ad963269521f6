// Package optimizer picks a sequence of charging stops so that no hop of the
// trip exceeds the vehicle's range.
//
// The selection is greedy: from the current position it takes the reachable
// candidate that is farthest away by road, then checks whether the
// destination is now within range. It is not guaranteed to find the fewest
// stops, nor to find a solution when one exists.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/evroute/evroute/internal/charger"
	"github.com/evroute/evroute/internal/fanout"
	"github.com/evroute/evroute/internal/routing"
)

// ErrInvalidRange is returned for a non-positive vehicle range.
var ErrInvalidRange = errors.New("vehicle range must be positive")

// Outcome is how an optimization run ended.
type Outcome string

const (
	// OutcomeDone means the destination is reachable from the last stop.
	OutcomeDone Outcome = "DONE"
	// OutcomeStuck means no remaining candidate was reachable from the current position.
	OutcomeStuck Outcome = "STUCK"
)

// Input is one optimization request.
type Input struct {
	Origin      routing.Coordinate
	Destination routing.Coordinate
	RangeKm     float64
	Candidates  []charger.Candidate
}

// Hop is one measured leg of the chosen plan.
type Hop struct {
	// To is the candidate ID, or empty for the final leg to the destination.
	To             string `json:"to,omitempty"`
	DistanceMeters int    `json:"distanceMeters"`
}

// Result is the selector's output. Stops are in visiting order.
type Result struct {
	Stops   []charger.Candidate `json:"stops"`
	Hops    []Hop               `json:"hops"`
	Outcome Outcome             `json:"outcome"`

	// FinalLegMeters is the destination distance from the last position when Outcome is DONE.
	FinalLegMeters int           `json:"finalLegMeters"`
	Rounds         int           `json:"rounds"`
	Duration       time.Duration `json:"-"`
}

// Config configures a Selector.
type Config struct {
	Distances   charger.DistanceSource
	Concurrency int
	Logger      zerolog.Logger
}

// Selector runs the range-constrained greedy selection.
type Selector struct {
	distances   charger.DistanceSource
	concurrency int
	logger      zerolog.Logger
}

// New creates a Selector.
func New(cfg Config) *Selector {
	return &Selector{
		distances:   cfg.Distances,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
	}
}

// Optimize selects stops from in.Candidates.
//
// Each round queries the distance from the current position to every
// remaining candidate concurrently and waits for all answers. Candidates
// whose query fails are skipped for that round only. Among candidates within
// range the farthest is chosen, ties going to the earlier candidate. All
// comparisons are inclusive.
//
// Before the first round the destination is checked from the origin, so a
// trip that fits in one charge needs no stops.
func (s *Selector) Optimize(ctx context.Context, in Input) (*Result, error) {
	if in.RangeKm <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidRange, in.RangeKm)
	}
	start := time.Now()
	rangeMeters := in.RangeKm * 1000

	res := &Result{Stops: []charger.Candidate{}, Hops: []Hop{}}
	finish := func(o Outcome) (*Result, error) {
		res.Outcome = o
		res.Duration = time.Since(start)
		s.logger.Info().
			Str("outcome", string(o)).
			Int("stops", len(res.Stops)).
			Int("rounds", res.Rounds).
			Float64("range_km", in.RangeKm).
			Dur("duration", res.Duration).
			Msg("optimization finished")
		return res, nil
	}

	current := in.Origin
	done, err := s.destinationWithin(ctx, current, in.Destination, rangeMeters, res)
	if err != nil {
		return nil, err
	}
	if done {
		return finish(OutcomeDone)
	}

	working := make([]charger.Candidate, len(in.Candidates))
	copy(working, in.Candidates)

	for len(working) > 0 {
		res.Rounds++

		results := fanout.Run(ctx, working, s.concurrency, func(ctx context.Context, c charger.Candidate) (routing.Leg, error) {
			return s.distances.Distance(ctx, current, c.Location)
		})
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		best, bestMeters := -1, -1
		for i, r := range results {
			if r.Err != nil {
				s.logger.Debug().Err(r.Err).
					Str("candidate", working[i].ID).
					Int("round", res.Rounds).
					Msg("distance query failed, skipping candidate this round")
				continue
			}
			m := r.Value.DistanceMeters
			if float64(m) <= rangeMeters && m > bestMeters {
				best, bestMeters = i, m
			}
		}

		if best < 0 {
			s.logger.Debug().Int("round", res.Rounds).Int("remaining", len(working)).Msg("no reachable candidate")
			return finish(OutcomeStuck)
		}

		chosen := working[best]
		res.Stops = append(res.Stops, chosen)
		res.Hops = append(res.Hops, Hop{To: chosen.ID, DistanceMeters: bestMeters})
		working = append(working[:best], working[best+1:]...)
		current = chosen.Location

		done, err := s.destinationWithin(ctx, current, in.Destination, rangeMeters, res)
		if err != nil {
			return nil, err
		}
		if done {
			return finish(OutcomeDone)
		}
	}

	return finish(OutcomeStuck)
}

// destinationWithin reports whether the destination is within range of from.
// A failed query counts as out of range; only context errors are returned.
func (s *Selector) destinationWithin(ctx context.Context, from, dest routing.Coordinate, rangeMeters float64, res *Result) (bool, error) {
	leg, err := s.distances.Distance(ctx, from, dest)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		s.logger.Debug().Err(err).Msg("destination distance query failed")
		return false, nil
	}
	if float64(leg.DistanceMeters) > rangeMeters {
		return false, nil
	}
	res.FinalLegMeters = leg.DistanceMeters
	res.Hops = append(res.Hops, Hop{DistanceMeters: leg.DistanceMeters})
	return true, nil
}
