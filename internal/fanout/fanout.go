// Package fanout runs independent provider queries concurrently and waits for
// all of them. One task failing never cancels its siblings.
package fanout

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultLimit bounds in-flight tasks when the caller passes a non-positive limit.
const DefaultLimit = 8

// Result is the outcome of one task, at the same index as its input.
type Result[T any] struct {
	Value T
	Err   error
}

// OK reports whether the task succeeded.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Run calls fn for every item with at most limit calls in flight and returns
// once every call has finished. Results are in input order. Tasks not yet
// started when ctx is done are skipped and report ctx.Err().
func Run[In, Out any](ctx context.Context, items []In, limit int, fn func(context.Context, In) (Out, error)) []Result[Out] {
	results := make([]Result[Out], len(items))
	if len(items) == 0 {
		return results
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	// No WithContext: a failing task must not cancel the others.
	var g errgroup.Group
	g.SetLimit(limit)

	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			v, err := fn(ctx, item)
			results[i] = Result[Out]{Value: v, Err: err}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // tasks never return errors

	return results
}

// Failed counts the results that carry an error.
func Failed[T any](results []Result[T]) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
