// Package workpool runs independent jobs on a bounded set of goroutines and
// returns their results in input order.
package workpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Map calls fn for every item using at most workers goroutines. Each call
// writes its own slot of the returned slice, so results come back in input
// order whatever the completion order. Items not yet started when ctx is
// done are passed to skip instead of fn.
func Map[T, R any](ctx context.Context, items []T, workers int, fn func(int, T) R, skip func(int, T, error) R) []R {
	results := make([]R, len(items))
	if len(items) == 0 {
		return results
	}
	if workers <= 1 {
		for i, item := range items {
			if err := ctx.Err(); err != nil {
				results[i] = skip(i, item, err)
				continue
			}
			results[i] = fn(i, item)
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = skip(i, item, err)
				return nil
			}
			results[i] = fn(i, item)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
