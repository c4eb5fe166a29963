package concurrent

import (
	"context"

	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 10

// Gather runs fn over every item concurrently, at most limit at a time, and
// waits for all of them. Results keep the order of items. fn has no error
// return: callers fold failures into R so one bad item never cancels the rest.
func Gather[T, R any](ctx context.Context, items []T, fn func(context.Context, T) R, limit int) []R {
	if len(items) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = defaultConcurrency
	}

	results := make([]R, len(items))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, item := range items {
		g.Go(func() error {
			results[i] = fn(ctx, item)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// ParallelMap executes fn on each item in parallel and returns results in
// input order. The first error cancels the remaining work and is returned.
func ParallelMap[T, R any](ctx context.Context, items []T, fn func(context.Context, T) (R, error), maxConcurrency int) ([]R, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if maxConcurrency <= 0 {
		maxConcurrency = defaultConcurrency
	}

	results := make([]R, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency)
	for i, item := range items {
		g.Go(func() error {
			r, err := fn(gctx, item)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
