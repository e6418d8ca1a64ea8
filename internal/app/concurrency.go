package app

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Parallel3 executes three functions concurrently and returns all results or the first error.
// The remaining calls are canceled through ctx when one fails.
//
// Example:
//
//	quotes, tags, authors, err := Parallel3(ctx, loadQuotes, loadTags, loadAuthors)
func Parallel3[T1, T2, T3 any](
	ctx context.Context,
	fn1 func(context.Context) (T1, error),
	fn2 func(context.Context) (T2, error),
	fn3 func(context.Context) (T3, error),
) (result1 T1, result2 T2, result3 T3, err error) {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var fnErr error

		result1, fnErr = fn1(ctx)

		return fnErr
	})

	g.Go(func() error {
		var fnErr error

		result2, fnErr = fn2(ctx)

		return fnErr
	})

	g.Go(func() error {
		var fnErr error

		result3, fnErr = fn3(ctx)

		return fnErr
	})

	err = g.Wait()
	if err != nil {
		var (
			zero1 T1
			zero2 T2
			zero3 T3
		)

		return zero1, zero2, zero3, fmt.Errorf("parallel execution failed: %w", err)
	}

	return result1, result2, result3, nil
}

// PartialResult holds a result or an error for partial success patterns.
type PartialResult[T any] struct {
	Value T
	Err   error
}

// ParallelPartialLimit runs fn for every item with at most limit calls in flight.
// It never cancels on failure; every item gets a result in input order.
//
// Tag cascades use it so one failing quote does not stop the others.
func ParallelPartialLimit[I, T any](
	ctx context.Context,
	limit int,
	items []I,
	fn func(context.Context, I) (T, error),
) []PartialResult[T] {
	results := make([]PartialResult[T], len(items))
	sem := make(chan struct{}, max(limit, 1))

	var wg sync.WaitGroup

	for i, item := range items {
		wg.Go(func() {
			sem <- struct{}{}

			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				results[i] = PartialResult[T]{Err: err}
				return
			}

			value, err := fn(ctx, item)
			results[i] = PartialResult[T]{Value: value, Err: err}
		})
	}

	wg.Wait()

	return results
}

// FanOut distributes work items across a fixed number of workers and stops at the first error.
//
// Example:
//
//	err := FanOut(ctx, 4, tagNames, func(ctx context.Context, name string) error {
//	    _, err := tags.RemoveMapping(ctx, name, quoteID)
//	    return err
//	})
func FanOut[T any](ctx context.Context, workers int, items []T, fn func(context.Context, T) error) error {
	if len(items) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	itemChan := make(chan T)

	for range min(max(workers, 1), len(items)) {
		g.Go(func() error {
			for item := range itemChan {
				err := fn(ctx, item)
				if err != nil {
					return err
				}
			}

			return nil
		})
	}

	g.Go(func() error {
		defer close(itemChan)

		for _, item := range items {
			select {
			case itemChan <- item:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		return nil
	})

	err := g.Wait()
	if err != nil {
		return fmt.Errorf("fan out failed: %w", err)
	}

	return nil
}
