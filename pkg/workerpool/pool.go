// Package workerpool runs per-item work on a bounded number of goroutines while
// keeping a priority order for both dispatch and results.
package workerpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Result pairs an item with the value its work produced.
type Result[T any, R any] struct {
	Item  T
	Value R
}

// Pool dispatches work in priority order to at most Concurrency goroutines.
type Pool struct {
	Concurrency int
}

func New(concurrency int) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{Concurrency: concurrency}
}

// Run pops items from a priority queue ordered by less and hands each to work.
// Results come back in priority order regardless of completion order. Per-item
// failures belong in R; Run only fails when ctx is cancelled, in which case no
// further items are dispatched.
func Run[T any, R any](ctx context.Context, p *Pool, items []T, less func(a, b T) bool, work func(ctx context.Context, item T) R) ([]Result[T, R], error) {
	q := newQueue(items, less)
	results := make([]Result[T, R], q.Len())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Concurrency)

	for i := 0; ; i++ {
		item, ok := q.next()
		if !ok {
			break
		}
		if gctx.Err() != nil {
			break
		}

		slot := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[slot] = Result[T, R]{Item: item, Value: work(gctx, item)}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
