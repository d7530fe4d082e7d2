// Package pool runs an ordered batch of items through a bounded number of
// concurrent workers while keeping results in input order.
package pool

import (
	"context"
	"fmt"
	"sync"
)

// Run invokes worker for every item with at most maxParallel invocations in
// flight. The i-th result always corresponds to the i-th item, no matter
// which worker finished first. The first worker error cancels the remaining
// work and is returned; partial results are discarded. Callers that want to
// tolerate per-item failures must absorb them inside the worker.
func Run[T, R any](ctx context.Context, items []T, maxParallel int, worker func(ctx context.Context, index int, item T) (R, error)) ([]R, error) {
	if len(items) == 0 {
		return []R{}, nil
	}
	if maxParallel < 1 {
		return nil, fmt.Errorf("pool: maxParallel must be >= 1, got %d", maxParallel)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]R, len(items))
	sem := make(chan struct{}, maxParallel)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for i, item := range items {
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
			wg.Add(1)
			go func(i int, item T) {
				defer wg.Done()
				defer func() { <-sem }()
				res, err := worker(ctx, i, item)
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("pool: item %d: %w", i, err)
					}
					mu.Unlock()
					cancel()
					return
				}
				results[i] = res
			}(i, item)
		}
		if ctx.Err() != nil {
			break
		}
	}

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
