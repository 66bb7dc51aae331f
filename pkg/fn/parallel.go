// Package fn holds small generic concurrency helpers.
package fn

import (
	"context"
	"sync"
)

// ParMap applies f to each item with at most workers goroutines, preserving
// order. workers <= 0 runs every item at once. Items not yet started when ctx
// is done are skipped and keep the zero value.
func ParMap[T, U any](ctx context.Context, items []T, workers int, f func(context.Context, T) U) []U {
	out := make([]U, len(items))
	if len(items) == 0 {
		return out
	}
	if workers <= 0 || workers > len(items) {
		workers = len(items)
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	for i, v := range items {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			wg.Wait()
			return out
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(i int, v T) {
			defer func() { <-sem; wg.Done() }()
			out[i] = f(ctx, v)
		}(i, v)
	}
	wg.Wait()
	return out
}
