package update

import (
	"context"
	"runtime"
	"sync"
	"time"

	"ing.wik/watchz/internal/dockerapi"
)

// BatchOptions configures a run across many containers.
type BatchOptions struct {
	Options
	RollingRestart bool
}

// UpdateBatch runs Update across containers. With RollingRestart set, or a
// single container, updates run sequentially with a gap between each so a
// dependent service has time to settle; otherwise updates run in parallel,
// bounded by GOMAXPROCS, each an independent execution context.
func (e *Engine) UpdateBatch(ctx context.Context, containers []dockerapi.Container, opts BatchOptions) []Result {
	if opts.RollingRestart || len(containers) <= 1 {
		return e.updateSequential(ctx, containers, opts)
	}
	return e.updateParallel(ctx, containers, opts)
}

func (e *Engine) updateSequential(ctx context.Context, containers []dockerapi.Container, opts BatchOptions) []Result {
	results := make([]Result, 0, len(containers))
	for i, c := range containers {
		if ctx.Err() != nil {
			break
		}
		results = append(results, e.Update(ctx, c, opts.Options))
		if i < len(containers)-1 {
			select {
			case <-ctx.Done():
				return results
			case <-time.After(RollingRestartGap):
			}
		}
	}
	return results
}

func (e *Engine) updateParallel(ctx context.Context, containers []dockerapi.Container, opts BatchOptions) []Result {
	results := make([]Result, len(containers))

	workers := runtime.GOMAXPROCS(0)
	if workers > len(containers) {
		workers = len(containers)
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)

	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = e.Update(ctx, containers[i], opts.Options)
			}
		}()
	}

	for i := range containers {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}
