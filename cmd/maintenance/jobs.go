package main

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"gighop/internal/domain"
)

// runJobs calls fn for every id with at most workers in flight and reports
// each outcome as a State. A cancelled context leaves the remaining ids Idle.
func runJobs[T any](ctx context.Context, workers int, ids []string, fn func(context.Context, string) (T, error)) map[string]domain.State {
	states := make(map[string]domain.State, len(ids))
	for _, id := range ids {
		states[id] = domain.Idle{}
	}
	var mu sync.Mutex
	set := func(id string, st domain.State) {
		mu.Lock()
		states[id] = st
		mu.Unlock()
	}

	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup
	for _, id := range ids {
		if ctx.Err() != nil {
			log.Warn().Err(ctx.Err()).Msg("stopping early")
			break
		}
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Warn().Err(err).Msg("stopping early")
			break
		}
		set(id, domain.Loading{})

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer sem.Release(1)

			v, err := fn(ctx, id)
			if err != nil {
				log.Warn().Str("id", id).Err(err).Msg("job failed")
				set(id, domain.Failed{Reason: err.Error()})
				return
			}
			set(id, domain.Success[T]{Data: v})
		}(id)
	}
	wg.Wait()
	return states
}

type summary struct {
	ok, failed, skipped int
	failures            []string
}

func summarize(states map[string]domain.State) summary {
	var s summary
	for id, st := range states {
		switch v := st.(type) {
		case domain.Failed:
			s.failed++
			s.failures = append(s.failures, id+": "+v.Reason)
		case domain.Idle, domain.Loading:
			s.skipped++
		default:
			s.ok++
		}
	}
	sort.Strings(s.failures)
	return s
}
