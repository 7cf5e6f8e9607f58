package registry

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// defaultRegistryRPS and defaultRegistryBurst bound how fast this client
// will call a single registry host, independent of that host's own 429
// responses and of the retry-with-backoff policy. A fan-out over
// many containers that share one registry must not itself look like abuse.
const (
	defaultRegistryRPS   = 10
	defaultRegistryBurst = 20
)

// registryLimiter hands out a token-bucket limiter per registry host,
// creating one on first use. It generalizes the per-client map structure of
// an HTTP rate limiter to per-registry-host outbound throttling instead of
// per-inbound-client-IP throttling.
type registryLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newRegistryLimiter() *registryLimiter {
	return &registryLimiter{limiters: make(map[string]*rate.Limiter)}
}

func (r *registryLimiter) forHost(host string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(defaultRegistryRPS), defaultRegistryBurst)
		r.limiters[host] = l
	}
	return l
}

// wait blocks until host's bucket has a token available or ctx is done.
func (r *registryLimiter) wait(ctx context.Context, host string) error {
	return r.forHost(host).Wait(ctx)
}
