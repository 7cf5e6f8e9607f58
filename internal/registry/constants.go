package registry

import "time"

const (
	// DefaultHTTPTimeout is the connect/read timeout for a single registry call.
	DefaultHTTPTimeout = 30 * time.Second

	// maxRetries, initialBackoff, maxBackoff and backoffMultiplier implement
	// the retry policy: exponential backoff capped at maxBackoff.
	maxRetries        = 3
	initialBackoff    = 1 * time.Second
	maxBackoff        = 10 * time.Second
	backoffMultiplier = 2

	// maxRedirects bounds the number of 3xx hops a manifest fetch will follow.
	maxRedirects = 5

	// dockerIOTokenRealm and dockerIOTokenService are the pre-emptive,
	// hard-coded auth endpoint for docker.io, used without waiting for a
	// challenge as an optimization.
	dockerIOTokenRealm   = "https://auth.docker.io/token"
	dockerIOTokenService = "registry.docker.io"

	// defaultCacheTTL is the lifetime of an entry stored with Set in the
	// token and digest caches.
	defaultCacheTTL = 15 * time.Minute
)
