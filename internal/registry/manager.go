package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ing.wik/watchz/internal/logging"
	"ing.wik/watchz/internal/reference"
)

// digestFetcher is the subset of Client used by Manager, so tests can swap
// in a fake without touching HTTP.
type digestFetcher interface {
	HeadManifestDigest(ctx context.Context, ref reference.ImageReference) (string, error)
}

// Manager is the entry point for update checks. It wraps a Client with a
// short-lived digest cache and a per-registry circuit breaker, and serializes
// concurrent lookups for the same image so a burst of containers sharing one
// image triggers a single registry round trip.
type Manager struct {
	client  digestFetcher
	digests *RegistryCache
	circuit *CircuitBreaker
	inFlight *keyedMutex
	log     *logging.Logger
}

// NewManager builds a Manager around client, with its own digest cache and
// circuit breaker (independent from the client's token cache).
func NewManager(client digestFetcher, log *logging.Logger) *Manager {
	return &Manager{
		client:   client,
		digests:  NewRegistryCache(defaultCacheTTL),
		circuit:  NewCircuitBreaker(),
		inFlight: newKeyedMutex(),
		log:      log,
	}
}

// Close stops the digest cache's background sweep.
func (m *Manager) Close() {
	m.digests.Stop()
}

// CheckForUpdate compares currentDigest against the registry's current
// manifest digest for ref. A digest-pinned reference never has an update: the
// identity IS the digest. A reference with an empty currentDigest is treated
// as unknown-state, and the registry's digest is reported without comparison.
func (m *Manager) CheckForUpdate(ctx context.Context, ref reference.ImageReference, currentDigest string) (UpdateCheckResult, error) {
	if ref.HasDigest() {
		return UpdateCheckResult{
			HasUpdate: false,
			Current:   currentDigest,
			Latest:    ref.Digest,
			Message:   "reference is pinned to a digest",
		}, nil
	}

	latest, err := m.resolveDigest(ctx, ref)
	if err != nil {
		return UpdateCheckResult{}, err
	}

	if currentDigest == "" {
		return UpdateCheckResult{Current: currentDigest, Latest: latest, Message: "no known current digest"}, nil
	}

	if currentDigest == latest {
		return UpdateCheckResult{HasUpdate: false, Current: currentDigest, Latest: latest}, nil
	}
	return UpdateCheckResult{HasUpdate: true, Current: currentDigest, Latest: latest, Message: "newer digest available"}, nil
}

// CheckManyRequest pairs an image reference with its container's recorded digest.
type CheckManyRequest struct {
	Key           string
	Ref           reference.ImageReference
	CurrentDigest string
}

// CheckManyResult is one CheckManyRequest's outcome, keyed the same way.
type CheckManyResult struct {
	Key    string
	Result UpdateCheckResult
	Err    error
}

// CheckMany runs CheckForUpdate across requests concurrently, deduplicating
// identical (registry, repository, tag) lookups so N containers on one image
// still cost one registry round trip.
func (m *Manager) CheckMany(ctx context.Context, requests []CheckManyRequest) []CheckManyResult {
	results := make([]CheckManyResult, len(requests))
	var wg sync.WaitGroup
	wg.Add(len(requests))

	for i, req := range requests {
		go func(i int, req CheckManyRequest) {
			defer wg.Done()
			res, err := m.CheckForUpdate(ctx, req.Ref, req.CurrentDigest)
			results[i] = CheckManyResult{Key: req.Key, Result: res, Err: err}
		}(i, req)
	}

	wg.Wait()
	return results
}

// resolveDigest fetches ref's current manifest digest, serialized per image
// identity and fronted by a short-lived cache and a per-registry circuit breaker.
func (m *Manager) resolveDigest(ctx context.Context, ref reference.ImageReference) (string, error) {
	cacheKey := reference.WireHost(ref) + "/" + reference.RepositoryPath(ref) + ":" + ref.Tag

	unlock := m.inFlight.lock(cacheKey)
	defer unlock()

	if val, ok := m.digests.Get(cacheKey); ok {
		if digest, ok := val.(string); ok {
			return digest, nil
		}
	}

	if !m.circuit.Allow(ref.Registry) {
		return "", fmt.Errorf("%w: %s", ErrCircuitOpen, ref.Registry)
	}

	digest, err := m.client.HeadManifestDigest(ctx, ref)
	if err != nil {
		m.circuit.RecordFailure(ref.Registry)
		if m.log != nil {
			m.log.WithField("registry", ref.Registry).Warn("manifest digest lookup failed: %v", err)
		}
		return "", err
	}
	m.circuit.RecordSuccess(ref.Registry)

	m.digests.SetWithTTL(cacheKey, digest, digestCacheTTL)
	return digest, nil
}

const digestCacheTTL = 5 * time.Minute
