// Package registry is the OCI-distribution v2 registry client: manifest
// digest lookup with bearer-token discovery, Basic auth fallback, and
// retry-with-backoff.
package registry

import (
	"errors"
	"fmt"
	"time"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Manifest media types accepted on a manifest fetch, covering both the
// docker-distribution and OCI namings. The OCI names come straight from
// opencontainers/image-spec rather than being retyped as string literals.
var AcceptedManifestTypes = []string{
	"application/vnd.docker.distribution.manifest.v2+json",
	"application/vnd.docker.distribution.manifest.list.v2+json",
	ocispec.MediaTypeImageManifest,
	ocispec.MediaTypeImageIndex,
}

// Credential is a registry login, keyed by host in the credential store.
type Credential struct {
	Registry     string
	Username     string
	Password     string
	BasicAuthB64 string
}

// AuthChallenge is the parsed form of a WWW-Authenticate: Bearer header.
type AuthChallenge struct {
	Realm   string
	Service string
	Scope   string
}

// TokenGrant is an opaque bearer token plus its cache lifetime.
type TokenGrant struct {
	Token     string
	ExpiresIn time.Duration
	IssuedAt  time.Time
}

// defaultTokenTTL is used when a token response supplies no expires_in.
const defaultTokenTTL = 60 * time.Second

// Expired reports whether the grant has outlived its stated lifetime.
func (g TokenGrant) Expired(now time.Time) bool {
	ttl := g.ExpiresIn
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return now.After(g.IssuedAt.Add(ttl))
}

// UpdateCheckResult is the outcome of comparing a container's current
// manifest digest against the registry's current answer.
type UpdateCheckResult struct {
	HasUpdate bool
	Current   string
	Latest    string
	Message   string
}

// Error kinds. These are sentinel values so callers can errors.Is/As rather
// than string-match; ManifestFetchFailedError additionally carries the
// HTTP status.
var (
	ErrAuthenticationFailed = errors.New("registry: authentication failed")
	ErrDigestNotFound       = errors.New("registry: no Docker-Content-Digest in response")
)

// ManifestFetchFailedError wraps a non-2xx, non-(handled)401 manifest response.
type ManifestFetchFailedError struct {
	StatusCode int
	Body       string
}

func (e *ManifestFetchFailedError) Error() string {
	return fmt.Sprintf("registry: manifest fetch failed: status %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether this failure should be retried under the backoff policy.
func (e *ManifestFetchFailedError) Transient() bool {
	return e.StatusCode >= 500
}
