package registry

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"ing.wik/watchz/internal/logging"
	"ing.wik/watchz/internal/reference"
)

// CredentialLookup resolves a stored credential for a registry host.
type CredentialLookup interface {
	Lookup(registry string) (Credential, bool)
}

// Client fetches manifest digests from an OCI-distribution v2 registry,
// discovering and caching bearer tokens on demand.
type Client struct {
	httpClient *http.Client
	creds      CredentialLookup
	tokens     *RegistryCache
	log        *logging.Logger

	// tokenInFlight serializes token refresh per cache key so that N
	// concurrent callers hitting the same registry+repository cause one
	// token fetch, not N; fetchToken also uses it per registry host.
	tokenInFlight *keyedMutex

	// limiter caps outbound requests per registry host, independent of the
	// per-call retry-with-backoff in doWithRetry.
	limiter *registryLimiter
}

// NewClient builds a registry client. creds may be nil (anonymous only).
func NewClient(creds CredentialLookup, log *logging.Logger) *Client {
	return &Client{
		httpClient:    &http.Client{Timeout: DefaultHTTPTimeout},
		creds:         creds,
		tokens:        NewRegistryCache(defaultCacheTTL),
		log:           log,
		tokenInFlight: newKeyedMutex(),
		limiter:       newRegistryLimiter(),
	}
}

// Close stops the token cache's background sweep.
func (c *Client) Close() {
	c.tokens.Stop()
}

// HeadManifestDigest returns the Docker-Content-Digest of the manifest
// referenced by ref, without transferring the manifest body.
func (c *Client) HeadManifestDigest(ctx context.Context, ref reference.ImageReference) (string, error) {
	resp, err := c.fetchManifest(ctx, ref, http.MethodHead)
	if err != nil {
		return "", err
	}
	defer drain(resp)

	digest := resp.Header.Get("Docker-Content-Digest")
	if digest == "" {
		return "", ErrDigestNotFound
	}
	return digest, nil
}

// GetManifest fetches the manifest body referenced by ref, decompressing a
// gzip-encoded response.
func (c *Client) GetManifest(ctx context.Context, ref reference.ImageReference) ([]byte, error) {
	resp, err := c.fetchManifest(ctx, ref, http.MethodGet)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body := io.Reader(resp.Body)
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("registry: gzip decode: %w", err)
		}
		defer gz.Close()
		body = gz
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("registry: read manifest body: %w", err)
	}
	return data, nil
}

// fetchManifest performs the common HEAD/GET manifest flow: compose the
// request, attach cached-token or Basic auth, retry transient failures, and
// handle a 401 by discovering a bearer token and retrying exactly once.
func (c *Client) fetchManifest(ctx context.Context, ref reference.ImageReference, method string) (*http.Response, error) {
	wireHost := reference.WireHost(ref)

	if err := c.limiter.wait(ctx, wireHost); err != nil {
		return nil, fmt.Errorf("registry: rate limit wait for %s: %w", wireHost, err)
	}
	repoPath := reference.RepositoryPath(ref)
	target := url.URL{Scheme: "https", Host: wireHost, Path: "/v2/" + repoPath + "/manifests/" + ref.Tag}

	cacheKey := tokenCacheKey(ref.Registry, repoPath, "")

	resp, err := c.doManifestRequest(ctx, method, target.String(), cacheKey)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		if err := c.discoverAndCacheToken(ctx, resp, ref.Registry, repoPath, cacheKey); err != nil {
			return nil, err
		}

		resp, err = c.doManifestRequest(ctx, method, target.String(), cacheKey)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			drain(resp)
			return nil, ErrAuthenticationFailed
		}
	}

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return c.followRedirects(ctx, resp, method, cacheKey)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer drain(resp)
		return nil, &ManifestFetchFailedError{StatusCode: resp.StatusCode, Body: readBodySnippet(resp)}
	}

	return resp, nil
}

func (c *Client) followRedirects(ctx context.Context, resp *http.Response, method, cacheKey string) (*http.Response, error) {
	for hops := 0; hops < maxRedirects; hops++ {
		loc := resp.Header.Get("Location")
		drain(resp)
		if loc == "" {
			return nil, fmt.Errorf("registry: redirect with no Location header")
		}
		var err error
		resp, err = c.doManifestRequest(ctx, method, loc, cacheKey)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 300 || resp.StatusCode >= 400 {
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				defer drain(resp)
				return nil, &ManifestFetchFailedError{StatusCode: resp.StatusCode, Body: readBodySnippet(resp)}
			}
			return resp, nil
		}
	}
	return nil, fmt.Errorf("registry: too many redirects (> %d)", maxRedirects)
}

// doManifestRequest builds and issues a single HEAD/GET manifest request,
// attaching whatever auth is available, retried per the backoff policy.
func (c *Client) doManifestRequest(ctx context.Context, method, target, cacheKey string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("registry: build request: %w", err)
	}
	for _, mt := range AcceptedManifestTypes {
		req.Header.Add("Accept", mt)
	}

	if grant, ok := c.cachedToken(cacheKey); ok {
		req.Header.Set("Authorization", "Bearer "+grant.Token)
	} else if cred, ok := c.lookupCredential(hostFromCacheKey(cacheKey)); ok {
		if cred.BasicAuthB64 != "" {
			req.Header.Set("Authorization", "Basic "+cred.BasicAuthB64)
		} else {
			req.SetBasicAuth(cred.Username, cred.Password)
		}
	}

	return c.doWithRetry(req)
}

// doWithRetry executes req, retrying transient failures up to maxRetries
// times with exponential backoff (1s, 2s, 4s, capped at maxBackoff).
func (c *Client) doWithRetry(req *http.Request) (*http.Response, error) {
	var lastErr error
	backoff := initialBackoff

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(backoff):
			}
			backoff *= backoffMultiplier
		}

		resp, err := c.httpClient.Do(req)
		if err == nil {
			if resp.StatusCode >= 500 && attempt < maxRetries {
				drain(resp)
				lastErr = &ManifestFetchFailedError{StatusCode: resp.StatusCode}
				continue
			}
			return resp, nil
		}

		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}
		lastErr = err
	}

	return nil, fmt.Errorf("registry: after %d attempts: %w", maxRetries+1, lastErr)
}

// discoverAndCacheToken parses the WWW-Authenticate header from a 401 and
// fetches + caches a bearer token, applying the docker.io pre-emptive shortcut.
// A caller that waited on another caller's fetch for the same cache key
// reuses the token that fetch cached instead of fetching its own.
func (c *Client) discoverAndCacheToken(ctx context.Context, resp *http.Response, registryHost, repoPath, cacheKey string) error {
	since := time.Now()
	unlock := c.tokenInFlight.lock(cacheKey)
	defer unlock()
	if grant, ok := c.cachedToken(cacheKey); ok && grant.IssuedAt.After(since) {
		return nil
	}

	challenge, err := c.challengeFor(resp, registryHost, repoPath)
	if err != nil {
		return err
	}

	grant, err := c.fetchToken(ctx, challenge, registryHost)
	if err != nil {
		return err
	}
	c.tokens.Set(cacheKey, grant)
	return nil
}

func (c *Client) challengeFor(resp *http.Response, registryHost, repoPath string) (AuthChallenge, error) {
	if registryHost == reference.DefaultRegistry {
		return AuthChallenge{
			Realm:   dockerIOTokenRealm,
			Service: dockerIOTokenService,
			Scope:   "repository:" + repoPath + ":pull",
		}, nil
	}

	header := resp.Header.Get("WWW-Authenticate")
	if header == "" {
		return AuthChallenge{}, fmt.Errorf("registry: 401 with no WWW-Authenticate header")
	}
	realm := extractAuthParam(header, "realm")
	service := extractAuthParam(header, "service")
	scope := extractAuthParam(header, "scope")
	if realm == "" || service == "" {
		return AuthChallenge{}, fmt.Errorf("registry: WWW-Authenticate missing realm/service: %s", header)
	}
	if scope == "" {
		scope = "repository:" + repoPath + ":pull"
	}
	return AuthChallenge{Realm: realm, Service: service, Scope: scope}, nil
}

var authParamPattern = func(param string) *regexp.Regexp {
	return regexp.MustCompile(param + `="([^"]*)"`)
}

func extractAuthParam(header, param string) string {
	matches := authParamPattern(param).FindStringSubmatch(header)
	if len(matches) > 1 {
		return matches[1]
	}
	return ""
}

// fetchToken requests a bearer token from challenge.Realm, serialized per
// registry host.
func (c *Client) fetchToken(ctx context.Context, challenge AuthChallenge, registryHost string) (TokenGrant, error) {
	unlock := c.tokenInFlight.lock(registryHost)
	defer unlock()

	q := url.Values{}
	if challenge.Service != "" {
		q.Set("service", challenge.Service)
	}
	if challenge.Scope != "" {
		q.Set("scope", challenge.Scope)
	}
	tokenURL := challenge.Realm
	if encoded := q.Encode(); encoded != "" {
		tokenURL += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tokenURL, nil)
	if err != nil {
		return TokenGrant{}, fmt.Errorf("registry: build token request: %w", err)
	}
	if cred, ok := c.lookupCredential(registryHost); ok {
		req.SetBasicAuth(cred.Username, cred.Password)
	}

	resp, err := c.doWithRetry(req)
	if err != nil {
		return TokenGrant{}, fmt.Errorf("registry: fetch token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return TokenGrant{}, fmt.Errorf("%w: token endpoint returned %d", ErrAuthenticationFailed, resp.StatusCode)
	}

	var body struct {
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return TokenGrant{}, fmt.Errorf("registry: decode token response: %w", err)
	}
	token := body.Token
	if token == "" {
		token = body.AccessToken
	}
	if token == "" {
		return TokenGrant{}, fmt.Errorf("%w: no token in response", ErrAuthenticationFailed)
	}

	grant := TokenGrant{Token: token, IssuedAt: time.Now()}
	if body.ExpiresIn > 0 {
		grant.ExpiresIn = time.Duration(body.ExpiresIn) * time.Second
	}
	return grant, nil
}

func (c *Client) cachedToken(cacheKey string) (TokenGrant, bool) {
	val, ok := c.tokens.Get(cacheKey)
	if !ok {
		return TokenGrant{}, false
	}
	grant, ok := val.(TokenGrant)
	if !ok || grant.Expired(time.Now()) {
		return TokenGrant{}, false
	}
	return grant, true
}

func (c *Client) lookupCredential(registryHost string) (Credential, bool) {
	if c.creds == nil {
		return Credential{}, false
	}
	return c.creds.Lookup(registryHost)
}

func tokenCacheKey(registry, repoPath, scope string) string {
	return registry + "|" + repoPath + "|" + scope
}

func hostFromCacheKey(key string) string {
	parts := strings.SplitN(key, "|", 2)
	return parts[0]
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func readBodySnippet(resp *http.Response) string {
	if resp == nil || resp.Body == nil {
		return ""
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return string(data)
}
