// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/openregistry/registry-gateway/internal/logging"
	"github.com/openregistry/registry-gateway/internal/metrics"
)

// ErrKeyNotFound indicates the key id is absent from the current key set.
// A key absent from a freshly fetched set is treated as revoked even if it
// was present before.
var ErrKeyNotFound = errors.New("signing key not found")

// ErrKeySetUnavailable indicates the provider is unreachable and no cached
// key set exists. Dependent validations fail closed.
var ErrKeySetUnavailable = errors.New("signing key set unavailable")

// SigningKey is one entry of the identity provider's published key set.
// Algorithm comes from the provider's key metadata, never from a token.
type SigningKey struct {
	KeyID     string
	Algorithm string
	PublicKey *rsa.PublicKey
}

// KeyCache fetches and caches the identity provider's public signing keys.
//
// It is safe for concurrent use by many request goroutines. At most one
// fetch of the key set is in flight at a time; concurrent callers that miss
// the cache share the in-flight fetch's result rather than issuing duplicate
// network calls. A successful fetch replaces the whole key map, so rotation
// revokes old keys immediately.
type KeyCache struct {
	uri        string
	httpClient *http.Client
	ttl        time.Duration
	clock      func() time.Time

	group    singleflight.Group
	throttle *rate.Limiter

	mu      sync.RWMutex
	keys    map[string]*SigningKey
	fetched time.Time
}

// KeyCacheOption configures a KeyCache.
type KeyCacheOption func(*KeyCache)

// WithHTTPClient sets the HTTP client used for key set fetches.
func WithHTTPClient(client *http.Client) KeyCacheOption {
	return func(c *KeyCache) { c.httpClient = client }
}

// WithKeyTTL sets how long a fetched key set is served before the next
// access triggers a refresh.
func WithKeyTTL(ttl time.Duration) KeyCacheOption {
	return func(c *KeyCache) { c.ttl = ttl }
}

// WithClock substitutes the time source. Tests use this to force staleness
// deterministically.
func WithClock(clock func() time.Time) KeyCacheOption {
	return func(c *KeyCache) { c.clock = clock }
}

// WithRefreshInterval bounds how often fetch attempts may hit the provider.
// Repeated unknown-kid lookups must not turn into a fetch storm.
func WithRefreshInterval(min time.Duration) KeyCacheOption {
	return func(c *KeyCache) {
		c.throttle = rate.NewLimiter(rate.Every(min), 1)
	}
}

// NewKeyCache creates a signing-key cache for the given JWKS discovery URI.
func NewKeyCache(uri string, opts ...KeyCacheOption) *KeyCache {
	c := &KeyCache{
		uri:        uri,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		ttl:        10 * time.Minute,
		clock:      time.Now,
		throttle:   rate.NewLimiter(rate.Every(10*time.Second), 2),
		keys:       make(map[string]*SigningKey),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetKey returns the signing key for the given key id, refreshing the cached
// set when it is stale or the id is unknown. Returns ErrKeyNotFound when the
// id is absent from a current set, and ErrKeySetUnavailable when the
// provider cannot be reached and nothing usable is cached.
func (c *KeyCache) GetKey(ctx context.Context, kid string) (*SigningKey, error) {
	c.mu.RLock()
	key, ok := c.keys[kid]
	stale := c.fetched.IsZero() || c.clock().Sub(c.fetched) > c.ttl
	c.mu.RUnlock()

	if ok && !stale {
		metrics.JWKSCacheHits.Inc()
		return key, nil
	}
	metrics.JWKSCacheMisses.Inc()

	if err := c.refresh(ctx); err != nil {
		// Last-known-good: a stale key is still usable while the provider
		// is briefly unreachable. With nothing cached there is no fallback.
		if ok {
			logging.Warn().Err(err).Str("kid", kid).Msg("key set refresh failed, serving cached key")
			return key, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrKeySetUnavailable, err)
	}

	c.mu.RLock()
	key, ok = c.keys[kid]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return key, nil
}

// Prime fetches the key set eagerly. Called at startup and by the background
// refresher so request latency does not absorb cold fetches.
func (c *KeyCache) Prime(ctx context.Context) error {
	return c.refresh(ctx)
}

// Primed reports whether a key set has been fetched successfully at least
// once. The readiness endpoint consults this.
func (c *KeyCache) Primed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.fetched.IsZero()
}

// TTL returns the configured key set lifetime.
func (c *KeyCache) TTL() time.Duration {
	return c.ttl
}

// refresh fetches the key set once, shared across concurrent callers.
func (c *KeyCache) refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("jwks", func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		fresh := !c.fetched.IsZero() && now.Sub(c.fetched) <= c.ttl
		c.mu.RUnlock()

		// A fresh set refetches only for unknown-kid lookups, and those are
		// throttled so repeated misses never become a fetch storm. A stale
		// or empty set always fetches: a retired key must stop verifying
		// once its set expires.
		allowed := c.throttle.AllowN(now, 1)
		if fresh && !allowed {
			return nil, nil
		}

		start := c.clock()
		keys, err := c.fetchKeySet(ctx)
		metrics.RecordJWKSFetch(c.clock().Sub(start))
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.keys = keys
		c.fetched = c.clock()
		c.mu.Unlock()

		logging.Debug().Int("keys", len(keys)).Msg("signing key set refreshed")
		return nil, nil
	})
	return err
}

// fetchKeySet retrieves and parses the provider's JWKS document.
func (c *KeyCache) fetchKeySet(ctx context.Context) (map[string]*SigningKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.uri, http.NoBody)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("key set fetch failed with status %d", resp.StatusCode)
	}

	var jwks struct {
		Keys []struct {
			Kty string `json:"kty"`
			Kid string `json:"kid"`
			Alg string `json:"alg"`
			Use string `json:"use"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("failed to decode key set: %w", err)
	}

	keys := make(map[string]*SigningKey)
	for _, k := range jwks.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		if k.Use != "" && k.Use != "sig" {
			continue
		}

		nBytes, err := base64URLDecode(k.N)
		if err != nil {
			continue
		}
		eBytes, err := base64URLDecode(k.E)
		if err != nil {
			continue
		}

		e := 0
		for _, b := range eBytes {
			e = e<<8 + int(b)
		}

		alg := k.Alg
		if alg == "" {
			alg = "RS256"
		}

		keys[k.Kid] = &SigningKey{
			KeyID:     k.Kid,
			Algorithm: alg,
			PublicKey: &rsa.PublicKey{
				N: new(big.Int).SetBytes(nBytes),
				E: e,
			},
		}
	}

	if len(keys) == 0 {
		return nil, errors.New("key set contained no usable RSA keys")
	}
	return keys, nil
}

// base64URLDecode decodes a base64url string, padding as needed.
func base64URLDecode(s string) ([]byte, error) {
	switch len(s) % 4 {
	case 2:
		s += "=="
	case 3:
		s += "="
	}
	return base64.URLEncoding.DecodeString(s)
}
