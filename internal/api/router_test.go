// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

package api

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"

	"github.com/openregistry/registry-gateway/internal/auth"
	"github.com/openregistry/registry-gateway/internal/authz"
	"github.com/openregistry/registry-gateway/internal/config"
	"github.com/openregistry/registry-gateway/internal/pipeline"
	"github.com/openregistry/registry-gateway/internal/ratelimit"
)

// ============================================================================
// Test Helpers
// ============================================================================

const (
	testIssuer   = "https://login.example.test/registry"
	testAudience = "api://registry-gateway"
)

type routerHarness struct {
	router     http.Handler
	keys       *auth.KeyCache
	signingKey *rsa.PrivateKey

	// upstream records the last proxied request.
	upstreamSeen *http.Request
}

type fakeStore struct{}

func (fakeStore) LookupSubject(_ context.Context, subjectID string) (*auth.SubjectRecord, error) {
	if subjectID != "user-1" {
		return nil, auth.ErrSubjectNotFound
	}
	return &auth.SubjectRecord{
		OwnerEntityID: "entity-7",
		Role:          "entity_admin",
		Status:        auth.SubjectStatusActive,
	}, nil
}

func newRouterHarness(t *testing.T) *routerHarness {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating RSA key: %v", err)
	}

	jwksSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		doc := map[string]any{"keys": []map[string]string{{
			"kty": "RSA", "kid": "test-key", "alg": "RS256", "use": "sig",
			"n": base64.RawURLEncoding.EncodeToString(priv.PublicKey.N.Bytes()),
			"e": base64.RawURLEncoding.EncodeToString(big.NewInt(int64(priv.PublicKey.E)).Bytes()),
		}}}
		_ = json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(jwksSrv.Close)

	h := &routerHarness{signingKey: priv}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clone := r.Clone(r.Context())
		h.upstreamSeen = clone
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(upstream.Close)

	registry, err := authz.NewPolicyRegistry(authz.RegistryConfig{})
	if err != nil {
		t.Fatalf("NewPolicyRegistry: %v", err)
	}

	cfg := &config.Config{
		Environment: "development",
		Server: config.ServerConfig{
			EdgeRequestsPerMinute: 10000,
		},
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"https://portal.example.test"},
			MaxAgeSeconds:  600,
		},
		Upstreams: config.UpstreamsConfig{
			RegistrationAPI: upstream.URL,
			BookingAPI:      upstream.URL,
			AdminAPI:        upstream.URL,
		},
	}

	keys := auth.NewKeyCache(jwksSrv.URL)
	h.keys = keys
	validator := auth.NewTokenValidator(keys, testIssuer, testAudience)
	resolver := auth.NewIdentityResolver(fakeStore{}, registry, auth.IdentityResolverConfig{})
	csrf := auth.NewCSRFGuard(auth.CSRFConfig{
		HashKey: []byte("0123456789abcdef0123456789abcdef"),
	})
	limiter := ratelimit.NewLimiter(nil)
	orchestrator := pipeline.NewOrchestrator(pipeline.Components{
		CORS:      pipeline.NewCORSPolicy(pipeline.CORSConfig{AllowedOrigins: cfg.CORS.AllowedOrigins}),
		Limiter:   limiter,
		Validator: validator,
		Resolver:  resolver,
		Evaluator: authz.NewEvaluator(),
		CSRF:      csrf,
	})

	h.router = NewRouter(cfg, orchestrator, csrf, keys).Setup()
	return h
}

func (h *routerHarness) mintToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["iss"]; !ok {
		claims["iss"] = testIssuer
	}
	if _, ok := claims["aud"]; !ok {
		claims["aud"] = testAudience
	}
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = "test-key"
	signed, err := tok.SignedString(h.signingKey)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func (h *routerHarness) do(r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, r)
	return rec
}

// ============================================================================
// Router Tests
// ============================================================================

func TestHealthz(t *testing.T) {
	h := newRouterHarness(t)
	rec := h.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestReadyzGatedOnKeySet(t *testing.T) {
	h := newRouterHarness(t)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz before key fetch = %d, want 503", rec.Code)
	}

	if err := h.keys.Prime(context.Background()); err != nil {
		t.Fatalf("Prime: %v", err)
	}
	rec = h.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz after key fetch = %d, want 200", rec.Code)
	}
}

func TestMetricsExposed(t *testing.T) {
	h := newRouterHarness(t)
	rec := h.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Error("empty metrics exposition")
	}
}

func TestPublicRegistrationReachesUpstream(t *testing.T) {
	h := newRouterHarness(t)
	rec := h.do(httptest.NewRequest(http.MethodPost, "/api/registrations", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if h.upstreamSeen == nil {
		t.Fatal("upstream never called")
	}
	// Public callers must not be able to smuggle identity headers through.
	if h.upstreamSeen.Header.Get("X-Auth-Subject") != "" {
		t.Error("unauthenticated request carried an identity header upstream")
	}
}

func TestIdentityHeadersNotSpoofable(t *testing.T) {
	h := newRouterHarness(t)
	r := httptest.NewRequest(http.MethodPost, "/api/registrations", nil)
	r.Header.Set("X-Auth-Subject", "forged-admin")
	r.Header.Set("X-Auth-Entity", "entity-1")

	if rec := h.do(r); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := h.upstreamSeen.Header.Get("X-Auth-Subject"); got != "" {
		t.Errorf("forged identity header reached upstream: %q", got)
	}
}

func TestProtectedRouteRequiresAuth(t *testing.T) {
	h := newRouterHarness(t)
	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/entities/self", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var env struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	if env.Error != "missing_auth" {
		t.Errorf("error = %s", env.Error)
	}
}

func TestProtectedRouteForwardsIdentity(t *testing.T) {
	h := newRouterHarness(t)
	token := h.mintToken(t, jwt.MapClaims{"oid": "user-1"})

	r := httptest.NewRequest(http.MethodGet, "/api/entities/self", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	rec := h.do(r)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if got := h.upstreamSeen.Header.Get("X-Auth-Subject"); got != "user-1" {
		t.Errorf("X-Auth-Subject = %q", got)
	}
	if got := h.upstreamSeen.Header.Get("X-Auth-Entity"); got != "entity-7" {
		t.Errorf("X-Auth-Entity = %q", got)
	}
	if got := h.upstreamSeen.Header.Get("X-Auth-Mode"); got != "interactive" {
		t.Errorf("X-Auth-Mode = %q", got)
	}
}

func TestAdminRouteForbiddenForEntityAdmin(t *testing.T) {
	h := newRouterHarness(t)
	token := h.mintToken(t, jwt.MapClaims{"oid": "user-1"})

	r := httptest.NewRequest(http.MethodPost, "/api/admin/registrations/reg-1/approve", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	rec := h.do(r)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestCSRFIssuanceFlow(t *testing.T) {
	h := newRouterHarness(t)
	token := h.mintToken(t, jwt.MapClaims{"oid": "user-1"})

	r := httptest.NewRequest(http.MethodGet, "/auth/csrf", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	rec := h.do(r)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}

	var body struct {
		Token string `json:"csrf_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Token == "" {
		t.Fatal("no token in response")
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "__rg_csrf" {
		t.Fatalf("cookies = %v", cookies)
	}

	// The issued token authorizes a mutating browser request.
	r2 := httptest.NewRequest(http.MethodPut, "/api/entities/self", nil)
	r2.Header.Set("Authorization", "Bearer "+token)
	r2.AddCookie(&http.Cookie{Name: "__rg_session", Value: "sess"})
	r2.AddCookie(cookies[0])
	r2.Header.Set("X-CSRF-Token", body.Token)
	if rec := h.do(r2); rec.Code != http.StatusOK {
		t.Fatalf("mutation with issued token = %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestUnconfiguredUpstream(t *testing.T) {
	rt := NewRouter(&config.Config{}, nil, nil, nil)
	handler := rt.upstreamHandler("")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/bookings", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
