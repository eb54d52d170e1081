// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

package pipeline

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
	"github.com/openregistry/registry-gateway/internal/ratelimit"
)

// ============================================================================
// Test Helpers
// ============================================================================

const (
	testIssuer   = "https://login.example.test/registry"
	testAudience = "api://registry-gateway"
	testOrigin   = "https://portal.example.test"
)

// testHarness wires real components around in-memory fakes.
type testHarness struct {
	orchestrator *Orchestrator
	signingKey   *rsa.PrivateKey
	csrf         *auth.CSRFGuard
	records      [][]StageRecord
}

type fakeStore struct {
	records map[string]*auth.SubjectRecord
}

func (s *fakeStore) LookupSubject(_ context.Context, subjectID string) (*auth.SubjectRecord, error) {
	rec, ok := s.records[subjectID]
	if !ok {
		return nil, auth.ErrSubjectNotFound
	}
	return rec, nil
}

type fakeRegistry struct{}

func (fakeRegistry) PermissionsForRole(role string) []string {
	switch role {
	case "entity_admin":
		return []string{"READ_OWN_ENTITY", "WRITE_OWN_ENTITY"}
	case "service_sync":
		return []string{"READ_ALL_ENTITIES"}
	default:
		return nil
	}
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating RSA key: %v", err)
	}

	// JWKS server backing the key cache.
	jwksSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		doc := map[string]any{"keys": []map[string]string{{
			"kty": "RSA", "kid": "test-key", "alg": "RS256", "use": "sig",
			"n": base64.RawURLEncoding.EncodeToString(priv.PublicKey.N.Bytes()),
			"e": base64.RawURLEncoding.EncodeToString(big.NewInt(int64(priv.PublicKey.E)).Bytes()),
		}}}
		_ = json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(jwksSrv.Close)

	keys := auth.NewKeyCache(jwksSrv.URL)
	validator := auth.NewTokenValidator(keys, testIssuer, testAudience)
	store := &fakeStore{records: map[string]*auth.SubjectRecord{
		"user-1": {OwnerEntityID: "entity-7", Role: "entity_admin", Status: auth.SubjectStatusActive},
	}}
	resolver := auth.NewIdentityResolver(store, fakeRegistry{}, auth.IdentityResolverConfig{})
	csrf := auth.NewCSRFGuard(auth.CSRFConfig{
		HashKey: []byte("0123456789abcdef0123456789abcdef"),
	})
	limiter := ratelimit.NewLimiter(map[string]ratelimit.Profile{
		"tight":   {Limit: 3, Window: time.Minute},
		"default": {Limit: 1000, Window: time.Minute},
	})
	cors := NewCORSPolicy(CORSConfig{AllowedOrigins: []string{testOrigin}})

	h := &testHarness{signingKey: priv, csrf: csrf}
	h.orchestrator = NewOrchestrator(Components{
		CORS:      cors,
		Limiter:   limiter,
		Validator: validator,
		Resolver:  resolver,
		Evaluator: authz.NewEvaluator(),
		CSRF:      csrf,
	}, WithCompletionHook(func(records []StageRecord) {
		h.records = append(h.records, records)
	}))
	return h
}

// mintToken signs a token with the harness key.
func (h *testHarness) mintToken(t *testing.T, claims jwt.MapClaims) string {
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

// serve runs one request through the pipeline in front of a marker handler.
func (h *testHarness) serve(route RouteSpec, r *http.Request) (*httptest.ResponseRecorder, bool) {
	reached := false
	handler := h.orchestrator.Handler(route, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	return rec, reached
}

// lastRecord returns the most recent execution record.
func (h *testHarness) lastRecord(t *testing.T) []StageRecord {
	t.Helper()
	if len(h.records) == 0 {
		t.Fatal("no execution record captured")
	}
	return h.records[len(h.records)-1]
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) (code, requestID string) {
	t.Helper()
	var env struct {
		Error     string `json:"error"`
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding envelope: %v (body %q)", err, rec.Body.String())
	}
	return env.Error, env.RequestID
}

func protectedRoute() RouteSpec {
	return RouteSpec{
		Name:         "update-entity",
		RequiresAuth: true,
		Requirement:  authz.Requirement{Permissions: []string{"WRITE_OWN_ENTITY"}},
	}
}

// ============================================================================
// Orchestrator Tests
// ============================================================================

func TestPipelinePassesAuthorizedRequest(t *testing.T) {
	h := newHarness(t)
	token := h.mintToken(t, jwt.MapClaims{"oid": "user-1"})

	r := httptest.NewRequest(http.MethodGet, "/api/entities/self", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	rec, reached := h.serve(protectedRoute(), r)
	if !reached {
		t.Fatalf("handler not reached: %d %s", rec.Code, rec.Body.String())
	}

	record := h.lastRecord(t)
	wantOrder := []string{
		StageCORS, StageRateLimit, StageTokenValidate,
		StageIdentityResolve, StagePermissionEvaluate, StageCSRF,
	}
	if len(record) != len(wantOrder) {
		t.Fatalf("record has %d stages, want %d", len(record), len(wantOrder))
	}
	for i, want := range wantOrder {
		if record[i].Stage != want {
			t.Errorf("stage %d = %s, want %s", i, record[i].Stage, want)
		}
	}
}

func TestPipelineShortCircuitsOnInvalidToken(t *testing.T) {
	h := newHarness(t)

	r := httptest.NewRequest(http.MethodGet, "/api/entities/self", nil)
	r.Header.Set("Authorization", "Bearer not.a.token")

	rec, reached := h.serve(protectedRoute(), r)
	if reached {
		t.Fatal("handler reached with invalid token")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}

	record := h.lastRecord(t)
	last := record[len(record)-1]
	if last.Stage != StageTokenValidate || last.Outcome != "reject" {
		t.Errorf("last record = %+v, want token_validate reject", last)
	}
	// Nothing after the rejecting stage may have run.
	if len(record) != 3 {
		t.Errorf("record has %d stages after short-circuit, want 3", len(record))
	}
}

func TestPipelineMissingAuth(t *testing.T) {
	h := newHarness(t)

	r := httptest.NewRequest(http.MethodGet, "/api/entities/self", nil)
	rec, reached := h.serve(protectedRoute(), r)
	if reached {
		t.Fatal("handler reached without credentials")
	}
	code, requestID := decodeEnvelope(t, rec)
	if code != "missing_auth" {
		t.Errorf("error = %s, want missing_auth", code)
	}
	if requestID == "" {
		t.Error("envelope missing request id")
	}
	if got := rec.Header().Get("X-Request-Id"); got != requestID {
		t.Errorf("header request id %q != envelope %q", got, requestID)
	}
}

func TestPipelineForbidden(t *testing.T) {
	h := newHarness(t)
	// Machine caller whose role grants read-only permissions.
	token := h.mintToken(t, jwt.MapClaims{"azp": "svc-sync", "roles": []string{"service_sync"}})

	r := httptest.NewRequest(http.MethodGet, "/api/entities/self", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	rec, reached := h.serve(protectedRoute(), r)
	if reached {
		t.Fatal("handler reached without required permission")
	}
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	code, _ := decodeEnvelope(t, rec)
	if code != "forbidden" {
		t.Errorf("error = %s, want forbidden", code)
	}
}

func TestPipelineUnknownSubject(t *testing.T) {
	h := newHarness(t)
	token := h.mintToken(t, jwt.MapClaims{"oid": "ghost"})

	r := httptest.NewRequest(http.MethodGet, "/api/entities/self", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	rec, reached := h.serve(protectedRoute(), r)
	if reached {
		t.Fatal("handler reached for unknown subject")
	}
	code, _ := decodeEnvelope(t, rec)
	if code != "identity_not_found" {
		t.Errorf("error = %s, want identity_not_found", code)
	}
}

func TestPipelinePublicRouteSkipsCredentialStages(t *testing.T) {
	h := newHarness(t)
	route := RouteSpec{Name: "submit-registration", RateLimitProfile: "default"}

	r := httptest.NewRequest(http.MethodPost, "/api/registrations", nil)
	_, reached := h.serve(route, r)
	if !reached {
		t.Fatal("public route blocked")
	}

	record := h.lastRecord(t)
	outcomes := map[string]string{}
	for _, sr := range record {
		outcomes[sr.Stage] = sr.Outcome
	}
	for _, stage := range []string{StageTokenValidate, StageIdentityResolve, StagePermissionEvaluate} {
		if outcomes[stage] != "skip" {
			t.Errorf("%s outcome = %s, want skip", stage, outcomes[stage])
		}
	}
}

func TestPipelineRateLimit(t *testing.T) {
	h := newHarness(t)
	route := RouteSpec{Name: "submit-registration", RateLimitProfile: "tight"}

	var rec *httptest.ResponseRecorder
	for i := 0; i < 4; i++ {
		r := httptest.NewRequest(http.MethodPost, "/api/registrations", nil)
		r.RemoteAddr = "203.0.113.9:4711"
		rec, _ = h.serve(route, r)
	}

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 without Retry-After header")
	}
	code, _ := decodeEnvelope(t, rec)
	if code != "rate_limited" {
		t.Errorf("error = %s, want rate_limited", code)
	}

	// A different client address is unaffected.
	r := httptest.NewRequest(http.MethodPost, "/api/registrations", nil)
	r.RemoteAddr = "198.51.100.7:2020"
	if _, reached := h.serve(route, r); !reached {
		t.Error("second client blocked by first client's limit")
	}
}

func TestPipelineCORSPreflight(t *testing.T) {
	h := newHarness(t)

	r := httptest.NewRequest(http.MethodOptions, "/api/entities/self", nil)
	r.Header.Set("Origin", testOrigin)
	r.Header.Set("Access-Control-Request-Method", http.MethodPut)

	rec, reached := h.serve(protectedRoute(), r)
	if reached {
		t.Fatal("preflight reached the handler")
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != testOrigin {
		t.Errorf("allow-origin = %q", got)
	}

	// Preflight is answered without any credential work.
	record := h.lastRecord(t)
	if len(record) != 1 || record[0].Stage != StageCORS || record[0].Outcome != "halt" {
		t.Errorf("record = %+v, want single cors halt", record)
	}
}

func TestPipelineCORSDisallowedPreflight(t *testing.T) {
	h := newHarness(t)

	r := httptest.NewRequest(http.MethodOptions, "/api/entities/self", nil)
	r.Header.Set("Origin", "https://evil.example.test")
	r.Header.Set("Access-Control-Request-Method", http.MethodPut)

	rec, _ := h.serve(protectedRoute(), r)
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("disallowed preflight granted CORS headers")
	}
}

func TestPipelineCORSDisallowedActualRequest(t *testing.T) {
	h := newHarness(t)

	r := httptest.NewRequest(http.MethodGet, "/api/entities/self", nil)
	r.Header.Set("Origin", "https://evil.example.test")

	rec, reached := h.serve(protectedRoute(), r)
	if reached {
		t.Fatal("disallowed origin reached the handler")
	}
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	code, _ := decodeEnvelope(t, rec)
	if code != "origin_not_allowed" {
		t.Errorf("error = %s, want origin_not_allowed", code)
	}

	// Rejected before any credential stage ran.
	record := h.lastRecord(t)
	if len(record) != 1 || record[0].Stage != StageCORS {
		t.Errorf("record = %+v, want single cors reject", record)
	}
}

func TestPipelineCSRFOnBrowserMutation(t *testing.T) {
	h := newHarness(t)
	token := h.mintToken(t, jwt.MapClaims{"oid": "user-1"})

	// Browser session without the anti-forgery token.
	r := httptest.NewRequest(http.MethodPost, "/api/entities/self", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	r.AddCookie(&http.Cookie{Name: "__rg_session", Value: "sess"})

	rec, reached := h.serve(protectedRoute(), r)
	if reached {
		t.Fatal("mutating browser request passed without anti-forgery token")
	}
	code, _ := decodeEnvelope(t, rec)
	if code != "csrf_rejected" {
		t.Errorf("error = %s, want csrf_rejected", code)
	}

	// With a minted token the same request passes.
	issueRec := httptest.NewRecorder()
	csrfToken, err := h.csrf.IssueToken(issueRec, "user-1")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	r2 := httptest.NewRequest(http.MethodPost, "/api/entities/self", nil)
	r2.Header.Set("Authorization", "Bearer "+token)
	r2.AddCookie(&http.Cookie{Name: "__rg_session", Value: "sess"})
	r2.AddCookie(issueRec.Result().Cookies()[0])
	r2.Header.Set("X-CSRF-Token", csrfToken)

	if _, reached := h.serve(protectedRoute(), r2); !reached {
		t.Error("valid anti-forgery token rejected")
	}
}

func TestPipelineHonorsInboundRequestID(t *testing.T) {
	h := newHarness(t)

	r := httptest.NewRequest(http.MethodGet, "/api/entities/self", nil)
	r.Header.Set("X-Request-Id", "edge-assigned-42")

	rec, _ := h.serve(protectedRoute(), r)
	if got := rec.Header().Get("X-Request-Id"); got != "edge-assigned-42" {
		t.Errorf("request id = %q, want edge-assigned-42", got)
	}
	_, requestID := decodeEnvelope(t, rec)
	if requestID != "edge-assigned-42" {
		t.Errorf("envelope request id = %q", requestID)
	}
}

func TestPipelineInjectsAuthContext(t *testing.T) {
	h := newHarness(t)
	token := h.mintToken(t, jwt.MapClaims{"oid": "user-1"})

	var got *auth.Context
	handler := h.orchestrator.Handler(protectedRoute(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = auth.FromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/entities/self", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), r)

	if got == nil {
		t.Fatal("no auth context injected")
	}
	if got.SubjectID != "user-1" || got.OwnerEntityID != "entity-7" {
		t.Errorf("context = %+v", got)
	}
	if got.RequestID == "" {
		t.Error("auth context missing request id")
	}
	if !got.HasPermission("WRITE_OWN_ENTITY") {
		t.Errorf("permissions = %v", got.Permissions)
	}
}
