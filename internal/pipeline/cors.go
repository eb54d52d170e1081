// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

package pipeline

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/openregistry/registry-gateway/internal/auth"
)

// CORSPolicy enforces the cross-origin allow set for the registration
// portals. Matching is exact string comparison of the Origin header against
// the configured set; no wildcards and no suffix matching, so a lookalike
// origin cannot slip through a pattern.
type CORSPolicy struct {
	allowed          map[string]struct{}
	allowedMethods   string
	allowedHeaders   string
	maxAge           string
	allowCredentials bool
}

// CORSConfig holds cross-origin policy configuration.
type CORSConfig struct {
	// AllowedOrigins is the exact-match origin allow set.
	AllowedOrigins []string

	// AllowedMethods for preflight responses.
	// Default: GET, POST, PUT, PATCH, DELETE.
	AllowedMethods []string

	// AllowedHeaders for preflight responses.
	// Default: Authorization, Content-Type, X-CSRF-Token, X-Request-Id.
	AllowedHeaders []string

	// MaxAgeSeconds caps preflight caching. Default: 600.
	MaxAgeSeconds int

	// AllowCredentials permits cookies on cross-origin requests. The portal
	// session and anti-forgery cookies need this; deployments serving only
	// bearer-token callers can switch it off.
	AllowCredentials bool
}

// NewCORSPolicy creates the policy from configuration.
func NewCORSPolicy(cfg CORSConfig) *CORSPolicy {
	if len(cfg.AllowedMethods) == 0 {
		cfg.AllowedMethods = []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete,
		}
	}
	if len(cfg.AllowedHeaders) == 0 {
		cfg.AllowedHeaders = []string{
			"Authorization", "Content-Type", "X-CSRF-Token", "X-Request-Id",
		}
	}
	if cfg.MaxAgeSeconds <= 0 {
		cfg.MaxAgeSeconds = 600
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = struct{}{}
	}
	return &CORSPolicy{
		allowed:          allowed,
		allowedMethods:   strings.Join(cfg.AllowedMethods, ", "),
		allowedHeaders:   strings.Join(cfg.AllowedHeaders, ", "),
		maxAge:           strconv.Itoa(cfg.MaxAgeSeconds),
		allowCredentials: cfg.AllowCredentials,
	}
}

// Apply enforces the policy on one request.
//
// Same-origin and non-browser requests carry no Origin header and pass
// untouched. Preflights are answered here and never reach later stages: an
// allowed origin gets the grant headers, a disallowed one gets a bare 204
// and the browser enforces the denial. An actual cross-origin request from
// a disallowed origin is rejected outright.
func (p *CORSPolicy) Apply(w http.ResponseWriter, r *http.Request) StageResult {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return StageResult{}
	}

	_, ok := p.allowed[origin]

	if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
		if ok {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", p.allowedMethods)
			h.Set("Access-Control-Allow-Headers", p.allowedHeaders)
			if p.allowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			h.Set("Access-Control-Max-Age", p.maxAge)
			h.Add("Vary", "Origin")
		}
		w.WriteHeader(http.StatusNoContent)
		return StageResult{Halt: true}
	}

	if !ok {
		return StageResult{Rejection: auth.Reject(auth.CodeOriginNotAllowed)}
	}

	h := w.Header()
	h.Set("Access-Control-Allow-Origin", origin)
	if p.allowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	h.Add("Vary", "Origin")
	return StageResult{}
}
