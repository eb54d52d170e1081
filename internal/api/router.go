// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

package api

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openregistry/registry-gateway/internal/auth"
	"github.com/openregistry/registry-gateway/internal/authz"
	"github.com/openregistry/registry-gateway/internal/config"
	"github.com/openregistry/registry-gateway/internal/logging"
	"github.com/openregistry/registry-gateway/internal/pipeline"
	"github.com/openregistry/registry-gateway/internal/ratelimit"
)

// Router assembles the gateway's HTTP surface.
type Router struct {
	cfg          *config.Config
	orchestrator *pipeline.Orchestrator
	csrf         *auth.CSRFGuard
	keys         *auth.KeyCache
}

// NewRouter creates the router over the wired security components.
func NewRouter(cfg *config.Config, orchestrator *pipeline.Orchestrator, csrf *auth.CSRFGuard, keys *auth.KeyCache) *Router {
	return &Router{
		cfg:          cfg,
		orchestrator: orchestrator,
		csrf:         csrf,
		keys:         keys,
	}
}

// Setup builds the complete handler tree.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	// Coarse flood brake in front of the pipeline's per-caller profiles.
	r.Use(httprate.LimitByIP(rt.cfg.Server.EdgeRequestsPerMinute, time.Minute))

	// Operational endpoints. Browser dashboards read these directly, so
	// they get plain CORS middleware rather than the full pipeline.
	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: rt.cfg.CORS.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet},
			MaxAge:         rt.cfg.CORS.MaxAgeSeconds,
		}))
		r.Get("/healthz", rt.handleHealthz)
		r.Get("/readyz", rt.handleReadyz)
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	})

	// Anti-forgery token issuance for the portal SPAs. Guarded by the
	// pipeline so only an authenticated browser session can mint a token.
	r.Method(http.MethodGet, "/auth/csrf", rt.orchestrator.Handler(pipeline.RouteSpec{
		Name:             "issue-csrf-token",
		RequiresAuth:     true,
		RateLimitProfile: ratelimit.ProfileAuthenticatedRead,
	}, http.HandlerFunc(rt.handleIssueCSRF)))

	rt.mountBusinessRoutes(r)
	return r
}

// businessRoute is one guarded, proxied route.
type businessRoute struct {
	method   string
	pattern  string
	spec     pipeline.RouteSpec
	upstream string
}

// mountBusinessRoutes wires the platform's route table. Each route declares
// its own security posture; nothing is inherited implicitly from the mount
// point.
func (rt *Router) mountBusinessRoutes(r chi.Router) {
	routes := []businessRoute{
		{
			method:  http.MethodPost,
			pattern: "/api/registrations",
			spec: pipeline.RouteSpec{
				Name:             "submit-registration",
				RateLimitProfile: ratelimit.ProfilePublicRegistration,
			},
			upstream: rt.cfg.Upstreams.RegistrationAPI,
		},
		{
			method:  http.MethodGet,
			pattern: "/api/entities/self",
			spec: pipeline.RouteSpec{
				Name:             "read-own-entity",
				RequiresAuth:     true,
				Requirement:      authz.Requirement{Permissions: []string{"READ_OWN_ENTITY", "READ_ALL_ENTITIES"}},
				RateLimitProfile: ratelimit.ProfileAuthenticatedRead,
			},
			upstream: rt.cfg.Upstreams.RegistrationAPI,
		},
		{
			method:  http.MethodPut,
			pattern: "/api/entities/self",
			spec: pipeline.RouteSpec{
				Name:             "update-own-entity",
				RequiresAuth:     true,
				Requirement:      authz.Requirement{Permissions: []string{"WRITE_OWN_ENTITY", "WRITE_ALL_ENTITIES"}},
				RateLimitProfile: ratelimit.ProfileAuthenticatedWrite,
			},
			upstream: rt.cfg.Upstreams.RegistrationAPI,
		},
		{
			method:  http.MethodGet,
			pattern: "/api/bookings",
			spec: pipeline.RouteSpec{
				Name:             "list-own-bookings",
				RequiresAuth:     true,
				Requirement:      authz.Requirement{Permissions: []string{"READ_OWN_BOOKINGS"}},
				RateLimitProfile: ratelimit.ProfileAuthenticatedRead,
			},
			upstream: rt.cfg.Upstreams.BookingAPI,
		},
		{
			method:  http.MethodPost,
			pattern: "/api/bookings",
			spec: pipeline.RouteSpec{
				Name:             "create-booking",
				RequiresAuth:     true,
				Requirement:      authz.Requirement{Permissions: []string{"CREATE_BOOKINGS"}},
				RateLimitProfile: ratelimit.ProfileAuthenticatedWrite,
			},
			upstream: rt.cfg.Upstreams.BookingAPI,
		},
		{
			method:  http.MethodPost,
			pattern: "/api/admin/registrations/{registrationID}/approve",
			spec: pipeline.RouteSpec{
				Name:             "approve-registration",
				RequiresAuth:     true,
				Requirement:      authz.Requirement{Permissions: []string{"APPROVE_REGISTRATIONS"}},
				RateLimitProfile: ratelimit.ProfileAuthenticatedWrite,
			},
			upstream: rt.cfg.Upstreams.AdminAPI,
		},
	}

	for _, route := range routes {
		handler := rt.orchestrator.Handler(route.spec, rt.upstreamHandler(route.upstream))
		r.Method(route.method, route.pattern, handler)
	}
}

// upstreamHandler proxies authorized traffic to a backend service. A route
// whose upstream is not configured answers 503 instead of panicking at
// wire-up time, so a partial deployment degrades per-surface.
func (rt *Router) upstreamHandler(baseURL string) http.Handler {
	if baseURL == "" {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream not configured", http.StatusServiceUnavailable)
		})
	}

	target, err := url.Parse(baseURL)
	if err != nil {
		logging.Error().Err(err).Str("upstream", baseURL).Msg("invalid upstream URL")
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream misconfigured", http.StatusServiceUnavailable)
		})
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logging.Ctx(r.Context()).Error().Err(err).Str("upstream", target.Host).Msg("upstream request failed")
		w.WriteHeader(http.StatusBadGateway)
	}

	director := proxy.Director
	proxy.Director = func(r *http.Request) {
		director(r)
		// The upstream trusts these headers from the gateway only; the
		// caller's own values never pass through.
		r.Header.Del("X-Auth-Subject")
		r.Header.Del("X-Auth-Entity")
		r.Header.Del("X-Auth-Mode")
		if ac := auth.FromContext(r.Context()); ac != nil {
			r.Header.Set("X-Auth-Subject", ac.SubjectID)
			r.Header.Set("X-Auth-Mode", string(ac.Mode))
			if ac.OwnerEntityID != "" {
				r.Header.Set("X-Auth-Entity", ac.OwnerEntityID)
			}
		}
	}
	return proxy
}
