// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

// Package main is the entry point for the registry gateway.
//
// The gateway is the single security checkpoint in front of the business
// registration platform's backend services. Every request from the public
// registration portal, the agent booking portal, and service-to-service
// callers passes a fixed pipeline of checks (cross-origin policy, rate
// limiting, token verification, identity resolution, permission
// evaluation, anti-forgery) before being proxied upstream.
//
// # Configuration
//
// Configuration is loaded via koanf with layered sources (highest priority
// wins):
//   - GATEWAY_* environment variables
//   - Config file (gateway.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// Minimum required settings:
//
//	export GATEWAY_IDP_ISSUER=https://login.example.com/registry
//	export GATEWAY_IDP_AUDIENCE=api://registry-gateway
//	export GATEWAY_IDP_JWKS_URI=https://login.example.com/registry/discovery/keys
//	export GATEWAY_CSRF_HASH_KEY=$(openssl rand -hex 32)
//	./gateway
//
// # Signal Handling
//
// The gateway shuts down gracefully on SIGINT and SIGTERM: the listener
// stops accepting connections, in-flight requests get the configured
// shutdown timeout, then the supervisor tree winds down.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openregistry/registry-gateway/internal/api"
	"github.com/openregistry/registry-gateway/internal/auth"
	"github.com/openregistry/registry-gateway/internal/authz"
	"github.com/openregistry/registry-gateway/internal/config"
	"github.com/openregistry/registry-gateway/internal/logging"
	"github.com/openregistry/registry-gateway/internal/pipeline"
	"github.com/openregistry/registry-gateway/internal/ratelimit"
	"github.com/openregistry/registry-gateway/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Config errors use the default logger; the configured one does
		// not exist yet.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("environment", cfg.Environment).
		Str("issuer", cfg.IdentityProvider.Issuer).
		Int("port", cfg.Server.Port).
		Msg("Starting registry gateway")

	components, keys, limiter, err := buildComponents(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build security components")
	}

	orchestrator := pipeline.NewOrchestrator(*components)
	router := api.NewRouter(cfg, orchestrator, components.CSRF, keys).Setup()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddBackgroundService(supervisor.NewKeyRefreshService(keys, 0))
	tree.AddBackgroundService(supervisor.NewSweepService(
		limiter, cfg.RateLimit.SweepInterval, cfg.RateLimit.SweepMaxIdle))
	tree.AddAPIService(supervisor.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Warm the signing key cache before accepting traffic. Failure is not
	// fatal; the refresh service keeps retrying and readyz stays negative
	// until a fetch succeeds.
	primeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := keys.Prime(primeCtx); err != nil {
		logging.Warn().Err(err).Msg("Initial signing key fetch failed; gateway starts unready")
	}
	cancel()

	logging.Info().Str("addr", server.Addr).Msg("Gateway listening")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Fatal().Err(err).Msg("Supervisor tree terminated")
	}
	logging.Info().Msg("Gateway stopped")
}

// buildComponents wires the pipeline's security components from config.
func buildComponents(cfg *config.Config) (*pipeline.Components, *auth.KeyCache, *ratelimit.Limiter, error) {
	keys := auth.NewKeyCache(cfg.IdentityProvider.JWKSURI,
		auth.WithKeyTTL(cfg.IdentityProvider.KeyCacheTTL),
		auth.WithRefreshInterval(cfg.IdentityProvider.RefreshMinInterval),
	)
	validator := auth.NewTokenValidator(keys,
		cfg.IdentityProvider.Issuer, cfg.IdentityProvider.Audience)

	registry, err := authz.NewPolicyRegistry(authz.RegistryConfig{
		ModelPath:      cfg.Authz.ModelPath,
		PolicyPath:     cfg.Authz.PolicyPath,
		AutoReload:     cfg.Authz.AutoReload,
		ReloadInterval: cfg.Authz.ReloadInterval,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("policy registry: %w", err)
	}

	var store auth.IdentityStore
	if cfg.IdentityStore.Endpoint != "" {
		store = auth.NewHTTPIdentityStore(cfg.IdentityStore.Endpoint, nil)
	} else {
		logging.Warn().Msg("No identity store endpoint configured; using empty in-memory store")
		store = auth.NewStaticIdentityStore()
	}
	resolver := auth.NewIdentityResolver(store, registry, auth.IdentityResolverConfig{
		LookupTimeout:           cfg.IdentityStore.LookupTimeout,
		BreakerFailureThreshold: cfg.IdentityStore.BreakerFailureThreshold,
		BreakerCooldown:         cfg.IdentityStore.BreakerCooldown,
	})

	csrf := auth.NewCSRFGuard(auth.CSRFConfig{
		HashKey:           []byte(cfg.CSRF.HashKey),
		BlockKey:          []byte(cfg.CSRF.BlockKey),
		CookieName:        cfg.CSRF.CookieName,
		HeaderName:        cfg.CSRF.HeaderName,
		SessionCookieName: cfg.CSRF.SessionCookieName,
		TokenTTL:          cfg.CSRF.TokenTTL,
		CookieSecure:      cfg.CSRF.CookieSecure,
	})

	profiles := make(map[string]ratelimit.Profile, len(cfg.RateLimit.Profiles))
	for name, p := range cfg.RateLimit.Profiles {
		profiles[name] = ratelimit.Profile{Limit: p.Limit, Window: p.Window}
	}
	limiter := ratelimit.NewLimiter(profiles)

	cors := pipeline.NewCORSPolicy(pipeline.CORSConfig{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		MaxAgeSeconds:    cfg.CORS.MaxAgeSeconds,
		AllowCredentials: cfg.CORS.AllowCredentials,
	})

	return &pipeline.Components{
		CORS:      cors,
		Limiter:   limiter,
		Validator: validator,
		Resolver:  resolver,
		Evaluator: authz.NewEvaluator(),
		CSRF:      csrf,
	}, keys, limiter, nil
}
