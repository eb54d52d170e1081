// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that required configuration is present and valid. Called
// once at load time; the gateway refuses to start on any failure.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return describeValidationError(err)
	}

	checks := []func() error{
		c.validateIdentityProvider,
		c.validateCORS,
		c.validateRateLimit,
		c.validateCSRF,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}

	if c.IsProduction() {
		return c.validateProduction()
	}
	return nil
}

// describeValidationError rewrites validator output into the env-var
// oriented messages operators act on.
func describeValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	first := verrs[0]
	return fmt.Errorf("invalid configuration value for %s (rule: %s)",
		strings.TrimPrefix(first.Namespace(), "Config."), first.Tag())
}

func (c *Config) validateIdentityProvider() error {
	ip := c.IdentityProvider
	if ip.KeyCacheTTL <= 0 {
		return fmt.Errorf("GATEWAY_IDP_KEY_CACHE_TTL must be positive")
	}
	if ip.RefreshMinInterval <= 0 {
		return fmt.Errorf("GATEWAY_IDP_REFRESH_MIN_INTERVAL must be positive")
	}
	if ip.RefreshMinInterval >= ip.KeyCacheTTL {
		return fmt.Errorf("GATEWAY_IDP_REFRESH_MIN_INTERVAL must be shorter than the key cache TTL")
	}
	return nil
}

func (c *Config) validateCORS() error {
	for _, origin := range c.CORS.AllowedOrigins {
		if origin == "*" {
			return fmt.Errorf("GATEWAY_CORS_ALLOWED_ORIGINS must not contain a wildcard; list each portal origin explicitly")
		}
		if strings.HasSuffix(origin, "/") {
			return fmt.Errorf("GATEWAY_CORS_ALLOWED_ORIGINS entry %q must not have a trailing slash", origin)
		}
	}
	return nil
}

func (c *Config) validateRateLimit() error {
	for name, p := range c.RateLimit.Profiles {
		if p.Limit < 1 {
			return fmt.Errorf("rate limit profile %q must allow at least one request per window", name)
		}
		// Window arithmetic works in whole seconds; a shorter window would
		// divide by zero.
		if p.Window < time.Second {
			return fmt.Errorf("rate limit profile %q window must be at least one second", name)
		}
	}
	if c.RateLimit.SweepInterval <= 0 || c.RateLimit.SweepMaxIdle <= 0 {
		return fmt.Errorf("rate limit sweep interval and max idle must be positive")
	}
	return nil
}

func (c *Config) validateCSRF() error {
	if c.CSRF.HashKey == "" {
		return fmt.Errorf("GATEWAY_CSRF_HASH_KEY is required")
	}
	if len(c.CSRF.HashKey) < 32 {
		return fmt.Errorf("GATEWAY_CSRF_HASH_KEY must be at least 32 bytes")
	}
	if bk := len(c.CSRF.BlockKey); bk != 0 && bk != 16 && bk != 24 && bk != 32 {
		return fmt.Errorf("GATEWAY_CSRF_BLOCK_KEY must be 16, 24 or 32 bytes when set")
	}
	return nil
}

// validateProduction refuses development conveniences in production.
func (c *Config) validateProduction() error {
	if len(c.CORS.AllowedOrigins) == 0 {
		return fmt.Errorf("production requires an explicit GATEWAY_CORS_ALLOWED_ORIGINS allow set")
	}
	if c.IdentityStore.Endpoint == "" {
		return fmt.Errorf("production requires GATEWAY_IDENTITY_ENDPOINT; the in-memory store is development only")
	}
	if !c.CSRF.CookieSecure {
		return fmt.Errorf("production requires GATEWAY_CSRF_COOKIE_SECURE=true")
	}
	for _, origin := range c.CORS.AllowedOrigins {
		if strings.HasPrefix(origin, "http://") {
			return fmt.Errorf("production origin %q must use https", origin)
		}
	}
	return nil
}
