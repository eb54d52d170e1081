// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

package config

import (
	"time"
)

// Config is the root gateway configuration.
type Config struct {
	Environment string `koanf:"environment" validate:"oneof=development staging production"`

	Server           ServerConfig           `koanf:"server"`
	IdentityProvider IdentityProviderConfig `koanf:"identity_provider"`
	IdentityStore    IdentityStoreConfig    `koanf:"identity_store"`
	Authz            AuthzConfig            `koanf:"authz"`
	CORS             CORSConfig             `koanf:"cors"`
	RateLimit        RateLimitConfig        `koanf:"rate_limit"`
	CSRF             CSRFConfig             `koanf:"csrf"`
	Upstreams        UpstreamsConfig        `koanf:"upstreams"`
	Logging          LoggingConfig          `koanf:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// EdgeRequestsPerMinute is the coarse per-IP limit applied at the
	// router edge, in front of the pipeline's per-caller profiles.
	EdgeRequestsPerMinute int `koanf:"edge_requests_per_minute" validate:"min=1"`
}

// IdentityProviderConfig describes the token issuer the gateway trusts.
type IdentityProviderConfig struct {
	Issuer   string `koanf:"issuer" validate:"required,url"`
	Audience string `koanf:"audience" validate:"required"`
	JWKSURI  string `koanf:"jwks_uri" validate:"required,url"`

	// KeyCacheTTL is how long a fetched signing key set is served before
	// refresh.
	KeyCacheTTL time.Duration `koanf:"key_cache_ttl"`

	// RefreshMinInterval bounds how often key fetches may hit the provider.
	RefreshMinInterval time.Duration `koanf:"refresh_min_interval"`
}

// IdentityStoreConfig tunes identity lookups.
type IdentityStoreConfig struct {
	// Endpoint is the internal directory service base URL. Empty selects
	// the in-memory store, which is only useful in development.
	Endpoint string `koanf:"endpoint" validate:"omitempty,url"`

	LookupTimeout           time.Duration `koanf:"lookup_timeout"`
	BreakerFailureThreshold uint32        `koanf:"breaker_failure_threshold"`
	BreakerCooldown         time.Duration `koanf:"breaker_cooldown"`
}

// AuthzConfig points the policy registry at an optional external policy.
type AuthzConfig struct {
	ModelPath      string        `koanf:"model_path"`
	PolicyPath     string        `koanf:"policy_path"`
	AutoReload     bool          `koanf:"auto_reload"`
	ReloadInterval time.Duration `koanf:"reload_interval"`
}

// CORSConfig is the cross-origin allow set for the registration portals.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins" validate:"dive,url"`
	AllowedMethods []string `koanf:"allowed_methods"`
	AllowedHeaders []string `koanf:"allowed_headers"`
	MaxAgeSeconds  int      `koanf:"max_age_seconds"`

	// AllowCredentials permits cookies on cross-origin requests. The portal
	// session and anti-forgery cookies need it, so it defaults on.
	AllowCredentials bool `koanf:"allow_credentials"`
}

// RateLimitProfileConfig is one named request budget.
type RateLimitProfileConfig struct {
	Limit  int           `koanf:"limit" validate:"min=1"`
	Window time.Duration `koanf:"window"`
}

// RateLimitConfig holds the per-caller profiles and sweep tuning.
type RateLimitConfig struct {
	Profiles map[string]RateLimitProfileConfig `koanf:"profiles"`

	// SweepInterval is how often idle counters are evicted.
	SweepInterval time.Duration `koanf:"sweep_interval"`

	// SweepMaxIdle is how long a counter may sit untouched before eviction.
	SweepMaxIdle time.Duration `koanf:"sweep_max_idle"`
}

// CSRFConfig holds the anti-forgery guard keys and cookie settings.
type CSRFConfig struct {
	// HashKey authenticates tokens. Hex or raw string, 32+ bytes.
	HashKey string `koanf:"hash_key"`

	// BlockKey encrypts token contents. Optional; 16, 24 or 32 bytes.
	BlockKey string `koanf:"block_key"`

	CookieName        string        `koanf:"cookie_name"`
	HeaderName        string        `koanf:"header_name"`
	SessionCookieName string        `koanf:"session_cookie_name"`
	TokenTTL          time.Duration `koanf:"token_ttl"`
	CookieSecure      bool          `koanf:"cookie_secure"`
}

// UpstreamsConfig maps portal surfaces to backend base URLs the gateway
// proxies authorized traffic to.
type UpstreamsConfig struct {
	RegistrationAPI string `koanf:"registration_api" validate:"omitempty,url"`
	BookingAPI      string `koanf:"booking_api" validate:"omitempty,url"`
	AdminAPI        string `koanf:"admin_api" validate:"omitempty,url"`
}

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns the built-in defaults, applied before file and
// environment layers.
func defaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host:                  "0.0.0.0",
			Port:                  8460,
			ReadTimeout:           15 * time.Second,
			WriteTimeout:          30 * time.Second,
			IdleTimeout:           120 * time.Second,
			ShutdownTimeout:       20 * time.Second,
			EdgeRequestsPerMinute: 600,
		},
		IdentityProvider: IdentityProviderConfig{
			KeyCacheTTL:        10 * time.Minute,
			RefreshMinInterval: 10 * time.Second,
		},
		IdentityStore: IdentityStoreConfig{
			LookupTimeout:           2 * time.Second,
			BreakerFailureThreshold: 5,
			BreakerCooldown:         15 * time.Second,
		},
		Authz: AuthzConfig{
			AutoReload:     false,
			ReloadInterval: 30 * time.Second,
		},
		CORS: CORSConfig{
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-CSRF-Token", "X-Request-Id"},
			MaxAgeSeconds:    600,
			AllowCredentials: true,
		},
		RateLimit: RateLimitConfig{
			Profiles: map[string]RateLimitProfileConfig{
				"public_registration": {Limit: 5, Window: time.Minute},
				"authenticated_read":  {Limit: 100, Window: time.Minute},
				"authenticated_write": {Limit: 30, Window: time.Minute},
				"default":             {Limit: 60, Window: time.Minute},
			},
			SweepInterval: 5 * time.Minute,
			SweepMaxIdle:  15 * time.Minute,
		},
		CSRF: CSRFConfig{
			CookieName:        "__rg_csrf",
			HeaderName:        "X-CSRF-Token",
			SessionCookieName: "__rg_session",
			TokenTTL:          12 * time.Hour,
			CookieSecure:      true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// IsProduction reports whether the gateway runs with production hardening.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
