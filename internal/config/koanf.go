// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"gateway.yaml",
	"gateway.yml",
	"/etc/registry-gateway/gateway.yaml",
	"/etc/registry-gateway/gateway.yml",
}

// ConfigPathEnvVar overrides the config file search.
const ConfigPathEnvVar = "CONFIG_PATH"

// envPrefix namespaces the gateway's environment variables.
const envPrefix = "GATEWAY_"

// Load builds the configuration from defaults, an optional YAML file, and
// GATEWAY_* environment variables, then validates it. Precedence:
// ENV > file > defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are keys parsed as comma-separated lists when they
// arrive as strings from the environment.
var sliceConfigPaths = []string{
	"cors.allowed_origins",
	"cors.allowed_methods",
	"cors.allowed_headers",
}

// processSliceFields splits comma-separated env values for known slice keys.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings pins each supported environment variable (sans GATEWAY_
// prefix, lowercased) to its config key. An explicit table keeps deployed
// variables attached through struct refactors; variables absent here are
// ignored rather than guessed at.
var envMappings = map[string]string{
	"environment": "environment",

	"server_host":                     "server.host",
	"server_port":                     "server.port",
	"server_read_timeout":             "server.read_timeout",
	"server_write_timeout":            "server.write_timeout",
	"server_idle_timeout":             "server.idle_timeout",
	"server_shutdown_timeout":         "server.shutdown_timeout",
	"server_edge_requests_per_minute": "server.edge_requests_per_minute",

	"idp_issuer":               "identity_provider.issuer",
	"idp_audience":             "identity_provider.audience",
	"idp_jwks_uri":             "identity_provider.jwks_uri",
	"idp_key_cache_ttl":        "identity_provider.key_cache_ttl",
	"idp_refresh_min_interval": "identity_provider.refresh_min_interval",

	"identity_endpoint":         "identity_store.endpoint",
	"identity_lookup_timeout":   "identity_store.lookup_timeout",
	"identity_breaker_failures": "identity_store.breaker_failure_threshold",
	"identity_breaker_cooldown": "identity_store.breaker_cooldown",

	"authz_model_path":      "authz.model_path",
	"authz_policy_path":     "authz.policy_path",
	"authz_auto_reload":     "authz.auto_reload",
	"authz_reload_interval": "authz.reload_interval",

	"cors_allowed_origins":   "cors.allowed_origins",
	"cors_allowed_methods":   "cors.allowed_methods",
	"cors_allowed_headers":   "cors.allowed_headers",
	"cors_max_age_seconds":   "cors.max_age_seconds",
	"cors_allow_credentials": "cors.allow_credentials",

	"rate_limit_sweep_interval": "rate_limit.sweep_interval",
	"rate_limit_sweep_max_idle": "rate_limit.sweep_max_idle",

	"csrf_hash_key":            "csrf.hash_key",
	"csrf_block_key":           "csrf.block_key",
	"csrf_cookie_name":         "csrf.cookie_name",
	"csrf_header_name":         "csrf.header_name",
	"csrf_session_cookie_name": "csrf.session_cookie_name",
	"csrf_token_ttl":           "csrf.token_ttl",
	"csrf_cookie_secure":       "csrf.cookie_secure",

	"upstream_registration_api": "upstreams.registration_api",
	"upstream_booking_api":      "upstreams.booking_api",
	"upstream_admin_api":        "upstreams.admin_api",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps a GATEWAY_* variable name to its config key.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
