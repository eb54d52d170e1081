// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

package authz

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
	"github.com/rs/zerolog"

	"github.com/openregistry/registry-gateway/internal/logging"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// RegistryConfig holds configuration for the policy registry.
type RegistryConfig struct {
	// ModelPath is the path to a Casbin model file.
	// If empty, uses the embedded model.
	ModelPath string

	// PolicyPath is the path to a Casbin policy file. Operators override
	// the built-in role grants by pointing this at a mounted file.
	// If empty, uses the embedded policy.
	PolicyPath string

	// AutoReload enables periodic policy reload from PolicyPath.
	AutoReload bool

	// ReloadInterval is how often to reload. Default: 30s.
	ReloadInterval time.Duration
}

// PolicyRegistry maps role names to the permission names they grant,
// following role inheritance. It is safe for concurrent use.
type PolicyRegistry struct {
	enforcer *casbin.SyncedEnforcer
	logger   zerolog.Logger
}

// NewPolicyRegistry creates the role/permission registry.
func NewPolicyRegistry(cfg RegistryConfig) (*PolicyRegistry, error) {
	var m model.Model
	var err error

	if cfg.ModelPath != "" && fileExists(cfg.ModelPath) {
		m, err = model.NewModelFromFile(cfg.ModelPath)
	} else {
		m, err = model.NewModelFromString(embeddedModel)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if cfg.PolicyPath != "" && fileExists(cfg.PolicyPath) {
		adapter := fileadapter.NewAdapter(cfg.PolicyPath)
		enforcer, err = casbin.NewSyncedEnforcer(m, adapter)
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadEmbeddedPolicy(enforcer, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	if cfg.AutoReload && cfg.PolicyPath != "" {
		interval := cfg.ReloadInterval
		if interval <= 0 {
			interval = 30 * time.Second
		}
		enforcer.StartAutoLoadPolicy(interval)
	}

	r := &PolicyRegistry{
		enforcer: enforcer,
		logger:   logging.WithComponent("authz"),
	}
	r.logger.Info().
		Int("roles", len(r.Roles())).
		Bool("embedded", cfg.PolicyPath == "").
		Msg("policy registry loaded")
	return r, nil
}

// loadEmbeddedPolicy parses the embedded policy CSV into the enforcer.
func loadEmbeddedPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) < 3 {
			continue
		}

		switch parts[0] {
		case "p":
			if _, err := enforcer.AddPolicy(parts[1], parts[2]); err != nil {
				return fmt.Errorf("failed to add policy %v: %w", parts[1:], err)
			}
		case "g":
			if _, err := enforcer.AddGroupingPolicy(parts[1], parts[2]); err != nil {
				return fmt.Errorf("failed to add grouping policy %v: %w", parts[1:], err)
			}
		}
	}
	return nil
}

// PermissionsForRole returns the permission names the role grants, including
// grants inherited from grouped roles. Unknown roles yield nil, which
// downstream treats as zero grants rather than an error: policy gaps deny.
func (r *PolicyRegistry) PermissionsForRole(role string) []string {
	policies, err := r.enforcer.GetImplicitPermissionsForUser(role)
	if err != nil {
		r.logger.Error().Err(err).Str("role", role).Msg("permission expansion failed")
		return nil
	}

	seen := make(map[string]struct{}, len(policies))
	var perms []string
	for _, p := range policies {
		if len(p) < 2 {
			continue
		}
		if _, dup := seen[p[1]]; dup {
			continue
		}
		seen[p[1]] = struct{}{}
		perms = append(perms, p[1])
	}
	sort.Strings(perms)
	return perms
}

// HasGrant reports whether the role grants the permission, directly or via
// inheritance.
func (r *PolicyRegistry) HasGrant(role, permission string) (bool, error) {
	return r.enforcer.Enforce(role, permission)
}

// Roles returns all role names that appear in the loaded policy.
func (r *PolicyRegistry) Roles() []string {
	policies, err := r.enforcer.GetPolicy()
	if err != nil {
		return nil
	}
	seen := make(map[string]struct{})
	var roles []string
	for _, p := range policies {
		if len(p) == 0 {
			continue
		}
		if _, dup := seen[p[0]]; dup {
			continue
		}
		seen[p[0]] = struct{}{}
		roles = append(roles, p[0])
	}
	sort.Strings(roles)
	return roles
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
