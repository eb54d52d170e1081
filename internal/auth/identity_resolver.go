// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/openregistry/registry-gateway/internal/logging"
	"github.com/openregistry/registry-gateway/internal/metrics"
)

// ErrSubjectNotFound is returned by an IdentityStore when the subject has no
// internal record.
var ErrSubjectNotFound = errors.New("subject not found")

// SubjectStatus values returned by the identity store.
const (
	SubjectStatusActive      = "active"
	SubjectStatusDeactivated = "deactivated"
)

// SubjectRecord is the internal registration record for an interactive
// caller, owned by the business data layer and consumed read-only here.
type SubjectRecord struct {
	OwnerEntityID string
	Role          string
	Status        string
}

// IdentityStore looks up a caller's internal record by subject id.
// Implementations live in the business data layer; they must honor context
// cancellation.
type IdentityStore interface {
	LookupSubject(ctx context.Context, subjectID string) (*SubjectRecord, error)
}

// PermissionRegistry expands a role name into the permission names it
// grants. Implemented by the authz policy registry.
type PermissionRegistry interface {
	PermissionsForRole(role string) []string
}

// IdentityResolver completes a partial authentication context.
//
// Machine callers are resolved from their embedded role claim with no store
// lookup: the identity provider's role assertion is trusted for service
// credentials by design. Interactive callers are looked up in the identity
// store under a hard timeout, behind a circuit breaker so a struggling store
// fails fast instead of holding every request for the full timeout. Any
// uncertainty denies; a request never proceeds with empty permissions.
type IdentityResolver struct {
	store    IdentityStore
	registry PermissionRegistry
	timeout  time.Duration
	breaker  *gobreaker.CircuitBreaker[*SubjectRecord]
}

// IdentityResolverConfig holds resolver tuning.
type IdentityResolverConfig struct {
	// LookupTimeout bounds a single identity store lookup. Default: 2s.
	LookupTimeout time.Duration

	// BreakerFailureThreshold is the consecutive-failure count that opens
	// the circuit. Default: 5.
	BreakerFailureThreshold uint32

	// BreakerCooldown is how long the circuit stays open before probing.
	// Default: 15s.
	BreakerCooldown time.Duration
}

// NewIdentityResolver creates a resolver over the given store and registry.
func NewIdentityResolver(store IdentityStore, registry PermissionRegistry, cfg IdentityResolverConfig) *IdentityResolver {
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 2 * time.Second
	}
	if cfg.BreakerFailureThreshold == 0 {
		cfg.BreakerFailureThreshold = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 15 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[*SubjectRecord](gobreaker.Settings{
		Name:    "identity-store",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailureThreshold
		},
		// A missing subject is an answer, not a store failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrSubjectNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("identity store circuit state changed")
		},
	})

	return &IdentityResolver{
		store:    store,
		registry: registry,
		timeout:  cfg.LookupTimeout,
		breaker:  breaker,
	}
}

// Resolve completes the partial context produced by the token validator.
// The result is valid for this request only and is never cached.
func (r *IdentityResolver) Resolve(ctx context.Context, partial *Context) (*Context, *Rejection) {
	if partial == nil {
		return nil, Reject(CodeInternal)
	}

	if partial.Mode == CallerMachine {
		return r.resolveMachine(partial), nil
	}
	return r.resolveInteractive(ctx, partial)
}

// resolveMachine expands the token's embedded role claim into permissions.
func (r *IdentityResolver) resolveMachine(partial *Context) *Context {
	resolved := *partial
	resolved.Permissions = r.expandRoles(partial.Roles)
	return &resolved
}

func (r *IdentityResolver) resolveInteractive(ctx context.Context, partial *Context) (*Context, *Rejection) {
	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	record, err := r.breaker.Execute(func() (*SubjectRecord, error) {
		return r.store.LookupSubject(lookupCtx, partial.SubjectID)
	})
	elapsed := time.Since(start)

	switch {
	case err == nil:
		// fall through
	case errors.Is(err, ErrSubjectNotFound):
		metrics.RecordIdentityLookup("not_found", elapsed)
		return nil, Reject(CodeIdentityNotFound)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordIdentityLookup("breaker_open", elapsed)
		return nil, Reject(CodeIdentityLookupFailed)
	case errors.Is(err, context.DeadlineExceeded):
		metrics.RecordIdentityLookup("timeout", elapsed)
		logging.Ctx(ctx).Warn().Str("subject", partial.SubjectID).Msg("identity lookup timed out")
		return nil, Reject(CodeIdentityLookupFailed)
	default:
		metrics.RecordIdentityLookup("error", elapsed)
		logging.Ctx(ctx).Error().Err(err).Msg("identity lookup failed")
		return nil, Reject(CodeIdentityLookupFailed)
	}

	if record == nil || record.Status != SubjectStatusActive {
		metrics.RecordIdentityLookup("not_found", elapsed)
		return nil, Reject(CodeIdentityNotFound)
	}
	metrics.RecordIdentityLookup("success", elapsed)

	resolved := *partial
	resolved.OwnerEntityID = record.OwnerEntityID
	resolved.Roles = []string{record.Role}
	resolved.Permissions = r.expandRoles(resolved.Roles)
	return &resolved, nil
}

// expandRoles unions the permission grants of all roles.
func (r *IdentityResolver) expandRoles(roles []string) []string {
	seen := make(map[string]struct{})
	var perms []string
	for _, role := range roles {
		for _, p := range r.registry.PermissionsForRole(role) {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			perms = append(perms, p)
		}
	}
	return perms
}
