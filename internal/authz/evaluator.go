// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

package authz

import (
	"github.com/openregistry/registry-gateway/internal/auth"
)

// MatchMode selects how a requirement's permission list is satisfied.
type MatchMode int

const (
	// MatchAny passes when the caller holds at least one listed permission.
	MatchAny MatchMode = iota

	// MatchAll passes only when the caller holds every listed permission.
	MatchAll
)

// Requirement declares what a route demands of an authenticated caller.
// Roles and Permissions are independent checks; a route declaring both
// authorizes only when both pass. The zero value demands nothing beyond
// authentication itself.
type Requirement struct {
	// Roles the caller must hold, matched per Mode.
	Roles []string

	// Permissions the caller must hold, matched per Mode.
	Permissions []string

	// Mode selects any-of or all-of matching for both lists.
	Mode MatchMode
}

// IsZero reports whether the requirement demands nothing.
func (r Requirement) IsZero() bool {
	return len(r.Roles) == 0 && len(r.Permissions) == 0
}

// Evaluator authorizes resolved callers against route requirements using
// pure set membership. It holds no state and performs no I/O.
type Evaluator struct{}

// NewEvaluator creates the permission evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Authorize checks the caller against the requirement. A nil context with a
// non-zero requirement is a pipeline ordering bug and denies as internal
// rather than leaking a forbidden response for a caller that was never
// authenticated.
func (e *Evaluator) Authorize(ac *auth.Context, req Requirement) *auth.Rejection {
	if req.IsZero() {
		return nil
	}
	if ac == nil {
		return auth.Reject(auth.CodeInternal)
	}

	if len(req.Roles) > 0 && !match(req.Mode, req.Roles, ac.HasRole) {
		return auth.Reject(auth.CodeForbidden)
	}
	if len(req.Permissions) > 0 && !match(req.Mode, req.Permissions, ac.HasPermission) {
		return auth.Reject(auth.CodeForbidden)
	}
	return nil
}

// match applies the requirement's mode to one grant list.
func match(mode MatchMode, required []string, holds func(string) bool) bool {
	if mode == MatchAll {
		for _, want := range required {
			if !holds(want) {
				return false
			}
		}
		return true
	}
	for _, want := range required {
		if holds(want) {
			return true
		}
	}
	return false
}
