// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

package pipeline

import (
	"github.com/openregistry/registry-gateway/internal/authz"
	"github.com/openregistry/registry-gateway/internal/ratelimit"
)

// RouteSpec declares a route's security posture. Routes opt out of nothing
// implicitly: a public route still passes the cross-origin and rate-limit
// stages, it only skips credential checks.
type RouteSpec struct {
	// Name identifies the route in logs and metrics.
	Name string

	// RequiresAuth marks the route as needing a verified caller. When
	// false, the token, identity and permission stages are skipped.
	RequiresAuth bool

	// Requirement is the authorization demand for authenticated routes.
	// The zero value authorizes any authenticated caller.
	Requirement authz.Requirement

	// RateLimitProfile names the rate-limit profile. Empty uses the
	// default profile.
	RateLimitProfile string
}

// profile returns the effective rate-limit profile name.
func (r RouteSpec) profile() string {
	if r.RateLimitProfile == "" {
		return ratelimit.ProfileDefault
	}
	return r.RateLimitProfile
}
