// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

package ratelimit

import "time"

// Profile names routes bind to. Unknown names fall back to the default.
const (
	ProfilePublicRegistration = "public_registration"
	ProfileAuthenticatedRead  = "authenticated_read"
	ProfileAuthenticatedWrite = "authenticated_write"
	ProfileDefault            = "default"
)

// Profile bounds how many requests a caller may make per window.
type Profile struct {
	Limit  int
	Window time.Duration
}

// DefaultProfiles returns the built-in profile set. Operators override
// individual profiles through configuration.
func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		// Anonymous registration submissions are the platform's main abuse
		// surface; the window is deliberately tight.
		ProfilePublicRegistration: {Limit: 5, Window: time.Minute},
		ProfileAuthenticatedRead:  {Limit: 100, Window: time.Minute},
		ProfileAuthenticatedWrite: {Limit: 30, Window: time.Minute},
		ProfileDefault:            {Limit: 60, Window: time.Minute},
	}
}

// DefaultProfile is the fallback for unknown profile names.
func DefaultProfile() Profile {
	return Profile{Limit: 60, Window: time.Minute}
}
