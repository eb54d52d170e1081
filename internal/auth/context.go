// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

package auth

import (
	"context"
	"time"
)

// CallerMode distinguishes the two token shapes the gateway accepts.
type CallerMode string

const (
	// CallerInteractive is a human portal session, identified by an
	// object-id claim. Roles and owning entity come from the identity store.
	CallerInteractive CallerMode = "interactive"

	// CallerMachine is a service-to-service credential, identified by a
	// client-id claim. Role grants are embedded in the token.
	CallerMachine CallerMode = "machine"
)

// Context is the per-request authentication context. The token validator
// creates it partially populated (claims only); the identity resolver
// completes it. It lives for one request and is never cached across requests.
type Context struct {
	// Mode classifies the caller shape. Set once by the token validator,
	// never re-inspected from raw claims downstream.
	Mode CallerMode

	// SubjectID is the stable caller identifier: the human object id for
	// interactive callers, the client id for machine callers.
	SubjectID string

	// OwnerEntityID scopes the caller to the registered entity it may act
	// for. Empty for platform-wide callers.
	OwnerEntityID string

	// Roles are the caller's granted role names.
	Roles []string

	// Permissions are the caller's granted permission names, derived from
	// roles by the identity resolver.
	Permissions []string

	// TokenExpiry is the instant the presented credential expires.
	TokenExpiry time.Time

	// RequestID is the correlation id assigned by the orchestrator before
	// any stage ran.
	RequestID string
}

// HasRole reports whether the caller holds the given role.
func (c *Context) HasRole(role string) bool {
	if role == "" {
		return false
	}
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasPermission reports whether the caller holds the given permission.
func (c *Context) HasPermission(perm string) bool {
	if perm == "" {
		return false
	}
	for _, p := range c.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

type contextKey string

const authContextKey contextKey = "auth_context"

// WithContext stores the authentication context on a request context.
func WithContext(ctx context.Context, ac *Context) context.Context {
	return context.WithValue(ctx, authContextKey, ac)
}

// FromContext retrieves the authentication context, or nil when the route is
// public or the pipeline rejected the request before resolution.
func FromContext(ctx context.Context) *Context {
	if ac, ok := ctx.Value(authContextKey).(*Context); ok {
		return ac
	}
	return nil
}
