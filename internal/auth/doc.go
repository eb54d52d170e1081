// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

// Package auth implements the authentication half of the request pipeline:
// signing-key caching, bearer token validation, caller identity resolution,
// and the anti-forgery guard for browser session callers.
//
// The package distinguishes two caller shapes. Interactive callers are human
// portal sessions identified by an object-id claim; their roles and owning
// entity are resolved from the identity store per request. Machine callers
// are service credentials identified by a client-id claim; their role grants
// are read directly from the token, by design, with no store lookup.
//
// Every failure is normalized to a Rejection carrying exactly one error code
// from the gateway taxonomy before it leaves this package. Uncertainty
// (provider unreachable, store timeout, unknown key) always denies.
package auth
