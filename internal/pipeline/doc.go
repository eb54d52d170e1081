// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

// Package pipeline orders the edge security checks and short-circuits on
// the first failure.
//
// The stage order is fixed and is itself a security property:
//
//	cors -> rate_limit -> token_validate -> identity_resolve ->
//	permission_evaluate -> csrf
//
// Cross-origin and rate-limit decisions come first so floods are shed
// before any cryptographic work. Rate limiting therefore keys on the client
// address rather than the authenticated subject. A rejected request never
// reaches later stages, and a stage that did not run is recorded as
// skipped, never silently absent.
//
// Every terminal decision carries the request id assigned before the first
// stage ran, in both the X-Request-Id header and the JSON error envelope,
// so a support ticket quoting either can be matched to the audit log line.
package pipeline
