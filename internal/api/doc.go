// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

// Package api assembles the gateway's HTTP surface with chi.
//
// Three route groups exist:
//
// Operational endpoints (/healthz, /readyz, /metrics, /auth/csrf) are served
// by the gateway itself. Business routes are guarded by the security
// pipeline and proxied to the configured upstream services; the gateway
// never implements business logic. A coarse per-IP limiter wraps the whole
// router in front of the pipeline's per-caller profiles.
package api
