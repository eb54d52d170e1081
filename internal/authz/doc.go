// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

// Package authz provides the authorization half of the edge pipeline.
//
// It has two parts with a deliberate split:
//
// The PolicyRegistry is the single source of truth for what each role
// grants. It is backed by Casbin with an embedded RBAC model and policy,
// supporting role inheritance (entity_admin inherits everything
// entity_viewer can do). The identity resolver consults it once per request
// to expand a caller's roles into concrete permission names.
//
// The Evaluator is a pure set-membership check over the already-resolved
// authentication context. It never performs I/O and never re-reads policy:
// by the time a request reaches it, the caller's permissions are fixed for
// the life of the request. Route requirements express either-or (any listed
// permission suffices) or all-of matching.
//
// Keeping evaluation pure makes the per-request hot path trivially fast and
// makes authorization decisions reproducible from the request's execution
// record alone.
package authz
