// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

// Package supervisor provides Suture-based process supervision for the
// gateway.
//
// The tree has two layers for failure isolation: background services (the
// signing-key refresher and the rate-limit counter sweeper) and the API
// layer (the HTTP server). A crashing background service restarts with
// backoff without taking the listener down, and vice versa.
package supervisor
