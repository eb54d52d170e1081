// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

// Package ratelimit implements the per-caller fixed-window rate limiter the
// pipeline consults before any credential work.
//
// Windows are aligned to the epoch: every caller's window for a given
// profile rolls over at the same instant, and the advertised retry delay is
// the remainder of the current window. Counters are kept in memory per
// gateway instance; with more than one instance the effective limit is the
// per-instance limit times the instance count, which is acceptable for an
// abuse brake as opposed to a billing meter.
//
// A coarser IP-level limiter (go-chi/httprate) sits at the router edge in
// front of this one to shed floods before they reach the pipeline at all.
package ratelimit
