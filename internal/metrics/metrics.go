// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

// Package metrics exposes Prometheus metrics for the authentication pipeline.
//
// Every pipeline stage reports its outcome here so operators can alert on
// rejection spikes (credential stuffing, key rotation breakage, identity
// store outages) without scraping logs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StageOutcomes counts pipeline stage executions.
	// Labels:
	//   - stage: "cors", "rate_limit", "token_validate", "identity_resolve",
	//     "permission_evaluate", "csrf"
	//   - outcome: "pass", "reject", "skip"
	StageOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_pipeline_stage_outcomes_total",
			Help: "Total pipeline stage executions by outcome",
		},
		[]string{"stage", "outcome"},
	)

	// Rejections counts terminal pipeline rejections by error code.
	Rejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_pipeline_rejections_total",
			Help: "Total requests rejected by the pipeline, by error code",
		},
		[]string{"code"},
	)

	// PipelineDuration measures full pipeline latency up to the handler.
	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gateway_pipeline_duration_seconds",
			Help:    "Duration of the authentication pipeline in seconds",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	// JWKSFetchDuration measures signing-key set fetch latency.
	JWKSFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gateway_jwks_fetch_duration_seconds",
			Help:    "Duration of JWKS fetch operations",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
	)

	// JWKSCacheHits counts signing-key lookups served from cache.
	JWKSCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_jwks_cache_hits_total",
			Help: "Total signing-key lookups served from the cache",
		},
	)

	// JWKSCacheMisses counts signing-key lookups that required a fetch.
	JWKSCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_jwks_cache_misses_total",
			Help: "Total signing-key lookups that triggered a key set fetch",
		},
	)

	// IdentityLookups counts identity store lookups.
	// Labels:
	//   - outcome: "success", "not_found", "timeout", "error", "breaker_open"
	IdentityLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_identity_lookups_total",
			Help: "Total identity store lookups by outcome",
		},
		[]string{"outcome"},
	)

	// IdentityLookupDuration measures identity store lookup latency.
	IdentityLookupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gateway_identity_lookup_duration_seconds",
			Help:    "Duration of identity store lookups",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
	)

	// RateLimitDecisions counts rate limiter decisions by profile.
	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_rate_limit_decisions_total",
			Help: "Total rate limiter decisions by profile and outcome",
		},
		[]string{"profile", "outcome"}, // outcome: "allow", "reject"
	)

	// RateLimitTrackedKeys tracks the number of live rate-limit counters.
	RateLimitTrackedKeys = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_rate_limit_tracked_keys",
			Help: "Current number of tracked rate-limit counter keys",
		},
	)

	// CSRFChecks counts anti-forgery validations.
	// Labels:
	//   - outcome: "pass", "reject", "exempt"
	CSRFChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_csrf_checks_total",
			Help: "Total anti-forgery token checks by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordStage records a pipeline stage outcome.
func RecordStage(stage, outcome string) {
	StageOutcomes.WithLabelValues(stage, outcome).Inc()
}

// RecordRejection records a terminal rejection by error code.
func RecordRejection(code string) {
	Rejections.WithLabelValues(code).Inc()
}

// RecordJWKSFetch records a key set fetch and its latency.
func RecordJWKSFetch(duration time.Duration) {
	JWKSFetchDuration.Observe(duration.Seconds())
}

// RecordIdentityLookup records an identity store lookup.
func RecordIdentityLookup(outcome string, duration time.Duration) {
	IdentityLookups.WithLabelValues(outcome).Inc()
	IdentityLookupDuration.Observe(duration.Seconds())
}

// RecordRateLimit records a rate limiter decision.
func RecordRateLimit(profile, outcome string) {
	RateLimitDecisions.WithLabelValues(profile, outcome).Inc()
}

// RecordCSRF records an anti-forgery check outcome.
func RecordCSRF(outcome string) {
	CSRFChecks.WithLabelValues(outcome).Inc()
}
