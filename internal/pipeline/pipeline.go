// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

package pipeline

import (
	"net/http"
	"time"

	"github.com/openregistry/registry-gateway/internal/auth"
	"github.com/openregistry/registry-gateway/internal/authz"
	"github.com/openregistry/registry-gateway/internal/logging"
	"github.com/openregistry/registry-gateway/internal/metrics"
	"github.com/openregistry/registry-gateway/internal/ratelimit"
)

// Stage names, in execution order.
const (
	StageCORS               = "cors"
	StageRateLimit          = "rate_limit"
	StageTokenValidate      = "token_validate"
	StageIdentityResolve    = "identity_resolve"
	StagePermissionEvaluate = "permission_evaluate"
	StageCSRF               = "csrf"
)

// State is the mutable per-request pipeline state threaded through stages.
type State struct {
	Writer  http.ResponseWriter
	Request *http.Request
	Route   RouteSpec

	// RequestID is assigned before any stage runs.
	RequestID string

	// Auth is populated by the token stage and completed by the identity
	// stage. Nil until then, and stays nil on public routes.
	Auth *auth.Context
}

// StageResult is one stage's verdict.
type StageResult struct {
	// Rejection terminates the request with the given taxonomy code.
	Rejection *auth.Rejection

	// Halt terminates the request without a rejection; the stage already
	// wrote the response (preflight answers).
	Halt bool

	// Skipped records that the stage did not apply to this request.
	Skipped bool
}

// Stage is one named pipeline step.
type Stage struct {
	Name string
	Run  func(s *State) StageResult
}

// StageRecord is one entry of a request's execution record.
type StageRecord struct {
	Stage    string
	Outcome  string // pass, reject, halt, skip
	Duration time.Duration
}

// Orchestrator executes the fixed stage sequence for every guarded route.
type Orchestrator struct {
	stages []Stage
	audit  *auth.AuditLogger

	// onComplete receives the execution record after the pipeline settles.
	// Tests use it to assert ordering and short-circuit behavior.
	onComplete func(records []StageRecord)
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithCompletionHook registers a callback invoked with each request's
// execution record.
func WithCompletionHook(hook func(records []StageRecord)) OrchestratorOption {
	return func(o *Orchestrator) { o.onComplete = hook }
}

// Components are the security components the stages delegate to.
type Components struct {
	CORS      *CORSPolicy
	Limiter   *ratelimit.Limiter
	Validator *auth.TokenValidator
	Resolver  *auth.IdentityResolver
	Evaluator *authz.Evaluator
	CSRF      *auth.CSRFGuard
}

// NewOrchestrator builds the pipeline over the given components. The stage
// order is fixed here and nowhere else.
func NewOrchestrator(c Components, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		audit: auth.NewAuditLogger(),
		stages: []Stage{
			{Name: StageCORS, Run: corsStage(c.CORS)},
			{Name: StageRateLimit, Run: rateLimitStage(c.Limiter)},
			{Name: StageTokenValidate, Run: tokenValidateStage(c.Validator)},
			{Name: StageIdentityResolve, Run: identityResolveStage(c.Resolver)},
			{Name: StagePermissionEvaluate, Run: permissionEvaluateStage(c.Evaluator)},
			{Name: StageCSRF, Run: csrfStage(c.CSRF)},
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Handler wraps next with the full pipeline for the given route.
func (o *Orchestrator) Handler(route RouteSpec, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// The request id exists before any stage can fail, so every
		// terminal decision is correlatable.
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = logging.GenerateRequestID()
		}
		ctx := logging.ContextWithRequestID(r.Context(), requestID)
		r = r.WithContext(ctx)
		w.Header().Set("X-Request-Id", requestID)

		state := &State{
			Writer:    w,
			Request:   r,
			Route:     route,
			RequestID: requestID,
		}

		records := make([]StageRecord, 0, len(o.stages))
		for _, stage := range o.stages {
			stageStart := time.Now()
			res := stage.Run(state)
			elapsed := time.Since(stageStart)

			switch {
			case res.Rejection != nil:
				records = append(records, StageRecord{stage.Name, "reject", elapsed})
				metrics.RecordStage(stage.Name, "reject")
				metrics.RecordRejection(string(res.Rejection.Code))
				metrics.PipelineDuration.Observe(time.Since(start).Seconds())
				o.audit.RecordRejection(ctx, state.Request, stage.Name, res.Rejection, state.Auth)
				writeRejection(w, requestID, res.Rejection)
				o.complete(records)
				return
			case res.Halt:
				records = append(records, StageRecord{stage.Name, "halt", elapsed})
				metrics.RecordStage(stage.Name, "halt")
				metrics.PipelineDuration.Observe(time.Since(start).Seconds())
				o.complete(records)
				return
			case res.Skipped:
				records = append(records, StageRecord{stage.Name, "skip", elapsed})
				metrics.RecordStage(stage.Name, "skip")
			default:
				records = append(records, StageRecord{stage.Name, "pass", elapsed})
				metrics.RecordStage(stage.Name, "pass")
			}
		}

		metrics.PipelineDuration.Observe(time.Since(start).Seconds())
		o.audit.RecordSuccess(ctx, state.Request, state.Auth)
		o.complete(records)

		if state.Auth != nil {
			ac := *state.Auth
			ac.RequestID = requestID
			r = r.WithContext(auth.WithContext(r.Context(), &ac))
		}
		next.ServeHTTP(w, r)
	})
}

func (o *Orchestrator) complete(records []StageRecord) {
	if o.onComplete != nil {
		o.onComplete(records)
	}
}
