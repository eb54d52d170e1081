// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

package auth

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/openregistry/registry-gateway/internal/logging"
)

// AuditLogger emits structured security audit events for every terminal
// pipeline decision. Rejections log at warn so they stand out in aggregate;
// the fields are stable for downstream SIEM parsing.
type AuditLogger struct {
	logger zerolog.Logger
}

// NewAuditLogger creates an audit logger writing through the global logger.
func NewAuditLogger() *AuditLogger {
	return &AuditLogger{logger: logging.WithComponent("security-audit")}
}

// RecordRejection logs a terminal pipeline rejection.
func (a *AuditLogger) RecordRejection(ctx context.Context, r *http.Request, stage string, rej *Rejection, ac *Context) {
	evt := a.logger.Warn().
		Str("event", "request_rejected").
		Str("stage", stage).
		Str("code", string(rej.Code)).
		Int("status", rej.Status).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("remote_addr", r.RemoteAddr)
	if id := logging.RequestIDFromContext(ctx); id != "" {
		evt = evt.Str("request_id", id)
	}
	if ac != nil {
		evt = evt.Str("subject", ac.SubjectID).Str("caller_mode", string(ac.Mode))
	}
	evt.Msg("pipeline rejected request")
}

// RecordSuccess logs a request that cleared the full pipeline.
func (a *AuditLogger) RecordSuccess(ctx context.Context, r *http.Request, ac *Context) {
	evt := a.logger.Debug().
		Str("event", "request_authorized").
		Str("method", r.Method).
		Str("path", r.URL.Path)
	if id := logging.RequestIDFromContext(ctx); id != "" {
		evt = evt.Str("request_id", id)
	}
	if ac != nil {
		evt = evt.Str("subject", ac.SubjectID).Str("caller_mode", string(ac.Mode))
	}
	evt.Msg("request passed pipeline")
}
