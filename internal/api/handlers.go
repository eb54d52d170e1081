// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/openregistry/registry-gateway/internal/auth"
	"github.com/openregistry/registry-gateway/internal/logging"
)

// handleHealthz reports liveness. It answers as long as the process can
// serve HTTP at all.
func (rt *Router) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz reports readiness. The gateway is not ready until a signing
// key set has been fetched: accepting traffic earlier would reject every
// authenticated request with an unhelpful error.
func (rt *Router) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !rt.keys.Primed() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"reason": "signing key set not yet fetched",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleIssueCSRF mints an anti-forgery token for the authenticated caller.
// The pipeline has already verified the credential; machine callers get a
// token too, they just never need to present it.
func (rt *Router) handleIssueCSRF(w http.ResponseWriter, r *http.Request) {
	ac := auth.FromContext(r.Context())
	if ac == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
		return
	}

	token, err := rt.csrf.IssueToken(w, ac.SubjectID)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("failed to issue anti-forgery token")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error().Err(err).Msg("failed to encode response body")
	}
}
