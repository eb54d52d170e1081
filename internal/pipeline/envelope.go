// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

package pipeline

import (
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/openregistry/registry-gateway/internal/auth"
	"github.com/openregistry/registry-gateway/internal/logging"
)

// errorEnvelope is the uniform rejection body. Descriptions are the fixed
// per-code strings; upstream provider detail never reaches a client.
type errorEnvelope struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	RequestID        string `json:"request_id"`
}

// writeRejection renders a terminal pipeline decision.
func writeRejection(w http.ResponseWriter, requestID string, rej *auth.Rejection) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("X-Request-Id", requestID)
	if rej.RetryAfter > 0 {
		h.Set("Retry-After", strconv.Itoa(rej.RetryAfter))
	}
	w.WriteHeader(rej.Status)

	if err := json.NewEncoder(w).Encode(errorEnvelope{
		Error:            string(rej.Code),
		ErrorDescription: rej.Description,
		RequestID:        requestID,
	}); err != nil {
		logging.Error().Err(err).Msg("failed to encode rejection envelope")
	}
}
