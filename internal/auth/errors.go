// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

package auth

import (
	"fmt"
	"net/http"
)

// Code identifies a rejection cause. One code per cause; stages never
// conflate causes and never forward upstream provider error detail.
type Code string

const (
	// CodeMissingAuth: no or malformed Authorization header on a protected route.
	CodeMissingAuth Code = "missing_auth"

	// CodeInvalidToken: bad signature, unknown key, issuer/audience mismatch,
	// or malformed token structure.
	CodeInvalidToken Code = "invalid_token"

	// CodeTokenExpired: the exp claim is in the past.
	CodeTokenExpired Code = "token_expired"

	// CodeIdentityNotFound: the subject has no internal record or is deactivated.
	CodeIdentityNotFound Code = "identity_not_found"

	// CodeIdentityLookupFailed: timeout or error resolving identity. Fail closed.
	CodeIdentityLookupFailed Code = "identity_lookup_failed"

	// CodeForbidden: a valid caller lacks a required role or permission.
	CodeForbidden Code = "forbidden"

	// CodeCSRFRejected: missing or mismatched anti-forgery token on a
	// mutating browser request.
	CodeCSRFRejected Code = "csrf_rejected"

	// CodeRateLimited: the caller exceeded its window limit.
	CodeRateLimited Code = "rate_limited"

	// CodeOriginNotAllowed: the request's Origin is not in the allow set.
	CodeOriginNotAllowed Code = "origin_not_allowed"

	// CodeInternal: an unexpected internal fault, surfaced without detail.
	CodeInternal Code = "internal_error"
)

var statusByCode = map[Code]int{
	CodeMissingAuth:          http.StatusUnauthorized,
	CodeInvalidToken:         http.StatusUnauthorized,
	CodeTokenExpired:         http.StatusUnauthorized,
	CodeIdentityNotFound:     http.StatusUnauthorized,
	CodeIdentityLookupFailed: http.StatusUnauthorized,
	CodeForbidden:            http.StatusForbidden,
	CodeCSRFRejected:         http.StatusForbidden,
	CodeRateLimited:          http.StatusTooManyRequests,
	CodeOriginNotAllowed:     http.StatusForbidden,
	CodeInternal:             http.StatusInternalServerError,
}

var descriptionByCode = map[Code]string{
	CodeMissingAuth:          "authorization credential missing or malformed",
	CodeInvalidToken:         "credential could not be verified",
	CodeTokenExpired:         "credential has expired",
	CodeIdentityNotFound:     "caller has no active registration",
	CodeIdentityLookupFailed: "caller identity could not be resolved",
	CodeForbidden:            "caller lacks the required role or permission",
	CodeCSRFRejected:         "anti-forgery token missing or invalid",
	CodeRateLimited:          "request rate limit exceeded",
	CodeOriginNotAllowed:     "request origin is not allowed",
	CodeInternal:             "internal error",
}

// Rejection is the terminal result of a failed pipeline stage. It carries
// everything the error envelope needs and nothing the caller must not see.
type Rejection struct {
	Code        Code
	Status      int
	Description string

	// RetryAfter is the seconds until the rate-limit window rolls over.
	// Set only for CodeRateLimited.
	RetryAfter int
}

// Error implements the error interface.
func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Description)
}

// Reject builds a Rejection for the given code with its canonical HTTP
// status and description.
func Reject(code Code) *Rejection {
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusUnauthorized
	}
	return &Rejection{
		Code:        code,
		Status:      status,
		Description: descriptionByCode[code],
	}
}

// RejectRateLimited builds a rate-limit Rejection carrying the Retry-After
// hint in seconds.
func RejectRateLimited(retryAfter int) *Rejection {
	r := Reject(CodeRateLimited)
	if retryAfter < 1 {
		retryAfter = 1
	}
	r.RetryAfter = retryAfter
	return r
}
