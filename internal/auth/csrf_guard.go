// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

package auth

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"

	"github.com/openregistry/registry-gateway/internal/metrics"
)

// CSRFGuard protects state-changing browser requests with the double-submit
// cookie pattern. The token is an HMAC-sealed encoding of the subject id, so
// a token minted for one session is useless in another and no server-side
// token store is needed.
//
// Machine callers are exempt by design: bearer-only clients do not share the
// browser's cookie ambient authority, which is the attack CSRF exploits.
type CSRFGuard struct {
	codec             *securecookie.SecureCookie
	cookieName        string
	headerName        string
	sessionCookieName string
	tokenTTL          time.Duration
	cookieSecure      bool
}

// CSRFConfig holds anti-forgery guard configuration.
type CSRFConfig struct {
	// HashKey authenticates tokens. Required, 32 or 64 bytes.
	HashKey []byte

	// BlockKey encrypts token contents. Optional; 16, 24 or 32 bytes.
	BlockKey []byte

	// CookieName is the double-submit cookie. Default: "__rg_csrf".
	CookieName string

	// HeaderName carries the echoed token. Default: "X-CSRF-Token".
	HeaderName string

	// SessionCookieName identifies browser session callers. Requests
	// without this cookie are bearer-only and exempt.
	// Default: "__rg_session".
	SessionCookieName string

	// TokenTTL bounds token validity. Default: 12h.
	TokenTTL time.Duration

	// CookieSecure sets the Secure flag on issued cookies. Default true;
	// disable only for local development.
	CookieSecure bool
}

// NewCSRFGuard creates the anti-forgery guard.
func NewCSRFGuard(cfg CSRFConfig) *CSRFGuard {
	if cfg.CookieName == "" {
		cfg.CookieName = "__rg_csrf"
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = "X-CSRF-Token"
	}
	if cfg.SessionCookieName == "" {
		cfg.SessionCookieName = "__rg_session"
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 12 * time.Hour
	}

	codec := securecookie.New(cfg.HashKey, cfg.BlockKey)
	codec.MaxAge(int(cfg.TokenTTL.Seconds()))

	return &CSRFGuard{
		codec:             codec,
		cookieName:        cfg.CookieName,
		headerName:        cfg.HeaderName,
		sessionCookieName: cfg.SessionCookieName,
		tokenTTL:          cfg.TokenTTL,
		cookieSecure:      cfg.CookieSecure,
	}
}

// IssueToken mints an anti-forgery token bound to the subject, sets the
// double-submit cookie, and returns the token for the SPA to echo in the
// request header.
func (g *CSRFGuard) IssueToken(w http.ResponseWriter, subjectID string) (string, error) {
	token, err := g.codec.Encode(g.cookieName, subjectID)
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     g.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(g.tokenTTL.Seconds()),
		Secure:   g.cookieSecure,
		HttpOnly: false, // the SPA reads it to echo in the header
		SameSite: http.SameSiteStrictMode,
	})
	return token, nil
}

// Check validates the anti-forgery token for a state-changing request.
// Returns nil when the request passes or the guard does not apply.
func (g *CSRFGuard) Check(r *http.Request, ac *Context) *Rejection {
	if isSafeMethod(r.Method) {
		metrics.RecordCSRF("exempt")
		return nil
	}
	if ac == nil || ac.Mode != CallerInteractive || !g.hasSession(r) {
		metrics.RecordCSRF("exempt")
		return nil
	}

	cookie, err := r.Cookie(g.cookieName)
	if err != nil || cookie.Value == "" {
		metrics.RecordCSRF("reject")
		return Reject(CodeCSRFRejected)
	}

	echoed := r.Header.Get(g.headerName)
	if echoed == "" {
		metrics.RecordCSRF("reject")
		return Reject(CodeCSRFRejected)
	}

	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(echoed)) != 1 {
		metrics.RecordCSRF("reject")
		return Reject(CodeCSRFRejected)
	}

	// The token must decode under our keys and belong to this subject.
	var subject string
	if err := g.codec.Decode(g.cookieName, cookie.Value, &subject); err != nil || subject != ac.SubjectID {
		metrics.RecordCSRF("reject")
		return Reject(CodeCSRFRejected)
	}

	metrics.RecordCSRF("pass")
	return nil
}

// hasSession reports whether the request carries the gateway session cookie,
// marking it as browser-session originated.
func (g *CSRFGuard) hasSession(r *http.Request) bool {
	c, err := r.Cookie(g.sessionCookieName)
	return err == nil && c.Value != ""
}

// isSafeMethod reports whether the method is safe per RFC 7231 and exempt
// from anti-forgery checks.
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
