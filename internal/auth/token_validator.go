// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/openregistry/registry-gateway/internal/logging"
)

// rsaSigningMethods are the only signature algorithms the gateway accepts.
// The concrete algorithm for each key is pinned from the provider's key
// metadata; an algorithm declared inside a token is never trusted, which
// closes the downgrade path (alg=none, HS256-with-public-key).
var rsaSigningMethods = []string{"RS256", "RS384", "RS512"}

// errAlgorithmMismatch indicates the token's signing method does not match
// the algorithm published for its key.
var errAlgorithmMismatch = errors.New("token algorithm does not match key metadata")

// KeyResolver resolves a key id to a cached signing key. Implemented by
// KeyCache; tests substitute a pre-seeded resolver.
type KeyResolver interface {
	GetKey(ctx context.Context, kid string) (*SigningKey, error)
}

// tokenClaims is the claim set the gateway understands.
//
// Interactive tokens carry an object id (oid). Machine tokens carry a client
// id (azp, or appid from older provider versions) plus an embedded roles
// claim, and optionally an entity scope.
type tokenClaims struct {
	ObjectID string   `json:"oid,omitempty"`
	ClientID string   `json:"azp,omitempty"`
	AppID    string   `json:"appid,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	EntityID string   `json:"entity_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenValidator verifies bearer tokens issued by the identity provider and
// classifies the caller shape. It performs pure cryptographic and claim
// verification; it never touches a database.
type TokenValidator struct {
	keys     KeyResolver
	issuer   string
	audience string
	clock    func() time.Time
	parser   *jwt.Parser
}

// TokenValidatorOption configures a TokenValidator.
type TokenValidatorOption func(*TokenValidator)

// WithTokenClock substitutes the time source used for expiry checks.
func WithTokenClock(clock func() time.Time) TokenValidatorOption {
	return func(v *TokenValidator) { v.clock = clock }
}

// NewTokenValidator creates a validator bound to the configured issuer and
// audience.
func NewTokenValidator(keys KeyResolver, issuer, audience string, opts ...TokenValidatorOption) *TokenValidator {
	v := &TokenValidator{
		keys:     keys,
		issuer:   issuer,
		audience: audience,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.parser = jwt.NewParser(
		jwt.WithValidMethods(rsaSigningMethods),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.clock),
	)
	return v
}

// Validate checks the Authorization header value and returns a partially
// populated Context (claims only; interactive grants are resolved later), or
// a Rejection with exactly one taxonomy code.
func (v *TokenValidator) Validate(ctx context.Context, authorization string) (*Context, *Rejection) {
	raw, ok := bearerToken(authorization)
	if !ok {
		return nil, Reject(CodeMissingAuth)
	}

	claims := &tokenClaims{}
	_, err := v.parser.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no key id")
		}
		key, err := v.keys.GetKey(ctx, kid)
		if err != nil {
			return nil, err
		}
		if token.Method.Alg() != key.Algorithm {
			return nil, fmt.Errorf("%w: token %s, key %s", errAlgorithmMismatch, token.Method.Alg(), key.Algorithm)
		}
		return key.PublicKey, nil
	})
	if err != nil {
		return nil, rejectParseError(ctx, err)
	}

	ac, rej := v.classify(claims)
	if rej != nil {
		return nil, rej
	}
	return ac, nil
}

// classify maps the verified claim set to a caller mode. Presence of a
// human-subject claim wins; a client id without one means a machine caller.
func (v *TokenValidator) classify(claims *tokenClaims) (*Context, *Rejection) {
	expiry := time.Time{}
	if claims.ExpiresAt != nil {
		expiry = claims.ExpiresAt.Time
	}

	if claims.ObjectID != "" {
		return &Context{
			Mode:        CallerInteractive,
			SubjectID:   claims.ObjectID,
			TokenExpiry: expiry,
		}, nil
	}

	clientID := claims.ClientID
	if clientID == "" {
		clientID = claims.AppID
	}
	if clientID != "" {
		return &Context{
			Mode:          CallerMachine,
			SubjectID:     clientID,
			OwnerEntityID: claims.EntityID,
			Roles:         append([]string(nil), claims.Roles...),
			TokenExpiry:   expiry,
		}, nil
	}

	return nil, Reject(CodeInvalidToken)
}

// rejectParseError collapses parse and verification failures into the
// taxonomy. Expiry gets its own code; everything else is invalid_token so
// the response leaks nothing about which check failed.
func rejectParseError(ctx context.Context, err error) *Rejection {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Reject(CodeTokenExpired)
	case errors.Is(err, ErrKeySetUnavailable):
		logging.Ctx(ctx).Error().Err(err).Msg("token rejected: signing key set unavailable")
		return Reject(CodeInvalidToken)
	default:
		logging.Ctx(ctx).Debug().Err(err).Msg("token rejected")
		return Reject(CodeInvalidToken)
	}
}

// bearerToken extracts the token from a "Bearer <token>" credential.
func bearerToken(authorization string) (string, bool) {
	if authorization == "" {
		return "", false
	}
	parts := strings.SplitN(authorization, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}
