// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

package pipeline

import (
	"net"
	"net/http"
	"strings"

	"github.com/openregistry/registry-gateway/internal/auth"
	"github.com/openregistry/registry-gateway/internal/authz"
	"github.com/openregistry/registry-gateway/internal/ratelimit"
)

func corsStage(policy *CORSPolicy) func(*State) StageResult {
	return func(s *State) StageResult {
		return policy.Apply(s.Writer, s.Request)
	}
}

// rateLimitStage keys on the client address. It runs before the token stage
// so abusive traffic never buys signature verification work, which means
// the caller identity is the network peer, not the subject.
func rateLimitStage(limiter *ratelimit.Limiter) func(*State) StageResult {
	return func(s *State) StageResult {
		d := limiter.Consume(s.Route.profile(), clientAddr(s.Request))
		if !d.Allowed {
			return StageResult{Rejection: auth.RejectRateLimited(int(d.RetryAfter.Seconds()))}
		}
		return StageResult{}
	}
}

func tokenValidateStage(validator *auth.TokenValidator) func(*State) StageResult {
	return func(s *State) StageResult {
		if !s.Route.RequiresAuth {
			return StageResult{Skipped: true}
		}
		ac, rej := validator.Validate(s.Request.Context(), s.Request.Header.Get("Authorization"))
		if rej != nil {
			return StageResult{Rejection: rej}
		}
		s.Auth = ac
		return StageResult{}
	}
}

func identityResolveStage(resolver *auth.IdentityResolver) func(*State) StageResult {
	return func(s *State) StageResult {
		if s.Auth == nil {
			return StageResult{Skipped: true}
		}
		resolved, rej := resolver.Resolve(s.Request.Context(), s.Auth)
		if rej != nil {
			return StageResult{Rejection: rej}
		}
		s.Auth = resolved
		return StageResult{}
	}
}

func permissionEvaluateStage(evaluator *authz.Evaluator) func(*State) StageResult {
	return func(s *State) StageResult {
		if s.Route.Requirement.IsZero() {
			return StageResult{Skipped: true}
		}
		if rej := evaluator.Authorize(s.Auth, s.Route.Requirement); rej != nil {
			return StageResult{Rejection: rej}
		}
		return StageResult{}
	}
}

func csrfStage(guard *auth.CSRFGuard) func(*State) StageResult {
	return func(s *State) StageResult {
		if rej := guard.Check(s.Request, s.Auth); rej != nil {
			return StageResult{Rejection: rej}
		}
		return StageResult{}
	}
}

// clientAddr extracts the client address for rate-limit keying. The first
// X-Forwarded-For entry wins when the gateway sits behind a load balancer;
// otherwise the connection peer is used.
func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		if addr := strings.TrimSpace(fwd); addr != "" {
			return addr
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
