// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

package ratelimit

import (
	"sync"
	"time"

	"github.com/openregistry/registry-gateway/internal/metrics"
)

// Decision is the outcome of a single consume attempt.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Remaining is the number of requests left in the current window.
	Remaining int

	// RetryAfter is the delay until the window rolls over. Only meaningful
	// when Allowed is false; always at least one second so clients never
	// see a zero back-off.
	RetryAfter time.Duration
}

// counter tracks one caller's consumption within one profile.
type counter struct {
	windowIndex int64
	count       int
}

// Limiter is an in-memory fixed-window rate limiter keyed by caller and
// profile. Safe for concurrent use.
type Limiter struct {
	profiles map[string]Profile
	clock    func() time.Time

	mu       sync.Mutex
	counters map[string]*counter
	lastSeen map[string]time.Time
}

// LimiterOption configures a Limiter.
type LimiterOption func(*Limiter)

// WithLimiterClock substitutes the time source for window arithmetic.
func WithLimiterClock(clock func() time.Time) LimiterOption {
	return func(l *Limiter) { l.clock = clock }
}

// NewLimiter creates a limiter over the given profile set. Profiles missing
// from the map fall back to DefaultProfile.
func NewLimiter(profiles map[string]Profile, opts ...LimiterOption) *Limiter {
	if profiles == nil {
		profiles = DefaultProfiles()
	}
	l := &Limiter{
		profiles: profiles,
		clock:    time.Now,
		counters: make(map[string]*counter),
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Consume records one request for the caller under the named profile and
// decides whether it may proceed. The first request of a window always
// passes (profiles have limit >= 1).
func (l *Limiter) Consume(profileName, callerKey string) Decision {
	profile, ok := l.profiles[profileName]
	if !ok {
		profile = DefaultProfile()
	}

	now := l.clock()
	windowIndex := now.Unix() / int64(profile.Window.Seconds())
	key := profileName + "\x00" + callerKey

	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.counters[key]
	if c == nil || c.windowIndex != windowIndex {
		// New caller or rolled-over window; stale counts never carry over.
		c = &counter{windowIndex: windowIndex}
		l.counters[key] = c
	}
	l.lastSeen[key] = now

	if c.count >= profile.Limit {
		metrics.RecordRateLimit(profileName, "reject")
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: retryAfter(now, profile.Window),
		}
	}

	c.count++
	metrics.RecordRateLimit(profileName, "allow")
	return Decision{
		Allowed:   true,
		Remaining: profile.Limit - c.count,
	}
}

// Sweep drops counters idle longer than the given age, bounding memory over
// long uptimes. Called periodically by the supervisor's sweep service.
func (l *Limiter) Sweep(maxIdle time.Duration) int {
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, seen := range l.lastSeen {
		if now.Sub(seen) > maxIdle {
			delete(l.counters, key)
			delete(l.lastSeen, key)
			removed++
		}
	}
	metrics.RateLimitTrackedKeys.Set(float64(len(l.counters)))
	return removed
}

// Len returns the number of tracked caller/profile counters.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counters)
}

// retryAfter computes the remainder of the current window, floored at 1s.
func retryAfter(now time.Time, window time.Duration) time.Duration {
	windowSeconds := int64(window.Seconds())
	remaining := windowSeconds - now.Unix()%windowSeconds
	if remaining < 1 {
		remaining = 1
	}
	return time.Duration(remaining) * time.Second
}
