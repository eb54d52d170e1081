// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openregistry/registry-gateway/internal/logging"
)

// HTTPServer matches *http.Server's lifecycle methods so the service can be
// tested with a mock.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServerService wraps the blocking ListenAndServe pattern as a
// context-aware suture service with graceful shutdown.
type HTTPServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPServerService creates the HTTP server service wrapper.
func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service. http.ErrServerClosed is the expected
// shutdown signal and is not treated as a failure.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		// The original context is already canceled; shutdown gets its own.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

// String implements fmt.Stringer for supervision logs.
func (h *HTTPServerService) String() string { return "http-server" }

// KeyPrimer is satisfied by the signing-key cache.
type KeyPrimer interface {
	Prime(ctx context.Context) error
	TTL() time.Duration
}

// KeyRefreshService refreshes the signing key set ahead of its TTL so
// request latency never absorbs a cold fetch. Fetch failures are logged and
// retried next tick; the cache's last-known-good behavior covers the gap.
type KeyRefreshService struct {
	keys     KeyPrimer
	interval time.Duration
}

// NewKeyRefreshService creates the refresher. A non-positive interval
// defaults to half the cache TTL.
func NewKeyRefreshService(keys KeyPrimer, interval time.Duration) *KeyRefreshService {
	if interval <= 0 {
		interval = keys.TTL() / 2
	}
	return &KeyRefreshService{keys: keys, interval: interval}
}

// Serve implements suture.Service.
func (s *KeyRefreshService) Serve(ctx context.Context) error {
	if err := s.keys.Prime(ctx); err != nil {
		logging.Warn().Err(err).Msg("initial signing key fetch failed, will retry")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.keys.Prime(ctx); err != nil {
				logging.Warn().Err(err).Msg("signing key refresh failed")
			}
		}
	}
}

// String implements fmt.Stringer for supervision logs.
func (s *KeyRefreshService) String() string { return "key-refresh" }

// CounterSweeper is satisfied by the rate limiter.
type CounterSweeper interface {
	Sweep(maxIdle time.Duration) int
}

// SweepService periodically evicts idle rate-limit counters.
type SweepService struct {
	limiter  CounterSweeper
	interval time.Duration
	maxIdle  time.Duration
}

// NewSweepService creates the sweeper.
func NewSweepService(limiter CounterSweeper, interval, maxIdle time.Duration) *SweepService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if maxIdle <= 0 {
		maxIdle = 15 * time.Minute
	}
	return &SweepService{limiter: limiter, interval: interval, maxIdle: maxIdle}
}

// Serve implements suture.Service.
func (s *SweepService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if removed := s.limiter.Sweep(s.maxIdle); removed > 0 {
				logging.Debug().Int("removed", removed).Msg("swept idle rate-limit counters")
			}
		}
	}
}

// String implements fmt.Stringer for supervision logs.
func (s *SweepService) String() string { return "ratelimit-sweep" }
