// Package service wires the request deduplicator to the upstream API and
// implements the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/zhaokm8093/shared/internal/adapters/http/transport"
	"github.com/zhaokm8093/shared/pkg/dedup"
	"github.com/zhaokm8093/shared/pkg/logger"
	"github.com/zhaokm8093/shared/pkg/metrics"
)

// Service owns the deduplicator, its cleanup loop and the upstream client.
type Service struct {
	mu sync.RWMutex

	// Core components
	dedup     *dedup.Deduplicator
	transport *transport.Transport
	client    *http.Client
	upstream  *url.URL

	// Configuration
	upstreamURL        string
	upstreamTimeout    time.Duration
	cleanupInterval    time.Duration
	blockAfterComplete time.Duration
	dedupeMethods      []string
	base               http.RoundTripper

	// State
	started   bool
	startedAt time.Time

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithDeduplicator injects the deduplicator shared by every proxied request.
func WithDeduplicator(d *dedup.Deduplicator) Option {
	return func(s *Service) {
		if d != nil {
			s.dedup = d
		}
	}
}

// WithUpstreamURL sets the backend API base URL.
func WithUpstreamURL(u string) Option {
	return func(s *Service) {
		s.upstreamURL = u
	}
}

// WithUpstreamTimeout bounds each upstream round trip.
func WithUpstreamTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.upstreamTimeout = d
		}
	}
}

// WithCleanupInterval sets the period of the background cleanup sweep.
func WithCleanupInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.cleanupInterval = d
		}
	}
}

// WithBlockAfterComplete sets the cool-down for repeated unsafe requests.
func WithBlockAfterComplete(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.blockAfterComplete = d
		}
	}
}

// WithDedupeMethods sets which HTTP methods are deduplicated.
func WithDedupeMethods(methods []string) Option {
	return func(s *Service) {
		if len(methods) > 0 {
			s.dedupeMethods = methods
		}
	}
}

// WithBaseTransport sets the RoundTripper used for upstream calls.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(s *Service) {
		if rt != nil {
			s.base = rt
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		cleanupInterval: dedup.DefaultCleanupInterval,
		dedupeMethods:   transport.DefaultMethods,
		base:            http.DefaultTransport,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.dedup == nil {
		s.dedup = dedup.New()
	}
	return s
}

// Start validates the upstream, builds the deduplicating client and starts
// the cleanup loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	u, err := url.Parse(s.upstreamURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidUpstream, s.upstreamURL)
	}

	tr, err := transport.New(s.dedup,
		transport.WithBase(s.base),
		transport.WithMethods(s.dedupeMethods),
		transport.WithBlockAfterComplete(s.blockAfterComplete),
		transport.WithUpstreamTimeout(s.upstreamTimeout),
		transport.WithLogger(s.logger.Named("transport")),
	)
	if err != nil {
		return err
	}

	s.upstream = u
	s.transport = tr
	s.client = &http.Client{Transport: tr}
	s.dedup.StartAutoCleanup(s.cleanupInterval)

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "dedup service started",
		logger.String("upstream", u.Redacted()),
		logger.Duration("cleanupInterval", s.cleanupInterval),
		logger.Duration("blockAfterComplete", s.blockAfterComplete),
		logger.Any("dedupeMethods", s.dedupeMethods),
	)
	return nil
}

// Stop stops the cleanup loop and releases idle upstream connections.
// Bookkeeping is left in place so a restart keeps honoring cool-downs.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.dedup.StopAutoCleanup()
	s.client.CloseIdleConnections()

	s.started = false
	s.logger.Info(context.Background(), "dedup service stopped")
}

// Transport returns the deduplicating RoundTripper, or nil before Start.
func (s *Service) Transport() http.RoundTripper {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.transport == nil {
		return nil
	}
	return s.transport
}

// Upstream returns the parsed upstream URL, or nil before Start.
func (s *Service) Upstream() *url.URL {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.upstream
}

// Client returns an http.Client that deduplicates through the service.
func (s *Service) Client() (*http.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.client, nil
}

// Deduplicator returns the injected deduplicator.
func (s *Service) Deduplicator() *dedup.Deduplicator {
	return s.dedup
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.dedup.Stats()
	metrics.UpdateDedupTables(st.PendingCount, st.CompletedCount)

	stats := map[string]interface{}{
		"started":        s.started,
		"pendingCount":   st.PendingCount,
		"completedCount": st.CompletedCount,
		"autoCleanup":    s.dedup.AutoCleanupRunning(),
		"requestTimeout": s.dedup.RequestTimeout().String(),
	}
	if s.started {
		stats["upstream"] = s.upstream.Redacted()
		stats["uptimeSeconds"] = int(time.Since(s.startedAt).Seconds())
	}
	return stats
}
