package dedup

import (
	"time"

	"github.com/facebookgo/clock"
	"github.com/zhaokm8093/shared/pkg/logger"
)

// Option applies a configuration option to the Deduplicator.
type Option func(*Deduplicator)

// WithRequestTimeout sets how long a pending entry may live before Cleanup
// evicts it. Non-positive values keep the default.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(d *Deduplicator) {
		if timeout > 0 {
			d.requestTimeout = timeout
		}
	}
}

// WithCleanupMaxAge sets the completed-record retention used by the
// auto-cleanup loop. Non-positive values keep the default.
func WithCleanupMaxAge(maxAge time.Duration) Option {
	return func(d *Deduplicator) {
		if maxAge > 0 {
			d.cleanupMaxAge = maxAge
		}
	}
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(d *Deduplicator) {
		if c != nil {
			d.clock = c
		}
	}
}

// WithLogger sets a custom logger for the deduplicator.
func WithLogger(l logger.Logger) Option {
	return func(d *Deduplicator) {
		if l != nil {
			d.logger = l
		}
	}
}
