// Package dedup suppresses duplicate requests to a backend API.
//
// A Deduplicator shares one in-flight operation between every caller that
// asks for the same key, and can optionally refuse a request that is
// identical to one which just completed successfully (for example a
// double-clicked submit button). It performs no I/O of its own: callers
// supply the operation.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/zhaokm8093/shared/pkg/logger"
	"github.com/zhaokm8093/shared/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// Defaults.
const (
	DefaultRequestTimeout  = 30 * time.Second
	DefaultCleanupMaxAge   = 10 * time.Second
	DefaultCleanupInterval = 60 * time.Second
)

const (
	modeSimple  = "simple"
	modeGuarded = "guarded"
)

// Operation is the caller-supplied work behind a request. The context it
// receives carries the launching caller's values but not its cancellation,
// since other callers may be waiting on the same result.
type Operation func(ctx context.Context) (any, error)

// RequestConfig describes a request for Execute.
type RequestConfig struct {
	Method string
	URL    string
	Data   any

	// BlockAfterComplete rejects identical requests for this long after a
	// successful completion. Zero disables the cool-down.
	BlockAfterComplete time.Duration

	// RejectIfPending refuses the request with in_progress instead of
	// attaching to an identical request that is still running.
	RejectIfPending bool
}

// Stats is a point-in-time view of the bookkeeping tables.
type Stats struct {
	PendingCount   int `json:"pendingCount"`
	CompletedCount int `json:"completedCount"`
}

// CleanupResult reports what a Cleanup pass removed.
type CleanupResult struct {
	CompletedRemoved int `json:"completedRemoved"`
	PendingEvicted   int `json:"pendingEvicted"`
}

// pendingEntry is owned by exactly one running operation.
type pendingEntry struct {
	startedAt time.Time
}

// Deduplicator tracks in-flight and recently completed requests by key.
// The zero value is not usable; construct with New.
type Deduplicator struct {
	requestTimeout time.Duration
	cleanupMaxAge  time.Duration
	clock          clock.Clock
	logger         logger.Logger

	group singleflight.Group

	// mu guards pending and completed, and is held across the
	// check-then-launch sequence so a key never has two live operations.
	mu        sync.Mutex
	pending   map[string]*pendingEntry
	completed map[string]time.Time

	lifecycleMu sync.Mutex
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// New creates a Deduplicator with configuration options.
func New(opts ...Option) *Deduplicator {
	d := &Deduplicator{
		requestTimeout: DefaultRequestTimeout,
		cleanupMaxAge:  DefaultCleanupMaxAge,
		clock:          clock.New(),
		logger:         logger.Nop(),
		pending:        make(map[string]*pendingEntry),
		completed:      make(map[string]time.Time),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// RequestTimeout returns the configured pending-entry timeout.
func (d *Deduplicator) RequestTimeout() time.Duration {
	return d.requestTimeout
}

// Deduplicate runs op for key unless an operation for key is already in
// flight, in which case it waits for and returns that operation's result.
// The operation's own error is returned unchanged. If ctx is cancelled the
// caller stops waiting; the shared operation keeps running.
func (d *Deduplicator) Deduplicate(ctx context.Context, key string, op Operation) (any, error) {
	d.mu.Lock()
	ch, launched := d.attachOrLaunch(ctx, key, op, 0)
	d.mu.Unlock()

	d.recordEntry(ctx, modeSimple, key, launched)
	return wait(ctx, ch)
}

// Execute is the guarded form of Deduplicate. The key is derived from the
// request's method, URL and data. When cfg.BlockAfterComplete is positive
// and the same request succeeded less than that long ago, Execute fails
// with a recently_completed RejectedError without invoking op. Otherwise it
// attaches to an identical in-flight request or launches op. Only a
// successful op starts the cool-down window.
func (d *Deduplicator) Execute(ctx context.Context, cfg RequestConfig, op Operation) (any, error) {
	key := GenerateKey(cfg.Method, cfg.URL, cfg.Data)

	d.mu.Lock()
	if cfg.BlockAfterComplete > 0 {
		if completedAt, ok := d.completed[key]; ok {
			if age := d.clock.Now().Sub(completedAt); age < cfg.BlockAfterComplete {
				d.mu.Unlock()
				return nil, d.reject(ctx, key, ReasonRecentlyCompleted, cfg.BlockAfterComplete-age)
			}
		}
	}
	if cfg.RejectIfPending {
		if _, ok := d.pending[key]; ok {
			d.mu.Unlock()
			return nil, d.reject(ctx, key, ReasonInProgress, 0)
		}
	}
	ch, launched := d.attachOrLaunch(ctx, key, op, cfg.BlockAfterComplete)
	d.mu.Unlock()

	d.recordEntry(ctx, modeGuarded, key, launched)
	return wait(ctx, ch)
}

// attachOrLaunch must be called with d.mu held. A pending entry exists for
// exactly as long as the singleflight group holds a live call for the key,
// so a missing entry means any call still in the group has already settled
// and is forgotten before launching a new one.
func (d *Deduplicator) attachOrLaunch(ctx context.Context, key string, op Operation, block time.Duration) (<-chan singleflight.Result, bool) {
	if _, ok := d.pending[key]; ok {
		return d.group.DoChan(key, errVanished), false
	}

	entry := &pendingEntry{startedAt: d.clock.Now()}
	d.pending[key] = entry
	d.group.Forget(key)
	opCtx := context.WithoutCancel(ctx)
	ch := d.group.DoChan(key, func() (any, error) {
		return d.run(opCtx, key, entry, op, block)
	})
	metrics.UpdateDedupTables(len(d.pending), len(d.completed))
	return ch, true
}

// run executes op and settles the bookkeeping for entry.
func (d *Deduplicator) run(ctx context.Context, key string, entry *pendingEntry, op Operation, block time.Duration) (val any, err error) {
	start := d.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			val, err = nil, fmt.Errorf("%w: %v", ErrOperationPanic, r)
		}
		d.settle(ctx, key, entry, err == nil, block)

		result := "success"
		if err != nil {
			result = "failure"
		}
		metrics.RecordDedupOperationLatency(result, float64(d.clock.Now().Sub(start).Milliseconds()))
	}()
	return op(ctx)
}

// settle removes the entry for key only if it is still this operation's:
// after Cleanup or Clear the key may already belong to a newer operation.
func (d *Deduplicator) settle(ctx context.Context, key string, entry *pendingEntry, ok bool, block time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending[key] == entry {
		delete(d.pending, key)
	}
	if ok && block > 0 {
		d.completed[key] = d.clock.Now()
	}
	metrics.UpdateDedupTables(len(d.pending), len(d.completed))

	d.logger.Debug(ctx, "request settled",
		logger.String("key", key),
		logger.Bool("success", ok),
		logger.Bool("cooldown", ok && block > 0),
	)
}

func (d *Deduplicator) reject(ctx context.Context, key string, reason RejectionReason, retryAfter time.Duration) error {
	metrics.RecordDedupRejected(string(reason))
	d.logger.Debug(ctx, "request rejected",
		logger.String("key", key),
		logger.String("reason", string(reason)),
		logger.Duration("retryAfter", retryAfter),
	)
	return &RejectedError{Reason: reason, Key: key, RetryAfter: retryAfter}
}

func (d *Deduplicator) recordEntry(ctx context.Context, mode, key string, launched bool) {
	if launched {
		metrics.RecordDedupExecuted(mode)
		d.logger.Debug(ctx, "request launched", logger.String("key", key), logger.String("mode", mode))
		return
	}
	metrics.RecordDedupAttached(mode)
	d.logger.Debug(ctx, "request attached to in-flight call", logger.String("key", key), logger.String("mode", mode))
}

// errVanished only runs if the group lost a key that still has a pending
// entry, which attachOrLaunch rules out.
func errVanished() (any, error) {
	return nil, errors.New("dedup: in-flight call missing from group")
}

func wait(ctx context.Context, ch <-chan singleflight.Result) (any, error) {
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cleanup drops completed records older than maxAge and pending entries
// older than the request timeout. A negative maxAge means
// DefaultCleanupMaxAge; zero drops every completed record with any age at
// all. Evicting a pending entry frees its key for a new
// attempt; the evicted operation is not cancelled and its result still
// reaches the callers already waiting on it.
func (d *Deduplicator) Cleanup(maxAge time.Duration) CleanupResult {
	if maxAge < 0 {
		maxAge = DefaultCleanupMaxAge
	}

	d.mu.Lock()
	now := d.clock.Now()
	var res CleanupResult
	for key, completedAt := range d.completed {
		if now.Sub(completedAt) > maxAge {
			delete(d.completed, key)
			res.CompletedRemoved++
		}
	}
	for key, entry := range d.pending {
		if now.Sub(entry.startedAt) > d.requestTimeout {
			delete(d.pending, key)
			d.group.Forget(key)
			res.PendingEvicted++
		}
	}
	pending, completed := len(d.pending), len(d.completed)
	d.mu.Unlock()

	metrics.RecordDedupCleanupRemoved("completed", res.CompletedRemoved)
	metrics.RecordDedupCleanupRemoved("pending", res.PendingEvicted)
	metrics.UpdateDedupTables(pending, completed)

	if res.PendingEvicted > 0 {
		d.logger.Warn(context.Background(), "evicted stuck pending requests",
			logger.Int("evicted", res.PendingEvicted),
			logger.Duration("requestTimeout", d.requestTimeout),
		)
	}
	if res.CompletedRemoved > 0 {
		d.logger.Debug(context.Background(), "removed expired completed records",
			logger.Int("removed", res.CompletedRemoved),
		)
	}
	return res
}

// StartAutoCleanup runs Cleanup every interval until StopAutoCleanup is
// called. A non-positive interval means DefaultCleanupInterval. Calling it
// while the loop is already running does nothing.
func (d *Deduplicator) StartAutoCleanup(interval time.Duration) {
	d.lifecycleMu.Lock()
	defer d.lifecycleMu.Unlock()

	if d.stopCh != nil {
		return
	}
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}

	ticker := d.clock.Ticker(interval)
	stop := make(chan struct{})
	done := make(chan struct{})
	d.stopCh, d.doneCh = stop, done

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				d.Cleanup(d.cleanupMaxAge)
			}
		}
	}()

	d.logger.Info(context.Background(), "auto cleanup started", logger.Duration("interval", interval))
}

// StopAutoCleanup stops the cleanup loop and waits for it to exit. It is
// safe to call when the loop is not running.
func (d *Deduplicator) StopAutoCleanup() {
	d.lifecycleMu.Lock()
	defer d.lifecycleMu.Unlock()

	if d.stopCh == nil {
		return
	}
	close(d.stopCh)
	<-d.doneCh
	d.stopCh, d.doneCh = nil, nil

	d.logger.Info(context.Background(), "auto cleanup stopped")
}

// AutoCleanupRunning reports whether the cleanup loop is active.
func (d *Deduplicator) AutoCleanupRunning() bool {
	d.lifecycleMu.Lock()
	defer d.lifecycleMu.Unlock()
	return d.stopCh != nil
}

// Stats returns the current sizes of the pending and completed tables.
func (d *Deduplicator) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		PendingCount:   len(d.pending),
		CompletedCount: len(d.completed),
	}
}

// Clear empties both tables. Running operations are not cancelled and the
// auto-cleanup loop keeps running; new callers for a cleared key start a
// fresh operation instead of attaching to the old one.
func (d *Deduplicator) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key := range d.pending {
		d.group.Forget(key)
	}
	clear(d.pending)
	clear(d.completed)
	metrics.UpdateDedupTables(0, 0)
}
