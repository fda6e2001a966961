package dedup_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/zhaokm8093/shared/pkg/dedup"
)

// gatedOp blocks every invocation until release is closed.
type gatedOp struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	once    sync.Once
	value   any
	err     error
}

func newGatedOp(value any, err error) *gatedOp {
	return &gatedOp{
		started: make(chan struct{}),
		release: make(chan struct{}),
		value:   value,
		err:     err,
	}
}

func (g *gatedOp) run(context.Context) (any, error) {
	g.calls.Add(1)
	g.once.Do(func() { close(g.started) })
	<-g.release
	return g.value, g.err
}

// countingOp returns immediately.
func countingOp(calls *atomic.Int32, value any, err error) dedup.Operation {
	return func(context.Context) (any, error) {
		calls.Add(1)
		return value, err
	}
}

type result struct {
	val any
	err error
}

// settleWait gives goroutines that were just launched time to reach the
// deduplicator and attach to the in-flight call.
const settleWait = 50 * time.Millisecond

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestDeduplicate(t *testing.T) {
	Convey("Given a deduplicator", t, func() {
		d := dedup.New()
		ctx := context.Background()

		Convey("When one caller runs an operation", func() {
			var calls atomic.Int32
			val, err := d.Deduplicate(ctx, "k", countingOp(&calls, "ok", nil))

			Convey("Then its value is returned and the pending entry is gone", func() {
				So(err, ShouldBeNil)
				So(val, ShouldEqual, "ok")
				So(calls.Load(), ShouldEqual, 1)
				So(d.Stats(), ShouldResemble, dedup.Stats{})
			})
		})

		Convey("When several callers ask for the same key concurrently", func() {
			op := newGatedOp("shared", nil)
			results := make(chan result, 5)

			go func() {
				v, err := d.Deduplicate(ctx, "k", op.run)
				results <- result{v, err}
			}()
			<-op.started
			So(d.Stats().PendingCount, ShouldEqual, 1)

			for i := 0; i < 4; i++ {
				go func() {
					v, err := d.Deduplicate(ctx, "k", op.run)
					results <- result{v, err}
				}()
			}
			time.Sleep(settleWait)
			close(op.release)

			Convey("Then the operation runs once and everyone sees its value", func() {
				for i := 0; i < 5; i++ {
					r := <-results
					So(r.err, ShouldBeNil)
					So(r.val, ShouldEqual, "shared")
				}
				So(op.calls.Load(), ShouldEqual, 1)
				So(d.Stats().PendingCount, ShouldEqual, 0)
			})
		})

		Convey("When the shared operation fails", func() {
			opErr := errors.New("backend unavailable")
			op := newGatedOp(nil, opErr)
			results := make(chan result, 3)

			for i := 0; i < 3; i++ {
				go func() {
					v, err := d.Deduplicate(ctx, "k", op.run)
					results <- result{v, err}
				}()
			}
			<-op.started
			time.Sleep(settleWait)
			close(op.release)

			Convey("Then every caller gets the original error, unwrapped", func() {
				for i := 0; i < 3; i++ {
					r := <-results
					So(r.err, ShouldEqual, opErr)
					So(r.val, ShouldBeNil)
				}
				So(op.calls.Load(), ShouldEqual, 1)
				So(d.Stats().PendingCount, ShouldEqual, 0)
			})
		})

		Convey("When different keys run at the same time", func() {
			a := newGatedOp("a", nil)
			b := newGatedOp("b", nil)
			results := make(chan result, 2)

			go func() { v, err := d.Deduplicate(ctx, "a", a.run); results <- result{v, err} }()
			go func() { v, err := d.Deduplicate(ctx, "b", b.run); results <- result{v, err} }()
			<-a.started
			<-b.started

			Convey("Then both are pending independently", func() {
				So(d.Stats().PendingCount, ShouldEqual, 2)
				close(a.release)
				close(b.release)
				<-results
				<-results
				So(a.calls.Load(), ShouldEqual, 1)
				So(b.calls.Load(), ShouldEqual, 1)
			})
		})

		Convey("When a key is reused after its operation settled", func() {
			var calls atomic.Int32
			_, _ = d.Deduplicate(ctx, "k", countingOp(&calls, 1, nil))
			_, _ = d.Deduplicate(ctx, "k", countingOp(&calls, 2, nil))

			Convey("Then the operation runs again", func() {
				So(calls.Load(), ShouldEqual, 2)
			})
		})

		Convey("When a waiting caller's context is cancelled", func() {
			op := newGatedOp("late", nil)
			first := make(chan result, 1)
			go func() {
				v, err := d.Deduplicate(ctx, "k", op.run)
				first <- result{v, err}
			}()
			<-op.started

			waitCtx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := d.Deduplicate(waitCtx, "k", op.run)

			Convey("Then only that caller gives up and the operation keeps running", func() {
				So(err, ShouldEqual, context.Canceled)
				So(d.Stats().PendingCount, ShouldEqual, 1)

				close(op.release)
				r := <-first
				So(r.err, ShouldBeNil)
				So(r.val, ShouldEqual, "late")
				So(op.calls.Load(), ShouldEqual, 1)
			})
		})

		Convey("When the launching caller's context is cancelled", func() {
			opCtxErr := make(chan error, 1)
			release := make(chan struct{})
			started := make(chan struct{})
			launchCtx, cancel := context.WithCancel(ctx)

			done := make(chan result, 1)
			go func() {
				v, err := d.Deduplicate(launchCtx, "k", func(opCtx context.Context) (any, error) {
					close(started)
					<-release
					opCtxErr <- opCtx.Err()
					return "finished", nil
				})
				done <- result{v, err}
			}()
			<-started
			cancel()
			r := <-done
			close(release)

			Convey("Then the operation context is not cancelled with it", func() {
				So(r.err, ShouldEqual, context.Canceled)
				So(eventually(func() bool { return d.Stats().PendingCount == 0 }), ShouldBeTrue)
				So(<-opCtxErr, ShouldBeNil)
			})
		})

		Convey("When the operation panics", func() {
			v, err := d.Deduplicate(ctx, "k", func(context.Context) (any, error) {
				panic("boom")
			})

			Convey("Then the panic becomes an error and the key is released", func() {
				So(v, ShouldBeNil)
				So(errors.Is(err, dedup.ErrOperationPanic), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "boom")
				So(d.Stats().PendingCount, ShouldEqual, 0)
			})
		})
	})
}

func TestExecute(t *testing.T) {
	Convey("Given a deduplicator on a mock clock", t, func() {
		mock := clock.NewMock()
		d := dedup.New(dedup.WithClock(mock))
		ctx := context.Background()
		cfg := dedup.RequestConfig{Method: "POST", URL: "/orders", Data: map[string]any{"id": 1}}

		Convey("When three identical requests are issued before the first settles", func() {
			op := newGatedOp("order-1", nil)
			results := make(chan result, 3)
			for i := 0; i < 3; i++ {
				go func() {
					v, err := d.Execute(ctx, cfg, op.run)
					results <- result{v, err}
				}()
			}
			<-op.started
			time.Sleep(settleWait)
			close(op.release)

			Convey("Then the operation is invoked exactly once with one shared value", func() {
				for i := 0; i < 3; i++ {
					r := <-results
					So(r.err, ShouldBeNil)
					So(r.val, ShouldEqual, "order-1")
				}
				So(op.calls.Load(), ShouldEqual, 1)
			})
		})

		Convey("When the same body is sent with different key order", func() {
			op := newGatedOp("same", nil)
			results := make(chan result, 2)
			go func() {
				v, err := d.Execute(ctx, dedup.RequestConfig{Method: "post", URL: "/orders", Data: map[string]any{"a": 1, "b": 2}}, op.run)
				results <- result{v, err}
			}()
			<-op.started
			go func() {
				v, err := d.Execute(ctx, dedup.RequestConfig{Method: "POST", URL: "/orders", Data: []byte(`{"b":2,"a":1}`)}, op.run)
				results <- result{v, err}
			}()
			time.Sleep(settleWait)
			close(op.release)

			Convey("Then both attach to the same operation", func() {
				<-results
				<-results
				So(op.calls.Load(), ShouldEqual, 1)
			})
		})

		Convey("When blockAfterComplete is set and the request succeeds at t=0", func() {
			cfg.BlockAfterComplete = 5 * time.Second
			var calls atomic.Int32
			v, err := d.Execute(ctx, cfg, countingOp(&calls, "created", nil))
			So(err, ShouldBeNil)
			So(v, ShouldEqual, "created")
			So(d.Stats().CompletedCount, ShouldEqual, 1)

			Convey("Then an identical request at t=2s is rejected as recently completed", func() {
				mock.Add(2 * time.Second)
				v, err := d.Execute(ctx, cfg, countingOp(&calls, "again", nil))

				So(v, ShouldBeNil)
				So(errors.Is(err, dedup.ErrRecentlyCompleted), ShouldBeTrue)
				reason, ok := dedup.ReasonOf(err)
				So(ok, ShouldBeTrue)
				So(reason, ShouldEqual, dedup.ReasonRecentlyCompleted)

				var rej *dedup.RejectedError
				So(errors.As(err, &rej), ShouldBeTrue)
				So(rej.RetryAfter, ShouldEqual, 3*time.Second)
				So(rej.Key, ShouldEqual, dedup.GenerateKey(cfg.Method, cfg.URL, cfg.Data))
				So(calls.Load(), ShouldEqual, 1)
			})

			Convey("Then an identical request at t=6s invokes the operation again", func() {
				mock.Add(6 * time.Second)
				v, err := d.Execute(ctx, cfg, countingOp(&calls, "again", nil))

				So(err, ShouldBeNil)
				So(v, ShouldEqual, "again")
				So(calls.Load(), ShouldEqual, 2)
			})

			Convey("Then the window is measured exactly", func() {
				mock.Add(5*time.Second - time.Millisecond)
				_, err := d.Execute(ctx, cfg, countingOp(&calls, "edge", nil))
				So(dedup.IsRejection(err), ShouldBeTrue)

				mock.Add(time.Millisecond)
				_, err = d.Execute(ctx, cfg, countingOp(&calls, "edge", nil))
				So(err, ShouldBeNil)
			})

			Convey("Then the same request without blockAfterComplete is not rejected", func() {
				cfg.BlockAfterComplete = 0
				_, err := d.Execute(ctx, cfg, countingOp(&calls, "free", nil))
				So(err, ShouldBeNil)
				So(calls.Load(), ShouldEqual, 2)
			})

			Convey("Then a different body is not rejected", func() {
				other := cfg
				other.Data = map[string]any{"id": 2}
				_, err := d.Execute(ctx, other, countingOp(&calls, "other", nil))
				So(err, ShouldBeNil)
			})
		})

		Convey("When blockAfterComplete is omitted", func() {
			var calls atomic.Int32
			for i := 0; i < 3; i++ {
				_, err := d.Execute(ctx, cfg, countingOp(&calls, i, nil))
				So(err, ShouldBeNil)
			}

			Convey("Then no request is rejected and nothing enters the cool-down table", func() {
				So(calls.Load(), ShouldEqual, 3)
				So(d.Stats().CompletedCount, ShouldEqual, 0)
			})
		})

		Convey("When a request with blockAfterComplete fails", func() {
			cfg.BlockAfterComplete = 5 * time.Second
			var calls atomic.Int32
			opErr := errors.New("validation failed")
			_, err := d.Execute(ctx, cfg, countingOp(&calls, nil, opErr))
			So(err, ShouldEqual, opErr)

			Convey("Then no completed record is written and an immediate retry runs", func() {
				So(d.Stats().CompletedCount, ShouldEqual, 0)
				v, err := d.Execute(ctx, cfg, countingOp(&calls, "retried", nil))
				So(err, ShouldBeNil)
				So(v, ShouldEqual, "retried")
				So(calls.Load(), ShouldEqual, 2)
			})
		})

		Convey("When a request succeeds twice across windows", func() {
			cfg.BlockAfterComplete = 5 * time.Second
			var calls atomic.Int32
			_, _ = d.Execute(ctx, cfg, countingOp(&calls, 1, nil))
			mock.Add(6 * time.Second)
			_, _ = d.Execute(ctx, cfg, countingOp(&calls, 2, nil))
			mock.Add(2 * time.Second)

			Convey("Then the window restarts from the latest completion", func() {
				_, err := d.Execute(ctx, cfg, countingOp(&calls, 3, nil))
				rej := &dedup.RejectedError{}
				So(errors.As(err, &rej), ShouldBeTrue)
				So(rej.RetryAfter, ShouldEqual, 3*time.Second)
				So(d.Stats().CompletedCount, ShouldEqual, 1)
			})
		})

		Convey("When RejectIfPending is set and an identical request is running", func() {
			op := newGatedOp("first", nil)
			first := make(chan result, 1)
			go func() {
				v, err := d.Execute(ctx, cfg, op.run)
				first <- result{v, err}
			}()
			<-op.started

			strict := cfg
			strict.RejectIfPending = true
			_, err := d.Execute(ctx, strict, op.run)

			Convey("Then it is rejected as in progress", func() {
				So(errors.Is(err, dedup.ErrInProgress), ShouldBeTrue)
				reason, ok := dedup.ReasonOf(err)
				So(ok, ShouldBeTrue)
				So(reason, ShouldEqual, dedup.ReasonInProgress)

				close(op.release)
				r := <-first
				So(r.err, ShouldBeNil)
				So(op.calls.Load(), ShouldEqual, 1)
			})
		})

		Convey("When RejectIfPending is set and nothing is running", func() {
			strict := cfg
			strict.RejectIfPending = true
			var calls atomic.Int32
			v, err := d.Execute(ctx, strict, countingOp(&calls, "ran", nil))

			Convey("Then the operation runs normally", func() {
				So(err, ShouldBeNil)
				So(v, ShouldEqual, "ran")
			})
		})
	})
}

func TestCleanup(t *testing.T) {
	Convey("Given a deduplicator with a 30s request timeout on a mock clock", t, func() {
		mock := clock.NewMock()
		d := dedup.New(dedup.WithClock(mock), dedup.WithRequestTimeout(30*time.Second))
		ctx := context.Background()
		var calls atomic.Int32

		Convey("When completed records have different ages", func() {
			old := dedup.RequestConfig{Method: "POST", URL: "/old", BlockAfterComplete: time.Minute}
			fresh := dedup.RequestConfig{Method: "POST", URL: "/fresh", BlockAfterComplete: time.Minute}
			_, _ = d.Execute(ctx, old, countingOp(&calls, 1, nil))
			mock.Add(8 * time.Second)
			_, _ = d.Execute(ctx, fresh, countingOp(&calls, 2, nil))
			mock.Add(4 * time.Second)

			res := d.Cleanup(10 * time.Second)

			Convey("Then only records strictly older than maxAge are removed", func() {
				So(res.CompletedRemoved, ShouldEqual, 1)
				So(res.PendingEvicted, ShouldEqual, 0)
				So(d.Stats().CompletedCount, ShouldEqual, 1)

				_, err := d.Execute(ctx, fresh, countingOp(&calls, 3, nil))
				So(dedup.IsRejection(err), ShouldBeTrue)
				_, err = d.Execute(ctx, old, countingOp(&calls, 4, nil))
				So(err, ShouldBeNil)
			})
		})

		Convey("When a record is exactly maxAge old", func() {
			cfg := dedup.RequestConfig{Method: "POST", URL: "/edge", BlockAfterComplete: time.Minute}
			_, _ = d.Execute(ctx, cfg, countingOp(&calls, 1, nil))
			mock.Add(10 * time.Second)

			Convey("Then it is kept", func() {
				So(d.Cleanup(10*time.Second).CompletedRemoved, ShouldEqual, 0)
				So(d.Stats().CompletedCount, ShouldEqual, 1)
			})
		})

		Convey("When maxAge is negative", func() {
			cfg := dedup.RequestConfig{Method: "POST", URL: "/default", BlockAfterComplete: time.Minute}
			_, _ = d.Execute(ctx, cfg, countingOp(&calls, 1, nil))

			Convey("Then the default retention is used", func() {
				mock.Add(dedup.DefaultCleanupMaxAge)
				So(d.Cleanup(-1).CompletedRemoved, ShouldEqual, 0)
				mock.Add(time.Second)
				So(d.Cleanup(-1).CompletedRemoved, ShouldEqual, 1)
			})
		})

		Convey("When maxAge is zero", func() {
			cfg := dedup.RequestConfig{Method: "POST", URL: "/zero", BlockAfterComplete: time.Minute}
			_, _ = d.Execute(ctx, cfg, countingOp(&calls, 1, nil))

			Convey("Then a record completed at this instant is kept", func() {
				So(d.Cleanup(0).CompletedRemoved, ShouldEqual, 0)
			})

			Convey("Then every older record is dropped and the cool-down ends", func() {
				mock.Add(time.Millisecond)
				So(d.Cleanup(0).CompletedRemoved, ShouldEqual, 1)
				So(d.Stats().CompletedCount, ShouldEqual, 0)
				_, err := d.Execute(ctx, cfg, countingOp(&calls, 2, nil))
				So(err, ShouldBeNil)
			})
		})

		Convey("When an operation never settles", func() {
			stuck := newGatedOp("stuck", nil)
			defer close(stuck.release)
			go func() { _, _ = d.Deduplicate(ctx, "k", stuck.run) }()
			<-stuck.started

			Convey("Then it is kept before the request timeout", func() {
				mock.Add(29 * time.Second)
				So(d.Cleanup(time.Hour).PendingEvicted, ShouldEqual, 0)
				So(d.Stats().PendingCount, ShouldEqual, 1)
			})

			Convey("Then it is evicted after the request timeout regardless of maxAge", func() {
				mock.Add(31 * time.Second)
				res := d.Cleanup(time.Hour)
				So(res.PendingEvicted, ShouldEqual, 1)
				So(d.Stats().PendingCount, ShouldEqual, 0)

				Convey("And the key is free for a new attempt", func() {
					v, err := d.Deduplicate(ctx, "k", countingOp(&calls, "fresh", nil))
					So(err, ShouldBeNil)
					So(v, ShouldEqual, "fresh")
					So(calls.Load(), ShouldEqual, 1)
				})
			})
		})

		Convey("When an evicted operation settles after a newer one started", func() {
			oldOp := newGatedOp("old", nil)
			oldDone := make(chan result, 1)
			go func() {
				v, err := d.Deduplicate(ctx, "k", oldOp.run)
				oldDone <- result{v, err}
			}()
			<-oldOp.started
			mock.Add(31 * time.Second)
			d.Cleanup(0)

			newOp := newGatedOp("new", nil)
			newDone := make(chan result, 1)
			go func() {
				v, err := d.Deduplicate(ctx, "k", newOp.run)
				newDone <- result{v, err}
			}()
			<-newOp.started

			close(oldOp.release)
			oldResult := <-oldDone

			Convey("Then the newer pending entry survives", func() {
				So(oldResult.val, ShouldEqual, "old")
				So(d.Stats().PendingCount, ShouldEqual, 1)

				close(newOp.release)
				newResult := <-newDone
				So(newResult.val, ShouldEqual, "new")
				So(d.Stats().PendingCount, ShouldEqual, 0)
			})
		})
	})
}

func TestAutoCleanup(t *testing.T) {
	Convey("Given a deduplicator on a mock clock", t, func() {
		mock := clock.NewMock()
		d := dedup.New(dedup.WithClock(mock), dedup.WithCleanupMaxAge(10*time.Second))
		defer d.StopAutoCleanup()
		ctx := context.Background()
		var calls atomic.Int32

		Convey("When auto cleanup is started twice", func() {
			d.StartAutoCleanup(time.Minute)
			d.StartAutoCleanup(time.Second)

			Convey("Then it is running once and can be stopped repeatedly", func() {
				So(d.AutoCleanupRunning(), ShouldBeTrue)
				d.StopAutoCleanup()
				So(d.AutoCleanupRunning(), ShouldBeFalse)
				So(func() { d.StopAutoCleanup() }, ShouldNotPanic)
			})
		})

		Convey("When the interval elapses with an expired record", func() {
			cfg := dedup.RequestConfig{Method: "POST", URL: "/orders", BlockAfterComplete: time.Minute}
			_, _ = d.Execute(ctx, cfg, countingOp(&calls, 1, nil))
			So(d.Stats().CompletedCount, ShouldEqual, 1)

			d.StartAutoCleanup(time.Minute)
			mock.Add(time.Minute)

			Convey("Then the record is swept", func() {
				So(eventually(func() bool { return d.Stats().CompletedCount == 0 }), ShouldBeTrue)
			})
		})

		Convey("When auto cleanup is stopped and started again", func() {
			d.StartAutoCleanup(time.Minute)
			d.StopAutoCleanup()
			d.StartAutoCleanup(time.Minute)

			Convey("Then it runs again", func() {
				So(d.AutoCleanupRunning(), ShouldBeTrue)
			})
		})

		Convey("When Clear is called while auto cleanup runs", func() {
			d.StartAutoCleanup(time.Minute)
			d.Clear()

			Convey("Then the loop keeps running", func() {
				So(d.AutoCleanupRunning(), ShouldBeTrue)
			})
		})
	})
}

func TestClear(t *testing.T) {
	Convey("Given a deduplicator with pending and completed entries", t, func() {
		d := dedup.New()
		ctx := context.Background()
		var calls atomic.Int32

		cfg := dedup.RequestConfig{Method: "POST", URL: "/orders", BlockAfterComplete: time.Minute}
		_, _ = d.Execute(ctx, cfg, countingOp(&calls, 1, nil))

		op := newGatedOp("old", nil)
		oldDone := make(chan result, 1)
		go func() {
			v, err := d.Deduplicate(ctx, "inflight", op.run)
			oldDone <- result{v, err}
		}()
		<-op.started
		So(d.Stats(), ShouldResemble, dedup.Stats{PendingCount: 1, CompletedCount: 1})

		Convey("When clearing", func() {
			d.Clear()

			Convey("Then both tables are empty", func() {
				So(d.Stats(), ShouldResemble, dedup.Stats{PendingCount: 0, CompletedCount: 0})
			})

			Convey("Then a cleared cool-down no longer rejects", func() {
				_, err := d.Execute(ctx, cfg, countingOp(&calls, 2, nil))
				So(err, ShouldBeNil)
			})

			Convey("Then a cleared in-flight key starts a fresh operation", func() {
				v, err := d.Deduplicate(ctx, "inflight", countingOp(&calls, "fresh", nil))
				So(err, ShouldBeNil)
				So(v, ShouldEqual, "fresh")
			})

			Convey("Then the old operation still settles for its callers", func() {
				close(op.release)
				r := <-oldDone
				So(r.val, ShouldEqual, "old")
				So(d.Stats().PendingCount, ShouldEqual, 0)
			})
		})

		Reset(func() {
			select {
			case <-op.release:
			default:
				close(op.release)
			}
		})
	})
}

func TestConcurrentInFlightInvariant(t *testing.T) {
	Convey("Given many goroutines hammering a few keys", t, func() {
		d := dedup.New()
		ctx := context.Background()

		var active sync.Map
		var violations atomic.Int32
		op := func(key string) dedup.Operation {
			return func(context.Context) (any, error) {
				counter, _ := active.LoadOrStore(key, new(atomic.Int32))
				if counter.(*atomic.Int32).Add(1) > 1 {
					violations.Add(1)
				}
				time.Sleep(time.Millisecond)
				counter.(*atomic.Int32).Add(-1)
				return key, nil
			}
		}

		var wg sync.WaitGroup
		keys := []string{"a", "b", "c"}
		for i := 0; i < 60; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				key := keys[i%len(keys)]
				for j := 0; j < 20; j++ {
					cfg := dedup.RequestConfig{Method: "GET", URL: "/" + key}
					v, err := d.Execute(ctx, cfg, op(key))
					if err != nil || v != key {
						violations.Add(1)
					}
				}
			}(i)
		}
		wg.Wait()

		Convey("Then no key ever has two operations running", func() {
			So(violations.Load(), ShouldEqual, 0)
			So(d.Stats().PendingCount, ShouldEqual, 0)
		})
	})
}

func TestDefaults(t *testing.T) {
	Convey("Given a deduplicator with default options", t, func() {
		d := dedup.New(dedup.WithRequestTimeout(0), dedup.WithClock(nil), dedup.WithLogger(nil))

		Convey("Then the request timeout is 30s", func() {
			So(d.RequestTimeout(), ShouldEqual, 30*time.Second)
			So(d.Stats(), ShouldResemble, dedup.Stats{})
			So(d.AutoCleanupRunning(), ShouldBeFalse)
		})
	})
}
