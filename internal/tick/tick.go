// Package tick implements the cooperative event-loop advance used when the
// host gives the endpoint no timer of its own to piggyback on.
//
// The real Blender-remote reference attaches asyncio's running loop and
// calls loop.run_until_complete on a zero-duration sleep to let ready
// callbacks and ready I/O fire once. Go has no global event loop to attach
// to — the runtime scheduler already multiplexes goroutines — so Tick's
// job here is narrower but serves the same contract: give any goroutines
// that are blocked on a ready channel operation one scheduling quantum to
// make progress, then return without blocking for new work.
package tick

import (
	"context"
	"runtime"
	"time"

	"go.uber.org/zap"
)

// Driver advances the bridge/server goroutines by one non-blocking
// quantum. It never blocks waiting for new I/O; it only yields the
// scheduler so already-runnable goroutines (a Bridge job that just got
// enqueued, a connection whose read just became ready) get to run before
// Tick returns.
type Driver struct {
	logger *zap.Logger
}

// New creates a Driver. logger may be nil, in which case a no-op logger
// is used — callers that never want tick-level diagnostics can omit it.
func New(logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{logger: logger.Named("tick")}
}

// Tick runs one non-blocking quantum: it yields the goroutine scheduler
// (runtime.Gosched) and then drains any work item passed in drain that is
// already ready, without blocking on it. Errors from drain are logged and
// swallowed — tick never propagates a handler error out to its caller,
// mirroring the Python reference's try/except around each callback.
//
// A nil drain is valid: Tick then degenerates to a pure scheduler yield,
// useful for callers that only want to let other goroutines run (e.g. a
// fallback Keep-Alive loop with no bridge wired up yet).
func (d *Driver) Tick(ctx context.Context, drain func(ctx context.Context) error) {
	runtime.Gosched()

	if drain == nil {
		return
	}

	// Hand drain a short deadline so a drain function that waits on ctx
	// for new work gives up quickly instead of turning "tick" into "wait
	// forever" — tick's contract is "return as soon as no further work is
	// immediately runnable." Tick still waits for drain to return:
	// bridge.Drain runs an already-queued job to completion regardless of
	// this deadline.
	tctx, cancel := context.WithTimeout(ctx, 5*time.Millisecond)
	defer cancel()

	if err := drain(tctx); err != nil {
		if err == context.DeadlineExceeded || err == context.Canceled {
			return
		}
		d.logger.Warn("tick: drain callback failed", zap.Error(err))
	}
}
