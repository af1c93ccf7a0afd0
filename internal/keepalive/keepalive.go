// Package keepalive guarantees that the Tick Driver is invoked at a
// regular cadence while the endpoint is alive, so that a
// headlessly-running host process does not exit once its startup script
// returns and nothing else is driving the cooperative loop.
//
// The shape is the same goroutine-loops-until-cancelled idiom used
// elsewhere in this codebase for a dedicated job-dispatch worker: here the
// "work" is a Tick rather than a job dequeue, and the loop additionally
// re-arms itself on a fixed cadence rather than blocking on a channel.
package keepalive

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sceneforge/hostbridge/internal/bridge"
	"github.com/sceneforge/hostbridge/internal/metrics"
	"github.com/sceneforge/hostbridge/internal/tick"
)

// DefaultPeriod is the fallback tick cadence used when no host timer
// facility drives the loop.
const DefaultPeriod = 50 * time.Millisecond

// metricsLogInterval bounds how often Run logs a metrics snapshot. Logging
// on every Tick would flood the log at DefaultPeriod's cadence, so the
// snapshot is sampled on its own, much slower ticker instead.
const metricsLogInterval = 10 * time.Second

// Loop drives Tick on a fixed cadence until ctx is cancelled or the
// shutdown channel passed to Run is closed.
type Loop struct {
	driver  *tick.Driver
	bridge  *bridge.Bridge
	period  time.Duration
	logger  *zap.Logger
	metrics *metrics.Counters
}

// New constructs a keep-alive Loop over the given Tick Driver and Bridge.
func New(driver *tick.Driver, br *bridge.Bridge, period time.Duration, logger *zap.Logger) *Loop {
	if period <= 0 {
		period = DefaultPeriod
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{driver: driver, bridge: br, period: period, logger: logger.Named("keepalive")}
}

// SetMetrics attaches the endpoint Counters Run should log a periodic
// resource/activity snapshot from. A Loop with no Counters attached simply
// skips snapshot logging, which keeps existing callers that never call
// SetMetrics unaffected.
func (l *Loop) SetMetrics(counters *metrics.Counters) {
	l.metrics = counters
}

// Run is the fallback mechanism: a tight tick-then-sleep loop used only
// when no host timer facility is reachable. It returns when ctx is
// cancelled, returning ctx.Err(), or when shutdown is closed, returning
// nil so the caller can distinguish "told to stop" from "asked to exit
// via a command."
func (l *Loop) Run(ctx context.Context, shutdown <-chan struct{}) error {
	l.logger.Info("keepalive: fallback loop started", zap.Duration("period", l.period))
	ticker := time.NewTicker(l.period)
	defer ticker.Stop()

	var metricsC <-chan time.Time
	if l.metrics != nil {
		metricsTicker := time.NewTicker(metricsLogInterval)
		defer metricsTicker.Stop()
		metricsC = metricsTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-shutdown:
			l.logger.Info("keepalive: shutdown observed, fallback loop stopping")
			return nil
		case <-ticker.C:
			l.driver.Tick(ctx, l.bridge.Drain)
		case <-metricsC:
			l.logSnapshot()
		}
	}
}

func (l *Loop) logSnapshot() {
	snap := l.metrics.Snapshot()
	l.logger.Info("keepalive: metrics snapshot",
		zap.Int64("accepted_connections", snap.AcceptedConnections),
		zap.Int64("handled_connections", snap.HandledConnections),
		zap.Int64("rejected_connections", snap.RejectedConnections),
		zap.Int64("dispatched_commands", snap.DispatchedCommands),
		zap.Int64("error_commands", snap.ErrorCommands),
		zap.Int("goroutines", snap.Goroutines),
		zap.Uint64("process_rss_bytes", snap.ProcessRSSBytes),
		zap.Float64("process_cpu_percent", snap.ProcessCPUPercent),
	)
}
