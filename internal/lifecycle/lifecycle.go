// Package lifecycle wires the Lifecycle & Config Glue: it reads Config,
// optionally auto-starts the ServerInstance, activates the Keep-Alive Loop
// in headless mode, and registers process-exit and signal handlers that
// call ServerInstance.ForceCleanup.
//
// The sequence is: handle signals via signal.NotifyContext, start
// background work, block until cancellation or a shutdown command, then
// stop the ServerInstance.
package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sceneforge/hostbridge/internal/bridge"
	"github.com/sceneforge/hostbridge/internal/config"
	"github.com/sceneforge/hostbridge/internal/keepalive"
	"github.com/sceneforge/hostbridge/internal/server"
	"github.com/sceneforge/hostbridge/internal/tick"
)

// Glue owns the signal-handling and auto-start sequence for one
// ServerInstance. Construct with New and call Run from main().
type Glue struct {
	cfg     config.Config
	inst    *server.Instance
	br      *bridge.Bridge
	loop    *keepalive.Loop
	logger  *zap.Logger
	cfgPath string
}

// New builds a Glue over an already-constructed ServerInstance and Bridge.
// cfgPath is the persisted-document path to watch for live log-level edits
// (empty string disables watching).
func New(cfg config.Config, inst *server.Instance, br *bridge.Bridge, logger *zap.Logger, cfgPath string) *Glue {
	if logger == nil {
		logger = zap.NewNop()
	}
	driver := tick.New(logger)
	period := keepalive.DefaultPeriod
	loop := keepalive.New(driver, br, period, logger)
	loop.SetMetrics(inst.Counters())
	return &Glue{
		cfg:     cfg,
		inst:    inst,
		br:      br,
		loop:    loop,
		logger:  logger.Named("lifecycle"),
		cfgPath: cfgPath,
	}
}

// Run executes the full glue sequence: install signal handlers, auto-start
// if configured, run the Keep-Alive fallback loop (since this module has
// no embedding host timer facility, every deployment is effectively
// headless), and return when the process should exit — either because of
// a signal, a server_shutdown command, or ctx cancellation from the
// caller.
//
// The Keep-Alive Loop's Tick-driven Drain is the Bridge's only consumer
// here: Bridge.Run is not also started on a second goroutine, since having
// both active would let two Jobs execute concurrently on different
// goroutines and break the single-main-thread guarantee every Job relies
// on. A single ticking goroutine draining at most one Job per tick is the
// main thread for the lifetime of the process.
//
// Run always calls ForceCleanup before returning, so the listening socket
// is released on every exit path.
func (g *Glue) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer g.inst.ForceCleanup()

	if g.cfgPath != "" {
		go func() {
			_ = config.WatchLogLevel(ctx, g.cfgPath, g.logger, func(level string) {
				// Only logged: the running logger's level is not changed.
				g.logger.Info("lifecycle: log level changed in persisted document", zap.String("level", level))
			})
		}()
	}

	if g.cfg.AutoStart {
		if err := g.inst.Start(ctx, g.cfg.Port); err != nil {
			g.logger.Error("lifecycle: auto-start failed", zap.Error(err))
			return err
		}
		g.logger.Info("lifecycle: auto-started", zap.Int("port", g.inst.Port()))
	}

	err := g.loop.Run(ctx, g.inst.ShutdownRequested())

	// Give the listening socket's already-flushed shutdown reply a moment
	// to actually leave the kernel send buffer before we tear everything
	// down: the client must observe the reply before the port stops
	// accepting.
	if err == nil {
		time.Sleep(25 * time.Millisecond)
	}

	_ = g.inst.Stop()
	return err
}
