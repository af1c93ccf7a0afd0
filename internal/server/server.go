// Package server implements the Server Core: the ServerInstance state
// machine that owns the listening socket, accepts clients, and marshals
// each decoded request through the Main-Thread Bridge into the Command
// Dispatcher.
//
// The state machine tracks a "not yet bound / binding / accepting /
// tearing down" lifecycle with explicit fields rather than ambient
// booleans, and persists enough state (the bound port) that a second
// start attempt recognizes the already-live instance instead of
// rebinding from scratch.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sceneforge/hostbridge/internal/bridge"
	"github.com/sceneforge/hostbridge/internal/dispatch"
	"github.com/sceneforge/hostbridge/internal/host"
	"github.com/sceneforge/hostbridge/internal/metrics"
	"github.com/sceneforge/hostbridge/internal/protocol"
	"github.com/sceneforge/hostbridge/internal/transport"
)

// State is one of the four ServerInstance states.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// DefaultPort follows the remote-control convention used by 3D content
// tools that expose a local automation socket.
const DefaultPort = 6688

// DefaultAcceptGrace bounds how long Stop waits for in-flight connections
// to finish before it gives up waiting.
const DefaultAcceptGrace = 2 * time.Second

// Instance is the process-wide ServerInstance singleton. Exactly one
// Instance should exist per process — cmd/hostbridged constructs it once
// and hands it to internal/lifecycle, which routes auto-start, signal
// handling and exit cleanup through the same value, in place of scattered
// mutable globals.
type Instance struct {
	mu       sync.Mutex
	state    State
	port     int
	listener net.Listener
	cancel   context.CancelFunc
	accepted sync.WaitGroup

	host       host.Host
	bridge     *bridge.Bridge
	dispatcher *dispatch.Dispatcher
	table      *dispatch.Table
	counters   *metrics.Counters
	logger     *zap.Logger

	ioTimeout time.Duration

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// New constructs an Instance in the Stopped state. h is the Host the
// Dispatcher calls into; br is the Main-Thread Bridge every request is
// marshalled through; table is the HandlerTable (already populated with
// built-ins plus any provider registrations, and not yet Sealed — Start
// seals it once the listening socket is bound).
func New(h host.Host, br *bridge.Bridge, table *dispatch.Table, counters *metrics.Counters, logger *zap.Logger) *Instance {
	if logger == nil {
		logger = zap.NewNop()
	}
	if counters == nil {
		counters = &metrics.Counters{}
	}
	return &Instance{
		state:      StateStopped,
		host:       h,
		bridge:     br,
		dispatcher: dispatch.New(table, logger),
		table:      table,
		counters:   counters,
		logger:     logger.Named("server"),
		ioTimeout:  transport.DefaultIOTimeout,
		shutdownCh: make(chan struct{}),
	}
}

// SetIOTimeout overrides the per-connection read/write deadline. Call
// before Start.
func (s *Instance) SetIOTimeout(d time.Duration) {
	if d > 0 {
		s.ioTimeout = d
	}
}

// State reports the current lifecycle state.
func (s *Instance) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Port reports the bound port, or 0 if not running.
func (s *Instance) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Counters returns the endpoint Counters this Instance updates on every
// accept/dispatch, for callers (e.g. the Keep-Alive Loop) that want to log
// periodic activity/resource snapshots.
func (s *Instance) Counters() *metrics.Counters { return s.counters }

// ShutdownRequested returns a channel that is closed once a
// server_shutdown/shutdown command has been dispatched, for the Keep-Alive
// Loop to select on. In headless mode the process terminates once the
// shutdown reply has been flushed to the client.
func (s *Instance) ShutdownRequested() <-chan struct{} { return s.shutdownCh }

// Start binds the listening socket on port and begins accepting
// connections. Calling Start while state is not Stopped is a no-op
// success — this makes re-enabling an addon, or a startup script running
// twice, safe without rebinding.
func (s *Instance) Start(ctx context.Context, port int) error {
	s.mu.Lock()
	if s.state != StateStopped {
		s.mu.Unlock()
		s.logger.Info("server: start requested but instance already live, ignoring", zap.String("state", string(s.state)))
		return nil
	}
	s.state = StateStarting
	s.mu.Unlock()

	if port == 0 {
		port = DefaultPort
	}

	ln, err := bind(port)
	if err != nil {
		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
		return fmt.Errorf("server: bind port %d: %w", port, err)
	}

	s.table.Seal()

	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.listener = ln
	s.port = port
	s.cancel = cancel
	s.state = StateRunning
	s.mu.Unlock()

	s.logger.Info("server: listening", zap.String("addr", ln.Addr().String()))

	go s.acceptLoop(runCtx, ln)

	return nil
}

// Stop transitions Running -> Stopping -> Stopped: it stops accepting new
// connections, closes the listener, waits up to DefaultAcceptGrace for
// in-flight connections to finish, then marks the instance Stopped. A call
// while not Running is a no-op success.
func (s *Instance) Stop() error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	ln := s.listener
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ln != nil {
		_ = ln.Close()
	}

	drained := make(chan struct{})
	go func() {
		s.accepted.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(DefaultAcceptGrace):
		s.logger.Warn("server: stop grace period elapsed with connections still in flight")
	}

	s.mu.Lock()
	s.state = StateStopped
	s.listener = nil
	s.port = 0
	s.mu.Unlock()

	s.logger.Info("server: stopped")
	return nil
}

// ForceCleanup is the unconditional best-effort close invoked from
// process-exit and signal paths. Unlike Stop, it never returns an error
// and does not wait for in-flight connections — it is the last line of
// defense against leaking the port when the process is going down
// regardless.
func (s *Instance) ForceCleanup() {
	s.mu.Lock()
	ln := s.listener
	cancel := s.cancel
	state := s.state
	s.listener = nil
	s.port = 0
	s.state = StateStopped
	s.mu.Unlock()

	if state == StateStopped {
		return
	}
	if cancel != nil {
		cancel()
	}
	if ln != nil {
		_ = ln.Close()
	}
	s.logger.Info("server: force cleanup released listening socket")
}

func (s *Instance) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("server: accept error", zap.Error(err))
			continue
		}

		s.counters.IncAccepted()
		s.accepted.Add(1)
		go func() {
			defer s.accepted.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// handleConn runs the per-connection sequence: read one framed request,
// marshal it through the Bridge into the Dispatcher, write the reply,
// close. Errors never escape to the accept loop — they are turned into an
// error reply when a reply is still possible, or dropped silently for
// pure transport failures.
func (s *Instance) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	req, err := transport.ReadRequest(conn, s.ioTimeout)
	if err != nil {
		if errors.Is(err, transport.ErrConnectionClosed) {
			return
		}

		var cmdErr *protocol.CommandError
		if errors.As(err, &cmdErr) {
			s.writeReplyBestEffort(conn, protocol.Error(cmdErr.Message))
			return
		}

		s.logger.Warn("server: transport error reading request", zap.Error(err))
		return
	}

	s.counters.IncDispatched()

	reply, shutdown := s.dispatchViaBridge(ctx, req)
	if !s.writeReplyBestEffort(conn, reply) {
		s.counters.IncErrors()
	}

	if shutdown != nil {
		s.logger.Info("server: shutdown command observed, scheduling stop", zap.String("reason", shutdown.Reason))
		s.shutdownOnce.Do(func() { close(s.shutdownCh) })
	}

	s.counters.IncHandled()
}

// dispatchViaBridge submits the decoded request as a Bridge Job so the
// Dispatcher always runs on the single main goroutine, then translates a
// Bridge-level failure (timeout, reentrant call) into the matching
// taxonomy.
func (s *Instance) dispatchViaBridge(ctx context.Context, req protocol.Request) (protocol.Reply, *dispatch.ShutdownRequested) {
	var shutdown *dispatch.ShutdownRequested

	result, err := s.bridge.Submit(ctx, func(jobCtx context.Context) (map[string]any, error) {
		reply, sd := s.dispatcher.Dispatch(jobCtx, s.host, req)
		shutdown = sd
		if reply.Status == protocol.StatusError {
			return nil, errors.New(reply.Message)
		}
		return reply.Result, nil
	})

	if err != nil {
		if errors.Is(err, bridge.ErrMainThreadTimeout) {
			return protocol.Error("main thread unresponsive"), nil
		}
		if errors.Is(err, bridge.ErrReentrantSubmit) {
			s.counters.IncRejected()
			return protocol.Error(err.Error()), shutdown
		}
		return protocol.Error(err.Error()), shutdown
	}

	return protocol.Success(result), shutdown
}

func (s *Instance) writeReplyBestEffort(conn net.Conn, reply protocol.Reply) bool {
	if err := transport.WriteReply(conn, reply, s.ioTimeout); err != nil {
		s.logger.Warn("server: transport error writing reply", zap.Error(err))
		return false
	}
	return true
}
