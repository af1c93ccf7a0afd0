// Package dispatch maps Request.Type strings to handler functions invoked
// on the Host, and classifies handler errors into the protocol's error
// taxonomy.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sceneforge/hostbridge/internal/host"
	"github.com/sceneforge/hostbridge/internal/protocol"
)

// Handler is a command implementation. It runs on the Bridge's main
// goroutine (the Dispatcher never calls a Handler directly off it) and
// returns a JSON-serialisable result map, or an error classified into the
// taxonomy (a *protocol.CommandError carries an explicit taxonomy; an
// error wrapping host.ErrNotFound or host.ErrNoUI is classified
// TaxNotFound or TaxUnsupportedInBackground; any other error is classified
// TaxHostAPIError).
type Handler func(ctx context.Context, h host.Host, params map[string]any) (map[string]any, error)

// Table is a name -> Handler lookup. Built with NewTable, optionally
// extended via Register before the owning ServerInstance transitions to
// running: the table is open for extension but closed for modification
// once the server has started accepting connections.
type Table struct {
	handlers map[string]Handler
	sealed   bool
}

// NewTable creates a Table pre-populated with every built-in handler.
func NewTable() *Table {
	t := &Table{handlers: make(map[string]Handler)}
	t.handlers["get_scene_info"] = handleGetSceneInfo
	t.handlers["get_object_info"] = handleGetObjectInfo
	t.handlers["execute_code"] = handleExecuteCode
	t.handlers["get_viewport_screenshot"] = handleGetViewportScreenshot
	t.handlers["server_shutdown"] = handleShutdown
	t.handlers["shutdown"] = handleShutdown
	return t
}

// Register merges a third-party handler table in at startup. Built-ins
// always win on name collision — a provider cannot shadow a built-in
// command; conflicts resolve in registration order with the built-ins
// winning.
//
// Register panics if called after Seal, since the table must be closed
// for modification once the server is running; a startup ordering bug is
// a programmer error, not a runtime condition to recover from gracefully.
func (t *Table) Register(name string, h Handler) {
	if t.sealed {
		panic("dispatch: Register called after Table was sealed")
	}
	if _, exists := t.handlers[name]; exists {
		return
	}
	t.handlers[name] = h
}

// Seal freezes the table against further Register calls. Call this exactly
// once, when the owning ServerInstance transitions to "running".
func (t *Table) Seal() { t.sealed = true }

// Lookup resolves a command type to its Handler. ok is false when the
// command is unregistered.
func (t *Table) Lookup(cmdType string) (Handler, bool) {
	h, ok := t.handlers[cmdType]
	return h, ok
}

// ShutdownRequested is the sentinel the dispatcher returns (wrapped, via
// errors.As) from the server_shutdown/shutdown handlers so the Server Core
// knows to stop accepting connections after this reply is flushed, without
// the handler needing a reference back to the ServerInstance.
type ShutdownRequested struct{ Reason string }

func (s *ShutdownRequested) Error() string { return "dispatch: shutdown requested: " + s.Reason }

// Dispatcher resolves and invokes commands against a Host.
type Dispatcher struct {
	table  *Table
	logger *zap.Logger
}

// New creates a Dispatcher over table.
func New(table *Table, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{table: table, logger: logger.Named("dispatch")}
}

// Dispatch resolves req.Type and invokes its Handler, translating the
// outcome into a Reply. The second return value is non-nil only for the
// server_shutdown/shutdown commands, signalling the Server Core to stop
// accepting connections once this reply has been flushed; every other
// command always returns a nil *ShutdownRequested.
//
// Dispatch itself does not enforce main-thread execution — callers must
// invoke it from within a Bridge Job, which is what makes the
// single-main-goroutine invariant hold.
func (d *Dispatcher) Dispatch(ctx context.Context, h host.Host, req protocol.Request) (protocol.Reply, *ShutdownRequested) {
	handler, ok := d.table.Lookup(req.Type)
	if !ok {
		msg := fmt.Sprintf("unknown command type: %s", req.Type)
		d.logger.Info("dispatch: unknown command", zap.String("type", req.Type))
		return protocol.Error(msg), nil
	}

	if req.Message != "" {
		// Legacy compatibility: a top-level "message" is echoed into the
		// log stream rather than treated as a command parameter.
		d.logger.Info("dispatch: legacy message payload", zap.String("message", req.Message))
	}

	result, err := handler(ctx, h, req.Params)
	if err != nil {
		var shutdown *ShutdownRequested
		if errors.As(err, &shutdown) {
			return protocol.Success(map[string]any{"shutdown": "initiated"}), shutdown
		}

		tax := classify(err)
		d.logger.Warn("dispatch: handler error", zap.String("type", req.Type), zap.String("taxonomy", string(tax)), zap.Error(err))
		return protocol.Error(err.Error()), nil
	}

	return protocol.Success(result), nil
}

func classify(err error) protocol.Taxonomy {
	var cmdErr *protocol.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Tax
	}
	switch {
	case errors.Is(err, host.ErrNotFound):
		return protocol.TaxNotFound
	case errors.Is(err, host.ErrNoUI):
		return protocol.TaxUnsupportedInBackground
	default:
		return protocol.TaxHostAPIError
	}
}
