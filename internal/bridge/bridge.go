// Package bridge implements the Main-Thread Bridge: a FIFO of zero-argument
// callables that I/O-context goroutines can enqueue and block on, drained
// one at a time by a single dedicated goroutine that stands in for the
// host's single-threaded scripting main thread.
//
// This generalizes a single-worker buffered-channel job queue — the kind
// that runs one background job at a time off a channel — from "one job
// type" to "one arbitrary callable returning (map[string]any, error)", and
// adds the per-job completion slot and caller-side timeout that a
// fire-and-forget queue did not need.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultWaitTimeout is how long a caller waits for a job to complete
// before reporting the main thread unresponsive.
const DefaultWaitTimeout = 30 * time.Second

// defaultQueueSize bounds how many jobs may be buffered awaiting the main
// goroutine. Command traffic can burst, so this is sized generously;
// Submit still blocks rather than drops when full, since there is no
// taxonomy for "queue full" and every accepted connection must still
// receive a reply.
const defaultQueueSize = 256

// Job is a zero-argument callable scheduled to run on the Bridge's main
// goroutine. It must return a JSON-serialisable result map or an error.
type Job func(ctx context.Context) (map[string]any, error)

// pendingJob is one item in the FIFO: the callable, its completion
// channel, and the result/exception slot filled in when it runs.
type pendingJob struct {
	id     string
	job    Job
	done   chan struct{}
	result map[string]any
	err    error
}

// ErrMainThreadTimeout is returned by Submit when the wait deadline elapses
// before the job completes. The job itself is NOT cancelled — the host's
// single-threaded model forbids forcibly interrupting work already handed
// to the main goroutine — it keeps running and its result is discarded.
var ErrMainThreadTimeout = errors.New("bridge: main thread unresponsive")

// ErrReentrantSubmit is returned when Submit is called with the ctx a Job
// on this Bridge was handed, i.e. by a Job synchronously calling back into
// its own Bridge (see bridgeMarkerKey). Callables must not synchronously re-enter
// the Bridge — doing so would deadlock waiting for a slot the drain
// goroutine itself would need to free.
var ErrReentrantSubmit = errors.New("bridge: reentrant Submit from main goroutine")

// bridgeMarkerKey tags a context as "currently running as a Job on this
// Bridge". invoke stamps it onto the ctx a Job receives; Submit checks for
// it to detect a Job synchronously calling back into its own Bridge. Go
// exposes no goroutine identity to compare against, but a Job only ever
// gets this marked ctx by being invoked directly, so the check is scoped to
// the actual call chain rather than to a process-wide flag — a Submit
// issued from an unrelated goroutine, with its own unmarked ctx, is never
// mistaken for reentrancy just because some other job happens to be
// running concurrently.
type bridgeMarkerKey struct{}

// Bridge is the process-wide Main-Thread Bridge singleton. Construct one
// with New and give it exactly one consumer: either Run on one goroutine,
// or Drain called from a single ticking goroutine (as internal/lifecycle
// does via the Keep-Alive Loop). That goroutine is the main thread.
type Bridge struct {
	queue       chan *pendingJob
	logger      *zap.Logger
	waitTimeout time.Duration
}

// New creates a Bridge with the default queue size and wait timeout.
func New(logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		queue:       make(chan *pendingJob, defaultQueueSize),
		logger:      logger.Named("bridge"),
		waitTimeout: DefaultWaitTimeout,
	}
}

// SetWaitTimeout overrides DefaultWaitTimeout. Must be called before the
// first Submit to take effect deterministically.
func (b *Bridge) SetWaitTimeout(d time.Duration) {
	if d > 0 {
		b.waitTimeout = d
	}
}

// Run drains the FIFO in submission order until ctx is cancelled. It must
// run on exactly one goroutine for the life of the Bridge — that goroutine
// is, by definition, "the main thread" for every Submit caller. Run never
// returns an error; per-job panics are recovered and surfaced as the job's
// error so one bad command cannot take down the whole endpoint.
func (b *Bridge) Run(ctx context.Context) {
	b.logger.Info("bridge: main-thread drain loop started")
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("bridge: main-thread drain loop stopped")
			return
		case pj := <-b.queue:
			b.invoke(ctx, pj)
		}
	}
}

func (b *Bridge) invoke(ctx context.Context, pj *pendingJob) {
	ctx = context.WithValue(ctx, bridgeMarkerKey{}, b)

	defer func() {
		if r := recover(); r != nil {
			pj.err = fmt.Errorf("bridge: job %s panicked: %v", pj.id, r)
		}
		close(pj.done)
	}()

	pj.result, pj.err = pj.job(ctx)
}

// Submit enqueues job and blocks until it completes or the wait timeout
// elapses, whichever comes first. It must be called from an I/O-context
// goroutine, never from inside a Job running on the Bridge's own main
// goroutine (see ErrReentrantSubmit).
func (b *Bridge) Submit(ctx context.Context, job Job) (map[string]any, error) {
	if marker, ok := ctx.Value(bridgeMarkerKey{}).(*Bridge); ok && marker == b {
		return nil, ErrReentrantSubmit
	}

	pj := &pendingJob{id: uuid.NewString(), job: job, done: make(chan struct{})}

	select {
	case b.queue <- pj:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	timer := time.NewTimer(b.waitTimeout)
	defer timer.Stop()

	select {
	case <-pj.done:
		return pj.result, pj.err
	case <-timer.C:
		b.logger.Warn("bridge: job exceeded wait timeout", zap.String("job_id", pj.id), zap.Duration("timeout", b.waitTimeout))
		return nil, ErrMainThreadTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Drain is exposed for the Tick Driver's fallback path: it runs at most
// one already-queued job inline on the calling goroutine without blocking
// for new ones. Production wiring drives Drain from the Keep-Alive Loop's
// ticker as the sole consumer of the queue; callers must not also run Run
// concurrently, since having two goroutines each able to dequeue a job
// would let two jobs execute at once and break the single-main-thread
// guarantee both methods exist to provide.
//
// The dequeued job gets ctx's values but not its deadline or cancellation,
// so a short per-tick deadline never cuts short work already handed to the
// main goroutine (see ErrMainThreadTimeout).
func (b *Bridge) Drain(ctx context.Context) error {
	select {
	case pj := <-b.queue:
		b.invoke(context.WithoutCancel(ctx), pj)
		return nil
	default:
		return nil
	}
}

// Len reports the number of jobs currently queued, for metrics/diagnostics.
func (b *Bridge) Len() int { return len(b.queue) }
