package keepalive

import (
	"context"
	"testing"
	"time"

	"github.com/sceneforge/hostbridge/internal/bridge"
	"github.com/sceneforge/hostbridge/internal/metrics"
	"github.com/sceneforge/hostbridge/internal/tick"
)

func TestRunStopsOnContextCancellation(t *testing.T) {
	br := bridge.New(nil)
	loop := New(tick.New(nil), br, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx, nil) }()

	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("expected Run to return after context cancellation")
	}
}

func TestRunStopsOnShutdownClose(t *testing.T) {
	br := bridge.New(nil)
	loop := New(tick.New(nil), br, 5*time.Millisecond, nil)

	shutdown := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- loop.Run(context.Background(), shutdown) }()

	close(shutdown)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error on shutdown close, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("expected Run to return after shutdown channel closed")
	}
}

func TestRunLogsMetricsSnapshotWhenAttached(t *testing.T) {
	br := bridge.New(nil)
	loop := New(tick.New(nil), br, 2*time.Millisecond, nil)

	counters := &metrics.Counters{}
	counters.IncAccepted()
	loop.SetMetrics(counters)

	// logSnapshot is exercised directly rather than waiting out
	// metricsLogInterval, which would make this test take seconds for no
	// extra coverage: Run's select wiring to it is covered by inspection,
	// and this confirms attaching Counters does not panic or block.
	loop.logSnapshot()
}

func TestRunTicksDriveBridgeDrain(t *testing.T) {
	br := bridge.New(nil)
	loop := New(tick.New(nil), br, 5*time.Millisecond, nil)

	ran := make(chan struct{}, 1)
	go func() {
		_, _ = br.Submit(context.Background(), func(ctx context.Context) (map[string]any, error) {
			select {
			case ran <- struct{}{}:
			default:
			}
			return nil, nil
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go loop.Run(ctx, nil)

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("expected the keep-alive loop to drain the queued job via Tick")
	}
}
