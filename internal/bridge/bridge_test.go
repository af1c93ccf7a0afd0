package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func runBridge(t *testing.T, b *Bridge) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)
	return cancel
}

func TestSubmitReturnsJobResult(t *testing.T) {
	b := New(nil)
	defer runBridge(t, b)()

	result, err := b.Submit(context.Background(), func(ctx context.Context) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if result["ok"] != true {
		t.Fatalf("unexpected result: %v", result)
	}
}

func TestSubmitPropagatesJobError(t *testing.T) {
	b := New(nil)
	defer runBridge(t, b)()

	wantErr := errors.New("handler failed")
	_, err := b.Submit(context.Background(), func(ctx context.Context) (map[string]any, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
}

func TestSubmitOrderingIsFIFO(t *testing.T) {
	b := New(nil)
	defer runBridge(t, b)()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	// Submit N jobs from N goroutines that all block briefly on entry,
	// to verify the bridge still drains them in submission order rather
	// than completion order. Submission order is established by pausing
	// briefly after starting each Submit call before issuing the next one.
	const n = 5
	started := make(chan struct{}, n)
	release := make(chan struct{})

	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = b.Submit(context.Background(), func(ctx context.Context) (map[string]any, error) {
				started <- struct{}{}
				<-release
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil, nil
			})
		}()
		// Give the previous goroutine's Submit a moment to enqueue before
		// starting the next one, since the bridge is single-consumer and
		// jobs run one at a time anyway.
		time.Sleep(5 * time.Millisecond)
	}

	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i, got := range order {
		if got != i {
			t.Fatalf("expected FIFO order, got %v", order)
		}
	}
}

func TestSubmitTimesOutWhenMainThreadUnresponsive(t *testing.T) {
	b := New(nil)
	b.SetWaitTimeout(10 * time.Millisecond)
	// Intentionally do not call Run: nothing drains the queue, so the
	// job never completes and Submit must report main_thread_timeout.

	_, err := b.Submit(context.Background(), func(ctx context.Context) (map[string]any, error) {
		return nil, nil
	})
	if !errors.Is(err, ErrMainThreadTimeout) {
		t.Fatalf("expected ErrMainThreadTimeout, got %v", err)
	}
}

func TestSubmitFromAnotherGoroutineNotRejectedDuringInFlightJob(t *testing.T) {
	b := New(nil)
	defer runBridge(t, b)()

	releaseA := make(chan struct{})
	startedA := make(chan struct{})
	doneA := make(chan struct{})
	go func() {
		_, _ = b.Submit(context.Background(), func(ctx context.Context) (map[string]any, error) {
			close(startedA)
			<-releaseA
			return map[string]any{"who": "A"}, nil
		})
		close(doneA)
	}()

	<-startedA

	// Client B's Submit call runs on an unrelated goroutine with its own,
	// unmarked context while A's job is still executing on the bridge's
	// main goroutine. It must queue behind A and succeed, not be rejected
	// as a reentrant call.
	resultCh := make(chan map[string]any, 1)
	errCh := make(chan error, 1)
	go func() {
		result, err := b.Submit(context.Background(), func(ctx context.Context) (map[string]any, error) {
			return map[string]any{"who": "B"}, nil
		})
		resultCh <- result
		errCh <- err
	}()

	close(releaseA)
	<-doneA

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("expected concurrent Submit to succeed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for B's Submit to complete")
	}
	if resultB := <-resultCh; resultB["who"] != "B" {
		t.Fatalf("unexpected result: %v", resultB)
	}
}

func TestSubmitDetectsReentrance(t *testing.T) {
	b := New(nil)
	defer runBridge(t, b)()

	_, err := b.Submit(context.Background(), func(ctx context.Context) (map[string]any, error) {
		return b.Submit(ctx, func(ctx context.Context) (map[string]any, error) {
			return nil, nil
		})
	})
	if !errors.Is(err, ErrReentrantSubmit) {
		t.Fatalf("expected ErrReentrantSubmit, got %v", err)
	}
}

func TestDrainRunsAtMostOneQueuedJob(t *testing.T) {
	b := New(nil)

	var calls int
	job := func(ctx context.Context) (map[string]any, error) {
		calls++
		return nil, nil
	}

	pj1 := make(chan struct{})
	pj2 := make(chan struct{})
	go func() {
		_, _ = b.Submit(context.Background(), job)
		close(pj1)
	}()
	time.Sleep(5 * time.Millisecond)
	go func() {
		_, _ = b.Submit(context.Background(), job)
		close(pj2)
	}()
	time.Sleep(5 * time.Millisecond)

	if err := b.Drain(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one job to run per Drain call, ran %d", calls)
	}

	if err := b.Drain(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("expected second Drain to run the second job, ran %d total", calls)
	}

	<-pj1
	<-pj2
}
