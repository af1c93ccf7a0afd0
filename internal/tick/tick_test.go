package tick

import (
	"context"
	"testing"
	"time"
)

func TestTickNeverBlocksWithNilDrain(t *testing.T) {
	d := New(nil)
	done := make(chan struct{})
	go func() {
		d.Tick(context.Background(), nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Tick blocked with a nil drain function")
	}
}

func TestTickDrainsReadyWork(t *testing.T) {
	d := New(nil)
	var ran bool
	drain := func(ctx context.Context) error {
		ran = true
		return nil
	}
	d.Tick(context.Background(), drain)
	if !ran {
		t.Fatal("expected drain to be invoked")
	}
}

func TestTickSwallowsDrainErrors(t *testing.T) {
	d := New(nil)
	done := make(chan struct{})
	go func() {
		d.Tick(context.Background(), func(ctx context.Context) error {
			return errBoom
		})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Tick did not return after drain error")
	}
}

var errBoom = errTickTest("boom")

type errTickTest string

func (e errTickTest) Error() string { return string(e) }
