package metrics

import "testing"

func TestCountersIncrementIndependently(t *testing.T) {
	c := &Counters{}
	c.IncAccepted()
	c.IncAccepted()
	c.IncHandled()
	c.IncRejected()
	c.IncDispatched()
	c.IncErrors()

	snap := c.Snapshot()
	if snap.AcceptedConnections != 2 {
		t.Fatalf("expected 2 accepted connections, got %d", snap.AcceptedConnections)
	}
	if snap.HandledConnections != 1 {
		t.Fatalf("expected 1 handled connection, got %d", snap.HandledConnections)
	}
	if snap.RejectedConnections != 1 {
		t.Fatalf("expected 1 rejected connection, got %d", snap.RejectedConnections)
	}
	if snap.DispatchedCommands != 1 {
		t.Fatalf("expected 1 dispatched command, got %d", snap.DispatchedCommands)
	}
	if snap.ErrorCommands != 1 {
		t.Fatalf("expected 1 error command, got %d", snap.ErrorCommands)
	}
}

func TestSnapshotReportsGoroutineCount(t *testing.T) {
	c := &Counters{}
	snap := c.Snapshot()
	if snap.Goroutines <= 0 {
		t.Fatal("expected a positive goroutine count")
	}
}

func TestZeroValueCountersSnapshotCleanly(t *testing.T) {
	var c Counters
	snap := c.Snapshot()
	if snap.AcceptedConnections != 0 {
		t.Fatalf("expected zero accepted connections on a fresh Counters, got %d", snap.AcceptedConnections)
	}
}
