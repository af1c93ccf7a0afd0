// Package metrics collects endpoint-level counters and host resource usage,
// sampling CPU/RSS/goroutine counts via gopsutil alongside the
// connection/command counters the accept loop and dispatcher update.
package metrics

import (
	"os"
	"runtime"
	"sync/atomic"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// Counters tracks endpoint activity. All fields are accessed atomically so
// the accept loop, the Bridge drain goroutine, and the keep-alive loop can
// update them without a shared lock.
type Counters struct {
	acceptedConnections int64
	handledConnections  int64
	rejectedConnections int64
	dispatchedCommands  int64
	errorCommands       int64
}

func (c *Counters) IncAccepted()   { atomic.AddInt64(&c.acceptedConnections, 1) }
func (c *Counters) IncHandled()    { atomic.AddInt64(&c.handledConnections, 1) }
func (c *Counters) IncRejected()   { atomic.AddInt64(&c.rejectedConnections, 1) }
func (c *Counters) IncDispatched() { atomic.AddInt64(&c.dispatchedCommands, 1) }
func (c *Counters) IncErrors()     { atomic.AddInt64(&c.errorCommands, 1) }

// Snapshot is a point-in-time read of every counter plus host resource
// usage (process RSS, process CPU percent, goroutine count).
type Snapshot struct {
	AcceptedConnections int64   `json:"accepted_connections"`
	HandledConnections  int64   `json:"handled_connections"`
	RejectedConnections int64   `json:"rejected_connections"`
	DispatchedCommands  int64   `json:"dispatched_commands"`
	ErrorCommands       int64   `json:"error_commands"`
	Goroutines          int     `json:"goroutines"`
	ProcessRSSBytes     uint64  `json:"process_rss_bytes"`
	ProcessCPUPercent   float64 `json:"process_cpu_percent"`
	SystemMemPercent    float64 `json:"system_mem_percent"`
}

// Snapshot reads every counter and samples host resource usage via
// gopsutil. Sampling errors are non-fatal — the corresponding field is
// left at zero for whichever individual gopsutil call fails on this
// platform.
func (c *Counters) Snapshot() Snapshot {
	snap := Snapshot{
		AcceptedConnections: atomic.LoadInt64(&c.acceptedConnections),
		HandledConnections:  atomic.LoadInt64(&c.handledConnections),
		RejectedConnections: atomic.LoadInt64(&c.rejectedConnections),
		DispatchedCommands:  atomic.LoadInt64(&c.dispatchedCommands),
		ErrorCommands:       atomic.LoadInt64(&c.errorCommands),
		Goroutines:          runtime.NumGoroutine(),
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mi, err := proc.MemoryInfo(); err == nil && mi != nil {
			snap.ProcessRSSBytes = mi.RSS
		}
		if pct, err := proc.CPUPercent(); err == nil {
			snap.ProcessCPUPercent = pct
		}
	}

	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		snap.SystemMemPercent = vm.UsedPercent
	}

	return snap
}
