//go:build windows

package server

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// controlSocket sets SO_EXCLUSIVEADDRUSE on Windows to prevent another
// process from hijacking the port. Windows' SO_REUSEADDR semantics differ
// from POSIX's — it permits a second process to bind the port even while
// the first is actively listening — so exclusive-bind replaces SO_REUSEADDR
// here rather than supplementing it.
func controlSocket(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_EXCLUSIVEADDRUSE, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
