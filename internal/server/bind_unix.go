//go:build !windows

package server

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// controlSocket enables SO_REUSEADDR on POSIX systems so a previous
// instance's TIME_WAIT sockets never block a fresh bind on the same port.
// There is no POSIX equivalent of Windows' exclusive-bind option, so
// nothing else is set here.
func controlSocket(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
