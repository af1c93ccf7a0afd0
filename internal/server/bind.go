package server

import (
	"context"
	"net"
	"strconv"
)

// bind opens the loopback listening socket for port with the exclusive-bind
// / address-reuse semantics appropriate to the host OS, centralized here
// rather than scattered across the accept path. Feature detection lives in
// the platform-specific controlSocket implementations (bind_unix.go,
// bind_windows.go) so this function never branches on runtime.GOOS itself.
func bind(port int) (net.Listener, error) {
	lc := net.ListenConfig{Control: controlSocket}
	return lc.Listen(context.Background(), "tcp", loopbackAddr(port))
}

func loopbackAddr(port int) string {
	return "127.0.0.1:" + strconv.Itoa(port)
}
