// Package transport implements the Framed JSON Transport: one decoded JSON
// object request per connection, one JSON object reply, then close.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/sceneforge/hostbridge/internal/protocol"
)

// MaxRequestBytes bounds how large the accumulated read buffer may grow
// before the connection is rejected with TaxInvalidRequest. 16 MiB
// comfortably tolerates embedded source blocks passed to execute_code.
const MaxRequestBytes = 16 * 1024 * 1024

// DefaultIOTimeout is the per-connection read/write deadline.
const DefaultIOTimeout = 30 * time.Second

// ErrConnectionClosed is returned by ReadRequest when the peer closed the
// connection without sending any bytes — a silently dropped connection,
// not an error reply.
var ErrConnectionClosed = errors.New("transport: connection closed with no request")

// ReadRequest reads bytes from conn until either the peer half-closes or a
// prefix of the accumulated buffer parses as one complete UTF-8 JSON
// object — whichever happens first, so pipelined writes within a single
// TCP segment are not held open waiting for EOF. conn's read deadline is
// set to ioTimeout before the first read.
func ReadRequest(conn net.Conn, ioTimeout time.Duration) (protocol.Request, error) {
	if ioTimeout <= 0 {
		ioTimeout = DefaultIOTimeout
	}
	if err := conn.SetReadDeadline(time.Now().Add(ioTimeout)); err != nil {
		return protocol.Request{}, fmt.Errorf("%w: set read deadline: %w", errTransport, err)
	}

	var buf bytes.Buffer
	chunk := make([]byte, 64*1024)

	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])

			if buf.Len() > MaxRequestBytes {
				return protocol.Request{}, protocol.NewError(protocol.TaxInvalidRequest,
					"request exceeds maximum size of %d bytes", MaxRequestBytes)
			}

			if req, ok := tryDecode(buf.Bytes()); ok {
				return req, nil
			}
		}

		if err != nil {
			if err == io.EOF {
				if buf.Len() == 0 {
					return protocol.Request{}, ErrConnectionClosed
				}
				return decodeFinal(buf.Bytes())
			}
			return protocol.Request{}, fmt.Errorf("%w: read: %w", errTransport, err)
		}
	}
}

// tryDecode attempts to parse data as a single JSON value, reporting ok=true
// only when the parse consumes a prefix successfully and leaves either
// nothing or only whitespace — i.e. a complete object has arrived.
func tryDecode(data []byte) (protocol.Request, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return protocol.Request{}, false
	}
	// Require no more than trailing whitespace after the first value, so a
	// truncated second object does not get treated as complete.
	rest := data[dec.InputOffset():]
	if len(bytes.TrimSpace(rest)) != 0 {
		return protocol.Request{}, false
	}

	req, err := decodeValue(raw)
	if err != nil {
		return protocol.Request{}, false
	}
	return req, true
}

func decodeFinal(data []byte) (protocol.Request, error) {
	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return protocol.Request{}, protocol.NewError(protocol.TaxInvalidRequest, "malformed JSON: %s", err)
	}
	return decodeValue(raw)
}

func decodeValue(raw json.RawMessage) (protocol.Request, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return protocol.Request{}, protocol.NewError(protocol.TaxInvalidRequest, "request top level must be a JSON object")
	}

	var req protocol.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return protocol.Request{}, protocol.NewError(protocol.TaxInvalidRequest, "malformed JSON: %s", err)
	}
	req.Normalize()
	return req, nil
}

// WriteReply serializes reply to JSON and writes it in full before
// returning, retrying partial writes until complete or the connection
// errors. Exactly one reply is written per accepted connection.
func WriteReply(conn net.Conn, reply protocol.Reply, ioTimeout time.Duration) error {
	if ioTimeout <= 0 {
		ioTimeout = DefaultIOTimeout
	}
	if err := conn.SetWriteDeadline(time.Now().Add(ioTimeout)); err != nil {
		return fmt.Errorf("%w: set write deadline: %s", errTransport, err)
	}

	data, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("%w: marshal reply: %s", errTransport, err)
	}

	for len(data) > 0 {
		n, err := conn.Write(data)
		if err != nil {
			return fmt.Errorf("%w: write: %s", errTransport, err)
		}
		data = data[n:]
	}
	return nil
}

// errTransport tags errors that should be classified as
// protocol.TaxTransportError by the caller; no reply is attempted for
// these since the connection itself is unreliable.
var errTransport = errors.New("transport_error")

// IsTransportError reports whether err originated from a read/write
// failure (as opposed to a JSON decode failure, which is reported as a
// protocol.CommandError with TaxInvalidRequest instead).
func IsTransportError(err error) bool {
	return errors.Is(err, errTransport) || errors.Is(err, context.DeadlineExceeded)
}
