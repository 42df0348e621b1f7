package protocol

import (
	"errors"
	"fmt"
)

// ErrProtocol marks failures of the channel itself: malformed or missing replies,
// transport errors and timeouts. Callers surface these rather than treating them as
// "no data".
var ErrProtocol = errors.New("protocol error")

// ErrTimeout is returned when no reply arrives within the request timeout.
var ErrTimeout = fmt.Errorf("%w: timed out waiting for reply", ErrProtocol)

// ErrClosed is returned by transports after Close and once the peer has gone away
// (EOF, broken pipe, closed connection).
var ErrClosed = fmt.Errorf("%w: transport closed", ErrProtocol)

// RemoteError is an {"error": ...} reply from the service, e.g. "Unknown method: x"
// or "No data for AAPL on 06/04/2025".
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Method, e.Message)
}
