package protocol

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	comms "github.com/nats-io/nats.go"
)

// NATSTransport carries each line as a COMMS request on subject; the reply message is
// the reply line. It does not own the connection.
type NATSTransport struct {
	nc      *comms.Conn
	subject string

	replies chan []byte
	done    chan struct{}
	once    sync.Once
}

// NewNATSTransport creates a transport over an existing connection.
func NewNATSTransport(nc *comms.Conn, subject string) *NATSTransport {
	return &NATSTransport{
		nc:      nc,
		subject: subject,
		replies: make(chan []byte, 1),
		done:    make(chan struct{}),
	}
}

// Send performs the request and queues the reply for Receive.
func (t *NATSTransport) Send(ctx context.Context, line []byte) error {
	select {
	case <-t.done:
		return ErrClosed
	default:
	}

	for drained := false; !drained; {
		select {
		case <-t.replies:
		default:
			drained = true
		}
	}

	msg, err := t.nc.RequestWithContext(ctx, t.subject, bytes.TrimRight(line, "\n"))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, comms.ErrConnectionClosed) {
			return fmt.Errorf("%w: request on %s failed: %v", ErrClosed, t.subject, err)
		}
		return fmt.Errorf("%w: request on %s failed: %v", ErrProtocol, t.subject, err)
	}

	select {
	case t.replies <- msg.Data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return ErrClosed
	}
}

// Receive returns the reply to the last Send.
func (t *NATSTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data := <-t.replies:
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return nil, ErrClosed
	}
}

// Close stops the transport. The connection stays open.
func (t *NATSTransport) Close() error {
	t.once.Do(func() { close(t.done) })
	return nil
}

var _ Transport = (*NATSTransport)(nil)
