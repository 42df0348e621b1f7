// Package commsutil provides COMMS (NATS) connection helpers, subjects and the line codec.
package commsutil

import (
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"
)

const logPrefix = "commsutil:connect"

// DefaultMaxReconnects bounds reconnect attempts for clients (the router). Long-lived
// responders pass comms.MaxReconnects(-1) instead.
const DefaultMaxReconnects = 30

// Connect opens a COMMS connection identified as name. extra options are applied after the
// defaults and override them.
func Connect(url, name string, extra ...comms.Option) (*comms.Conn, error) {
	slog.Info(fmt.Sprintf("%s - Connecting to COMMS at %s as %s", logPrefix, url, name))

	opts := []comms.Option{
		comms.Name(name),
		comms.Timeout(10 * time.Second),
		comms.ReconnectWait(2 * time.Second),
		comms.MaxReconnects(DefaultMaxReconnects),
		comms.DisconnectErrHandler(func(_ *comms.Conn, err error) {
			if err != nil {
				slog.Warn(fmt.Sprintf("%s - %s disconnected: %v", logPrefix, name, err))
			}
		}),
		comms.ReconnectHandler(func(nc *comms.Conn) {
			slog.Info(fmt.Sprintf("%s - %s reconnected to %s", logPrefix, name, nc.ConnectedUrl()))
		}),
		comms.ClosedHandler(func(*comms.Conn) {
			slog.Info(fmt.Sprintf("%s - %s connection closed", logPrefix, name))
		}),
	}
	nc, err := comms.Connect(url, append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Connected to COMMS at %s", logPrefix, nc.ConnectedUrl()))
	return nc, nil
}
