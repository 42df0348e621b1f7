package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/morezero/stockqa/pkg/commsutil"
)

const logPrefix = "protocol:client"

// DefaultTimeout bounds a single call when the client is built with a zero timeout.
const DefaultTimeout = 30 * time.Second

// ErrIncompatible is returned by Ping when the service version fails the constraint.
var ErrIncompatible = fmt.Errorf("%w: incompatible service version", ErrProtocol)

// Client issues one request at a time over a Transport and pairs it with exactly one reply.
type Client struct {
	transport Transport
	timeout   time.Duration

	mu     sync.Mutex
	nextID uint64
	closed atomic.Bool
	// broken is set once the transport reports the peer gone.
	broken atomic.Bool
}

// NewClient wraps a transport. The client owns the transport and closes it on Close.
func NewClient(t Transport, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{transport: t, timeout: timeout}
}

// Reachable reports whether the client can be used for calls. It turns false after Close
// and after the transport reports the service gone.
func (c *Client) Reachable() bool {
	return c != nil && c.transport != nil && !c.closed.Load() && !c.broken.Load()
}

// Close closes the underlying transport.
func (c *Client) Close() error {
	if c == nil || !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.transport.Close()
}

// Call sends method with params and returns the raw result. An {"error": ...} reply is
// returned as *RemoteError; everything else that goes wrong wraps ErrProtocol.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	if !c.Reachable() {
		return nil, fmt.Errorf("%s - %s: %w", logPrefix, method, ErrClosed)
	}

	var rawParams json.RawMessage
	if params != nil {
		data, err := commsutil.EncodePayload(params)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to encode %s params: %w", logPrefix, method, err)
		}
		rawParams = data
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID

	line, err := commsutil.EncodeLine(Request{ID: id, Method: method, Params: rawParams})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to encode %s request: %w", logPrefix, method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	slog.Debug(fmt.Sprintf("%s - -> id=%d method=%s", logPrefix, id, method))
	if err := c.transport.Send(ctx, line); err != nil {
		return nil, c.transportError(method, err)
	}

	for {
		data, err := c.transport.Receive(ctx)
		if err != nil {
			return nil, c.transportError(method, err)
		}
		if len(data) == 0 {
			continue
		}

		reply, err := decodeReply(data)
		if err != nil {
			return nil, fmt.Errorf("%s - %s: %w: %v", logPrefix, method, ErrProtocol, err)
		}

		if reply.ID != 0 && reply.ID != id {
			if reply.ID < id {
				slog.Warn(fmt.Sprintf("%s - discarding stale reply id=%d (waiting for %d)", logPrefix, reply.ID, id))
				continue
			}
			return nil, fmt.Errorf("%s - %s: %w: reply id %d does not match request id %d", logPrefix, method, ErrProtocol, reply.ID, id)
		}

		slog.Debug(fmt.Sprintf("%s - <- id=%d method=%s error=%t", logPrefix, id, method, reply.HasError))
		if reply.HasError {
			return nil, &RemoteError{Method: method, Message: reply.Error}
		}
		return reply.Result, nil
	}
}

func (c *Client) transportError(method string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s - %s after %s: %w", logPrefix, method, c.timeout, ErrTimeout)
	}
	if errors.Is(err, ErrClosed) {
		if c.broken.CompareAndSwap(false, true) {
			slog.Warn(fmt.Sprintf("%s - market data channel is gone, marking unreachable: %v", logPrefix, err))
		}
		return fmt.Errorf("%s - %s: %w", logPrefix, method, err)
	}
	if errors.Is(err, ErrProtocol) {
		return fmt.Errorf("%s - %s: %w", logPrefix, method, err)
	}
	return fmt.Errorf("%s - %s: %w: %w", logPrefix, method, ErrProtocol, err)
}

func (c *Client) callString(ctx context.Context, method string, params interface{}) (string, error) {
	raw, err := c.Call(ctx, method, params)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%s - %s: %w: result is not a string: %v", logPrefix, method, ErrProtocol, err)
	}
	return s, nil
}

// FetchStockPrice returns the formatted closing price of symbol on date (MM/DD/YYYY),
// or the latest close when date is empty.
func (c *Client) FetchStockPrice(ctx context.Context, symbol, date string) (string, error) {
	return c.callString(ctx, MethodFetchStockPrice, PriceParams{Symbol: symbol, Date: date})
}

// FetchHistoricalData returns daily bars for symbol over period.
func (c *Client) FetchHistoricalData(ctx context.Context, symbol, period string) ([]HistoricalBar, error) {
	if period == "" {
		period = DefaultPeriod
	}
	raw, err := c.Call(ctx, MethodFetchHistoricalData, HistoryParams{Symbol: symbol, Period: period})
	if err != nil {
		return nil, err
	}
	var bars []HistoricalBar
	if err := json.Unmarshal(raw, &bars); err != nil {
		return nil, fmt.Errorf("%s - %s: %w: %v", logPrefix, MethodFetchHistoricalData, ErrProtocol, err)
	}
	return bars, nil
}

// PredictStockPrice returns the formatted predicted close daysAhead days after the last observation.
func (c *Client) PredictStockPrice(ctx context.Context, symbol string, daysAhead int) (string, error) {
	if daysAhead <= 0 {
		daysAhead = 1
	}
	return c.callString(ctx, MethodPredictStockPrice, PredictParams{Symbol: symbol, DaysAhead: daysAhead})
}

// Ping asks the service to identify itself and, when constraint is non-empty, checks its
// version against it (e.g. "^1.0.0").
func (c *Client) Ping(ctx context.Context, constraint string) (*ServiceInfo, error) {
	raw, err := c.Call(ctx, MethodPing, struct{}{})
	if err != nil {
		return nil, err
	}
	var info ServiceInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("%s - %s: %w: %v", logPrefix, MethodPing, ErrProtocol, err)
	}
	if constraint == "" {
		return &info, nil
	}

	cons, err := semver.NewConstraint(constraint)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid version constraint %q: %w", logPrefix, constraint, err)
	}
	v, err := semver.NewVersion(info.Version)
	if err != nil {
		return &info, fmt.Errorf("%s - service %s reported version %q: %w", logPrefix, info.Service, info.Version, ErrIncompatible)
	}
	if !cons.Check(v) {
		return &info, fmt.Errorf("%s - service %s version %s does not satisfy %s: %w", logPrefix, info.Service, v, constraint, ErrIncompatible)
	}
	slog.Info(fmt.Sprintf("%s - Connected to %s %s", logPrefix, info.Service, v))
	return &info, nil
}
