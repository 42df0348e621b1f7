// Package marketdata is the market-data service: it answers protocol requests for prices,
// history and price projections from the local dataset, falling back to a live provider.
package marketdata

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/stockqa/pkg/commsutil"
	"github.com/morezero/stockqa/pkg/dataset"
	"github.com/morezero/stockqa/pkg/protocol"
)

const logPrefix = "marketdata:service"

// Service identity reported by ping.
const (
	ServiceName = "marketdata"
	Version     = "1.0.0"
)

type handlerFunc func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Service dispatches protocol requests to handlers. It is safe for use by one channel at a
// time; Serve and the NATS responder each process requests sequentially.
type Service struct {
	data     *dataset.Dataset
	provider Provider
	methods  map[string]handlerFunc
}

// NewService creates a service. Either collaborator may be nil.
func NewService(data *dataset.Dataset, provider Provider) *Service {
	s := &Service{data: data, provider: provider}
	s.methods = map[string]handlerFunc{
		protocol.MethodFetchStockPrice:     s.fetchStockPrice,
		protocol.MethodFetchHistoricalData: s.fetchHistoricalData,
		protocol.MethodPredictStockPrice:   s.predictStockPrice,
		protocol.MethodPing:                s.ping,
	}
	return s
}

// Methods returns the supported method names, sorted.
func (s *Service) Methods() []string {
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch routes a request to its handler and builds the reply.
func (s *Service) Dispatch(ctx context.Context, req *protocol.Request) (reply *protocol.Reply) {
	slog.Debug(fmt.Sprintf("%s - method=%s id=%d", logPrefix, req.Method, req.ID))

	handler, ok := s.methods[req.Method]
	if !ok {
		return &protocol.Reply{ID: req.ID, Error: fmt.Sprintf("Unknown method: %s", req.Method)}
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("%s - panic in %s: %v", logPrefix, req.Method, r))
			reply = &protocol.Reply{ID: req.ID, Error: fmt.Sprintf("Server error: %v", r)}
		}
	}()

	result, err := handler(ctx, req.Params)
	if err != nil {
		return &protocol.Reply{ID: req.ID, Error: err.Error()}
	}
	return &protocol.Reply{ID: req.ID, Result: result}
}

// Handle decodes one request line and returns one encoded reply line.
func (s *Service) Handle(ctx context.Context, line []byte) []byte {
	var req protocol.Request
	if err := commsutil.DecodePayload(line, &req); err != nil {
		return s.encode(&protocol.Reply{Error: fmt.Sprintf("Invalid request: %v", err)})
	}
	if req.Method == "" {
		return s.encode(&protocol.Reply{ID: req.ID, Error: "Invalid request: missing method"})
	}
	return s.encode(s.Dispatch(ctx, &req))
}

func (s *Service) encode(reply *protocol.Reply) []byte {
	out, err := commsutil.EncodeLine(reply)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode reply: %v", logPrefix, err))
		out, _ = commsutil.EncodeLine(&protocol.Reply{ID: reply.ID, Error: fmt.Sprintf("Server error: %v", err)})
	}
	return out
}

// Serve reads requests from r and writes one reply per request to w until EOF or until
// ctx is done between requests. Blank lines are ignored.
func (s *Service) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	slog.Info(fmt.Sprintf("%s - Serving %s %s", logPrefix, ServiceName, Version))

	br := bufio.NewReader(r)
	bw := bufio.NewWriter(w)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		line, readErr := br.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			if _, err := bw.Write(s.Handle(ctx, line)); err != nil {
				return fmt.Errorf("%s - write failed: %w", logPrefix, err)
			}
			if err := bw.Flush(); err != nil {
				return fmt.Errorf("%s - flush failed: %w", logPrefix, err)
			}
		}

		if readErr == io.EOF {
			slog.Info(fmt.Sprintf("%s - Input closed, stopping", logPrefix))
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("%s - read failed: %w", logPrefix, readErr)
		}
	}
}

// Subscribe serves the same methods as COMMS request/reply on subject. The subscription
// callback runs sequentially, so requests are handled one at a time.
func (s *Service) Subscribe(ctx context.Context, nc *comms.Conn, subject string) (*comms.Subscription, error) {
	sub, err := nc.Subscribe(subject, func(msg *comms.Msg) {
		reply := s.Handle(ctx, msg.Data)
		if err := msg.Respond(bytes.TrimRight(reply, "\n")); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to respond on %s: %v", logPrefix, subject, err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, subject, err)
	}
	slog.Info(fmt.Sprintf("%s - Listening on COMMS subject %s", logPrefix, subject))
	return sub, nil
}

func (s *Service) ping(context.Context, json.RawMessage) (interface{}, error) {
	return protocol.ServiceInfo{Service: ServiceName, Version: Version, Methods: s.Methods()}, nil
}
