// Package protocol implements the newline-delimited JSON request/reply protocol spoken
// between the router and the market-data service.
//
// Each request is one line: {"id": 1, "method": "...", "params": {...}}.
// Each reply is one line echoing the id with either "result" or "error".
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Method names understood by the market-data service.
const (
	MethodFetchStockPrice     = "fetch_stock_price"
	MethodFetchHistoricalData = "fetch_historical_data"
	MethodPredictStockPrice   = "predict_stock_price"
	MethodPing                = "ping"
)

// Request is the wire envelope for one call.
type Request struct {
	ID     uint64          `json:"id,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Reply is the wire envelope for one answer. Exactly one of Result or Error is set.
type Reply struct {
	ID     uint64      `json:"id,omitempty"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// decodedReply is a Reply as read off the wire, with key presence preserved.
type decodedReply struct {
	ID       uint64
	Result   json.RawMessage
	Error    string
	HasError bool
}

// decodeReply parses one reply line. A line that is not a JSON object, or that carries
// neither "result" nor "error", is rejected.
func decodeReply(line []byte) (*decodedReply, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return nil, fmt.Errorf("malformed reply %q: %w", truncate(string(line), 120), err)
	}

	out := &decodedReply{}
	if raw, ok := fields["id"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &out.ID); err != nil {
			return nil, fmt.Errorf("invalid reply id %s: %w", raw, err)
		}
	}

	if raw, ok := fields["error"]; ok && string(raw) != "null" {
		out.HasError = true
		var msg string
		if err := json.Unmarshal(raw, &msg); err != nil {
			msg = string(raw)
		}
		out.Error = msg
		return out, nil
	}

	raw, ok := fields["result"]
	if !ok {
		return nil, fmt.Errorf("reply has neither result nor error: %q", truncate(string(line), 120))
	}
	out.Result = raw
	return out, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
