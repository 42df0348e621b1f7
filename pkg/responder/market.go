package responder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/morezero/stockqa/pkg/protocol"
	"github.com/morezero/stockqa/pkg/queryparse"
	"github.com/morezero/stockqa/pkg/resolver"
)

const marketLogPrefix = "responder:market"

// MarketClient is the part of protocol.Client the market adapter uses.
type MarketClient interface {
	Reachable() bool
	FetchStockPrice(ctx context.Context, symbol, date string) (string, error)
	FetchHistoricalData(ctx context.Context, symbol, period string) ([]protocol.HistoricalBar, error)
	PredictStockPrice(ctx context.Context, symbol string, daysAhead int) (string, error)
}

// MarketData answers price, history and prediction questions through the market-data service.
type MarketData struct {
	client  MarketClient
	symbols *resolver.SymbolMap
}

// NewMarketData creates the live market adapter. A nil client makes it always decline.
func NewMarketData(client MarketClient, symbols *resolver.SymbolMap) *MarketData {
	if symbols == nil {
		symbols = resolver.DefaultSymbols()
	}
	return &MarketData{client: client, symbols: symbols}
}

func (m *MarketData) Name() string { return MarketDataAgent }

// Respond implements Responder. A service-level error reply means the service has no
// data and the adapter declines; channel failures are returned as Failed wrapping
// protocol.ErrProtocol.
func (m *MarketData) Respond(ctx context.Context, req *Request) Outcome {
	if m.client == nil || !m.client.Reachable() {
		return NotApplicable
	}
	if kind, ok := resolver.Classify(req.Query); !ok || kind != resolver.Ticker {
		return NotApplicable
	}
	symbol, ok := m.symbol(req)
	if !ok {
		return NotApplicable
	}

	lower := strings.ToLower(req.Query)
	var answer string
	var err error
	switch {
	case strings.Contains(lower, "predict"):
		days, ok := queryparse.DaysAhead(req.Query)
		if !ok {
			days = 1
		}
		answer, err = m.client.PredictStockPrice(ctx, symbol, days)
	case strings.Contains(lower, "historical"):
		period, ok := queryparse.Lookback(req.Query)
		if !ok {
			period = protocol.DefaultPeriod
		}
		var bars []protocol.HistoricalBar
		bars, err = m.client.FetchHistoricalData(ctx, symbol, period)
		if err == nil {
			answer = formatBars(symbol, period, bars)
		}
	default:
		var date string
		if d, ok := queryparse.ParseDate(req.Query); ok {
			date = d.String()
		}
		answer, err = m.client.FetchStockPrice(ctx, symbol, date)
	}

	if err != nil {
		var remote *protocol.RemoteError
		if errors.As(err, &remote) {
			slog.Info(fmt.Sprintf("%s - service has no answer for %s: %s", marketLogPrefix, symbol, remote.Message))
			return NotApplicable
		}
		return Failed(err)
	}
	return Answered(answer)
}

// symbol picks the ticker named in the query (company name, then bare symbol). The
// resolver hint only fills in when the query names none.
func (m *MarketData) symbol(req *Request) (string, bool) {
	if sym, ok := m.symbols.Lookup(resolver.Ticker, req.Query); ok {
		return sym, true
	}
	if sym, ok := queryparse.TickerToken(req.Query); ok {
		return sym, true
	}
	if req.Hint != nil && req.Hint.Kind == resolver.Ticker && req.Hint.Value != "" {
		return req.Hint.Value, true
	}
	return "", false
}

func formatBars(symbol, period string, bars []protocol.HistoricalBar) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Historical data for %s (%s):\n\n| Date | Open | Close |\n|---|---|---|\n", symbol, period)
	for _, bar := range bars {
		fmt.Fprintf(&b, "| %s | %.2f | %.2f |\n", bar.Date, bar.Open, bar.Close)
	}
	return strings.TrimRight(b.String(), "\n")
}
