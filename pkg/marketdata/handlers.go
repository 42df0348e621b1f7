package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/morezero/stockqa/pkg/dataset"
	"github.com/morezero/stockqa/pkg/protocol"
	"github.com/morezero/stockqa/pkg/queryparse"
)

const handlersLogPrefix = "marketdata:handlers"

var errSymbolRequired = errors.New("Stock symbol is required")

func decodeParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("Invalid params: %v", err)
	}
	return nil
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// localBars returns the dataset rows for symbol, or nil when the dataset has none.
func (s *Service) localBars(symbol string) []Bar {
	if s.data == nil {
		return nil
	}
	rows, err := s.data.BySymbol(symbol)
	if err != nil {
		if !errors.Is(err, dataset.ErrNotFound) {
			slog.Warn(fmt.Sprintf("%s - dataset lookup for %s failed: %v", handlersLogPrefix, symbol, err))
		}
		return nil
	}
	bars := make([]Bar, len(rows))
	for i, r := range rows {
		bars[i] = Bar{Date: r.Date, Open: r.Open, Close: r.Close}
	}
	return bars
}

func (s *Service) remoteBars(ctx context.Context, symbol string, w Window) ([]Bar, error) {
	if s.provider == nil {
		return nil, nil
	}
	return s.provider.Bars(ctx, symbol, w)
}

func parseRequestDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{queryparse.Layout, "1/2/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("Invalid date format. Use MM/DD/YYYY")
}

func (s *Service) fetchStockPrice(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p protocol.PriceParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	symbol := normalizeSymbol(p.Symbol)
	if symbol == "" {
		return nil, errSymbolRequired
	}

	if strings.TrimSpace(p.Date) != "" {
		day, err := parseRequestDate(p.Date)
		if err != nil {
			return nil, err
		}
		date := day.Format(queryparse.Layout)

		if b, ok := barOn(s.localBars(symbol), day); ok {
			return fmt.Sprintf("The closing price of %s on %s was $%.2f", symbol, date, b.Close), nil
		}
		bars, err := s.remoteBars(ctx, symbol, Window{Start: day.AddDate(0, 0, -1), End: day.AddDate(0, 0, 1)})
		if err != nil {
			return nil, fmt.Errorf("Error fetching price for %s: %v", symbol, err)
		}
		if b, ok := barOn(bars, day); ok {
			return fmt.Sprintf("The closing price of %s on %s was $%.2f", symbol, date, b.Close), nil
		}
		return nil, fmt.Errorf("No data for %s on %s", symbol, date)
	}

	bars := s.localBars(symbol)
	if len(bars) == 0 {
		var err error
		bars, err = s.remoteBars(ctx, symbol, Window{Period: "5d"})
		if err != nil {
			return nil, fmt.Errorf("Error fetching price for %s: %v", symbol, err)
		}
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("No data for %s", symbol)
	}
	last := latest(bars)
	return fmt.Sprintf("The latest closing price of %s is $%.2f", symbol, last.Close), nil
}

func (s *Service) fetchHistoricalData(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p protocol.HistoryParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	symbol := normalizeSymbol(p.Symbol)
	if symbol == "" {
		return nil, errSymbolRequired
	}
	period := strings.TrimSpace(p.Period)
	if period == "" {
		period = protocol.DefaultPeriod
	}
	if !ValidPeriod(period) {
		return nil, fmt.Errorf("Invalid period: %s", period)
	}

	bars := s.localBars(symbol)
	if len(bars) == 0 {
		var err error
		bars, err = s.remoteBars(ctx, symbol, Window{Period: period})
		if err != nil {
			return nil, fmt.Errorf("Error fetching historical data for %s: %v", symbol, err)
		}
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("No historical data for %s", symbol)
	}

	out := make([]protocol.HistoricalBar, len(bars))
	for i, b := range bars {
		out[i] = protocol.HistoricalBar{Date: b.Date.Format(queryparse.Layout), Open: b.Open, Close: b.Close}
	}
	return out, nil
}

func (s *Service) predictStockPrice(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p protocol.PredictParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	symbol := normalizeSymbol(p.Symbol)
	if symbol == "" {
		return nil, errSymbolRequired
	}
	days := p.DaysAhead
	if days <= 0 {
		days = 1
	}

	bars := s.localBars(symbol)
	if len(bars) == 0 {
		var err error
		bars, err = s.remoteBars(ctx, symbol, Window{Period: "1y"})
		if err != nil {
			return nil, fmt.Errorf("Error predicting price for %s: %v", symbol, err)
		}
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("No historical data for %s", symbol)
	}

	price, err := projectClose(bars, days)
	if err != nil {
		return nil, fmt.Errorf("Error predicting price for %s: %v", symbol, err)
	}
	return fmt.Sprintf("Predicted closing price for %s in %d day(s) is $%.2f", symbol, days, price), nil
}

func barOn(bars []Bar, day time.Time) (Bar, bool) {
	want := day.Format(queryparse.Layout)
	for _, b := range bars {
		if b.Date.Format(queryparse.Layout) == want {
			return b, true
		}
	}
	return Bar{}, false
}

func latest(bars []Bar) Bar {
	last := bars[0]
	for _, b := range bars[1:] {
		if !b.Date.Before(last.Date) {
			last = b
		}
	}
	return last
}
