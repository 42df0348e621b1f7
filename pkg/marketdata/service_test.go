package marketdata

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/morezero/stockqa/pkg/dataset"
	"github.com/morezero/stockqa/pkg/protocol"
)

const serviceTestPrefix = "marketdata:service_test"

type fakeProvider struct {
	bars    map[string][]Bar
	err     error
	panics  bool
	windows []Window
}

func (f *fakeProvider) Bars(_ context.Context, symbol string, w Window) ([]Bar, error) {
	f.windows = append(f.windows, w)
	if f.panics {
		panic("provider exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	var out []Bar
	for _, b := range f.bars[symbol] {
		if !w.Start.IsZero() && (b.Date.Before(w.Start) || !b.Date.Before(w.End)) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func day(s string) time.Time {
	t, err := time.Parse("01/02/2006", s)
	if err != nil {
		panic(err)
	}
	return t
}

func testDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.Parse(strings.NewReader(`Date,Open,Close,Symbol
2025-06-02,100,101,AAPL
2025-06-03,101,103,AAPL
2025-06-04,103,105,AAPL
`))
	if err != nil {
		t.Fatalf("%s - dataset parse failed: %v", serviceTestPrefix, err)
	}
	return ds
}

func call(t *testing.T, s *Service, method string, params interface{}) *protocol.Reply {
	t.Helper()
	raw, _ := json.Marshal(params)
	return s.Dispatch(context.Background(), &protocol.Request{ID: 5, Method: method, Params: raw})
}

func TestFetchStockPrice(t *testing.T) {
	provider := &fakeProvider{bars: map[string][]Bar{
		"MSFT": {{Date: day("06/03/2025"), Open: 400, Close: 410.457}, {Date: day("06/04/2025"), Open: 410, Close: 412}},
	}}
	s := NewService(testDataset(t), provider)

	tests := []struct {
		name       string
		params     protocol.PriceParams
		wantResult string
		wantError  string
	}{
		{"dataset dated", protocol.PriceParams{Symbol: "aapl", Date: "06/03/2025"}, "The closing price of AAPL on 06/03/2025 was $103.00", ""},
		{"dataset latest", protocol.PriceParams{Symbol: "AAPL"}, "The latest closing price of AAPL is $105.00", ""},
		{"provider dated", protocol.PriceParams{Symbol: "MSFT", Date: "6/3/2025"}, "The closing price of MSFT on 06/03/2025 was $410.46", ""},
		{"provider latest", protocol.PriceParams{Symbol: " msft "}, "The latest closing price of MSFT is $412.00", ""},
		{"missing symbol", protocol.PriceParams{}, "", "Stock symbol is required"},
		{"bad date", protocol.PriceParams{Symbol: "AAPL", Date: "2025-06-03"}, "", "Invalid date format. Use MM/DD/YYYY"},
		{"no data on date", protocol.PriceParams{Symbol: "MSFT", Date: "01/01/2020"}, "", "No data for MSFT on 01/01/2020"},
		{"unknown symbol", protocol.PriceParams{Symbol: "ZZZZ"}, "", "No data for ZZZZ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := call(t, s, protocol.MethodFetchStockPrice, tt.params)
			if reply.ID != 5 {
				t.Errorf("%s - reply id = %d, want 5", serviceTestPrefix, reply.ID)
			}
			if reply.Error != tt.wantError {
				t.Fatalf("%s - error = %q, want %q", serviceTestPrefix, reply.Error, tt.wantError)
			}
			if tt.wantError == "" && reply.Result != tt.wantResult {
				t.Errorf("%s - result = %v, want %q", serviceTestPrefix, reply.Result, tt.wantResult)
			}
		})
	}
}

func TestFetchStockPrice_ProviderError(t *testing.T) {
	s := NewService(nil, &fakeProvider{err: errors.New("connection refused")})
	reply := call(t, s, protocol.MethodFetchStockPrice, protocol.PriceParams{Symbol: "NVDA"})
	if !strings.HasPrefix(reply.Error, "Error fetching price for NVDA") {
		t.Errorf("%s - error = %q", serviceTestPrefix, reply.Error)
	}
}

func TestFetchHistoricalData(t *testing.T) {
	provider := &fakeProvider{bars: map[string][]Bar{
		"NVDA": {{Date: day("06/04/2025"), Open: 120, Close: 121}},
	}}
	s := NewService(testDataset(t), provider)

	reply := call(t, s, protocol.MethodFetchHistoricalData, protocol.HistoryParams{Symbol: "AAPL", Period: "3mo"})
	bars, ok := reply.Result.([]protocol.HistoricalBar)
	if !ok || len(bars) != 3 || bars[0].Date != "06/02/2025" || bars[2].Close != 105 {
		t.Fatalf("%s - dataset result = %#v (error %q)", serviceTestPrefix, reply.Result, reply.Error)
	}
	if len(provider.windows) != 0 {
		t.Errorf("%s - provider should not be consulted when the dataset has the symbol", serviceTestPrefix)
	}

	reply = call(t, s, protocol.MethodFetchHistoricalData, protocol.HistoryParams{Symbol: "NVDA"})
	bars, ok = reply.Result.([]protocol.HistoricalBar)
	if !ok || len(bars) != 1 {
		t.Fatalf("%s - provider result = %#v (error %q)", serviceTestPrefix, reply.Result, reply.Error)
	}
	if provider.windows[0].Period != "1mo" {
		t.Errorf("%s - default period = %q, want 1mo", serviceTestPrefix, provider.windows[0].Period)
	}

	reply = call(t, s, protocol.MethodFetchHistoricalData, protocol.HistoryParams{Symbol: "ZZZZ"})
	if reply.Error != "No historical data for ZZZZ" {
		t.Errorf("%s - error = %q", serviceTestPrefix, reply.Error)
	}

	for _, period := range []string{"999d", "max"} {
		reply = call(t, s, protocol.MethodFetchHistoricalData, protocol.HistoryParams{Symbol: "NVDA", Period: period})
		if reply.Error != "" {
			t.Errorf("%s - period %s rejected: %q", serviceTestPrefix, period, reply.Error)
		}
	}

	reply = call(t, s, protocol.MethodFetchHistoricalData, protocol.HistoryParams{Symbol: "NVDA", Period: "forever"})
	if reply.Error != "Invalid period: forever" {
		t.Errorf("%s - error = %q", serviceTestPrefix, reply.Error)
	}
}

func TestPredictStockPrice(t *testing.T) {
	s := NewService(testDataset(t), nil)

	// Closes 101, 103, 105 on days 0..2: slope 2, so day 4 projects to 109.
	reply := call(t, s, protocol.MethodPredictStockPrice, protocol.PredictParams{Symbol: "AAPL", DaysAhead: 2})
	if reply.Result != "Predicted closing price for AAPL in 2 day(s) is $109.00" {
		t.Errorf("%s - result = %v (error %q)", serviceTestPrefix, reply.Result, reply.Error)
	}

	reply = call(t, s, protocol.MethodPredictStockPrice, protocol.PredictParams{Symbol: "AAPL"})
	if reply.Result != "Predicted closing price for AAPL in 1 day(s) is $107.00" {
		t.Errorf("%s - default days result = %v (error %q)", serviceTestPrefix, reply.Result, reply.Error)
	}

	reply = call(t, s, protocol.MethodPredictStockPrice, protocol.PredictParams{Symbol: "TSLA"})
	if reply.Error != "No historical data for TSLA" {
		t.Errorf("%s - error = %q", serviceTestPrefix, reply.Error)
	}
}

func TestDispatch_UnknownMethodAndPanic(t *testing.T) {
	s := NewService(nil, &fakeProvider{panics: true})

	reply := call(t, s, "fetch_news", nil)
	if reply.Error != "Unknown method: fetch_news" || reply.ID != 5 {
		t.Errorf("%s - reply = %+v", serviceTestPrefix, reply)
	}

	reply = call(t, s, protocol.MethodFetchStockPrice, protocol.PriceParams{Symbol: "AAPL"})
	if reply.Error != "Server error: provider exploded" {
		t.Errorf("%s - panic reply = %+v", serviceTestPrefix, reply)
	}
}

func TestPing(t *testing.T) {
	s := NewService(nil, nil)
	reply := call(t, s, protocol.MethodPing, struct{}{})
	info, ok := reply.Result.(protocol.ServiceInfo)
	if !ok || info.Service != ServiceName || info.Version != Version || len(info.Methods) != 4 {
		t.Errorf("%s - ping result = %#v", serviceTestPrefix, reply.Result)
	}
}

func TestHandle_InvalidRequest(t *testing.T) {
	s := NewService(nil, nil)

	tests := []struct {
		name string
		line string
		want string
	}{
		{"not json", "hello\n", "Invalid request: "},
		{"missing method", `{"id":3,"params":{}}`, "Invalid request: missing method"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := s.Handle(context.Background(), []byte(tt.line))
			if !bytes.HasSuffix(out, []byte("\n")) {
				t.Fatalf("%s - reply must be newline terminated: %q", serviceTestPrefix, out)
			}
			var reply map[string]interface{}
			if err := json.Unmarshal(out, &reply); err != nil {
				t.Fatalf("%s - reply not JSON: %v", serviceTestPrefix, err)
			}
			msg, _ := reply["error"].(string)
			if !strings.HasPrefix(msg, tt.want) {
				t.Errorf("%s - error = %q, want prefix %q", serviceTestPrefix, msg, tt.want)
			}
		})
	}
}

func TestServe(t *testing.T) {
	s := NewService(testDataset(t), nil)

	in := strings.Join([]string{
		`{"id":1,"method":"fetch_stock_price","params":{"symbol":"AAPL"}}`,
		``,
		`   `,
		`{"id":2,"method":"nope"}`,
		`{"method":"fetch_stock_price","params":{"symbol":"AAPL","date":"06/02/2025"}}`,
	}, "\n")

	var out bytes.Buffer
	if err := s.Serve(context.Background(), strings.NewReader(in), &out); err != nil {
		t.Fatalf("%s - Serve failed: %v", serviceTestPrefix, err)
	}

	var lines []string
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	want := []string{
		`{"id":1,"result":"The latest closing price of AAPL is $105.00"}`,
		`{"id":2,"error":"Unknown method: nope"}`,
		`{"result":"The closing price of AAPL on 06/02/2025 was $101.00"}`,
	}
	if len(lines) != len(want) {
		t.Fatalf("%s - got %d replies, want %d: %q", serviceTestPrefix, len(lines), len(want), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("%s - reply %d = %s, want %s", serviceTestPrefix, i, lines[i], want[i])
		}
	}
}

func TestServe_CancelledContext(t *testing.T) {
	s := NewService(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	if err := s.Serve(ctx, strings.NewReader(`{"id":1,"method":"ping"}`+"\n"), &out); err != nil {
		t.Fatalf("%s - Serve failed: %v", serviceTestPrefix, err)
	}
	if out.Len() != 0 {
		t.Errorf("%s - expected no output after cancellation, got %q", serviceTestPrefix, out.String())
	}
}
