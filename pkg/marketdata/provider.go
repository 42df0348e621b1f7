package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const yahooLogPrefix = "marketdata:yahoo"

// DefaultYahooBaseURL is the public chart API endpoint.
const DefaultYahooBaseURL = "https://query1.finance.yahoo.com"

// Bar is one daily observation.
type Bar struct {
	Date  time.Time
	Open  float64
	Close float64
}

// Window selects bars either by Period ("1mo", "5d", "1y") or by an explicit [Start, End) range.
// A non-zero Start takes precedence.
type Window struct {
	Period string
	Start  time.Time
	End    time.Time
}

// Provider fetches daily bars from a live source.
type Provider interface {
	Bars(ctx context.Context, symbol string, w Window) ([]Bar, error)
}

var periodPattern = regexp.MustCompile(`^(?:\d{1,3}(?:d|wk|mo|y)|ytd|max)$`)

// ValidPeriod reports whether p is a period the chart API understands.
func ValidPeriod(p string) bool {
	return periodPattern.MatchString(p)
}

// YahooProvider reads the Yahoo Finance v8 chart API.
type YahooProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewYahooProvider creates a provider. An empty baseURL uses DefaultYahooBaseURL.
func NewYahooProvider(baseURL string, timeout time.Duration) *YahooProvider {
	if baseURL == "" {
		baseURL = DefaultYahooBaseURL
	}
	return &YahooProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open  []*float64 `json:"open"`
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Bars fetches daily bars for symbol.
func (p *YahooProvider) Bars(ctx context.Context, symbol string, w Window) ([]Bar, error) {
	q := url.Values{}
	q.Set("interval", "1d")
	if !w.Start.IsZero() {
		end := w.End
		if end.IsZero() {
			end = w.Start.AddDate(0, 0, 1)
		}
		q.Set("period1", fmt.Sprint(w.Start.Unix()))
		q.Set("period2", fmt.Sprint(end.Unix()))
	} else {
		period := w.Period
		if period == "" {
			period = "1mo"
		}
		q.Set("range", period)
	}
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", p.baseURL, url.PathEscape(symbol), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create request: %w", yahooLogPrefix, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "stockqa-marketdata/"+Version)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s - request failed: %w", yahooLogPrefix, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("%s - failed reading response: %w", yahooLogPrefix, err)
	}

	var parsed chartResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("%s - status=%d body=%s", yahooLogPrefix, resp.StatusCode, truncate(string(body), 200))
		}
		return nil, fmt.Errorf("%s - failed to parse response: %w", yahooLogPrefix, err)
	}
	if parsed.Chart.Error != nil {
		// Unknown symbols come back as a 404 with a chart error; treat as no data.
		if parsed.Chart.Error.Code == "Not Found" {
			return nil, nil
		}
		return nil, fmt.Errorf("%s - %s: %s", yahooLogPrefix, parsed.Chart.Error.Code, parsed.Chart.Error.Description)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s - status=%d", yahooLogPrefix, resp.StatusCode)
	}
	if len(parsed.Chart.Result) == 0 || len(parsed.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	res := parsed.Chart.Result[0]
	quote := res.Indicators.Quote[0]
	bars := make([]Bar, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		if i >= len(quote.Close) || quote.Close[i] == nil {
			continue
		}
		b := Bar{Date: dayOf(time.Unix(ts, 0).UTC()), Close: *quote.Close[i]}
		if i < len(quote.Open) && quote.Open[i] != nil {
			b.Open = *quote.Open[i]
		}
		bars = append(bars, b)
	}
	return bars, nil
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ Provider = (*YahooProvider)(nil)
