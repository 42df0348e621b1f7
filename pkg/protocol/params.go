package protocol

// PriceParams are the params of fetch_stock_price. Date is MM/DD/YYYY; empty means latest.
type PriceParams struct {
	Symbol string `json:"symbol"`
	Date   string `json:"date,omitempty"`
}

// HistoryParams are the params of fetch_historical_data. Period uses the 1mo/3mo/1y/5d form.
type HistoryParams struct {
	Symbol string `json:"symbol"`
	Period string `json:"period,omitempty"`
}

// PredictParams are the params of predict_stock_price.
type PredictParams struct {
	Symbol    string `json:"symbol"`
	DaysAhead int    `json:"days_ahead,omitempty"`
}

// HistoricalBar is one element of the fetch_historical_data result.
type HistoricalBar struct {
	Date  string  `json:"date"`
	Open  float64 `json:"open"`
	Close float64 `json:"close"`
}

// ServiceInfo is the ping result.
type ServiceInfo struct {
	Service string   `json:"service"`
	Version string   `json:"version"`
	Methods []string `json:"methods"`
}

// DefaultPeriod is the lookback used when a history request names none.
const DefaultPeriod = "1mo"
