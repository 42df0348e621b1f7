package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/morezero/stockqa/internal/config"
)

const mainTestPrefix = "cmd/marketdata:main_test"

func TestUsage_ContainsCommands(t *testing.T) {
	for _, word := range []string{"stdio", "nats", "help", "fetch_stock_price", "MARKETDATA_SUBJECT"} {
		if !strings.Contains(usage, word) {
			t.Errorf("%s - usage should contain %q", mainTestPrefix, word)
		}
	}
}

func TestNewService(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prices.csv")
	if err := os.WriteFile(path, []byte("Date,Open,Close,Symbol\n2025-06-04,100,101,AAPL\n"), 0o644); err != nil {
		t.Fatalf("%s - write dataset: %v", mainTestPrefix, err)
	}

	for _, p := range []string{path, filepath.Join(dir, "missing.csv")} {
		svc := newService(&config.Config{DatasetPath: p, YahooBaseURL: "http://127.0.0.1:1"})
		if got := strings.Join(svc.Methods(), ","); got != "fetch_historical_data,fetch_stock_price,ping,predict_stock_price" {
			t.Errorf("%s - Methods() = %s", mainTestPrefix, got)
		}
	}
}
