package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleCSV = `Date,Open,High,Low,Close,Symbol
2024-06-04,190.10,192.00,189.50,191.20,AAPL
2025-06-04,201.50,203.00,200.10,202.75,AAPL
06/05/2025,202.00,204.10,201.30,203.90,AAPL
2025-06-04,120.00,121.00,119.00,120.50,NVDA
`

func TestParse(t *testing.T) {
	ds, err := Parse(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("dataset:dataset_test - Parse failed: %v", err)
	}
	if ds.Len() != 4 {
		t.Fatalf("dataset:dataset_test - Len = %d, want 4", ds.Len())
	}
	if !ds.HasSymbol() {
		t.Error("dataset:dataset_test - expected Symbol column")
	}

	rows, err := ds.ByDate("06/04/2025")
	if err != nil {
		t.Fatalf("dataset:dataset_test - ByDate failed: %v", err)
	}
	if len(rows) != 2 || rows[0].Symbol != "AAPL" || rows[0].Open != 201.50 {
		t.Errorf("dataset:dataset_test - ByDate rows = %+v", rows)
	}

	if _, err := ds.ByDate("01/01/2020"); !errors.Is(err, ErrNotFound) {
		t.Errorf("dataset:dataset_test - expected ErrNotFound, got %v", err)
	}
}

func TestLatestWithPrefix(t *testing.T) {
	ds, err := Parse(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("dataset:dataset_test - Parse failed: %v", err)
	}
	got, ok := ds.LatestWithPrefix("06/04/")
	if !ok || got != "06/04/2025" {
		t.Errorf("dataset:dataset_test - LatestWithPrefix = %q,%v want 06/04/2025", got, ok)
	}
	if _, ok := ds.LatestWithPrefix("12/25/"); ok {
		t.Error("dataset:dataset_test - expected no match for 12/25/")
	}
}

func TestBySymbol(t *testing.T) {
	ds, err := Parse(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("dataset:dataset_test - Parse failed: %v", err)
	}
	rows, err := ds.BySymbol("aapl")
	if err != nil {
		t.Fatalf("dataset:dataset_test - BySymbol failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("dataset:dataset_test - expected 3 AAPL rows, got %d", len(rows))
	}
	if !rows[0].Date.Before(rows[2].Date) {
		t.Error("dataset:dataset_test - expected rows in date order")
	}
	if _, err := ds.BySymbol("MSFT"); !errors.Is(err, ErrNotFound) {
		t.Errorf("dataset:dataset_test - expected ErrNotFound, got %v", err)
	}
}

func TestBySymbol_NoSymbolColumn(t *testing.T) {
	ds, err := Parse(strings.NewReader("Date,Open,Close\n2025-06-04,1,2\n"))
	if err != nil {
		t.Fatalf("dataset:dataset_test - Parse failed: %v", err)
	}
	if _, err := ds.BySymbol("AAPL"); !errors.Is(err, ErrNotFound) {
		t.Errorf("dataset:dataset_test - expected ErrNotFound, got %v", err)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		csv  string
	}{
		{"missing close column", "Date,Open\n2025-06-04,1\n"},
		{"bad date", "Date,Open,Close\nyesterday,1,2\n"},
		{"bad number", "Date,Open,Close\n2025-06-04,abc,2\n"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(tt.csv)); err == nil {
				t.Fatalf("dataset:dataset_test - expected error")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stock_market_data.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0644); err != nil {
		t.Fatalf("dataset:dataset_test - write failed: %v", err)
	}
	ds, err := Load(path)
	if err != nil {
		t.Fatalf("dataset:dataset_test - Load failed: %v", err)
	}
	first, last, ok := ds.Range()
	if !ok || first.Year() != 2024 || last.Format("01/02/2006") != "06/05/2025" {
		t.Errorf("dataset:dataset_test - Range = %v..%v", first, last)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Error("dataset:dataset_test - expected error for missing file")
	}
}
