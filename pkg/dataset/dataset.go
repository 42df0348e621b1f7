// Package dataset loads the local tabular stock dataset (Date, Open, Close and an optional Symbol column).
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/morezero/stockqa/pkg/queryparse"
)

const logPrefix = "dataset:dataset"

// ErrNotFound is returned when no row matches a date or symbol.
var ErrNotFound = errors.New("dataset: no matching rows")

// dateLayouts are the accepted spellings of the Date column.
var dateLayouts = []string{
	queryparse.Layout,
	"1/2/2006",
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02-01-2006",
}

// Row is one dated observation.
type Row struct {
	Date   time.Time
	Open   float64
	Close  float64
	Symbol string
}

// Key returns the row date as MM/DD/YYYY.
func (r Row) Key() string {
	return r.Date.Format(queryparse.Layout)
}

// Dataset is an immutable, date-ordered set of rows.
type Dataset struct {
	rows      []Row
	byDate    map[string][]int
	hasSymbol bool
}

// Load reads a CSV file from path.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to open %s: %w", logPrefix, path, err)
	}
	defer f.Close()

	ds, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s - %s: %w", logPrefix, path, err)
	}
	slog.Info(fmt.Sprintf("%s - Loaded %d rows from %s", logPrefix, len(ds.rows), path))
	return ds, nil
}

// Parse reads CSV with a header row. Column names are matched case-insensitively;
// Date, Open and Close are required, Symbol is optional.
func Parse(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	cols := map[string]int{}
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"date", "open", "close"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing %q column", required)
		}
	}
	symCol, hasSymbol := cols["symbol"]

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		row, err := parseRow(rec, cols, symCol, hasSymbol)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return New(rows, hasSymbol), nil
}

// New builds a Dataset from rows; rows are sorted by date, keeping input order for ties.
func New(rows []Row, hasSymbol bool) *Dataset {
	sorted := make([]Row, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	ds := &Dataset{rows: sorted, byDate: make(map[string][]int, len(sorted)), hasSymbol: hasSymbol}
	for i, r := range sorted {
		ds.byDate[r.Key()] = append(ds.byDate[r.Key()], i)
	}
	return ds
}

func parseRow(rec []string, cols map[string]int, symCol int, hasSymbol bool) (Row, error) {
	field := func(name string) string {
		i := cols[name]
		if i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	date, err := parseDate(field("date"))
	if err != nil {
		return Row{}, err
	}
	open, err := strconv.ParseFloat(field("open"), 64)
	if err != nil {
		return Row{}, fmt.Errorf("invalid Open %q: %w", field("open"), err)
	}
	closePrice, err := strconv.ParseFloat(field("close"), 64)
	if err != nil {
		return Row{}, fmt.Errorf("invalid Close %q: %w", field("close"), err)
	}
	row := Row{Date: date, Open: open, Close: closePrice}
	if hasSymbol && symCol < len(rec) {
		row.Symbol = strings.ToUpper(strings.TrimSpace(rec[symCol]))
	}
	return row, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid Date %q", s)
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return len(d.rows)
}

// HasSymbol reports whether the source carried a Symbol column.
func (d *Dataset) HasSymbol() bool {
	return d.hasSymbol
}

// ByDate returns the rows dated MM/DD/YYYY, in file order.
func (d *Dataset) ByDate(date string) ([]Row, error) {
	idx := d.byDate[date]
	if len(idx) == 0 {
		return nil, ErrNotFound
	}
	out := make([]Row, len(idx))
	for i, j := range idx {
		out[i] = d.rows[j]
	}
	return out, nil
}

// BySymbol returns the rows of one symbol in date order. It returns ErrNotFound when the
// dataset has no Symbol column or no row for sym.
func (d *Dataset) BySymbol(sym string) ([]Row, error) {
	if !d.hasSymbol {
		return nil, ErrNotFound
	}
	sym = strings.ToUpper(strings.TrimSpace(sym))
	var out []Row
	for _, r := range d.rows {
		if r.Symbol == sym {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// LatestWithPrefix implements queryparse.DateIndex.
func (d *Dataset) LatestWithPrefix(prefix string) (string, bool) {
	for i := len(d.rows) - 1; i >= 0; i-- {
		if k := d.rows[i].Key(); strings.HasPrefix(k, prefix) {
			return k, true
		}
	}
	return "", false
}

// Range returns the first and last dates in the dataset.
func (d *Dataset) Range() (first, last time.Time, ok bool) {
	if len(d.rows) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return d.rows[0].Date, d.rows[len(d.rows)-1].Date, true
}

var _ queryparse.DateIndex = (*Dataset)(nil)
