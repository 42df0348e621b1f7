package resolver

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const symbolsLogPrefix = "resolver:symbols"

// SymbolMap holds the static name tables used to recognize entities in free text.
// All keys are lowercase. A SymbolMap is read-only once built.
type SymbolMap struct {
	// Companies maps a company name to its display name.
	Companies map[string]string `yaml:"companies"`
	// Countries maps a country name to its display name.
	Countries map[string]string `yaml:"countries"`
	// Tickers maps a company name to its exchange ticker.
	Tickers map[string]string `yaml:"tickers"`

	once   sync.Once
	sorted map[Kind][]string
}

// DefaultSymbols returns the built-in tables.
func DefaultSymbols() *SymbolMap {
	return &SymbolMap{
		Companies: map[string]string{
			"apple":     "Apple",
			"microsoft": "Microsoft",
			"nvidia":    "Nvidia",
			"google":    "Google",
			"alphabet":  "Alphabet",
			"amazon":    "Amazon",
			"meta":      "Meta",
			"facebook":  "Meta",
			"tesla":     "Tesla",
			"netflix":   "Netflix",
			"intel":     "Intel",
			"amd":       "AMD",
			"ibm":       "IBM",
			"oracle":    "Oracle",
			"infosys":   "Infosys",
			"tcs":       "TCS",
			"reliance":  "Reliance",
			"samsung":   "Samsung",
		},
		Countries: map[string]string{
			"india":          "India",
			"united states":  "United States",
			"usa":            "United States",
			"america":        "United States",
			"united kingdom": "United Kingdom",
			"uk":             "United Kingdom",
			"france":         "France",
			"germany":        "Germany",
			"japan":          "Japan",
			"china":          "China",
			"canada":         "Canada",
			"australia":      "Australia",
			"brazil":         "Brazil",
			"russia":         "Russia",
			"italy":          "Italy",
			"spain":          "Spain",
			"mexico":         "Mexico",
			"south africa":   "South Africa",
		},
		Tickers: map[string]string{
			"apple":     "AAPL",
			"microsoft": "MSFT",
			"nvidia":    "NVDA",
			"google":    "GOOGL",
			"alphabet":  "GOOGL",
			"amazon":    "AMZN",
			"meta":      "META",
			"facebook":  "META",
			"tesla":     "TSLA",
			"netflix":   "NFLX",
			"intel":     "INTC",
			"amd":       "AMD",
			"ibm":       "IBM",
			"oracle":    "ORCL",
			"infosys":   "INFY",
			"tcs":       "TCS.NS",
			"reliance":  "RELIANCE.NS",
			"samsung":   "005930.KS",
		},
	}
}

// LoadSymbols returns the default tables merged with the entries of the YAML file at path.
// An empty path returns the defaults.
func LoadSymbols(path string) (*SymbolMap, error) {
	m := DefaultSymbols()
	if path == "" {
		return m, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read %s: %w", symbolsLogPrefix, path, err)
	}
	var extra SymbolMap
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("%s - failed to parse %s: %w", symbolsLogPrefix, path, err)
	}

	merge(m.Companies, extra.Companies)
	merge(m.Countries, extra.Countries)
	merge(m.Tickers, extra.Tickers)

	slog.Info(fmt.Sprintf("%s - Loaded %d companies, %d countries, %d tickers from %s",
		symbolsLogPrefix, len(extra.Companies), len(extra.Countries), len(extra.Tickers), path))
	return m, nil
}

func merge(dst, src map[string]string) {
	for k, v := range src {
		dst[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
}

// table returns the name table for kind.
func (m *SymbolMap) table(kind Kind) map[string]string {
	switch kind {
	case Company:
		return m.Companies
	case Country:
		return m.Countries
	case Ticker:
		return m.Tickers
	}
	return nil
}

// names returns the keys of the kind's table, longest first, so that
// "united states" wins over "states" style partial names.
func (m *SymbolMap) names(kind Kind) []string {
	m.once.Do(func() {
		m.sorted = make(map[Kind][]string, 3)
		for _, k := range []Kind{Company, Country, Ticker} {
			t := m.table(k)
			keys := make([]string, 0, len(t))
			for name := range t {
				keys = append(keys, name)
			}
			sort.Slice(keys, func(i, j int) bool {
				if len(keys[i]) != len(keys[j]) {
					return len(keys[i]) > len(keys[j])
				}
				return keys[i] < keys[j]
			})
			m.sorted[k] = keys
		}
	})
	return m.sorted[kind]
}

// Lookup finds the first table entry of the given kind mentioned in text as a whole word.
func (m *SymbolMap) Lookup(kind Kind, text string) (string, bool) {
	lower := strings.ToLower(text)
	table := m.table(kind)
	for _, name := range m.names(kind) {
		if containsWord(lower, name) {
			return table[name], true
		}
	}
	return "", false
}

// TickerFor returns the ticker of a company name (any case), if known.
func (m *SymbolMap) TickerFor(name string) (string, bool) {
	t, ok := m.Tickers[strings.ToLower(strings.TrimSpace(name))]
	return t, ok
}

// containsWord reports whether word occurs in s bounded by non-letters.
func containsWord(s, word string) bool {
	for from := 0; from <= len(s)-len(word); {
		i := strings.Index(s[from:], word)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(word)
		if (start == 0 || !isWordByte(s[start-1])) && (end == len(s) || !isWordByte(s[end])) {
			return true
		}
		from = start + 1
	}
	return false
}

func isWordByte(b byte) bool {
	return b == '_' || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z') || ('0' <= b && b <= '9')
}
