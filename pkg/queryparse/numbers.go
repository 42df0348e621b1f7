package queryparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	daysAheadRe = regexp.MustCompile(`(?i)\b(\d+)\s*days?\b`)
	lookbackRe  = regexp.MustCompile(`(?i)\b(\d+)\s*(day|week|month|year)s?\b`)
	lastUnitRe  = regexp.MustCompile(`(?i)\b(?:last|past)\s+(day|week|month|year)\b`)
	tickerRe    = regexp.MustCompile(`\b[A-Z]{1,5}(?:\.[A-Z]{1,2})?\b`)
)

// nonTickers are uppercase words that commonly appear in queries but are not symbols.
var nonTickers = map[string]bool{
	"I": true, "A": true, "AI": true, "CEO": true, "CFO": true, "USA": true, "US": true, "UK": true,
	"PDF": true, "CSV": true, "API": true, "IPO": true, "ETF": true, "USD": true, "INR": true,
	"EPS": true, "PE": true, "GDP": true, "MM": true, "DD": true, "YYYY": true, "OK": true,
	"THE": true, "WHAT": true, "IS": true, "OF": true, "FOR": true, "NYSE": true, "EU": true,
}

// DaysAhead returns N from "<N> day(s)".
func DaysAhead(query string) (int, bool) {
	m := daysAheadRe.FindStringSubmatch(query)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// MaxPeriodUnits is the largest count a period string may carry ("999d").
const MaxPeriodUnits = 999

// PeriodMax is the provider period covering all available history.
const PeriodMax = "max"

// Lookback returns a provider period ("5d", "3mo", "1y") from phrases like
// "3 months" or "past year". Counts above MaxPeriodUnits become PeriodMax.
func Lookback(query string) (string, bool) {
	n := 1
	var unit string
	if m := lookbackRe.FindStringSubmatch(query); m != nil {
		v, err := strconv.Atoi(m[1])
		if err != nil || v <= 0 {
			return "", false
		}
		n, unit = v, m[2]
	} else if m := lastUnitRe.FindStringSubmatch(query); m != nil {
		unit = m[1]
	} else {
		return "", false
	}

	var suffix string
	switch strings.ToLower(unit) {
	case "day":
		suffix = "d"
	case "week":
		n, suffix = n*7, "d"
	case "month":
		suffix = "mo"
	case "year":
		suffix = "y"
	default:
		return "", false
	}
	if n > MaxPeriodUnits {
		return PeriodMax, true
	}
	return fmt.Sprintf("%d%s", n, suffix), true
}

// TickerToken returns the first bare uppercase token that looks like a ticker symbol.
// It is the last-resort extraction when no name table matches.
func TickerToken(query string) (string, bool) {
	for _, tok := range tickerRe.FindAllString(query, -1) {
		if nonTickers[tok] {
			continue
		}
		return tok, true
	}
	return "", false
}
