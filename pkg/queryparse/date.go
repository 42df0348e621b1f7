// Package queryparse extracts dates, day counts, lookback periods and ticker symbols from free-text queries.
package queryparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Layout is the canonical date layout used across the dataset, the wire protocol and answers.
const Layout = "01/02/2006"

var monthNumbers = map[string]int{
	"january": 1, "february": 2, "march": 3, "april": 4, "may": 5, "june": 6,
	"july": 7, "august": 8, "september": 9, "october": 10, "november": 11, "december": 12,
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "jun": 6, "jul": 7,
	"aug": 8, "sep": 9, "sept": 9, "oct": 10, "nov": 11, "dec": 12,
}

type datePattern struct {
	re *regexp.Regexp
	// fields maps the submatch index of day, month and year.
	day, month, year int
	// monthName is true when the month group is a name rather than a number.
	monthName bool
}

// Patterns are tried in order; the first calendar-valid match wins.
var datePatterns = []datePattern{
	// 4th June 2025
	{re: regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+([a-z]+)\.?,?\s+(\d{4})\b`), day: 1, month: 2, year: 3, monthName: true},
	// June 4, 2025
	{re: regexp.MustCompile(`(?i)\b([a-z]+)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`), day: 2, month: 1, year: 3, monthName: true},
	// 6/4/2025, 06-04-2025
	{re: regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})[/-](\d{4})\b`), day: 2, month: 1, year: 3},
}

var noYearPatterns = []datePattern{
	// 4th June
	{re: regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+([a-z]+)\b`), day: 1, month: 2, monthName: true},
	// June 4th
	{re: regexp.MustCompile(`(?i)\b([a-z]+)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b`), day: 2, month: 1, monthName: true},
}

// Date is a calendar date resolved from a query.
type Date struct {
	Time time.Time
	// YearAssumed is set when the query gave no year and it was taken from the dataset.
	YearAssumed bool
}

// String returns the date as MM/DD/YYYY.
func (d Date) String() string {
	return d.Time.Format(Layout)
}

// Long returns the date as e.g. "June 04, 2025".
func (d Date) Long() string {
	return d.Time.Format("January 02, 2006")
}

// DateIndex answers which dated records exist for a month/day prefix.
type DateIndex interface {
	// LatestWithPrefix returns the latest MM/DD/YYYY date starting with prefix ("MM/DD/").
	LatestWithPrefix(prefix string) (string, bool)
}

// MonthNumber returns the month for a full or abbreviated English month name.
func MonthNumber(name string) (int, bool) {
	m, ok := monthNumbers[strings.ToLower(strings.TrimSuffix(name, "."))]
	return m, ok
}

// ParseDate extracts an explicit date (with year) from the query.
func ParseDate(query string) (Date, bool) {
	for _, p := range datePatterns {
		for _, m := range p.re.FindAllStringSubmatch(query, -1) {
			month, day, ok := monthDay(p, m)
			if !ok {
				continue
			}
			year, _ := strconv.Atoi(m[p.year])
			if t, ok := calendarDate(year, month, day); ok {
				return Date{Time: t}, true
			}
		}
	}
	return Date{}, false
}

// ResolveDate is ParseDate plus the day-and-month-only form, whose year is taken from the
// latest matching date in index. A nil index disables the fallback.
func ResolveDate(query string, index DateIndex) (Date, bool) {
	if d, ok := ParseDate(query); ok {
		return d, true
	}
	if index == nil {
		return Date{}, false
	}
	for _, p := range noYearPatterns {
		for _, m := range p.re.FindAllStringSubmatch(query, -1) {
			month, day, ok := monthDay(p, m)
			if !ok {
				continue
			}
			latest, found := index.LatestWithPrefix(fmt.Sprintf("%02d/%02d/", month, day))
			if !found {
				return Date{}, false
			}
			t, err := time.Parse(Layout, latest)
			if err != nil {
				return Date{}, false
			}
			return Date{Time: t, YearAssumed: true}, true
		}
	}
	return Date{}, false
}

// HasYear reports whether the query mentions a four-digit number.
func HasYear(query string) bool {
	return yearRe.MatchString(query)
}

var yearRe = regexp.MustCompile(`\b\d{4}\b`)

func monthDay(p datePattern, m []string) (month, day int, ok bool) {
	day, err := strconv.Atoi(m[p.day])
	if err != nil {
		return 0, 0, false
	}
	if p.monthName {
		month, ok = MonthNumber(m[p.month])
		return month, day, ok
	}
	month, err = strconv.Atoi(m[p.month])
	return month, day, err == nil
}

func calendarDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes Feb 30 into March; reject that.
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}
