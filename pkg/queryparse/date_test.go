package queryparse

import "testing"

type fakeIndex map[string]string

func (f fakeIndex) LatestWithPrefix(prefix string) (string, bool) {
	d, ok := f[prefix]
	return d, ok
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
		ok    bool
	}{
		{"ordinal day month year", "market open price on 4th June 2025", "06/04/2025", true},
		{"month day comma year", "What was the open on June 4, 2025?", "06/04/2025", true},
		{"abbreviated month", "open price 4 Jun 2025", "06/04/2025", true},
		{"abbreviated month first", "Sept 9th, 2024 open", "09/09/2024", true},
		{"numeric slash", "market open price on 4/10/2025", "04/10/2025", true},
		{"numeric dash", "price 06-04-2025", "06/04/2025", true},
		{"invalid calendar date", "price on 30 February 2025", "", false},
		{"month out of range", "price on 13/01/2025", "", false},
		{"no date", "who is the ceo", "", false},
		{"day and month only", "open price on 4th June", "", false},
		{"word that is not a month", "in 5 days 2025", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.query)
			if ok != tt.ok {
				t.Fatalf("queryparse:date_test - ParseDate(%q) ok = %v, want %v", tt.query, ok, tt.ok)
			}
			if ok && got.String() != tt.want {
				t.Errorf("queryparse:date_test - ParseDate(%q) = %q, want %q", tt.query, got.String(), tt.want)
			}
			if ok && got.YearAssumed {
				t.Errorf("queryparse:date_test - ParseDate(%q) should not assume a year", tt.query)
			}
		})
	}
}

func TestParseDate_FormsAgreeOnSameCalendarDate(t *testing.T) {
	forms := []string{"4th June 2025", "June 4, 2025", "6/4/2025", "06-04-2025"}
	var first string
	for _, q := range forms {
		d, ok := ParseDate(q)
		if !ok {
			t.Fatalf("queryparse:date_test - ParseDate(%q) failed", q)
		}
		if first == "" {
			first = d.String()
			continue
		}
		if d.String() != first {
			t.Errorf("queryparse:date_test - ParseDate(%q) = %q, want %q", q, d.String(), first)
		}
	}
}

func TestResolveDate_NoYear(t *testing.T) {
	index := fakeIndex{"06/04/": "06/04/2025"}

	d, ok := ResolveDate("market open price on 4th June", index)
	if !ok {
		t.Fatal("queryparse:date_test - expected the year to be inferred from the index")
	}
	if d.String() != "06/04/2025" {
		t.Errorf("queryparse:date_test - ResolveDate = %q, want 06/04/2025", d.String())
	}
	if !d.YearAssumed {
		t.Error("queryparse:date_test - expected YearAssumed")
	}
	if d.Long() != "June 04, 2025" {
		t.Errorf("queryparse:date_test - Long = %q, want June 04, 2025", d.Long())
	}

	if _, ok := ResolveDate("open price on June 4th", index); !ok {
		t.Error("queryparse:date_test - expected month-first form without year to resolve")
	}
	if _, ok := ResolveDate("open price on 5th June", index); ok {
		t.Error("queryparse:date_test - expected no match when the index has no such day")
	}
	if _, ok := ResolveDate("open price on 4th June", nil); ok {
		t.Error("queryparse:date_test - expected no match without an index")
	}
}

func TestResolveDate_ExplicitYearWins(t *testing.T) {
	d, ok := ResolveDate("4th June 2024", fakeIndex{"06/04/": "06/04/2025"})
	if !ok || d.String() != "06/04/2024" || d.YearAssumed {
		t.Errorf("queryparse:date_test - ResolveDate = %+v ok=%v, want explicit 06/04/2024", d, ok)
	}
}

func TestHasYear(t *testing.T) {
	if !HasYear("June 4, 2025") {
		t.Error("queryparse:date_test - expected year")
	}
	if HasYear("4th June") {
		t.Error("queryparse:date_test - expected no year")
	}
}
