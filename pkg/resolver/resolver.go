// Package resolver infers the entity an elliptical query refers to
// ("who is the ceo", "what's the price") from recent conversation history.
package resolver

import (
	"regexp"
	"strings"

	"github.com/morezero/stockqa/pkg/history"
	"github.com/morezero/stockqa/pkg/queryparse"
)

// Kind is the entity category a query needs.
type Kind int

const (
	Company Kind = iota + 1
	Country
	Ticker
)

func (k Kind) String() string {
	switch k {
	case Company:
		return "company"
	case Country:
		return "country"
	case Ticker:
		return "ticker"
	}
	return "unknown"
}

// Hint is an inferred entity filling an elided reference in the current query.
type Hint struct {
	Kind  Kind
	Value string
}

// intent is one row of the ordered trigger table.
type intent struct {
	kind     Kind
	triggers []string
}

var intents = []intent{
	{kind: Company, triggers: []string{"ceo"}},
	{kind: Country, triggers: []string{"president", "capital"}},
	{kind: Ticker, triggers: []string{"price", "predict", "historical"}},
}

// genericEntity captures a bare name after a preposition, e.g. "tell me about nvidia".
var genericEntity = regexp.MustCompile(`(?i)\b(?:about|of|for|on|in)\s+([a-z][a-z0-9&\-]*)`)

// stopEntities are capture results that are never entity names.
var stopEntities = map[string]bool{
	"the": true, "a": true, "an": true, "it": true, "this": true, "that": true,
	"them": true, "its": true, "their": true, "me": true, "my": true, "our": true,
	"stock": true, "stocks": true, "market": true, "price": true, "today": true,
	"who": true, "what": true, "which": true, "your": true, "his": true, "her": true,
}

// Resolver implements Infer over a SymbolMap.
type Resolver struct {
	symbols *SymbolMap
	// PreferQuery checks the current query before the history window.
	PreferQuery bool
}

// New creates a Resolver. A nil map selects DefaultSymbols.
func New(symbols *SymbolMap) *Resolver {
	if symbols == nil {
		symbols = DefaultSymbols()
	}
	return &Resolver{symbols: symbols}
}

// Symbols returns the resolver's tables.
func (r *Resolver) Symbols() *SymbolMap {
	return r.symbols
}

// Classify returns the entity kind the query asks about, if any.
func Classify(query string) (Kind, bool) {
	lower := strings.ToLower(query)
	for _, in := range intents {
		for _, trig := range in.triggers {
			if strings.Contains(lower, trig) {
				return in.kind, true
			}
		}
	}
	return 0, false
}

// Infer returns the entity the query refers to, or nil. History is scanned most recent
// first and takes priority over the query itself unless PreferQuery is set.
func (r *Resolver) Infer(query string, recent []history.ChatRecord) *Hint {
	kind, ok := Classify(query)
	if !ok {
		return nil
	}

	if r.PreferQuery {
		if h := r.extract(kind, query); h != nil {
			return h
		}
	}
	for _, rec := range recent {
		if h := r.extract(kind, rec.UserQuery); h != nil {
			return h
		}
	}
	if !r.PreferQuery {
		return r.extract(kind, query)
	}
	return nil
}

// extract finds an entity of the given kind in text: table match first, generic pattern second.
func (r *Resolver) extract(kind Kind, text string) *Hint {
	if v, ok := r.symbols.Lookup(kind, text); ok {
		return &Hint{Kind: kind, Value: v}
	}

	if kind == Ticker {
		if sym, ok := queryparse.TickerToken(text); ok {
			return &Hint{Kind: Ticker, Value: sym}
		}
		return nil
	}

	for _, m := range genericEntity.FindAllStringSubmatch(text, -1) {
		name := m[1]
		if stopEntities[strings.ToLower(name)] {
			continue
		}
		return &Hint{Kind: kind, Value: titleCase(name)}
	}
	return nil
}

func titleCase(w string) string {
	if len(w) > 1 && w == strings.ToUpper(w) {
		return w
	}
	return strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
}
