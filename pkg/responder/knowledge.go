package responder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/morezero/stockqa/pkg/dataset"
	"github.com/morezero/stockqa/pkg/llm"
	"github.com/morezero/stockqa/pkg/queryparse"
	"github.com/morezero/stockqa/pkg/resolver"
)

const knowledgeLogPrefix = "responder:knowledge"

const openPricePhrase = "market open price"

// knowledgeExclusions are topics the knowledge adapter always leaves to others.
var knowledgeExclusions = []string{"ceo", "capital", "president", "news"}

// stockVocabulary marks a query as being about the stock market.
var stockVocabulary = regexp.MustCompile(`(?i)\b(?:stocks?|shares?|market|markets|dividends?|earnings|analysts?|` +
	`tickers?|nasdaq|nyse|sensex|nifty|s&p|dow|portfolio|equity|equities|ipo|valuation|revenue|eps|` +
	`p/e|bull(?:ish)?|bear(?:ish)?|trading|traded|price|prices|closing|volume|financials)\b`)

// Knowledge answers from the local stock dataset and, for broader market questions,
// from the model seeded with dataset facts.
type Knowledge struct {
	data        *dataset.Dataset
	datasetPath string
	model       llm.Answerer
	symbols     *resolver.SymbolMap
	// LiveMarket defers live price/history/prediction questions with a known ticker to
	// the market-data adapter.
	LiveMarket bool
}

// NewKnowledge creates the knowledge adapter. data may be nil when the dataset failed
// to load; datasetPath is reported in that case.
func NewKnowledge(data *dataset.Dataset, datasetPath string, model llm.Answerer, symbols *resolver.SymbolMap) *Knowledge {
	if symbols == nil {
		symbols = resolver.DefaultSymbols()
	}
	return &Knowledge{data: data, datasetPath: datasetPath, model: model, symbols: symbols}
}

func (k *Knowledge) Name() string { return KnowledgeAgent }

// Respond implements Responder.
func (k *Knowledge) Respond(ctx context.Context, req *Request) Outcome {
	lower := strings.ToLower(req.Query)
	if containsAny(lower, knowledgeExclusions...) {
		return NotApplicable
	}

	if strings.Contains(lower, openPricePhrase) {
		return Answered(k.openPrice(req))
	}

	if k.LiveMarket && k.wantsLiveMarket(req) {
		slog.Debug(fmt.Sprintf("%s - deferring %q to live market data", knowledgeLogPrefix, req.Query))
		return NotApplicable
	}
	if !stockVocabulary.MatchString(req.Query) {
		return NotApplicable
	}
	return k.marketQuery(ctx, req)
}

// openPrice answers "market open price" questions from the dataset.
func (k *Knowledge) openPrice(req *Request) string {
	if k.data == nil {
		return fmt.Sprintf("Error: CSV file not found at %s.", k.datasetPath)
	}

	var date queryparse.Date
	var ok bool
	if strings.TrimSpace(strings.ToLower(req.Query)) == openPricePhrase {
		date, ok = k.lastDateInHistory(req)
		if !ok {
			return "No recent date mentioned. Please provide a date (e.g., '4th June 2025')."
		}
	} else {
		date, ok = queryparse.ResolveDate(req.Query, k.data)
		if !ok {
			return "Please provide a valid date (e.g., '4th June 2025' or '4/10/2025')."
		}
	}

	rows, err := k.data.ByDate(date.String())
	if err != nil {
		if !errors.Is(err, dataset.ErrNotFound) {
			slog.Warn(fmt.Sprintf("%s - dataset lookup failed: %v", knowledgeLogPrefix, err))
		}
		return fmt.Sprintf("No data available for %s in the CSV file.", date.String())
	}

	row := k.pickRow(rows, req.Query)
	long := date.Long()
	if !queryparse.HasYear(req.Query) {
		return fmt.Sprintf("The market open price on %s (assuming %d) was %.2f.", long, date.Time.Year(), row.Open)
	}
	return fmt.Sprintf("The market open price on %s was %.2f.", long, row.Open)
}

// lastDateInHistory returns the most recent date mentioned in the window.
func (k *Knowledge) lastDateInHistory(req *Request) (queryparse.Date, bool) {
	for _, rec := range req.History {
		if d, ok := queryparse.ResolveDate(rec.UserQuery, k.data); ok {
			return d, true
		}
	}
	return queryparse.Date{}, false
}

// pickRow prefers the row of a symbol named in the query when the dataset has several
// symbols on one date.
func (k *Knowledge) pickRow(rows []dataset.Row, query string) dataset.Row {
	if len(rows) == 1 || !k.data.HasSymbol() {
		return rows[0]
	}
	sym, ok := k.symbols.Lookup(resolver.Ticker, query)
	if !ok {
		sym, ok = queryparse.TickerToken(query)
	}
	if ok {
		for _, r := range rows {
			if r.Symbol == sym {
				return r
			}
		}
	}
	return rows[0]
}

func (k *Knowledge) wantsLiveMarket(req *Request) bool {
	if kind, ok := resolver.Classify(req.Query); !ok || kind != resolver.Ticker {
		return false
	}
	if req.Hint != nil && req.Hint.Kind == resolver.Ticker {
		return true
	}
	if _, ok := k.symbols.Lookup(resolver.Ticker, req.Query); ok {
		return true
	}
	_, ok := queryparse.TickerToken(req.Query)
	return ok
}

// marketQuery is the broader market tool: the model answers with dataset facts as grounding.
func (k *Knowledge) marketQuery(ctx context.Context, req *Request) Outcome {
	if k.model == nil {
		return NotApplicable
	}
	reply, err := k.model.Complete(ctx, k.marketSystemPrompt(req), req.Query)
	if err != nil {
		return Failed(fmt.Errorf("%s - market query failed: %w", knowledgeLogPrefix, err))
	}
	return Answered(reply)
}

func (k *Knowledge) marketSystemPrompt(req *Request) string {
	var b strings.Builder
	b.WriteString("You are the KnowledgeAgent. Answer stock market questions clearly and concisely. ")
	b.WriteString("Use tables to display data when applicable. Prefer the dataset facts below over general knowledge.\n")
	if req.Hint != nil {
		fmt.Fprintf(&b, "The question most likely refers to the %s %s.\n", req.Hint.Kind, req.Hint.Value)
	}
	b.WriteString("\nDataset facts:\n")
	b.WriteString(k.datasetFacts(req.Query))
	return b.String()
}

// datasetFacts summarizes the dataset: its range and the rows for a date named in the query,
// or the most recent rows.
func (k *Knowledge) datasetFacts(query string) string {
	if k.data == nil || k.data.Len() == 0 {
		return "(no local dataset available)"
	}
	first, last, _ := k.data.Range()
	var b strings.Builder
	fmt.Fprintf(&b, "Rows: %d, from %s to %s.\n", k.data.Len(), first.Format(queryparse.Layout), last.Format(queryparse.Layout))

	day := last.Format(queryparse.Layout)
	if d, ok := queryparse.ResolveDate(query, k.data); ok {
		day = d.String()
	}
	rows, err := k.data.ByDate(day)
	if err != nil {
		fmt.Fprintf(&b, "No rows for %s.\n", day)
		return b.String()
	}
	for _, r := range rows {
		if r.Symbol != "" {
			fmt.Fprintf(&b, "%s %s: open %.2f, close %.2f\n", r.Key(), r.Symbol, r.Open, r.Close)
		} else {
			fmt.Fprintf(&b, "%s: open %.2f, close %.2f\n", r.Key(), r.Open, r.Close)
		}
	}
	return b.String()
}
