// Package responder holds the adapters the router tries in order. Each adapter either
// answers, declines (NotApplicable) or fails; none of them signal through answer text.
package responder

import (
	"context"
	"fmt"
	"strings"

	"github.com/morezero/stockqa/pkg/document"
	"github.com/morezero/stockqa/pkg/history"
	"github.com/morezero/stockqa/pkg/resolver"
)

// Responder names, as attributed in answers and stored in history.
const (
	MemoryAgent     = "MemoryAgent"
	KnowledgeAgent  = "KnowledgeAgent"
	RAGAgent        = "RAGAgent"
	MarketDataAgent = "MarketDataAgent"
	GeneralAgent    = "GeneralAgent"
)

// Status is the variant tag of an Outcome.
type Status int

const (
	StatusNotApplicable Status = iota
	StatusAnswered
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusAnswered:
		return "answered"
	case StatusFailed:
		return "failed"
	}
	return "not_applicable"
}

// Outcome is the result of one adapter: Answered(text), NotApplicable or Failed(err).
type Outcome struct {
	status Status
	text   string
	err    error
}

// NotApplicable means the adapter declines the query.
var NotApplicable = Outcome{status: StatusNotApplicable}

// Answered wraps an answer body.
func Answered(text string) Outcome {
	return Outcome{status: StatusAnswered, text: text}
}

// Failed wraps a collaborator failure.
func Failed(err error) Outcome {
	return Outcome{status: StatusFailed, err: err}
}

// Status returns the variant tag.
func (o Outcome) Status() Status { return o.status }

// Text returns the answer body of an Answered outcome.
func (o Outcome) Text() string { return o.text }

// Err returns the error of a Failed outcome.
func (o Outcome) Err() error { return o.err }

func (o Outcome) String() string {
	switch o.status {
	case StatusAnswered:
		return fmt.Sprintf("Answered(%d chars)", len(o.text))
	case StatusFailed:
		return fmt.Sprintf("Failed(%v)", o.err)
	}
	return "NotApplicable"
}

// Request is everything an adapter may look at for one query.
type Request struct {
	Query     string
	SessionID string
	// History is the most-recent-first window loaded once per query.
	History []history.ChatRecord
	// Hint is the resolver's inference for the query, if any.
	Hint     *resolver.Hint
	Document *document.Document
}

// Responder is one adapter in the routing chain.
type Responder interface {
	Name() string
	Respond(ctx context.Context, req *Request) Outcome
}

// FormatHistory renders the window as one line per exchange, most recent first.
func FormatHistory(recs []history.ChatRecord) string {
	if len(recs) == 0 {
		return "(no previous conversation)"
	}
	var b strings.Builder
	for i, r := range recs {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "User: %s | Agent: %s | Response: %s", r.UserQuery, r.Responder, oneLine(r.Response))
	}
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
