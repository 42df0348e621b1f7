// Package router picks the responder for a query and attributes its answer.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/morezero/stockqa/pkg/document"
	"github.com/morezero/stockqa/pkg/history"
	"github.com/morezero/stockqa/pkg/protocol"
	"github.com/morezero/stockqa/pkg/resolver"
	"github.com/morezero/stockqa/pkg/responder"
)

const logPrefix = "router:route"

// RouteDecision is the single attributed answer for one query.
type RouteDecision struct {
	Responder string         `json:"responder"`
	Answer    string         `json:"answer"`
	Hint      *resolver.Hint `json:"-"`
	Elapsed   time.Duration  `json:"-"`
}

// Session carries per-conversation inputs.
type Session struct {
	ID       string
	Document *document.Document
}

// Router tries the registry's adapters in order: Memory, Knowledge, RAG, MarketData, General.
type Router struct {
	store    history.Store
	resolver *resolver.Resolver
	registry *responder.Registry
	window   int
}

// New creates a Router. window <= 0 uses history.DefaultWindow.
func New(store history.Store, res *resolver.Resolver, reg *responder.Registry, window int) *Router {
	if window <= 0 {
		window = history.DefaultWindow
	}
	if res == nil {
		res = resolver.New(nil)
	}
	return &Router{store: store, resolver: res, registry: reg, window: window}
}

// Attribute appends the responder signature to an answer body.
func Attribute(body, name string) string {
	return fmt.Sprintf("%s\n\n*Response by %s*", body, name)
}

// Route always returns a decision with a non-empty answer.
func (r *Router) Route(ctx context.Context, query string, session Session) RouteDecision {
	start := time.Now()

	var recent []history.ChatRecord
	if r.store != nil {
		recs, err := r.store.Recent(ctx, r.window)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - history unavailable, routing without it: %v", logPrefix, err))
		} else {
			recent = recs
		}
	}

	req := &responder.Request{
		Query:     query,
		SessionID: session.ID,
		History:   recent,
		Hint:      r.resolver.Infer(query, recent),
		Document:  session.Document,
	}
	if req.Hint != nil {
		slog.Debug(fmt.Sprintf("%s - hint %s=%s for %q", logPrefix, req.Hint.Kind, req.Hint.Value, query))
	}

	decision := r.decide(ctx, req)
	decision.Hint = req.Hint
	decision.Elapsed = time.Since(start)
	slog.Info(fmt.Sprintf("%s - %s answered in %s", logPrefix, decision.Responder, decision.Elapsed.Round(time.Millisecond)))
	return decision
}

func (r *Router) decide(ctx context.Context, req *responder.Request) RouteDecision {
	var chain []responder.Responder
	if r.registry != nil {
		chain = r.registry.Chain()
	}

	for i, adapter := range chain {
		terminal := i == len(chain)-1
		out := adapter.Respond(ctx, req)
		slog.Debug(fmt.Sprintf("%s - %s: %s", logPrefix, adapter.Name(), out))

		switch out.Status() {
		case responder.StatusAnswered:
			body := out.Text()
			if strings.TrimSpace(body) == "" {
				if !terminal {
					slog.Warn(fmt.Sprintf("%s - %s returned an empty answer, continuing", logPrefix, adapter.Name()))
					continue
				}
				body = fmt.Sprintf("Error: %s returned an empty answer.", adapter.Name())
			}
			return RouteDecision{Responder: adapter.Name(), Answer: Attribute(body, adapter.Name())}

		case responder.StatusFailed:
			err := out.Err()
			if errors.Is(err, protocol.ErrProtocol) {
				slog.Error(fmt.Sprintf("%s - %s protocol failure: %v", logPrefix, adapter.Name(), err))
				body := fmt.Sprintf("Error communicating with the market data service: %v", err)
				return RouteDecision{Responder: responder.GeneralAgent, Answer: Attribute(body, responder.GeneralAgent)}
			}
			slog.Warn(fmt.Sprintf("%s - %s failed, continuing: %v", logPrefix, adapter.Name(), err))
		}
	}

	body := "Error: no responder could answer the query."
	return RouteDecision{Responder: responder.GeneralAgent, Answer: Attribute(body, responder.GeneralAgent)}
}
