// Package server wires the query router to its stores, models and the market-data service,
// and serves it over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/stockqa/internal/config"
	"github.com/morezero/stockqa/pkg/commsutil"
	"github.com/morezero/stockqa/pkg/dataset"
	"github.com/morezero/stockqa/pkg/db"
	"github.com/morezero/stockqa/pkg/document"
	"github.com/morezero/stockqa/pkg/events"
	"github.com/morezero/stockqa/pkg/history"
	"github.com/morezero/stockqa/pkg/llm"
	"github.com/morezero/stockqa/pkg/protocol"
	"github.com/morezero/stockqa/pkg/resolver"
	"github.com/morezero/stockqa/pkg/responder"
	"github.com/morezero/stockqa/pkg/router"
)

const appLogPrefix = "server:app"

// ErrEmptyQuery is returned by Ask for a blank query.
var ErrEmptyQuery = errors.New("query is required")

// Answer is a routed and persisted query.
type Answer struct {
	Record   history.ChatRecord
	Decision router.RouteDecision
}

// App owns the runtime collaborators of one stockqa process.
type App struct {
	cfg       *config.Config
	store     history.Store
	router    *router.Router
	publisher events.EventPublisher
	market    *protocol.Client
	locks     *sessionLocks
	closers   []func()
}

// NewApp assembles an App from ready collaborators. A nil publisher disables events.
func NewApp(cfg *config.Config, store history.Store, rt *router.Router, publisher events.EventPublisher, market *protocol.Client) *App {
	if publisher == nil {
		publisher = &events.NoOpPublisher{}
	}
	return &App{
		cfg:       cfg,
		store:     store,
		router:    rt,
		publisher: publisher,
		market:    market,
		locks:     newSessionLocks(),
	}
}

// Build creates every collaborator named by cfg. Optional collaborators (dataset, model,
// market-data service, events) degrade with a warning instead of failing.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	closers = append(closers, store.Close)

	symbols, err := resolver.LoadSymbols(cfg.SymbolsFile)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("%s - failed to load symbols: %w", appLogPrefix, err)
	}
	res := resolver.New(symbols)
	res.PreferQuery = cfg.PreferQuery

	data, err := dataset.Load(cfg.DatasetPath)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - dataset unavailable: %v", appLogPrefix, err))
		data = nil
	}

	model := buildModel(ctx, cfg)

	var nc *comms.Conn
	if cfg.MarketDataTransport == config.TransportNATS || cfg.EventsEnabled {
		nc, err = commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - COMMS unavailable: %v", appLogPrefix, err))
			nc = nil
		} else {
			closers = append(closers, func() { _ = nc.Drain() })
		}
	}

	market := connectMarketData(ctx, cfg, nc)
	if market != nil {
		closers = append(closers, func() { _ = market.Close() })
	}

	var publisher events.EventPublisher = &events.NoOpPublisher{}
	if cfg.EventsEnabled && nc != nil {
		publisher = events.NewCommsPublisher(nc, &events.CommsPublisherOpts{Subject: cfg.EventSubject})
	}

	knowledge := responder.NewKnowledge(data, cfg.DatasetPath, model, symbols)
	reg := &responder.Registry{
		Memory:    responder.NewMemory(model),
		Knowledge: knowledge,
		Document:  responder.NewRAG(document.NewExtractor(), model, cfg.MaxDocumentChars),
		Fallback:  responder.NewGeneral(model),
	}
	if market != nil {
		knowledge.LiveMarket = true
		reg.LiveMarket = responder.NewMarketData(market, symbols)
	}

	app := NewApp(cfg, store, router.New(store, res, reg, cfg.HistoryWindow), publisher, market)
	app.closers = closers
	slog.Info(fmt.Sprintf("%s - Ready (store=%s, market data=%s, events=%t)",
		appLogPrefix, cfg.Store, marketState(market), cfg.EventsEnabled && nc != nil))
	return app, nil
}

func openStore(ctx context.Context, cfg *config.Config) (history.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return history.NewMemoryStore(), nil
	case config.StorePostgres:
		if cfg.RunMigrations {
			if err := db.EnsureDatabase(ctx, cfg.DatabaseURL); err != nil {
				return nil, fmt.Errorf("%s - failed to ensure database: %w", appLogPrefix, err)
			}
		}
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to connect to database: %w", appLogPrefix, err)
		}
		if cfg.RunMigrations {
			migrationSQL, err := db.LoadMigrationFiles(cfg.MigrationPath)
			if err != nil {
				pool.Close()
				return nil, fmt.Errorf("%s - failed to load migrations: %w", appLogPrefix, err)
			}
			if err := db.RunMigrations(ctx, pool, migrationSQL); err != nil {
				pool.Close()
				return nil, fmt.Errorf("%s - failed to run migrations: %w", appLogPrefix, err)
			}
		}
		return db.NewRepository(pool), nil
	default:
		store, err := history.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to open history: %w", appLogPrefix, err)
		}
		return store, nil
	}
}

func buildModel(ctx context.Context, cfg *config.Config) llm.Answerer {
	key := cfg.LLMAPIKey()
	if key == "" {
		slog.Warn(fmt.Sprintf("%s - no API key for provider %s, model-backed answers are disabled", appLogPrefix, cfg.LLMProvider))
		return nil
	}
	model, err := llm.New(ctx, llm.Options{
		Provider:    cfg.LLMProvider,
		APIKey:      key,
		BaseURL:     cfg.LLMBaseURL,
		Model:       cfg.LLMModel,
		Temperature: cfg.LLMTemperature,
		MaxTokens:   cfg.LLMMaxTokens,
		Timeout:     cfg.LLMTimeout,
	})
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - model unavailable: %v", appLogPrefix, err))
		return nil
	}
	return model
}

// connectMarketData starts or dials the market-data service and checks its version.
// It returns nil when the service is disabled or unusable.
func connectMarketData(ctx context.Context, cfg *config.Config, nc *comms.Conn) *protocol.Client {
	var transport protocol.Transport
	switch cfg.MarketDataTransport {
	case config.TransportProcess:
		p, err := protocol.StartProcess(cfg.MarketDataCommand)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - market data service not started: %v", appLogPrefix, err))
			return nil
		}
		transport = p
	case config.TransportNATS:
		if nc == nil {
			return nil
		}
		transport = protocol.NewNATSTransport(nc, cfg.MarketDataSubject)
	default:
		return nil
	}

	client := protocol.NewClient(transport, cfg.MarketDataTimeout)
	pingCtx, cancel := context.WithTimeout(ctx, cfg.MarketDataTimeout)
	defer cancel()
	info, err := client.Ping(pingCtx, cfg.MarketDataVersion)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - market data service unusable: %v", appLogPrefix, err))
		_ = client.Close()
		return nil
	}
	slog.Info(fmt.Sprintf("%s - Market data service %s %s (%s)", appLogPrefix, info.Service, info.Version, strings.Join(info.Methods, ", ")))
	return client
}

func marketState(c *protocol.Client) string {
	if c.Reachable() {
		return "reachable"
	}
	return "disabled"
}

// Ask routes one query, persists the answer and publishes the route event. Queries of
// one session are handled one at a time. A failed save is logged; the answer still returns.
func (a *App) Ask(ctx context.Context, query string, session router.Session) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}

	unlock := a.locks.lock(session.ID)
	defer unlock()

	decision := a.router.Route(ctx, query, session)

	rec := history.ChatRecord{
		SessionID: session.ID,
		UserQuery: query,
		Response:  decision.Answer,
		Responder: decision.Responder,
	}
	saved, err := a.store.Save(ctx, rec)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to save chat record: %v", appLogPrefix, err))
		saved = rec
		saved.Timestamp = time.Now().UTC()
	}

	event := &events.RouteDecidedEvent{
		RecordID:  saved.ID,
		SessionID: session.ID,
		Query:     query,
		Responder: decision.Responder,
		ElapsedMs: decision.Elapsed.Milliseconds(),
		Timestamp: saved.Timestamp.Format(time.RFC3339),
	}
	if decision.Hint != nil {
		event.HintKind = decision.Hint.Kind.String()
		event.HintValue = decision.Hint.Value
	}
	if err := a.publisher.PublishRouted(ctx, event); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish route event: %v", appLogPrefix, err))
	}

	return &Answer{Record: saved, Decision: decision}, nil
}

// History returns the latest records, most recent first.
func (a *App) History(ctx context.Context, limit int) ([]history.ChatRecord, error) {
	recs, err := a.store.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read history: %w", appLogPrefix, err)
	}
	return recs, nil
}

// Health is the readiness report served on /health.
type Health struct {
	Status     string `json:"status"`
	Store      string `json:"store"`
	MarketData string `json:"marketData"`
}

// Health checks the store and reports market-data reachability.
func (a *App) Health(ctx context.Context) Health {
	h := Health{Status: "healthy", Store: "ok", MarketData: marketState(a.market)}
	if err := a.store.Ping(ctx); err != nil {
		slog.Warn(fmt.Sprintf("%s - store ping failed: %v", appLogPrefix, err))
		h.Status = "unhealthy"
		h.Store = err.Error()
	}
	return h
}

// Close releases everything Build created, in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
