package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/morezero/stockqa/internal/config"
	"github.com/morezero/stockqa/pkg/document"
	"github.com/morezero/stockqa/pkg/events"
	"github.com/morezero/stockqa/pkg/history"
	"github.com/morezero/stockqa/pkg/protocol"
	"github.com/morezero/stockqa/pkg/resolver"
	"github.com/morezero/stockqa/pkg/responder"
	"github.com/morezero/stockqa/pkg/router"
)

type echoModel struct{}

func (echoModel) Complete(_ context.Context, _, user string) (string, error) {
	return "model says: " + user, nil
}

type failingStore struct {
	*history.MemoryStore
}

func (failingStore) Ping(context.Context) error { return errors.New("database is locked") }
func (failingStore) Save(_ context.Context, rec history.ChatRecord) (history.ChatRecord, error) {
	return rec, errors.New("database is locked")
}

func testConfig() *config.Config {
	return &config.Config{
		HistoryWindow:      10,
		HealthCheckTimeout: time.Second,
		MaxUploadBytes:     1 << 20,
	}
}

func newTestApp(t *testing.T, store history.Store, publisher events.EventPublisher) *App {
	t.Helper()
	model := echoModel{}
	reg := &responder.Registry{
		Memory:   responder.NewMemory(model),
		Document: responder.NewRAG(document.NewExtractor(), model, 0),
		Fallback: responder.NewGeneral(model),
	}
	return NewApp(testConfig(), store, router.New(store, resolver.New(nil), reg, 10), publisher, nil)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("server:server_test - encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestQuery_JSON(t *testing.T) {
	store := history.NewMemoryStore()
	var published []*events.RouteDecidedEvent
	app := newTestApp(t, store, events.NewCallbackPublisher(func(_ context.Context, e *events.RouteDecidedEvent) error {
		published = append(published, e)
		return nil
	}))
	h := NewHTTPHandler(app)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/query", QueryRequest{Query: "tell me a joke", SessionID: "s1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("server:server_test - status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp QueryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("server:server_test - decode response: %v", err)
	}
	if resp.Responder != responder.GeneralAgent {
		t.Errorf("server:server_test - Responder = %q, want %q", resp.Responder, responder.GeneralAgent)
	}
	if resp.Answer != "model says: tell me a joke\n\n*Response by GeneralAgent*" {
		t.Errorf("server:server_test - Answer = %q", resp.Answer)
	}
	if resp.SessionID != "s1" || resp.RecordID != 1 {
		t.Errorf("server:server_test - SessionID = %q RecordID = %d", resp.SessionID, resp.RecordID)
	}

	recs, _ := store.Recent(context.Background(), 10)
	if len(recs) != 1 || recs[0].Responder != responder.GeneralAgent || recs[0].UserQuery != "tell me a joke" {
		t.Errorf("server:server_test - stored records = %+v", recs)
	}
	if len(published) != 1 || published[0].RecordID != 1 || published[0].Responder != responder.GeneralAgent {
		t.Errorf("server:server_test - published events = %+v", published)
	}
}

func TestQuery_EmptyQuery(t *testing.T) {
	h := NewHTTPHandler(newTestApp(t, history.NewMemoryStore(), nil))
	for _, body := range []interface{}{QueryRequest{Query: "   "}, nil} {
		rec := doJSON(t, h, http.MethodPost, "/api/v1/query", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("server:server_test - status = %d, want 400", rec.Code)
		}
	}
}

func TestQuery_InvalidJSON(t *testing.T) {
	h := NewHTTPHandler(newTestApp(t, history.NewMemoryStore(), nil))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("server:server_test - status = %d, want 400", rec.Code)
	}
}

func TestQuery_MultipartDocument(t *testing.T) {
	h := NewHTTPHandler(newTestApp(t, history.NewMemoryStore(), nil))

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_ = w.WriteField("query", "summarize the report")
	part, err := w.CreateFormFile("document", "report.txt")
	if err != nil {
		t.Fatalf("server:server_test - create form file: %v", err)
	}
	_, _ = part.Write([]byte("Revenue grew 12% in Q2."))
	_ = w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("server:server_test - status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp QueryResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Responder != responder.RAGAgent {
		t.Errorf("server:server_test - Responder = %q, want %q", resp.Responder, responder.RAGAgent)
	}
	if !strings.Contains(resp.Answer, "Revenue grew 12% in Q2.") {
		t.Errorf("server:server_test - answer should be grounded on the document: %q", resp.Answer)
	}
	if resp.SessionID == "" {
		t.Error("server:server_test - expected a generated session id")
	}
}

func TestQuery_SaveFailureStillAnswers(t *testing.T) {
	app := newTestApp(t, failingStore{history.NewMemoryStore()}, nil)
	answer, err := app.Ask(context.Background(), "hello", router.Session{ID: "s"})
	if err != nil {
		t.Fatalf("server:server_test - unexpected error: %v", err)
	}
	if answer.Record.ID != 0 || answer.Decision.Answer == "" {
		t.Errorf("server:server_test - answer = %+v", answer)
	}
}

func TestHistory(t *testing.T) {
	app := newTestApp(t, history.NewMemoryStore(), nil)
	for i := 0; i < 3; i++ {
		if _, err := app.Ask(context.Background(), fmt.Sprintf("question %d", i), router.Session{ID: "s"}); err != nil {
			t.Fatalf("server:server_test - Ask: %v", err)
		}
	}
	h := NewHTTPHandler(app)

	tests := []struct {
		name      string
		path      string
		wantCode  int
		wantCount int
		wantFirst string
	}{
		{name: "default window", path: "/api/v1/history", wantCode: http.StatusOK, wantCount: 3, wantFirst: "question 2"},
		{name: "limit", path: "/api/v1/history?limit=2", wantCode: http.StatusOK, wantCount: 2, wantFirst: "question 2"},
		{name: "bad limit", path: "/api/v1/history?limit=abc", wantCode: http.StatusBadRequest},
		{name: "zero limit", path: "/api/v1/history?limit=0", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodGet, tt.path, nil)
			if rec.Code != tt.wantCode {
				t.Fatalf("server:server_test - status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var body struct {
				Records []history.ChatRecord `json:"records"`
				Count   int                  `json:"count"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("server:server_test - decode: %v", err)
			}
			if body.Count != tt.wantCount || len(body.Records) != tt.wantCount {
				t.Fatalf("server:server_test - count = %d, want %d", body.Count, tt.wantCount)
			}
			if body.Records[0].UserQuery != tt.wantFirst {
				t.Errorf("server:server_test - first = %q, want %q", body.Records[0].UserQuery, tt.wantFirst)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		store      history.Store
		wantCode   int
		wantStatus string
	}{
		{name: "healthy", store: history.NewMemoryStore(), wantCode: http.StatusOK, wantStatus: "healthy"},
		{name: "store down", store: failingStore{history.NewMemoryStore()}, wantCode: http.StatusServiceUnavailable, wantStatus: "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHTTPHandler(newTestApp(t, tt.store, nil))
			rec := doJSON(t, h, http.MethodGet, "/health", nil)
			if rec.Code != tt.wantCode {
				t.Fatalf("server:server_test - status = %d, want %d", rec.Code, tt.wantCode)
			}
			var health Health
			_ = json.Unmarshal(rec.Body.Bytes(), &health)
			if health.Status != tt.wantStatus {
				t.Errorf("server:server_test - Status = %q, want %q", health.Status, tt.wantStatus)
			}
			if health.MarketData != "disabled" {
				t.Errorf("server:server_test - MarketData = %q, want disabled", health.MarketData)
			}
		})
	}
}

func TestAsk_MarketDataServiceGone(t *testing.T) {
	repR, repW := io.Pipe()
	repW.Close()
	market := protocol.NewClient(protocol.NewStreamTransport(repR, io.Discard), time.Second)
	defer market.Close()

	store := history.NewMemoryStore()
	model := echoModel{}
	reg := &responder.Registry{
		LiveMarket: responder.NewMarketData(market, nil),
		Fallback:   responder.NewGeneral(model),
	}
	app := NewApp(testConfig(), store, router.New(store, resolver.New(nil), reg, 10), nil, market)
	ctx := context.Background()

	if got := app.Health(ctx).MarketData; got != "reachable" {
		t.Fatalf("server:server_test - MarketData before first call = %q, want reachable", got)
	}

	first, err := app.Ask(ctx, "price of AAPL", router.Session{})
	if err != nil {
		t.Fatalf("server:server_test - Ask failed: %v", err)
	}
	if !strings.HasPrefix(first.Decision.Answer, "Error communicating with the market data service: ") {
		t.Errorf("server:server_test - first answer = %q", first.Decision.Answer)
	}
	if got := app.Health(ctx).MarketData; got != "disabled" {
		t.Errorf("server:server_test - MarketData after service exit = %q, want disabled", got)
	}

	second, err := app.Ask(ctx, "price of AAPL", router.Session{})
	if err != nil {
		t.Fatalf("server:server_test - Ask failed: %v", err)
	}
	if second.Decision.Answer != "model says: price of AAPL\n\n*Response by GeneralAgent*" {
		t.Errorf("server:server_test - second answer = %q", second.Decision.Answer)
	}
}

func TestSessionLocks(t *testing.T) {
	locks := newSessionLocks()

	var mu sync.Mutex
	inside := 0
	maxInside := 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("same")
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("server:server_test - %d goroutines held one session lock at once", maxInside)
	}
	if locks.size() != 0 {
		t.Errorf("server:server_test - %d session locks leaked", locks.size())
	}

	a := locks.lock("a")
	b := locks.lock("b")
	if locks.size() != 2 {
		t.Errorf("server:server_test - size = %d, want 2", locks.size())
	}
	a()
	b()
}

func TestBuild_MemoryStoreWithoutServices(t *testing.T) {
	cfg := testConfig()
	cfg.Store = config.StoreMemory
	cfg.LLMProvider = "groq"
	cfg.MarketDataTransport = config.TransportNone
	cfg.DatasetPath = t.TempDir() + "/missing.csv"

	app, err := Build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("server:server_test - Build: %v", err)
	}
	defer app.Close()

	answer, err := app.Ask(context.Background(), "what is the market open price on 4th June 2025", router.Session{})
	if err != nil {
		t.Fatalf("server:server_test - Ask: %v", err)
	}
	if answer.Decision.Responder != responder.KnowledgeAgent {
		t.Errorf("server:server_test - Responder = %q, want %q", answer.Decision.Responder, responder.KnowledgeAgent)
	}
	if !strings.HasPrefix(answer.Decision.Answer, "Error: CSV file not found at ") {
		t.Errorf("server:server_test - Answer = %q", answer.Decision.Answer)
	}

	answer, err = app.Ask(context.Background(), "tell me a joke", router.Session{})
	if err != nil {
		t.Fatalf("server:server_test - Ask: %v", err)
	}
	if !strings.HasPrefix(answer.Decision.Answer, "Error processing general query: ") {
		t.Errorf("server:server_test - Answer = %q", answer.Decision.Answer)
	}
}

func TestServe_Shutdown(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("server:server_test - listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, newTestApp(t, history.NewMemoryStore(), nil), addr) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/health")
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server:server_test - server never came up: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("server:server_test - Serve returned %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("server:server_test - Serve did not return after cancel")
	}
}

func TestSetupLogging(t *testing.T) {
	defer slog.SetDefault(slog.Default())
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for level, want := range tests {
		if got := SetupLogging(level, &bytes.Buffer{}); got != want {
			t.Errorf("server:server_test - SetupLogging(%q) = %v, want %v", level, got, want)
		}
	}
}
