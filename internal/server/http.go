package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/morezero/stockqa/pkg/document"
	"github.com/morezero/stockqa/pkg/router"
)

const httpLogPrefix = "server:http"

const maxHistoryLimit = 100

// QueryRequest is the body of POST /api/v1/query. Multipart requests carry the same
// fields plus an optional "document" file.
type QueryRequest struct {
	Query     string `json:"query" form:"query"`
	SessionID string `json:"sessionId" form:"sessionId"`
}

// QueryResponse is the reply of POST /api/v1/query.
type QueryResponse struct {
	RecordID  int64  `json:"recordId"`
	SessionID string `json:"sessionId"`
	Responder string `json:"responder"`
	Answer    string `json:"answer"`
	ElapsedMs int64  `json:"elapsedMs"`
}

// NewHTTPHandler builds the echo API for app.
func NewHTTPHandler(app *App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(bodyLimit(app.cfg.MaxUploadBytes)))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info(fmt.Sprintf("%s - %s %s %d %s", httpLogPrefix, v.Method, v.URI, v.Status, v.Latency.Round(time.Millisecond)))
			return nil
		},
	}))

	h := &handler{app: app}
	e.GET("/health", h.health)

	api := e.Group("/api/v1")
	api.POST("/query", h.query)
	api.GET("/history", h.history)
	return e
}

// bodyLimit renders a byte count in echo's size syntax.
func bodyLimit(n int64) string {
	if n <= 0 {
		n = 20 << 20
	}
	return fmt.Sprintf("%dB", n)
}

type handler struct {
	app *App
}

func (h *handler) query(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	session := router.Session{ID: req.SessionID}
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		doc, err := readDocument(c)
		if err != nil {
			return err
		}
		session.Document = doc
	}

	answer, err := h.app.Ask(c.Request().Context(), req.Query, session)
	if errors.Is(err, ErrEmptyQuery) {
		return echo.NewHTTPError(http.StatusBadRequest, "Query is required")
	}
	if err != nil {
		slog.Error(fmt.Sprintf("%s - query failed: %v", httpLogPrefix, err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to answer query")
	}

	return c.JSON(http.StatusOK, QueryResponse{
		RecordID:  answer.Record.ID,
		SessionID: answer.Record.SessionID,
		Responder: answer.Decision.Responder,
		Answer:    answer.Decision.Answer,
		ElapsedMs: answer.Decision.Elapsed.Milliseconds(),
	})
}

// readDocument returns the uploaded "document" file, or nil when none was sent.
func readDocument(c echo.Context) (*document.Document, error) {
	fh, err := c.FormFile("document")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid document upload")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid document upload")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid document upload")
	}
	return &document.Document{Name: fh.Filename, Data: data}, nil
}

func (h *handler) history(c echo.Context) error {
	limit := h.app.cfg.HistoryWindow
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	recs, err := h.app.History(c.Request().Context(), limit)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - history failed: %v", httpLogPrefix, err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to read history")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"records": recs, "count": len(recs)})
}

func (h *handler) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.app.cfg.HealthCheckTimeout)
	defer cancel()

	health := h.app.Health(ctx)
	status := http.StatusOK
	if health.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, health)
}
