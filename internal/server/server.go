package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/morezero/stockqa/internal/config"
)

const logPrefix = "server:server"

const shutdownTimeout = 10 * time.Second

// Run builds the app, serves the HTTP API and blocks until ctx is cancelled, then shuts down.
func Run(ctx context.Context, cfg *config.Config) error {
	slog.Info(fmt.Sprintf("%s - Starting stockqa", logPrefix))

	app, err := Build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("%s - failed to build app: %w", logPrefix, err)
	}
	defer app.Close()

	return Serve(ctx, app, cfg.ListenAddr())
}

// Serve runs the HTTP API for app on addr until ctx is cancelled.
func Serve(ctx context.Context, app *App, addr string) error {
	e := NewHTTPHandler(app)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info(fmt.Sprintf("%s - HTTP API listening on %s", logPrefix, addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s - HTTP server error: %w", logPrefix, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info(fmt.Sprintf("%s - Shutting down", logPrefix))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}
