// Package main is the entrypoint for the market-data service. It answers the line-delimited
// JSON protocol on stdin/stdout (stdio) or on a COMMS subject (nats). Logs go to stderr.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	comms "github.com/nats-io/nats.go"
	"github.com/subosito/gotenv"

	"github.com/morezero/stockqa/internal/config"
	"github.com/morezero/stockqa/internal/server"
	"github.com/morezero/stockqa/pkg/commsutil"
	"github.com/morezero/stockqa/pkg/dataset"
	"github.com/morezero/stockqa/pkg/marketdata"
)

const logPrefix = "marketdata:main"

const usage = `Usage: marketdata [command]

Commands:
  stdio   (default) Serve requests read from stdin, one JSON object per line; replies go to stdout.
  nats    Serve requests on MARKETDATA_SUBJECT at COMMS_URL.
  help    Show this help.

Methods: fetch_stock_price, fetch_historical_data, predict_stock_price, ping.

Environment: DATASET_PATH (local overrides), YAHOO_BASE_URL, PROVIDER_TIMEOUT, COMMS_URL,
MARKETDATA_SUBJECT, LOG_LEVEL.
`

func main() {
	args := os.Args[1:]
	mode := "stdio"
	if len(args) > 0 && args[0] != "" {
		mode = args[0]
	}

	switch mode {
	case "help", "-h", "--help":
		fmt.Fprint(os.Stderr, usage)
		return
	case "stdio", config.TransportNATS:
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", mode, usage)
		os.Exit(1)
	}

	if err := run(mode); err != nil {
		log.Fatalf("marketdata %s: %v", mode, err)
	}
}

func run(mode string) error {
	_ = gotenv.Load()
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	server.SetupLogging(cfg.LogLevel, os.Stderr)
	if err := cfg.ValidateForMarketData(mode); err != nil {
		return err
	}

	svc := newService(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if mode == config.TransportNATS {
		// The responder outlives broker restarts; keep reconnecting.
		nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName+"-marketdata", comms.MaxReconnects(-1))
		if err != nil {
			return err
		}
		defer nc.Drain()

		sub, err := svc.Subscribe(ctx, nc, cfg.MarketDataSubject)
		if err != nil {
			return err
		}
		defer sub.Unsubscribe()

		slog.Info(fmt.Sprintf("%s - Serving on %s", logPrefix, cfg.MarketDataSubject))
		<-ctx.Done()
		return nil
	}

	slog.Info(fmt.Sprintf("%s - Serving on stdio", logPrefix))
	return svc.Serve(ctx, os.Stdin, os.Stdout)
}

func newService(cfg *config.Config) *marketdata.Service {
	data, err := dataset.Load(cfg.DatasetPath)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - no local dataset overrides: %v", logPrefix, err))
		data = nil
	}
	return marketdata.NewService(data, marketdata.NewYahooProvider(cfg.YahooBaseURL, cfg.ProviderTimeout))
}
