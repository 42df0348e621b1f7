package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/morezero/stockqa/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API (POST /api/v1/query, GET /api/v1/history, GET /health)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		server.SetupLogging(cfg.LogLevel, os.Stdout)
		if err := cfg.ValidateForServe(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if err := server.Run(ctx, cfg); err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	},
}
