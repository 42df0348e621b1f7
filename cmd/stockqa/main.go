// Package main is the entrypoint for the stockqa command line.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/subosito/gotenv"

	"github.com/morezero/stockqa/internal/config"
	"github.com/morezero/stockqa/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "stockqa",
	Short: "Answer stock market and general questions with attributed responders",
	Long: `stockqa routes each question to the first responder that can answer it:
MemoryAgent, KnowledgeAgent, RAGAgent, MarketDataAgent, then GeneralAgent.

Configuration is read from the environment (and a .env file when present).
See README for the full list of variables.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(askCmd, chatCmd, serveCmd, historyCmd, migrateCmd, clearCmd, ensureDBCmd)
}

// loadConfig loads .env, then the environment, and installs the logger on stderr.
func loadConfig() (*config.Config, error) {
	_ = gotenv.Load()
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	server.SetupLogging(cfg.LogLevel, os.Stderr)
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
