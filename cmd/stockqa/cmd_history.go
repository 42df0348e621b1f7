package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/morezero/stockqa/internal/server"
	"github.com/morezero/stockqa/pkg/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent answered questions, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.MarketDataTransport = "none"
		cfg.EventsEnabled = false
		if err := cfg.ValidateForAsk(); err != nil {
			return err
		}

		app, err := server.Build(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		recs, err := app.History(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		printHistory(cmd.OutOrStdout(), recs)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", history.DefaultWindow, "Number of records to show")
}

func printHistory(w io.Writer, recs []history.ChatRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No chat history.")
		return
	}
	for _, r := range recs {
		fmt.Fprintf(w, "[%s] %s (%s)\n  Q: %s\n  A: %s\n",
			r.Timestamp.Format("2006-01-02 15:04:05"), r.Responder, r.SessionID,
			r.UserQuery, strings.ReplaceAll(r.Response, "\n", "\n     "))
	}
}
