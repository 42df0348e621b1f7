package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/morezero/stockqa/internal/server"
	"github.com/morezero/stockqa/pkg/document"
	"github.com/morezero/stockqa/pkg/router"
)

var (
	docPath   string
	sessionID string
)

var askCmd = &cobra.Command{
	Use:   "ask [query]",
	Short: "Answer one question",
	Long: `Routes a single question and prints the attributed answer.

Examples:
  stockqa ask "what was the market open price on 4th June 2025"
  stockqa ask --pdf report.pdf "summarize the outlook section"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive question loop (type exit to quit)",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

func init() {
	for _, c := range []*cobra.Command{askCmd, chatCmd} {
		c.Flags().StringVar(&docPath, "pdf", "", "Attach a PDF (or text) document to the session")
		c.Flags().StringVar(&sessionID, "session", "", "Session id (default: new random id)")
	}
}

func runAsk(cmd *cobra.Command, args []string) error {
	app, session, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	answer, err := app.Ask(cmd.Context(), strings.Join(args, " "), session)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), answer.Decision.Answer)
	return nil
}

func runChat(cmd *cobra.Command, _ []string) error {
	app, session, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	return chatLoop(cmd.Context(), app, session, cmd.InOrStdin(), cmd.OutOrStdout())
}

// asker is the part of server.App the chat loop uses.
type asker interface {
	Ask(ctx context.Context, query string, session router.Session) (*server.Answer, error)
}

func chatLoop(ctx context.Context, app asker, session router.Session, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "Session %s. Type exit to quit.\n", session.ID)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		answer, err := app.Ask(ctx, line, session)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "%s\n\n", answer.Decision.Answer)
	}
}

func openSession(ctx context.Context) (*server.App, router.Session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, router.Session{}, err
	}
	if err := cfg.ValidateForAsk(); err != nil {
		return nil, router.Session{}, err
	}

	session := router.Session{ID: sessionID}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if docPath != "" {
		doc, err := readDocument(docPath)
		if err != nil {
			return nil, router.Session{}, err
		}
		session.Document = doc
	}

	app, err := server.Build(ctx, cfg)
	if err != nil {
		return nil, router.Session{}, err
	}
	return app, session, nil
}

func readDocument(path string) (*document.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return &document.Document{Name: filepath.Base(path), Data: data}, nil
}
