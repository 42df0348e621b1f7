package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearHistory truncates chat_history. The schema is preserved and the id sequence restarts.
func ClearHistory(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info(fmt.Sprintf("%s - Clearing chat history", clearLogPrefix))

	if _, err := pool.Exec(ctx, `TRUNCATE TABLE chat_history RESTART IDENTITY`); err != nil {
		return fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Chat history cleared", clearLogPrefix))
	return nil
}
