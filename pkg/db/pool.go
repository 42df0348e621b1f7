// Package db provides the Postgres chat history store via pgx.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const logPrefix = "db:pool"

// NewPool creates a new pgx connection pool from the given database URL.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	slog.Info(fmt.Sprintf("%s - Connecting to database", logPrefix))

	config, err := poolConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create pool: %w", logPrefix, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s - failed to ping database: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Database connection established", logPrefix))
	return pool, nil
}

// Pool limits for the chat history store: one routed query writes one row.
const (
	poolMaxConns          = 8
	poolMinConns          = 1
	poolMaxConnIdleTime   = 5 * time.Minute
	poolHealthCheckPeriod = time.Minute
)

// poolConfig parses databaseURL and applies the pool limits. Limits given in the URL
// (pool_max_conns and friends) win over the defaults.
func poolConfig(databaseURL string) (*pgxpool.Config, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("%s - database URL is empty", logPrefix)
	}
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to parse database URL: %w", logPrefix, err)
	}

	if !strings.Contains(databaseURL, "pool_max_conns") {
		config.MaxConns = poolMaxConns
	}
	if !strings.Contains(databaseURL, "pool_min_conns") {
		config.MinConns = poolMinConns
	}
	config.MaxConnIdleTime = poolMaxConnIdleTime
	config.HealthCheckPeriod = poolHealthCheckPeriod
	return config, nil
}

// RunMigrations applies SQL migration files in order. Every migration is idempotent.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrationFiles []string) error {
	slog.Info(fmt.Sprintf("%s - Running %d migrations", logPrefix, len(migrationFiles)))

	for i, sql := range migrationFiles {
		if _, err := pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("%s - migration %d failed: %w", logPrefix, i+1, err)
		}
	}

	slog.Info(fmt.Sprintf("%s - Migrations complete", logPrefix))
	return nil
}

// MigrationStatus reports whether the chat_history table exists and how many rows it holds.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, migrationPath string) (string, error) {
	const statusLogPrefix = "db:MigrationStatus"

	var exists bool
	err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'chat_history')`).Scan(&exists)
	if err != nil {
		return "", fmt.Errorf("%s - failed to check schema: %w", statusLogPrefix, err)
	}

	files, err := LoadMigrationFiles(migrationPath)
	if err != nil {
		return "", fmt.Errorf("%s - load migration list: %w", statusLogPrefix, err)
	}

	if !exists {
		return fmt.Sprintf("not applied (run 'stockqa migrate up'), %d migration files available", len(files)), nil
	}

	var rows int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*)::int FROM chat_history`).Scan(&rows); err != nil {
		return "", fmt.Errorf("%s - failed to count chat_history: %w", statusLogPrefix, err)
	}
	return fmt.Sprintf("applied (%d migration files, %d chat records)", len(files), rows), nil
}
