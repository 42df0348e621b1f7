package main

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/morezero/stockqa/pkg/db"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|status]",
	Short:     "Apply or inspect the Postgres chat_history migrations",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "status"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPool(cmd.Context(), func(ctx context.Context, pool *pgxpool.Pool, migrationPath string) error {
			if args[0] == "status" {
				status, err := db.MigrationStatus(ctx, pool, migrationPath)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), status)
				return nil
			}
			migrationSQL, err := db.LoadMigrationFiles(migrationPath)
			if err != nil {
				return fmt.Errorf("load migrations: %w", err)
			}
			if err := db.RunMigrations(ctx, pool, migrationSQL); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			return nil
		})
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Truncate the Postgres chat history; schema is preserved",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withPool(cmd.Context(), func(ctx context.Context, pool *pgxpool.Pool, _ string) error {
			return db.ClearHistory(ctx, pool)
		})
	},
}

var ensureDBCmd = &cobra.Command{
	Use:   "ensure-db [name]",
	Short: "Create the database (default: the one in DATABASE_URL) if missing",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.ValidateForDB(); err != nil {
			return err
		}
		target := cfg.DatabaseURL
		if len(args) == 1 && args[0] != "" {
			if target, err = withDatabase(cfg.DatabaseURL, args[0]); err != nil {
				return err
			}
		}
		if err := db.EnsureDatabase(cmd.Context(), target); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Database is ready.")
		return nil
	},
}

// withDatabase replaces the database name in a Postgres URL; the query (e.g. sslmode) is kept.
func withDatabase(databaseURL, name string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	u.Path = "/" + name
	return u.String(), nil
}

func withPool(ctx context.Context, fn func(ctx context.Context, pool *pgxpool.Pool, migrationPath string) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	return fn(ctx, pool, cfg.MigrationPath)
}
