package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/stockqa/pkg/history"
)

const repoLogPrefix = "db:repository"

// Repository is the Postgres-backed history.Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ history.Store = (*Repository)(nil)

// Recent returns the latest records, most recent first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]history.ChatRecord, error) {
	if limit <= 0 {
		limit = history.DefaultWindow
	}
	slog.Debug(fmt.Sprintf("%s - Recent limit=%d", repoLogPrefix, limit))

	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, user_query, response, agent_name, timestamp
		 FROM chat_history
		 ORDER BY timestamp DESC, id DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("%s - Recent query failed: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []history.ChatRecord
	for rows.Next() {
		var rec history.ChatRecord
		var id int32
		if err := rows.Scan(&id, &rec.SessionID, &rec.UserQuery, &rec.Response, &rec.Responder, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("%s - Recent scan failed: %w", repoLogPrefix, err)
		}
		rec.ID = int64(id)
		rec.Timestamp = rec.Timestamp.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - Recent rows failed: %w", repoLogPrefix, err)
	}
	return out, nil
}

// Save inserts a record and returns it with the assigned id and timestamp.
func (r *Repository) Save(ctx context.Context, rec history.ChatRecord) (history.ChatRecord, error) {
	slog.Debug(fmt.Sprintf("%s - Save responder=%s", repoLogPrefix, rec.Responder))

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	var id int32
	err := r.pool.QueryRow(ctx,
		`INSERT INTO chat_history (session_id, user_query, response, agent_name, timestamp)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		rec.SessionID, rec.UserQuery, rec.Response, rec.Responder, rec.Timestamp).Scan(&id)
	if err != nil {
		return rec, fmt.Errorf("%s - Save failed: %w", repoLogPrefix, err)
	}
	rec.ID = int64(id)
	return rec, nil
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close releases the pool.
func (r *Repository) Close() {
	r.pool.Close()
}
