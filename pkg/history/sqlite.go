package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteLogPrefix = "history:sqlite"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chat_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL DEFAULT '',
	user_query TEXT NOT NULL,
	response TEXT NOT NULL,
	agent_name TEXT NOT NULL,
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_history_timestamp ON chat_history(timestamp);
`

// SQLiteStore persists chat records in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and ensures the schema exists.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%s - failed to create db directory %s: %w", sqliteLogPrefix, dir, err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%s - failed to open db at %s: %w", sqliteLogPrefix, path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s - failed to ping db at %s: %w", sqliteLogPrefix, path, err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s - failed to create schema: %w", sqliteLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Opened chat history at %s", sqliteLogPrefix, path))
	return &SQLiteStore{db: db}, nil
}

// Recent implements Store.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]ChatRecord, error) {
	if limit <= 0 {
		limit = DefaultWindow
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, user_query, response, agent_name, timestamp
		 FROM chat_history ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%s - Recent query failed: %w", sqliteLogPrefix, err)
	}
	defer rows.Close()

	var out []ChatRecord
	for rows.Next() {
		var rec ChatRecord
		var ts int64
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.UserQuery, &rec.Response, &rec.Responder, &ts); err != nil {
			return nil, fmt.Errorf("%s - Recent scan failed: %w", sqliteLogPrefix, err)
		}
		rec.Timestamp = time.UnixMilli(ts).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, rec ChatRecord) (ChatRecord, error) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_history (session_id, user_query, response, agent_name, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.SessionID, rec.UserQuery, rec.Response, rec.Responder, rec.Timestamp.UnixMilli())
	if err != nil {
		return rec, fmt.Errorf("%s - Save failed: %w", sqliteLogPrefix, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}
	return rec, nil
}

// Ping implements Store.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements Store.
func (s *SQLiteStore) Close() {
	s.db.Close()
}
