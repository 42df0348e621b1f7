// Package history defines the chat history record and the stores that persist it.
package history

import (
	"context"
	"time"
)

// DefaultWindow is the number of recent records the router reads per query.
const DefaultWindow = 10

// ChatRecord is one answered query. Records are never mutated after Save.
type ChatRecord struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"sessionId,omitempty"`
	UserQuery string    `json:"userQuery"`
	Response  string    `json:"response"`
	Responder string    `json:"responder"`
	Timestamp time.Time `json:"timestamp"`
}

// Store reads and appends chat records.
type Store interface {
	// Recent returns at most limit records, most recent first.
	Recent(ctx context.Context, limit int) ([]ChatRecord, error)
	// Save appends a record. ID and Timestamp are assigned by the store when zero.
	Save(ctx context.Context, rec ChatRecord) (ChatRecord, error)
	Ping(ctx context.Context) error
	Close()
}
