package history

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory. Used when no database is configured and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records []ChatRecord
	nextID  int64
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1, now: time.Now}
}

// Recent implements Store.
func (s *MemoryStore) Recent(_ context.Context, limit int) ([]ChatRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = DefaultWindow
	}
	out := make([]ChatRecord, 0, limit)
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, rec ChatRecord) (ChatRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = s.nextID
	s.nextID++
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now().UTC()
	}
	s.records = append(s.records, rec)
	return rec, nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close implements Store.
func (s *MemoryStore) Close() {}
