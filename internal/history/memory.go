package history

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultMaxPerSession caps the in-memory log of a single session.
const DefaultMaxPerSession = 200

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process [Store]. Each session keeps a bounded number
// of entries; older ones are dropped.
type MemoryStore struct {
	mu       sync.Mutex
	max      int
	sessions map[string][]Entry
}

// NewMemoryStore returns an empty store. perSession <= 0 uses
// DefaultMaxPerSession.
func NewMemoryStore(perSession int) *MemoryStore {
	if perSession <= 0 {
		perSession = DefaultMaxPerSession
	}
	return &MemoryStore{max: perSession, sessions: make(map[string][]Entry)}
}

// Append implements [Store].
func (s *MemoryStore) Append(_ context.Context, e Entry) error {
	if e.SessionID == "" {
		return errors.New("history: empty session id")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	log := append(s.sessions[e.SessionID], e)
	if len(log) > s.max {
		log = append([]Entry(nil), log[len(log)-s.max:]...)
	}
	s.sessions[e.SessionID] = log
	return nil
}

// Recent implements [Store].
func (s *MemoryStore) Recent(_ context.Context, sessionID string, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.sessions[sessionID]
	if limit > 0 && len(log) > limit {
		log = log[len(log)-limit:]
	}
	return append([]Entry(nil), log...), nil
}

// Forget drops every entry of sessionID.
func (s *MemoryStore) Forget(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}
