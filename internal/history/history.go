// Package history keeps the per-session conversation log: what the user said,
// what the assistant answered, and the errors shown along the way.
//
// The controller appends an entry for every utterance; LLM-backed chat
// providers read the most recent entries back as context. Two backends ship:
// an in-memory [MemoryStore] and a PostgreSQL store in history/postgres.
package history

import (
	"context"
	"time"
)

// Role identifies who produced an entry.
type Role string

const (
	RoleUser  Role = "user"
	RoleBot   Role = "bot"
	RoleError Role = "error"
)

// Entry is one line of a conversation.
type Entry struct {
	SessionID string
	Role      Role
	Text      string
	Language  string

	// Query is the search query, for bot entries that announced results.
	Query string

	// Results is the number of search results, when Query is set.
	Results int

	CreatedAt time.Time
}

// Store is the conversation log. Implementations must be safe for
// concurrent use.
type Store interface {
	// Append adds e to the log. A zero CreatedAt is set to the current time.
	Append(ctx context.Context, e Entry) error

	// Recent returns up to limit entries of sessionID, oldest first.
	// limit <= 0 returns all entries.
	Recent(ctx context.Context, sessionID string, limit int) ([]Entry, error)
}
