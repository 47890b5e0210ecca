// Package postgres provides a PostgreSQL-backed [history.Store].
//
// Entries live in a single conversation_messages table; [Migrate] creates it
// on connect.
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/voicesphere/internal/history"
)

const ddlMessages = `
CREATE TABLE IF NOT EXISTS conversation_messages (
    id          BIGSERIAL    PRIMARY KEY,
    session_id  TEXT         NOT NULL,
    role        TEXT         NOT NULL,
    text        TEXT         NOT NULL,
    language    TEXT         NOT NULL DEFAULT '',
    query       TEXT         NOT NULL DEFAULT '',
    results     INTEGER      NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_conversation_messages_session_created
    ON conversation_messages (session_id, created_at);
`

// Migrate creates the schema if it does not exist. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlMessages); err != nil {
		return fmt.Errorf("history postgres: migrate: %w", err)
	}
	return nil
}

var _ history.Store = (*Store)(nil)

// Store implements [history.Store] on a pgx connection pool. All methods are
// safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn, verifies the connection and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("history postgres: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("history postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history postgres: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Append implements [history.Store].
func (s *Store) Append(ctx context.Context, e history.Entry) error {
	if e.SessionID == "" {
		return errors.New("history postgres: empty session id")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	const q = `
		INSERT INTO conversation_messages
		    (session_id, role, text, language, query, results, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := s.pool.Exec(ctx, q,
		e.SessionID, string(e.Role), e.Text, e.Language, e.Query, e.Results, e.CreatedAt,
	); err != nil {
		return fmt.Errorf("history postgres: append: %w", err)
	}
	return nil
}

// Recent implements [history.Store].
func (s *Store) Recent(ctx context.Context, sessionID string, limit int) ([]history.Entry, error) {
	const base = `
		SELECT session_id, role, text, language, query, results, created_at
		FROM   conversation_messages
		WHERE  session_id = $1
		ORDER  BY created_at DESC, id DESC`

	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.pool.Query(ctx, base+"\nLIMIT $2", sessionID, limit)
	} else {
		rows, err = s.pool.Query(ctx, base, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("history postgres: recent: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (history.Entry, error) {
		var (
			e    history.Entry
			role string
		)
		err := row.Scan(&e.SessionID, &role, &e.Text, &e.Language, &e.Query, &e.Results, &e.CreatedAt)
		e.Role = history.Role(role)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("history postgres: scan: %w", err)
	}

	// Newest first from the query; callers want chronological order.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Ping reports whether the database is reachable. It is used as a readiness
// check.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
