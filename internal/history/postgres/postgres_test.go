package postgres_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/voicesphere/internal/history"
	"github.com/MrWong99/voicesphere/internal/history/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if VOICESPHERE_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("VOICESPHERE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VOICESPHERE_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS conversation_messages"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	pool.Close()

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestStore_AppendRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Minute)

	for i := range 4 {
		e := history.Entry{
			SessionID: "sess",
			Role:      history.RoleUser,
			Text:      fmt.Sprintf("msg %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := store.Append(ctx, history.Entry{SessionID: "sess", Role: history.RoleBot, Text: "Found 3 results for pizza", Query: "pizza", Results: 3}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := store.Recent(ctx, "sess", 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent = %d entries, want 2", len(got))
	}
	if got[0].Text != "msg 3" || got[1].Role != history.RoleBot || got[1].Results != 3 {
		t.Errorf("Recent = %+v", got)
	}

	all, _ := store.Recent(ctx, "sess", 0)
	if len(all) != 5 || all[0].Text != "msg 0" {
		t.Errorf("all = %+v", all)
	}
	if err := store.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestStore_MigrateIdempotent(t *testing.T) {
	newTestStore(t)
	store, err := postgres.NewStore(context.Background(), testDSN(t))
	if err != nil {
		t.Fatalf("second NewStore: %v", err)
	}
	store.Close()
}
