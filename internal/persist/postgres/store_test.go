package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linevoxhq/linevox/internal/convo"
	"github.com/linevoxhq/linevox/internal/normalize"
	"github.com/linevoxhq/linevox/internal/persist/postgres"
)

func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("LINEVOX_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LINEVOX_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS conversation_messages, speech_patterns`); err != nil {
		t.Fatalf("drop tables: %v", err)
	}

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestStore_ConversationRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	messages := []convo.Message{
		{Role: "user", Content: "add new line"},
		{Role: "assistant", Content: "Started line L1. Go ahead."},
	}
	if err := store.SaveConversation(ctx, messages); err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}

	got, err := store.LoadConversation(ctx)
	if err != nil {
		t.Fatalf("LoadConversation: %v", err)
	}
	if len(got) != 2 || got[0] != messages[0] || got[1] != messages[1] {
		t.Errorf("LoadConversation = %+v, want %+v", got, messages)
	}

	// A second save replaces, not appends.
	if err := store.SaveConversation(ctx, messages[:1]); err != nil {
		t.Fatalf("second SaveConversation: %v", err)
	}
	got, err = store.LoadConversation(ctx)
	if err != nil {
		t.Fatalf("LoadConversation: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("len = %d after replace, want 1", len(got))
	}
}

func TestStore_PatternsPreserveOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	patterns := []normalize.Pattern{
		{Spoken: "to buy for", Command: "2x4"},
		{Spoken: "granite", Command: "grade", Corrected: "grade it"},
		{Spoken: "enter date a", Command: "enter data"},
	}
	if err := store.SavePatterns(ctx, patterns); err != nil {
		t.Fatalf("SavePatterns: %v", err)
	}

	got, err := store.LoadPatterns(ctx)
	if err != nil {
		t.Fatalf("LoadPatterns: %v", err)
	}
	if len(got) != len(patterns) {
		t.Fatalf("len = %d, want %d", len(got), len(patterns))
	}
	for i := range patterns {
		if got[i] != patterns[i] {
			t.Errorf("patterns[%d] = %+v, want %+v", i, got[i], patterns[i])
		}
	}
}

func TestStore_EmptyLoads(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	messages, err := store.LoadConversation(ctx)
	if err != nil {
		t.Fatalf("LoadConversation: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("messages = %d, want 0 on fresh tables", len(messages))
	}

	patterns, err := store.LoadPatterns(ctx)
	if err != nil {
		t.Fatalf("LoadPatterns: %v", err)
	}
	if len(patterns) != 0 {
		t.Errorf("patterns = %d, want 0 on fresh tables", len(patterns))
	}
}
