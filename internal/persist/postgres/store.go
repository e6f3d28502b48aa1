// Package postgres implements the persist.Store mirror on PostgreSQL.
//
// Both collections are stored as full ordered snapshots: a save replaces the
// table contents inside one transaction. The mirrors are small (one
// conversation, a handful of patterns) and the debounce layer above already
// coalesces writes, so snapshot-replace is simpler and safer than diffing.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linevoxhq/linevox/internal/convo"
	"github.com/linevoxhq/linevox/internal/normalize"
	"github.com/linevoxhq/linevox/internal/persist"
)

// Compile-time interface check.
var _ persist.Store = (*Store)(nil)

// Store is the PostgreSQL-backed persistence mirror.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn and ensures the mirror tables
// exist.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("persist store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("persist store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("persist store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// LoadConversation implements persist.Store.
func (s *Store) LoadConversation(ctx context.Context) ([]convo.Message, error) {
	const q = `
		SELECT role, content
		FROM   conversation_messages
		ORDER  BY seq`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("persist store: load conversation: %w", err)
	}

	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (convo.Message, error) {
		var m convo.Message
		err := row.Scan(&m.Role, &m.Content)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("persist store: scan conversation: %w", err)
	}
	return messages, nil
}

// SaveConversation implements persist.Store with a snapshot replace.
func (s *Store) SaveConversation(ctx context.Context, messages []convo.Message) error {
	return s.replace(ctx, "conversation", `DELETE FROM conversation_messages`, func(ctx context.Context, tx pgx.Tx) error {
		for i, m := range messages {
			const q = `
				INSERT INTO conversation_messages (seq, role, content)
				VALUES ($1, $2, $3)`
			if _, err := tx.Exec(ctx, q, i, m.Role, m.Content); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadPatterns implements persist.Store.
func (s *Store) LoadPatterns(ctx context.Context) ([]normalize.Pattern, error) {
	const q = `
		SELECT spoken, command, corrected
		FROM   speech_patterns
		ORDER  BY seq`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("persist store: load patterns: %w", err)
	}

	patterns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (normalize.Pattern, error) {
		var p normalize.Pattern
		err := row.Scan(&p.Spoken, &p.Command, &p.Corrected)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("persist store: scan patterns: %w", err)
	}
	return patterns, nil
}

// SavePatterns implements persist.Store with a snapshot replace. The seq
// column preserves storage order, which the normalizer's
// first-entry-wins application depends on.
func (s *Store) SavePatterns(ctx context.Context, patterns []normalize.Pattern) error {
	return s.replace(ctx, "patterns", `DELETE FROM speech_patterns`, func(ctx context.Context, tx pgx.Tx) error {
		for i, p := range patterns {
			const q = `
				INSERT INTO speech_patterns (seq, spoken, command, corrected)
				VALUES ($1, $2, $3, $4)`
			if _, err := tx.Exec(ctx, q, i, p.Spoken, p.Command, p.Corrected); err != nil {
				return err
			}
		}
		return nil
	})
}

// replace runs a delete-then-insert snapshot write in one transaction.
func (s *Store) replace(ctx context.Context, what, deleteQuery string, insert func(context.Context, pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("persist store: save %s: begin: %w", what, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, deleteQuery); err != nil {
		return fmt.Errorf("persist store: save %s: clear: %w", what, err)
	}
	if err := insert(ctx, tx); err != nil {
		return fmt.Errorf("persist store: save %s: insert: %w", what, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("persist store: save %s: commit: %w", what, err)
	}
	return nil
}
