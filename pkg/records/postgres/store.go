// Package postgres implements the records.Store commit-action contract on
// top of a PostgreSQL line_items table with a jsonb fields column.
//
// Update uses the jsonb || merge operator, so replaying an update is
// idempotent at the database level — the property the voice agent's
// at-least-once incremental merges rely on.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linevoxhq/linevox/pkg/records"
)

// Compile-time interface check.
var _ records.Store = (*Store)(nil)

// Store is the PostgreSQL-backed line-item store. It holds a single
// [pgxpool.Pool]. All operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to the PostgreSQL database at dsn
// and runs [Migrate] to ensure the line_items table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("records store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("records store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("records store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Create implements records.Store.
func (s *Store) Create(ctx context.Context, id string, fields records.Fields) error {
	payload, err := marshalFields(fields)
	if err != nil {
		return fmt.Errorf("records store: create %s: %w", id, err)
	}

	const q = `
		INSERT INTO line_items (id, fields, created_at, updated_at)
		VALUES ($1, $2, now(), now())`

	if _, err := s.pool.Exec(ctx, q, id, payload); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("records store: line item %q already exists", id)
		}
		return fmt.Errorf("records store: create %s: %w", id, err)
	}
	return nil
}

// Update implements records.Store. Fields are merged with the jsonb ||
// operator, preserving existing keys not named in the merge.
func (s *Store) Update(ctx context.Context, id string, fields records.Fields) error {
	payload, err := marshalFields(fields)
	if err != nil {
		return fmt.Errorf("records store: update %s: %w", id, err)
	}

	const q = `
		UPDATE line_items
		SET    fields = fields || $2, updated_at = now()
		WHERE  id = $1`

	tag, err := s.pool.Exec(ctx, q, id, payload)
	if err != nil {
		return fmt.Errorf("records store: update %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return records.ErrNotFound
	}
	return nil
}

// Delete implements records.Store.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM line_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("records store: delete %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return records.ErrNotFound
	}
	return nil
}

// Get implements records.Store.
func (s *Store) Get(ctx context.Context, id string) (records.LineItem, error) {
	const q = `
		SELECT id, fields, created_at, updated_at
		FROM   line_items
		WHERE  id = $1`

	row := s.pool.QueryRow(ctx, q, id)
	item, err := scanLineItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return records.LineItem{}, records.ErrNotFound
	}
	if err != nil {
		return records.LineItem{}, fmt.Errorf("records store: get %s: %w", id, err)
	}
	return item, nil
}

// List implements records.Store.
func (s *Store) List(ctx context.Context) ([]records.LineItem, error) {
	const q = `
		SELECT id, fields, created_at, updated_at
		FROM   line_items
		ORDER  BY id`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("records store: list: %w", err)
	}

	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (records.LineItem, error) {
		return scanLineItem(row)
	})
	if err != nil {
		return nil, fmt.Errorf("records store: scan rows: %w", err)
	}
	if items == nil {
		items = []records.LineItem{}
	}
	return items, nil
}

// scanLineItem scans a single line_items row.
func scanLineItem(row pgx.Row) (records.LineItem, error) {
	var (
		item    records.LineItem
		payload []byte
	)
	if err := row.Scan(&item.ID, &payload, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return records.LineItem{}, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &item.Fields); err != nil {
			return records.LineItem{}, fmt.Errorf("decode fields: %w", err)
		}
	}
	if item.Fields == nil {
		item.Fields = records.Fields{}
	}
	return item, nil
}

// marshalFields encodes a field map as jsonb input. A nil map encodes as an
// empty object so the merge operator always has a valid operand.
func marshalFields(fields records.Fields) ([]byte, error) {
	if fields == nil {
		fields = records.Fields{}
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	return payload, nil
}
