package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlLineItems = `
CREATE TABLE IF NOT EXISTS line_items (
    id         TEXT         PRIMARY KEY,
    fields     JSONB        NOT NULL DEFAULT '{}'::jsonb,
    created_at TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_line_items_updated_at
    ON line_items (updated_at);
`

// Migrate ensures the line_items table and its indexes exist.
// Safe to run repeatedly — all statements are IF NOT EXISTS.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlLineItems); err != nil {
		return fmt.Errorf("migrate line_items: %w", err)
	}
	return nil
}
