package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlMirrors = `
CREATE TABLE IF NOT EXISTS conversation_messages (
    seq        INTEGER      PRIMARY KEY,
    role       TEXT         NOT NULL,
    content    TEXT         NOT NULL,
    created_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS speech_patterns (
    seq        INTEGER      PRIMARY KEY,
    spoken     TEXT         NOT NULL,
    command    TEXT         NOT NULL,
    corrected  TEXT         NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// Migrate ensures the mirror tables exist. Safe to run repeatedly.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlMirrors); err != nil {
		return fmt.Errorf("migrate persistence mirrors: %w", err)
	}
	return nil
}
