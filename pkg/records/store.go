// Package records defines the commit-action contract between the voice agent
// and the estimate line-item storage backend.
//
// The agent calls Create exactly once when a draft is opened — so downstream
// storage has a row to update incrementally — and Update on every subsequent
// field merge. Update is an idempotent merge keyed by field name: replaying
// an update is safe, which is what makes the agent's at-least-once delivery
// of incremental merges acceptable.
//
// Implementations must be safe for concurrent use.
package records

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get, Update, and Delete when no line item with
// the given identifier exists.
var ErrNotFound = errors.New("records: line item not found")

// Fields is a partial field-value map for a line item. Keys come from the
// draft field registry (size, qty, grade, …).
type Fields map[string]string

// Clone returns an independent copy of f.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// LineItem is a stored estimate line item.
type LineItem struct {
	// ID is the unique line identifier (e.g., "L7").
	ID string

	// Fields holds the line's field values.
	Fields Fields

	// CreatedAt is when the line was first created.
	CreatedAt time.Time

	// UpdatedAt is when the line was last merged into.
	UpdatedAt time.Time
}

// Store is the line-item commit-action contract.
type Store interface {
	// Create inserts an empty-or-partial line item under id. Returns an
	// error if id already exists.
	Create(ctx context.Context, id string, fields Fields) error

	// Update merges fields into the line item id, field by field. Existing
	// fields not named in the merge are preserved. Returns [ErrNotFound] if
	// id does not exist.
	Update(ctx context.Context, id string, fields Fields) error

	// Delete removes the line item id. Returns [ErrNotFound] if id does not
	// exist.
	Delete(ctx context.Context, id string) error

	// Get returns the line item id. Returns [ErrNotFound] if id does not
	// exist.
	Get(ctx context.Context, id string) (LineItem, error)

	// List returns all line items ordered by identifier.
	List(ctx context.Context) ([]LineItem, error)
}
