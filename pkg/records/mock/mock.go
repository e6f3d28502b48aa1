// Package mock provides an in-memory test double for the records.Store
// interface with a call log, so tests can assert exactly which commit
// actions fired and in what order.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/linevoxhq/linevox/pkg/records"
)

// Call records a single commit-action invocation.
type Call struct {
	// Op is "create", "update", or "delete".
	Op string

	// ID is the target line-item identifier.
	ID string

	// Fields is the field map passed to Create or Update (nil for Delete).
	Fields records.Fields
}

// Store is an in-memory implementation of records.Store.
// The zero value is ready to use.
type Store struct {
	mu    sync.Mutex
	items map[string]records.LineItem
	calls []Call

	// CreateErr, UpdateErr, and DeleteErr inject failures into the
	// corresponding operations. The call is still recorded.
	CreateErr error
	UpdateErr error
	DeleteErr error
}

// Seed inserts items directly, bypassing the call log. Useful for arranging
// pre-existing records in tests.
func (s *Store) Seed(items ...records.LineItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure()
	for _, it := range items {
		it.Fields = it.Fields.Clone()
		s.items[it.ID] = it
	}
}

// Create implements records.Store.
func (s *Store) Create(ctx context.Context, id string, fields records.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure()
	s.calls = append(s.calls, Call{Op: "create", ID: id, Fields: fields.Clone()})

	if s.CreateErr != nil {
		return s.CreateErr
	}
	if _, ok := s.items[id]; ok {
		return fmt.Errorf("mock: line item %q already exists", id)
	}
	now := time.Now()
	s.items[id] = records.LineItem{
		ID:        id,
		Fields:    fields.Clone(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

// Update implements records.Store with an idempotent field merge.
func (s *Store) Update(ctx context.Context, id string, fields records.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure()
	s.calls = append(s.calls, Call{Op: "update", ID: id, Fields: fields.Clone()})

	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	item, ok := s.items[id]
	if !ok {
		return records.ErrNotFound
	}
	if item.Fields == nil {
		item.Fields = records.Fields{}
	}
	for k, v := range fields {
		item.Fields[k] = v
	}
	item.UpdatedAt = time.Now()
	s.items[id] = item
	return nil
}

// Delete implements records.Store.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure()
	s.calls = append(s.calls, Call{Op: "delete", ID: id})

	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	if _, ok := s.items[id]; !ok {
		return records.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

// Get implements records.Store.
func (s *Store) Get(ctx context.Context, id string) (records.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure()
	item, ok := s.items[id]
	if !ok {
		return records.LineItem{}, records.ErrNotFound
	}
	item.Fields = item.Fields.Clone()
	return item, nil
}

// List implements records.Store, returning items ordered by identifier.
func (s *Store) List(ctx context.Context) ([]records.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure()
	out := make([]records.LineItem, 0, len(s.items))
	for _, it := range s.items {
		it.Fields = it.Fields.Clone()
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Calls returns the commit-action log in invocation order.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallsFor returns only the calls with the given op.
func (s *Store) CallsFor(op string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (s *Store) ensure() {
	if s.items == nil {
		s.items = make(map[string]records.LineItem)
	}
}
