package draft

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/linevoxhq/linevox/pkg/records"
	recordsmock "github.com/linevoxhq/linevox/pkg/records/mock"
)

func seedLines(t *testing.T, store *recordsmock.Store, ids ...string) {
	t.Helper()
	now := time.Now()
	for _, id := range ids {
		store.Seed(records.LineItem{ID: id, CreatedAt: now, UpdatedAt: now})
	}
}

func TestAllocate_NextAfterMaxSuffix(t *testing.T) {
	t.Parallel()
	store := &recordsmock.Store{}
	seedLines(t, store, "L1", "L2", "L3", "L4", "L5", "L6")

	id, err := Allocate(context.Background(), store, "L")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if id != "L7" {
		t.Errorf("id = %q, want L7", id)
	}
}

func TestAllocate_IgnoresGapsAndForeignIDs(t *testing.T) {
	t.Parallel()
	store := &recordsmock.Store{}
	seedLines(t, store, "L1", "L9", "M3", "Lx")

	id, err := Allocate(context.Background(), store, "L")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if id != "L10" {
		t.Errorf("id = %q, want L10", id)
	}
}

func TestAllocate_EmptyStore(t *testing.T) {
	t.Parallel()
	store := &recordsmock.Store{}

	id, err := Allocate(context.Background(), store, "L")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if id != "L1" {
		t.Errorf("id = %q, want L1", id)
	}
}

// raceStore hides some items from List but reveals them to Get, simulating
// an in-flight creation that allocation-time listing has not yet observed.
type raceStore struct {
	recordsmock.Store
	hidden map[string]bool
}

func (s *raceStore) List(ctx context.Context) ([]records.LineItem, error) {
	items, err := s.Store.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []records.LineItem
	for _, it := range items {
		if !s.hidden[it.ID] {
			out = append(out, it)
		}
	}
	return out, nil
}

func TestAllocate_ReprobesOnCollision(t *testing.T) {
	t.Parallel()
	store := &raceStore{hidden: map[string]bool{"L2": true, "L3": true}}
	seedLines(t, &store.Store, "L1", "L2", "L3")

	id, err := Allocate(context.Background(), store, "L")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if id != "L4" {
		t.Errorf("id = %q, want L4 after probing past hidden L2, L3", id)
	}
}

func TestAllocate_Exhaustion(t *testing.T) {
	t.Parallel()
	store := &raceStore{hidden: map[string]bool{}}
	for i := 1; i <= 101; i++ {
		id := "L" + strconv.Itoa(i)
		store.hidden[id] = true
		seedLines(t, &store.Store, id)
	}

	_, err := Allocate(context.Background(), store, "L")
	if !errors.Is(err, ErrAllocationExhausted) {
		t.Errorf("err = %v, want ErrAllocationExhausted", err)
	}
}

func TestAllocate_TwoCallsDistinctAfterCreate(t *testing.T) {
	t.Parallel()
	store := &recordsmock.Store{}
	ctx := context.Background()

	first, err := Allocate(ctx, store, "L")
	if err != nil {
		t.Fatalf("first Allocate: %v", err)
	}
	if err := store.Create(ctx, first, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}

	second, err := Allocate(ctx, store, "L")
	if err != nil {
		t.Fatalf("second Allocate: %v", err)
	}
	if second == first {
		t.Errorf("second allocation %q collides with first", second)
	}
}
