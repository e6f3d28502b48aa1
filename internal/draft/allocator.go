package draft

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/linevoxhq/linevox/pkg/records"
)

// ErrAllocationExhausted is returned when the allocator cannot find a free
// identifier within the probe bound. It turns a pathological collision loop
// into a detectable fault instead of a hang.
var ErrAllocationExhausted = errors.New("draft: identifier allocation exhausted")

// maxAllocProbes bounds collision reprobing.
const maxAllocProbes = 100

// Allocate returns a fresh line identifier of the form family+N, where N is
// one greater than the highest numeric suffix among existing identifiers of
// that family. Because the backing store is eventually consistent, the
// candidate is probed with Get and incremented on collision, bounded at
// maxAllocProbes attempts.
func Allocate(ctx context.Context, store records.Store, family string) (string, error) {
	items, err := store.List(ctx)
	if err != nil {
		return "", fmt.Errorf("draft: list for allocation: %w", err)
	}

	next := 1
	for _, it := range items {
		if n, ok := suffix(it.ID, family); ok && n >= next {
			next = n + 1
		}
	}

	for range maxAllocProbes {
		candidate := family + strconv.Itoa(next)
		_, err := store.Get(ctx, candidate)
		if errors.Is(err, records.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("draft: probe %s: %w", candidate, err)
		}
		next++ // in-flight creation not visible in List; keep probing
	}
	return "", ErrAllocationExhausted
}

// suffix extracts the numeric suffix of id for the given family prefix.
func suffix(id, family string) (int, bool) {
	rest, ok := strings.CutPrefix(id, family)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
