package normalize

import (
	"strings"
	"sync"
)

// Pattern is a single learned speaker-specific substitution, produced by the
// calibration trainer. Immutable once stored.
type Pattern struct {
	// Spoken is the form the recognizer actually produced.
	Spoken string

	// Command is the target phrase the trainer was teaching.
	Command string

	// Corrected, when non-empty, is the replacement text to use instead of
	// Command.
	Corrected string
}

// Replacement returns the text substituted for the spoken form.
func (p Pattern) Replacement() string {
	if p.Corrected != "" {
		return p.Corrected
	}
	return p.Command
}

// PatternSet is the ordered collection of learned substitutions.
//
// Patterns are applied in storage order with literal case-insensitive
// substring replacement. All entries are kept — a later pattern with the same
// spoken form never overwrites an earlier one; it simply never matches,
// because the earlier pattern has already rewritten the text.
//
// All methods are safe for concurrent use.
type PatternSet struct {
	mu       sync.RWMutex
	patterns []Pattern
}

// NewPatternSet creates a PatternSet seeded with the given patterns.
func NewPatternSet(patterns ...Pattern) *PatternSet {
	ps := &PatternSet{}
	ps.Add(patterns...)
	return ps
}

// Add appends patterns to the set. Entries with an empty spoken form are
// dropped — they would match everywhere.
func (ps *PatternSet) Add(patterns ...Pattern) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for _, p := range patterns {
		if strings.TrimSpace(p.Spoken) == "" {
			continue
		}
		ps.patterns = append(ps.patterns, p)
	}
}

// Patterns returns a copy of the stored patterns in storage order.
func (ps *PatternSet) Patterns() []Pattern {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	out := make([]Pattern, len(ps.patterns))
	copy(out, ps.patterns)
	return out
}

// Len returns the number of stored patterns.
func (ps *PatternSet) Len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.patterns)
}

// Apply rewrites s by replacing every occurrence of each pattern's spoken
// form (case-insensitive) with its replacement, in storage order. A nil set
// returns s unchanged.
func (ps *PatternSet) Apply(s string) string {
	if ps == nil {
		return s
	}
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	for _, p := range ps.patterns {
		s = replaceFold(s, p.Spoken, p.Replacement())
	}
	return s
}

// replaceFold replaces all case-insensitive occurrences of old in s with new.
func replaceFold(s, old, new string) string {
	if old == "" {
		return s
	}
	lower := strings.ToLower(s)
	oldLower := strings.ToLower(old)

	var b strings.Builder
	for {
		i := strings.Index(lower, oldLower)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		b.WriteString(new)
		s = s[i+len(old):]
		lower = lower[i+len(old):]
	}
}
