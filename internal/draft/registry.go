// Package draft holds the in-progress line item being dictated: a typed
// field registry, the draft accumulator, and the identifier allocator.
package draft

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind describes the semantic type of a registry field. It controls which
// validity predicate applies to merged values.
type Kind int

const (
	// KindText accepts any non-empty string.
	KindText Kind = iota
	// KindDimension accepts size notation like "2x4" or "3/4x12".
	KindDimension
	// KindNumber accepts a decimal integer or fraction.
	KindNumber
	// KindMoney accepts a decimal amount, optionally with a leading $.
	KindMoney
)

// FieldSpec declares one field of the line-item schema.
type FieldSpec struct {
	// Name is the canonical field key (matches records.Fields keys).
	Name string

	// Label is the human-readable name used in summaries.
	Label string

	// Kind selects the validity predicate.
	Kind Kind

	// Required marks fields that must be populated before a draft is
	// considered complete. Missing required fields produce warnings in the
	// confirmation summary, not hard errors.
	Required bool
}

// Valid reports whether value is acceptable for this field's kind.
func (f FieldSpec) Valid(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	switch f.Kind {
	case KindDimension:
		return validDimension(value)
	case KindNumber:
		return validNumber(value)
	case KindMoney:
		return validNumber(strings.TrimPrefix(value, "$"))
	default:
		return true
	}
}

// Registry is a closed, ordered set of field specs. Order determines summary
// rendering order.
type Registry struct {
	specs []FieldSpec
	byKey map[string]int
}

// NewRegistry builds a registry from the given specs. Duplicate names return
// an error so misconfigured registries fail at startup, not mid-dictation.
func NewRegistry(specs []FieldSpec) (*Registry, error) {
	r := &Registry{byKey: make(map[string]int, len(specs))}
	for _, s := range specs {
		key := strings.ToLower(strings.TrimSpace(s.Name))
		if key == "" {
			return nil, fmt.Errorf("draft: field spec with empty name")
		}
		if _, ok := r.byKey[key]; ok {
			return nil, fmt.Errorf("draft: duplicate field %q", key)
		}
		s.Name = key
		if s.Label == "" {
			s.Label = key
		}
		r.byKey[key] = len(r.specs)
		r.specs = append(r.specs, s)
	}
	return r, nil
}

// DefaultRegistry returns the lumber line-item schema used when no custom
// fields are configured.
func DefaultRegistry() *Registry {
	r, err := NewRegistry([]FieldSpec{
		{Name: "size", Label: "Size", Kind: KindDimension, Required: true},
		{Name: "qty", Label: "Quantity", Kind: KindNumber, Required: true},
		{Name: "grade", Label: "Grade", Kind: KindText},
		{Name: "species", Label: "Species", Kind: KindText},
		{Name: "length", Label: "Length", Kind: KindNumber},
		{Name: "price", Label: "Price", Kind: KindMoney},
		{Name: "notes", Label: "Notes", Kind: KindText},
	})
	if err != nil {
		panic(err) // static schema, cannot fail
	}
	return r
}

// Lookup returns the spec for a field key, case-insensitively.
func (r *Registry) Lookup(name string) (FieldSpec, bool) {
	i, ok := r.byKey[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return FieldSpec{}, false
	}
	return r.specs[i], true
}

// Specs returns the field specs in declaration order.
func (r *Registry) Specs() []FieldSpec {
	out := make([]FieldSpec, len(r.specs))
	copy(out, r.specs)
	return out
}

// Required returns the names of all required fields in declaration order.
func (r *Registry) Required() []string {
	var out []string
	for _, s := range r.specs {
		if s.Required {
			out = append(out, s.Name)
		}
	}
	return out
}

func validDimension(s string) bool {
	for part := range strings.SplitSeq(s, "x") {
		if !validNumber(part) {
			return false
		}
	}
	return true
}

func validNumber(s string) bool {
	if num, den, ok := strings.Cut(s, "/"); ok {
		return isUint(num) && isUint(den)
	}
	// Mixed numbers like "1 1/2" arrive space-joined.
	if whole, frac, ok := strings.Cut(s, " "); ok {
		return isUint(whole) && validNumber(frac)
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func isUint(s string) bool {
	_, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	return err == nil
}
