package draft

import (
	"fmt"
	"strings"

	"github.com/linevoxhq/linevox/pkg/records"
)

// Draft is the in-progress line item for exactly one target identifier. It is
// transient: opened by "add new line", destroyed by commit or abandonment,
// never persisted as its own entity.
type Draft struct {
	// ID is the allocated line identifier this draft targets.
	ID string

	fields records.Fields
}

// New opens an empty draft for id.
func New(id string) *Draft {
	return &Draft{ID: id, fields: records.Fields{}}
}

// Merge folds partial field values into the draft, keyed by field name.
// Unknown fields (not in the registry) are dropped and reported; values that
// fail the field's validity predicate are kept anyway — the speaker said
// them, and the confirmation summary is where oddities surface.
// Merging the same fields twice yields the same draft.
func (d *Draft) Merge(reg *Registry, fields records.Fields) (merged records.Fields, dropped []string) {
	merged = records.Fields{}
	for k, v := range fields {
		key := strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := reg.Lookup(key); !ok {
			dropped = append(dropped, key)
			continue
		}
		d.fields[key] = v
		merged[key] = v
	}
	return merged, dropped
}

// Fields returns a copy of the accumulated field values.
func (d *Draft) Fields() records.Fields {
	return d.fields.Clone()
}

// Get returns the current value of one field.
func (d *Draft) Get(name string) (string, bool) {
	v, ok := d.fields[strings.ToLower(name)]
	return v, ok
}

// Missing returns the registry's required fields not yet populated, in
// declaration order.
func (d *Draft) Missing(reg *Registry) []string {
	var out []string
	for _, name := range reg.Required() {
		if _, ok := d.fields[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}

// Summary renders a human-readable one-line-per-field view of the draft in
// registry order, followed by missing-required warnings. Used verbatim as
// the confirmation prompt.
func (d *Draft) Summary(reg *Registry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Line %s:\n", d.ID)
	for _, spec := range reg.Specs() {
		v, ok := d.fields[spec.Name]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "  %s: %s", spec.Label, v)
		if !spec.Valid(v) {
			b.WriteString(" (check this value)")
		}
		b.WriteByte('\n')
	}
	if missing := d.Missing(reg); len(missing) > 0 {
		labels := make([]string, len(missing))
		for i, name := range missing {
			spec, _ := reg.Lookup(name)
			labels[i] = spec.Label
		}
		fmt.Fprintf(&b, "Missing: %s\n", strings.Join(labels, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}
