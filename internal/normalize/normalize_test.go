package normalize

import "testing"

func TestCanonicalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"dimension words", "twelve by twenty four", "12x24"},
		{"dimension digits", "12 by 24", "12x24"},
		{"dimension already joined", "12x24", "12x24"},
		{"dimension chain", "two by four by eight", "2x4x8"},
		{"fraction plural", "three quarters", "3/4"},
		{"fraction bare", "quarter", "1/4"},
		{"fraction article", "a quarter", "1/4"},
		{"fraction eighths", "three eighths", "3/8"},
		{"fraction half", "half", "1/2"},
		{"mixed number", "two and a half", "2 1/2"},
		{"number words", "quantity twenty five", "quantity 25"},
		{"teen", "seventeen", "17"},
		{"hundred", "two hundred", "200"},
		{"punctuation stripped", "Quantity five.", "quantity 5"},
		{"whitespace collapsed", "  grade   select ", "grade select"},
		{"hyphen split", "twenty-four", "24"},
		{"by between words untouched", "stop by the office", "stop by the office"},
		{"pass through", "douglas fir", "douglas fir"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := Canonicalize(tt.in); got != tt.want {
				t.Errorf("Canonicalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// The bare word "quarter" must become "1/4" via the fraction pass; the
// number-word pass must never see it.
func TestCanonicalize_QuarterNotCorrupted(t *testing.T) {
	t.Parallel()

	if got := Canonicalize("quarter inch plywood"); got != "1/4 inch plywood" {
		t.Errorf("got %q, want %q", got, "1/4 inch plywood")
	}
}

// "twelve by twenty four" and "12x24" must canonicalize identically.
func TestCanonicalize_DimensionEquivalence(t *testing.T) {
	t.Parallel()

	a := Canonicalize("twelve by twenty four")
	b := Canonicalize("12x24")
	if a != b {
		t.Errorf("forms diverge: %q vs %q", a, b)
	}
}

func TestCanonicalize_FractionDimension(t *testing.T) {
	t.Parallel()

	if got := Canonicalize("three quarters by four"); got != "3/4x4" {
		t.Errorf("got %q, want %q", got, "3/4x4")
	}
}

func TestNormalize_AppliesPatternsBeforeCanonicalization(t *testing.T) {
	t.Parallel()

	ps := NewPatternSet(Pattern{Spoken: "add new lion", Command: "add new line"})

	if got := Normalize("Add New Lion", ps); got != "add new line" {
		t.Errorf("got %q, want %q", got, "add new line")
	}
}

func TestNormalize_NilPatternSet(t *testing.T) {
	t.Parallel()

	var ps *PatternSet
	if got := Normalize("five", ps); got != "5" {
		t.Errorf("got %q, want %q", got, "5")
	}
}
