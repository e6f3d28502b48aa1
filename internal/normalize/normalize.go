// Package normalize implements the correction layer applied to every raw
// utterance before it reaches the state machine or the interpreter.
//
// Raw speech-to-text output is rarely usable for takeoff notation — speakers
// say "twelve by twenty four" and "three quarters" where a line item needs
// "12x24" and "3/4". Normalization runs in two passes:
//
//  1. Learned substitutions ([PatternSet.Apply]): literal case-insensitive
//     replacements recorded by the calibration trainer, applied in storage
//     order.
//
//  2. Canonicalization ([Canonicalize]): fraction words to slash notation,
//     number words to digits, "by" between measurements to the dimension
//     separator, sentence punctuation stripped, whitespace collapsed.
//
// Fraction conversion runs before the number-word pass so that a bare
// "quarter" becomes "1/4" instead of being corrupted into a digit.
//
// All functions are pure; unmatched input passes through unchanged.
package normalize

import (
	"strconv"
	"strings"
)

// unitWords maps single-digit and teen number words to their values.
var unitWords = map[string]int{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4,
	"five": 5, "six": 6, "seven": 7, "eight": 8, "nine": 9,
	"ten": 10, "eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14,
	"fifteen": 15, "sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
}

// tensWords maps tens number words to their values.
var tensWords = map[string]int{
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
}

// denominatorWords maps fraction denominator words (singular and plural) to
// their denominators.
var denominatorWords = map[string]int{
	"half": 2, "halves": 2,
	"third": 3, "thirds": 3,
	"quarter": 4, "quarters": 4, "fourth": 4, "fourths": 4,
	"fifth": 5, "fifths": 5,
	"sixth": 6, "sixths": 6,
	"eighth": 8, "eighths": 8,
	"tenth": 10, "tenths": 10,
	"twelfth": 12, "twelfths": 12,
	"sixteenth": 16, "sixteenths": 16,
}

// Normalize applies the full correction layer: learned substitutions from
// patterns first, then canonicalization.
func Normalize(s string, patterns *PatternSet) string {
	return Canonicalize(patterns.Apply(s))
}

// Canonicalize converts an utterance into the canonical lowercase takeoff
// form: "twelve by twenty four" becomes "12x24", "three quarters" becomes
// "3/4", and a bare "quarter" becomes "1/4".
func Canonicalize(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "-", " ")

	tokens := strings.Fields(s)
	for i, tok := range tokens {
		tokens[i] = strings.Trim(tok, ".,!?;:\"'")
	}
	tokens = dropEmpty(tokens)

	// Order matters: fractions consume denominator words before the
	// number-word pass can misread their numerators.
	tokens = convertFractions(tokens)
	tokens = convertNumbers(tokens)
	tokens = mergeMixedNumbers(tokens)
	tokens = joinDimensions(tokens)

	return strings.Join(tokens, " ")
}

// convertFractions rewrites "<numerator> <denominator-word>" pairs into
// slash notation. A denominator word with no numerator ("quarter") gets an
// implicit numerator of one; the articles "a"/"an" also count as one.
func convertFractions(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); i++ {
		den, ok := denominatorWords[tokens[i]]
		if !ok {
			out = append(out, tokens[i])
			continue
		}

		num := 1
		if len(out) > 0 {
			prev := out[len(out)-1]
			if prev == "a" || prev == "an" {
				out = out[:len(out)-1]
			} else if n, ok := wordValue(prev); ok {
				num = n
				out = out[:len(out)-1]
			} else if n, ok := digitValue(prev); ok {
				num = n
				out = out[:len(out)-1]
			}
		}
		out = append(out, fraction(num, den))
	}
	return out
}

// convertNumbers rewrites number words into digit tokens, combining a tens
// word with a following unit ("twenty four" → "24") and handling "hundred".
func convertNumbers(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]

		if tens, ok := tensWords[tok]; ok {
			value := tens
			if i+1 < len(tokens) {
				if unit, ok := unitWords[tokens[i+1]]; ok && unit < 10 {
					value += unit
					i++
				}
			}
			out = append(out, strconv.Itoa(value))
			continue
		}

		if unit, ok := unitWords[tok]; ok {
			value := unit
			if i+1 < len(tokens) && tokens[i+1] == "hundred" {
				value *= 100
				i++
			}
			out = append(out, strconv.Itoa(value))
			continue
		}

		out = append(out, tok)
	}
	return out
}

// mergeMixedNumbers drops the "and" in "<digits> and <fraction>" so that
// "two and a half" ends up as "2 1/2".
func mergeMixedNumbers(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); i++ {
		if tokens[i] == "and" && len(out) > 0 && i+1 < len(tokens) {
			if isDigits(out[len(out)-1]) && isFraction(tokens[i+1]) {
				continue
			}
		}
		out = append(out, tokens[i])
	}
	return out
}

// joinDimensions glues "<measure> by <measure>" into the takeoff dimension
// separator: "12 by 24" → "12x24". Chains fold left, so "2 by 4 by 8"
// becomes "2x4x8". Only numeric neighbours are glued; "stop by the office"
// is left alone.
func joinDimensions(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); i++ {
		if tokens[i] == "by" && len(out) > 0 && i+1 < len(tokens) &&
			isMeasure(out[len(out)-1]) && isMeasure(tokens[i+1]) {
			out[len(out)-1] = out[len(out)-1] + "x" + tokens[i+1]
			i++
			continue
		}
		out = append(out, tokens[i])
	}
	return out
}

// wordValue resolves a number word (unit, teen, or tens) to its value.
func wordValue(tok string) (int, bool) {
	if v, ok := unitWords[tok]; ok {
		return v, true
	}
	if v, ok := tensWords[tok]; ok {
		return v, true
	}
	return 0, false
}

// digitValue parses a plain digit token.
func digitValue(tok string) (int, bool) {
	if !isDigits(tok) {
		return 0, false
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, false
	}
	return v, true
}

func isDigits(tok string) bool {
	if tok == "" {
		return false
	}
	for _, r := range tok {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isFraction(tok string) bool {
	slash := strings.IndexByte(tok, '/')
	if slash <= 0 || slash == len(tok)-1 {
		return false
	}
	return isDigits(tok[:slash]) && isDigits(tok[slash+1:])
}

// isMeasure reports whether tok can sit on either side of a dimension
// separator: plain digits, a fraction, or an already-joined dimension.
func isMeasure(tok string) bool {
	if isDigits(tok) || isFraction(tok) {
		return true
	}
	for _, part := range strings.Split(tok, "x") {
		if !isDigits(part) && !isFraction(part) {
			return false
		}
	}
	return strings.Contains(tok, "x")
}

func fraction(num, den int) string {
	return strconv.Itoa(num) + "/" + strconv.Itoa(den)
}

func dropEmpty(tokens []string) []string {
	out := tokens[:0]
	for _, tok := range tokens {
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}
