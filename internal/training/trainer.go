// Package training runs the guided calibration session that teaches the
// correction layer speaker-specific substitutions.
//
// The session walks a fixed ordered list of target phrases. Each utterance is
// compared against the current target with a tolerant equality; a match
// records a new speech pattern and advances, a miss re-prompts the same
// phrase. The index never decreases and never skips.
package training

import (
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/linevoxhq/linevox/internal/normalize"
)

// minWordOverlap is the fraction of target words that must be present in the
// utterance for a non-exact, non-substring match.
const minWordOverlap = 0.7

// wordSimilarity is the Jaro-Winkler score at which two words count as the
// same despite recognizer spelling drift ("fir" vs "fur").
const wordSimilarity = 0.92

// Result describes the outcome of feeding one utterance to the session.
type Result struct {
	// Matched reports whether the utterance matched the current target.
	Matched bool

	// Pattern is the learned substitution, set only when Matched.
	Pattern normalize.Pattern

	// Prompt is the next thing to say to the user: the following target
	// phrase, a re-prompt of the current one, or a closing message.
	Prompt string

	// Done reports that the last phrase has been matched and the session
	// is over.
	Done bool
}

// Session is a calibration run over a fixed phrase list. Not safe for
// concurrent use; the conversation controller feeds it one turn at a time.
type Session struct {
	phrases []string
	index   int
}

// NewSession starts a calibration session over phrases, in order.
func NewSession(phrases []string) (*Session, error) {
	var kept []string
	for _, p := range phrases {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("training: no phrases to calibrate")
	}
	return &Session{phrases: kept}, nil
}

// Greeting returns the opening prompt for the session.
func (s *Session) Greeting() string {
	return fmt.Sprintf("Calibration started, %d phrases to go. Please say: %q", len(s.phrases), s.phrases[0])
}

// Index returns the current phrase index.
func (s *Session) Index() int {
	return s.index
}

// Submit feeds one utterance to the session. Both sides are canonicalized
// before comparison so "twelve by twenty four" calibrates against "12x24".
func (s *Session) Submit(utterance string) Result {
	target := s.phrases[s.index]
	if !phraseMatches(utterance, target) {
		return Result{
			Prompt: fmt.Sprintf("Not quite — let's try again. Please say: %q", target),
		}
	}

	pattern := normalize.Pattern{
		Spoken:  strings.ToLower(strings.TrimSpace(utterance)),
		Command: target,
	}

	s.index++
	if s.index >= len(s.phrases) {
		return Result{
			Matched: true,
			Pattern: pattern,
			Prompt:  "Calibration complete. Back to data entry.",
			Done:    true,
		}
	}
	return Result{
		Matched: true,
		Pattern: pattern,
		Prompt:  fmt.Sprintf("Got it. Next, please say: %q", s.phrases[s.index]),
	}
}

// phraseMatches implements the tolerant equality: exact match, substring
// containment either direction, or at least minWordOverlap of the target's
// words present in the utterance (per-word Jaro-Winkler tolerance).
func phraseMatches(utterance, target string) bool {
	u := normalize.Canonicalize(utterance)
	tgt := normalize.Canonicalize(target)
	if u == "" || tgt == "" {
		return false
	}
	if u == tgt || strings.Contains(u, tgt) || strings.Contains(tgt, u) {
		return true
	}

	utteranceWords := strings.Fields(u)
	targetWords := strings.Fields(tgt)
	found := 0
	for _, tw := range targetWords {
		if containsWord(utteranceWords, tw) {
			found++
		}
	}
	return float64(found) >= minWordOverlap*float64(len(targetWords))
}

func containsWord(words []string, target string) bool {
	for _, w := range words {
		if w == target {
			return true
		}
		if matchr.JaroWinkler(w, target, true) >= wordSimilarity {
			return true
		}
	}
	return false
}
