package training

import (
	"strings"
	"testing"
)

func TestSession_NonMatchDoesNotAdvance(t *testing.T) {
	t.Parallel()
	s, err := NewSession([]string{"test phrase one", "test phrase two"})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	res := s.Submit("banana")
	if res.Matched {
		t.Error("banana matched phrase 0")
	}
	if s.Index() != 0 {
		t.Errorf("index = %d, want 0", s.Index())
	}
	if !strings.Contains(res.Prompt, "test phrase one") {
		t.Errorf("re-prompt does not repeat phrase 0: %q", res.Prompt)
	}
}

func TestSession_SubstringEitherWayMatches(t *testing.T) {
	t.Parallel()
	s, err := NewSession([]string{"test phrase one", "test phrase two"})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	if res := s.Submit("please test phrase one now"); !res.Matched {
		t.Error("utterance containing the target did not match")
	}
	if s.Index() != 1 {
		t.Errorf("index = %d, want 1", s.Index())
	}
}

func TestSession_WordOverlapAdvances(t *testing.T) {
	t.Parallel()
	s, err := NewSession([]string{"red oak select grade boards"})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	// 4 of 5 target words present (80% ≥ 70%), different order, extra word.
	if res := s.Submit("select boards red oak please"); !res.Matched {
		t.Error("80% word overlap did not match")
	}

	s2, _ := NewSession([]string{"red oak select grade boards"})
	// 2 of 5 target words present (40% < 70%).
	if res := s2.Submit("red boards"); res.Matched {
		t.Error("40% word overlap matched")
	}
}

func TestSession_ExactMatchSequence(t *testing.T) {
	t.Parallel()
	s, err := NewSession([]string{"test phrase one", "test phrase two"})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	res := s.Submit("test phrase one")
	if !res.Matched || res.Done {
		t.Fatalf("first submit: %+v", res)
	}
	if res.Pattern.Spoken != "test phrase one" || res.Pattern.Command != "test phrase one" {
		t.Errorf("pattern = %+v", res.Pattern)
	}
	if !strings.Contains(res.Prompt, "test phrase two") {
		t.Errorf("prompt does not introduce phrase 1: %q", res.Prompt)
	}

	res = s.Submit("test phrase two")
	if !res.Matched || !res.Done {
		t.Fatalf("second submit: %+v", res)
	}
}

func TestSession_RecordsMisrecognizedSpokenForm(t *testing.T) {
	t.Parallel()
	s, err := NewSession([]string{"two by four"})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	// The recognizer heard something slightly off; word-level tolerance
	// still matches and the pattern stores what was actually heard.
	res := s.Submit("too by four")
	if !res.Matched {
		t.Fatal("tolerant match failed for near-identical words")
	}
	if res.Pattern.Spoken != "too by four" {
		t.Errorf("Spoken = %q, want the raw utterance", res.Pattern.Spoken)
	}
	if res.Pattern.Command != "two by four" {
		t.Errorf("Command = %q, want the target phrase", res.Pattern.Command)
	}
}

func TestSession_CanonicalizesBeforeComparing(t *testing.T) {
	t.Parallel()
	s, err := NewSession([]string{"12x24"})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	if res := s.Submit("twelve by twenty four"); !res.Matched {
		t.Error("canonically equivalent utterance did not match")
	}
}

func TestSession_IndexNeverSkips(t *testing.T) {
	t.Parallel()
	s, err := NewSession([]string{"alpha bravo", "charlie delta", "echo foxtrot"})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	// Saying a later phrase early must not jump the index forward.
	if res := s.Submit("echo foxtrot"); res.Matched {
		t.Fatal("phrase 2 matched at index 0")
	}
	if s.Index() != 0 {
		t.Errorf("index = %d, want 0", s.Index())
	}
}

func TestNewSession_RejectsEmptyList(t *testing.T) {
	t.Parallel()
	if _, err := NewSession([]string{"", "  "}); err == nil {
		t.Fatal("expected error for empty phrase list")
	}
}
