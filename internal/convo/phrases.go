package convo

import "strings"

// Control identifies a fixed control phrase recognized directly by the state
// machine. These bypass the interpreter entirely: the decisions they gate
// (opening drafts, committing, cancelling) must be deterministic and
// auditable, not subject to free-form interpretation.
type Control int

const (
	controlNone Control = iota
	controlNewLine
	controlEnter
	controlAffirm
	controlReject
	controlEdit
	controlBeginTraining
	controlExitTraining
)

// phraseEntry maps one spoken phrase to a control.
type phraseEntry struct {
	phrase  string
	control Control
}

// controlPhrases is the fixed vocabulary. Matching is substring containment
// on the lowercased utterance; when several entries match, the longest
// phrase wins, so "do not confirm" resolves to its negative reading even
// though "confirm" also appears.
var controlPhrases = []phraseEntry{
	{"add new line", controlNewLine},
	{"new line", controlNewLine},
	{"add a line", controlNewLine},
	{"enter data", controlEnter},
	{"enter", controlEnter},
	{"yes", controlAffirm},
	{"correct", controlAffirm},
	{"proceed", controlAffirm},
	{"confirm", controlAffirm},
	{"ok", controlAffirm},
	{"okay", controlAffirm},
	{"that's right", controlAffirm},
	{"no", controlReject},
	{"nope", controlReject},
	{"wrong", controlReject},
	{"that's wrong", controlReject},
	{"change", controlReject},
	{"cancel", controlReject},
	{"do not confirm", controlReject},
	{"don't confirm", controlReject},
	{"edit data", controlEdit},
	{"edit", controlEdit},
	{"start training", controlBeginTraining},
	{"begin training", controlBeginTraining},
	{"start calibration", controlBeginTraining},
	{"begin calibration", controlBeginTraining},
	{"exit training", controlExitTraining},
	{"stop training", controlExitTraining},
	{"exit calibration", controlExitTraining},
	{"stop calibration", controlExitTraining},
}

// matchControl classifies an utterance against the control vocabulary.
// Longest matching phrase wins; ties fall to the earlier table entry.
func matchControl(utterance string) Control {
	u := " " + strings.ToLower(strings.TrimSpace(utterance)) + " "
	u = strings.Map(func(r rune) rune {
		switch r {
		case '.', ',', '!', '?', ';', ':':
			return ' '
		}
		return r
	}, u)

	best := controlNone
	bestLen := 0
	for _, e := range controlPhrases {
		// Word-bounded containment so "ok" does not fire inside "oak".
		if strings.Contains(u, " "+e.phrase+" ") && len(e.phrase) > bestLen {
			best = e.control
			bestLen = len(e.phrase)
		}
	}
	return best
}
