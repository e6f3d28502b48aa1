package convo

import "testing"

func TestMatchControl(t *testing.T) {
	t.Parallel()
	tests := []struct {
		utterance string
		want      Control
	}{
		{"add new line", controlNewLine},
		{"new line please", controlNewLine},
		{"enter", controlEnter},
		{"enter data", controlEnter},
		{"yes", controlAffirm},
		{"yes, confirm it", controlAffirm},
		{"no", controlReject},
		{"cancel that", controlReject},
		{"stop training", controlExitTraining},
		{"quantity five", controlNone},
		{"", controlNone},
		// Word boundaries: "ok" inside "oak" is not an affirmation.
		{"red oak boards", controlNone},
		// Longest match wins: "do not confirm" over the embedded "confirm".
		{"do not confirm", controlReject},
		{"don't confirm this", controlReject},
	}

	for _, tt := range tests {
		if got := matchControl(tt.utterance); got != tt.want {
			t.Errorf("matchControl(%q) = %v, want %v", tt.utterance, got, tt.want)
		}
	}
}
