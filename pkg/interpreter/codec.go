package interpreter

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EncodePrompt renders a Request into the system and user messages sent to a
// chat-completion backend. Both backend implementations share this encoding
// so that switching providers does not change interpretation behavior.
func EncodePrompt(req Request) (system, user string) {
	var sys strings.Builder
	sys.WriteString("You convert construction-estimate dictation into JSON commands.\n")
	sys.WriteString(`Respond with a single JSON object: {"action": "create|update|delete|copy|query|conversation|unknown", "targetId": "...", "data": {field: value}, "message": "...", "confidence": 0.0-1.0}.` + "\n")
	sys.WriteString("Use \"unknown\" with low confidence when unsure. Never invent field values the speaker did not say.\n")
	if len(req.Hints) > 0 {
		sys.WriteString("Speaker-specific phrasing:\n")
		for _, h := range req.Hints {
			sys.WriteString("- " + h + "\n")
		}
	}

	var usr strings.Builder
	if len(req.Records) > 0 {
		usr.WriteString("Existing lines:\n")
		for _, r := range req.Records {
			payload, _ := json.Marshal(r.Fields)
			fmt.Fprintf(&usr, "%s: %s\n", r.ID, payload)
		}
	}
	fmt.Fprintf(&usr, "Utterance: %s", req.Utterance)
	return sys.String(), usr.String()
}

// DecodeIntent parses a backend's raw completion text into an Intent. It is
// tolerant of the usual model sloppiness: surrounding prose and markdown code
// fences are stripped before unmarshaling. Out-of-range confidence values are
// clamped, and an unrecognized action degrades to ActionUnknown rather than
// failing, so a malformed reply surfaces as a low-confidence notice instead
// of an error.
func DecodeIntent(raw string) (Intent, error) {
	payload := extractJSON(raw)
	if payload == "" {
		return Intent{}, fmt.Errorf("interpreter: no JSON object in response %q", truncate(raw, 120))
	}

	var intent Intent
	if err := json.Unmarshal([]byte(payload), &intent); err != nil {
		return Intent{}, fmt.Errorf("interpreter: decode response: %w", err)
	}

	intent.Action = Action(strings.ToLower(strings.TrimSpace(string(intent.Action))))
	if !intent.Action.Valid() {
		intent.Action = ActionUnknown
		intent.Confidence = 0
	}
	if intent.Confidence < 0 {
		intent.Confidence = 0
	}
	if intent.Confidence > 1 {
		intent.Confidence = 1
	}
	return intent, nil
}

// extractJSON returns the outermost {...} span of s, skipping code fences
// and any prose around it.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
