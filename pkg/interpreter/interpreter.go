// Package interpreter defines the contract with the external natural-language
// service that converts a normalized utterance into a structured intent.
//
// The conversation controller never executes an intent whose Confidence is
// below its configured threshold or whose Action is ActionUnknown; those are
// surfaced as conversational notices instead.
package interpreter

import (
	"context"

	"github.com/linevoxhq/linevox/pkg/records"
)

// Action is the structured operation an interpreted utterance asks for.
type Action string

const (
	ActionCreate       Action = "create"
	ActionUpdate       Action = "update"
	ActionDelete       Action = "delete"
	ActionCopy         Action = "copy"
	ActionQuery        Action = "query"
	ActionConversation Action = "conversation"
	ActionUnknown      Action = "unknown"
)

// Valid reports whether a is one of the defined actions.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionCopy,
		ActionQuery, ActionConversation, ActionUnknown:
		return true
	}
	return false
}

// Mutates reports whether the action changes stored records. Mutating
// actions pass through the confirmation gate, except for field merges into
// an open draft, which are pre-authorized by the accumulating state.
func (a Action) Mutates() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionCopy:
		return true
	}
	return false
}

// Message is one entry of the conversation log as sent to the interpreter.
// Role is "user" or "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Intent is the interpreter's structured response.
type Intent struct {
	// Action names the requested operation.
	Action Action `json:"action"`

	// TargetID is the line identifier the action refers to, when one was
	// named or implied.
	TargetID string `json:"targetId,omitempty"`

	// Fields holds the partial field values extracted from the utterance.
	Fields records.Fields `json:"data,omitempty"`

	// Message is the interpreter's conversational reply to the user.
	Message string `json:"message"`

	// Confidence is the interpreter's self-reported certainty in [0, 1].
	Confidence float64 `json:"confidence"`
}

// Request carries everything the interpreter needs for one utterance.
type Request struct {
	// Utterance is the normalized turn text.
	Utterance string

	// Records is the current set of stored line items, for reference
	// resolution ("copy the last line", "delete L3").
	Records []records.LineItem

	// Conversation is the ordered message log so far.
	Conversation []Message

	// Hints are speaker-specific correction notes derived from learned
	// speech patterns, e.g. `"to buy for" means "2x4"`.
	Hints []string
}

// Interpreter converts a normalized utterance into a structured intent.
type Interpreter interface {
	Interpret(ctx context.Context, req Request) (Intent, error)
}
