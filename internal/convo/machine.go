// Package convo implements the conversation state machine: the central
// controller that consumes turns, routes them through the fixed control
// vocabulary, the correction normalizer, and the external interpreter, and
// drives the draft accumulator behind a confirmation gate.
package convo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/linevoxhq/linevox/internal/draft"
	"github.com/linevoxhq/linevox/internal/normalize"
	"github.com/linevoxhq/linevox/internal/training"
	"github.com/linevoxhq/linevox/pkg/interpreter"
	"github.com/linevoxhq/linevox/pkg/records"
)

// State is the machine's current mode.
type State int

const (
	// StateIdle means no draft, no pending action, not listening.
	StateIdle State = iota
	// StateListening means audio is being captured but no draft is open.
	StateListening
	// StateAccumulating means a draft record is open and receiving fields.
	StateAccumulating
	// StatePendingConfirmation means a pending action awaits an
	// affirmative or negative utterance.
	StatePendingConfirmation
	// StateTraining means all utterances route to the calibration trainer.
	StateTraining
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateAccumulating:
		return "accumulating"
	case StatePendingConfirmation:
		return "pending-confirmation"
	case StateTraining:
		return "training"
	default:
		return "unknown"
	}
}

// Message is one entry of the append-only conversation log.
type Message struct {
	// Role is "user" or "assistant".
	Role string

	// Content is the message text. Never mutated after creation.
	Content string
}

// PendingAction is a recognized command awaiting confirmation. At most one
// exists at a time; it is destroyed on confirmation (executed) or on a
// negative utterance (discarded).
type PendingAction struct {
	Kind       interpreter.Action
	TargetID   string
	Fields     records.Fields
	Confidence float64
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// WithRegistry replaces the default field registry.
func WithRegistry(reg *draft.Registry) Option {
	return func(m *Machine) { m.registry = reg }
}

// WithConfidenceThreshold sets the minimum interpreter confidence at which
// an intent may be executed.
func WithConfidenceThreshold(t float64) Option {
	return func(m *Machine) { m.confidenceThreshold = t }
}

// WithIDFamily sets the identifier family prefix for allocation.
func WithIDFamily(family string) Option {
	return func(m *Machine) { m.family = family }
}

// WithTrainingPhrases sets the calibration phrase list.
func WithTrainingPhrases(phrases []string) Option {
	return func(m *Machine) { m.trainingPhrases = phrases }
}

// WithConversationSink registers a callback invoked with a snapshot of the
// log after every change. Used to feed the persistence synchronizer.
func WithConversationSink(fn func([]Message)) Option {
	return func(m *Machine) { m.conversationSink = fn }
}

// WithPatternSink registers a callback invoked with a snapshot of the
// learned patterns after every new pattern.
func WithPatternSink(fn func([]normalize.Pattern)) Option {
	return func(m *Machine) { m.patternSink = fn }
}

// Machine is the conversation state machine. It is the single source of
// truth read inside asynchronous callbacks; all mutation happens under one
// mutex, and its state is never duplicated elsewhere.
type Machine struct {
	store  records.Store
	interp interpreter.Interpreter

	logger              *slog.Logger
	registry            *draft.Registry
	confidenceThreshold float64
	family              string
	trainingPhrases     []string
	conversationSink    func([]Message)
	patternSink         func([]normalize.Pattern)

	mu       sync.Mutex
	state    State
	draft    *draft.Draft
	pending  *PendingAction
	trainer  *training.Session
	patterns *normalize.PatternSet
	log      []Message
}

// New constructs a Machine in StateIdle.
func New(store records.Store, interp interpreter.Interpreter, opts ...Option) *Machine {
	m := &Machine{
		store:               store,
		interp:              interp,
		logger:              slog.Default(),
		registry:            draft.DefaultRegistry(),
		confidenceThreshold: 0.6,
		family:              "L",
		trainingPhrases:     defaultTrainingPhrases,
		patterns:            &normalize.PatternSet{},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// defaultTrainingPhrases covers the notation the recognizer most often
// mangles for this domain.
var defaultTrainingPhrases = []string{
	"add new line",
	"two by four",
	"three quarters",
	"twelve by twenty four",
	"enter data",
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Messages returns a copy of the conversation log.
func (m *Machine) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.log))
	copy(out, m.log)
	return out
}

// Restore seeds the conversation log and learned patterns from persisted
// state. Call before the first turn.
func (m *Machine) Restore(messages []Message, patterns []normalize.Pattern) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = append(m.log[:0], messages...)
	m.patterns.Add(patterns...)
}

// Notify appends an assistant-role message to the conversation log outside
// the turn flow. Asynchronous conditions the speaker must hear about — a
// recognition session dying, for instance — are surfaced here rather than
// thrown away in a log file.
func (m *Machine) Notify(content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendLocked(Message{Role: "assistant", Content: content})
}

// Patterns returns the active pattern set shared with the normalizer.
func (m *Machine) Patterns() *normalize.PatternSet {
	return m.patterns
}

// SetListening toggles between Idle and Listening. It only acts in those two
// states; an open draft, pending action, or training session keeps its state
// across listening changes.
func (m *Machine) SetListening(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case on && m.state == StateIdle:
		m.state = StateListening
	case !on && m.state == StateListening:
		m.state = StateIdle
	}
}

// HandleTurn consumes one silence-bounded turn of transcript text and
// returns the assistant's reply. All errors are surfaced in the reply (and
// the conversation log) rather than returned: the speaker is the one who
// has to act on them.
func (m *Machine) HandleTurn(ctx context.Context, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.appendLocked(Message{Role: "user", Content: raw})

	var reply string
	switch {
	case m.state == StateTraining:
		reply = m.handleTrainingLocked(raw)
	default:
		reply = m.handleCommandLocked(ctx, raw)
	}

	if reply != "" {
		m.appendLocked(Message{Role: "assistant", Content: reply})
	}
	return reply
}

// handleCommandLocked routes a non-training turn: fixed control phrases
// first, then the interpreter.
func (m *Machine) handleCommandLocked(ctx context.Context, raw string) string {
	switch matchControl(raw) {
	case controlNewLine:
		return m.beginDraftLocked(ctx)
	case controlEnter:
		return m.requestConfirmationLocked()
	case controlAffirm:
		return m.confirmLocked(ctx)
	case controlReject:
		return m.rejectLocked()
	case controlEdit:
		return m.editLocked()
	case controlBeginTraining:
		return m.beginTrainingLocked()
	case controlExitTraining:
		return "Not in calibration right now."
	}

	if m.state == StatePendingConfirmation {
		// The gate only accepts the fixed vocabulary. Anything else is
		// neither authorization nor cancellation.
		return "Please say yes to confirm or no to cancel."
	}

	return m.interpretLocked(ctx, raw)
}

// beginDraftLocked opens a new draft: allocate an identifier, create the row
// so incremental updates have a target, switch to Accumulating.
func (m *Machine) beginDraftLocked(ctx context.Context) string {
	if m.draft != nil {
		return fmt.Sprintf("Line %s is still open. Say enter to confirm it or cancel to discard it first.", m.draft.ID)
	}

	id, err := draft.Allocate(ctx, m.store, m.family)
	if err != nil {
		if errors.Is(err, draft.ErrAllocationExhausted) {
			m.logger.Error("identifier allocation exhausted", "family", m.family)
			return "Could not find a free line number. Please check the estimate and try again."
		}
		m.logger.Error("identifier allocation failed", "error", err)
		return fmt.Sprintf("Could not start a new line: %v", err)
	}

	if err := m.store.Create(ctx, id, nil); err != nil {
		m.logger.Error("create line failed", "id", id, "error", err)
		return fmt.Sprintf("Could not create line %s: %v", id, err)
	}

	m.draft = draft.New(id)
	m.state = StateAccumulating
	return fmt.Sprintf("Started line %s. Go ahead.", id)
}

// requestConfirmationLocked builds the draft summary and opens the
// confirmation gate. Nothing is committed here.
func (m *Machine) requestConfirmationLocked() string {
	if m.draft == nil {
		return "No line is open. Say add new line to start one."
	}
	if m.pending != nil {
		return "Please resolve the pending confirmation first."
	}

	m.pending = &PendingAction{
		Kind:     interpreter.ActionUpdate,
		TargetID: m.draft.ID,
		Fields:   m.draft.Fields(),
	}
	m.state = StatePendingConfirmation
	return m.draft.Summary(m.registry) + "\nCommit this line?"
}

// confirmLocked executes the pending action exactly once. On success, both
// the pending action and the draft are cleared. On failure, the pending
// action alone is discarded so the speaker is not stuck confirming an
// action that already failed.
func (m *Machine) confirmLocked(ctx context.Context) string {
	if m.pending == nil {
		return "Nothing to confirm."
	}

	pending := m.pending
	m.pending = nil

	if err := m.executeLocked(ctx, pending); err != nil {
		m.logger.Error("commit failed", "action", pending.Kind, "target", pending.TargetID, "error", err)
		m.state = m.fallbackStateLocked()
		return fmt.Sprintf("That failed: %v. The line data is unchanged.", err)
	}

	reply := fmt.Sprintf("Done. Line %s committed.", pending.TargetID)
	if pending.Kind == interpreter.ActionDelete {
		reply = fmt.Sprintf("Done. Line %s deleted.", pending.TargetID)
	}
	if m.draft != nil && m.draft.ID == pending.TargetID {
		m.draft = nil
	}
	m.state = m.fallbackStateLocked()
	return reply
}

// executeLocked performs the stored side effect of a pending action.
func (m *Machine) executeLocked(ctx context.Context, p *PendingAction) error {
	switch p.Kind {
	case interpreter.ActionCreate:
		return m.store.Create(ctx, p.TargetID, p.Fields)
	case interpreter.ActionUpdate:
		return m.store.Update(ctx, p.TargetID, p.Fields)
	case interpreter.ActionDelete:
		return m.store.Delete(ctx, p.TargetID)
	case interpreter.ActionCopy:
		src, err := m.store.Get(ctx, p.TargetID)
		if err != nil {
			return err
		}
		id, err := draft.Allocate(ctx, m.store, m.family)
		if err != nil {
			return err
		}
		fields := src.Fields.Clone()
		for k, v := range p.Fields {
			fields[k] = v
		}
		return m.store.Create(ctx, id, fields)
	default:
		return fmt.Errorf("convo: action %q is not executable", p.Kind)
	}
}

// rejectLocked discards only the pending action; draft data survives so the
// speaker can amend rather than restart.
func (m *Machine) rejectLocked() string {
	if m.pending == nil {
		if m.draft != nil {
			// Cancel while accumulating abandons the draft.
			id := m.draft.ID
			m.draft = nil
			m.state = m.fallbackStateLocked()
			return fmt.Sprintf("Abandoned line %s.", id)
		}
		return "Nothing to cancel."
	}

	m.pending = nil
	m.state = m.fallbackStateLocked()
	if m.draft != nil {
		return fmt.Sprintf("Okay, not committed. Line %s is still open for changes.", m.draft.ID)
	}
	return "Okay, cancelled."
}

// editLocked re-enters editing from the confirmation gate without naming a
// target field.
func (m *Machine) editLocked() string {
	if m.state != StatePendingConfirmation {
		if m.draft != nil {
			return fmt.Sprintf("Line %s is open. What should change?", m.draft.ID)
		}
		return "No line is open. Say add new line to start one."
	}
	m.pending = nil
	m.state = m.fallbackStateLocked()
	return "Back to editing. What should change?"
}

// beginTrainingLocked suspends command interpretation and routes all
// utterances to the calibration trainer.
func (m *Machine) beginTrainingLocked() string {
	if m.pending != nil {
		return "Please resolve the pending confirmation first."
	}

	sess, err := training.NewSession(m.trainingPhrases)
	if err != nil {
		m.logger.Error("start calibration failed", "error", err)
		return fmt.Sprintf("Could not start calibration: %v", err)
	}
	m.trainer = sess
	m.state = StateTraining
	return sess.Greeting()
}

// handleTrainingLocked routes one utterance through the calibration trainer.
// Only the exit phrases escape training mode.
func (m *Machine) handleTrainingLocked(raw string) string {
	if matchControl(raw) == controlExitTraining {
		m.trainer = nil
		m.state = m.fallbackStateLocked()
		return "Calibration stopped."
	}

	res := m.trainer.Submit(raw)
	if res.Matched {
		m.patterns.Add(res.Pattern)
		m.notifyPatternsLocked()
	}
	if res.Done {
		m.trainer = nil
		m.state = m.fallbackStateLocked()
	}
	return res.Prompt
}

// interpretLocked normalizes the utterance and dispatches it to the external
// interpreter, then applies the returned intent.
func (m *Machine) interpretLocked(ctx context.Context, raw string) string {
	normalized := normalize.Normalize(raw, m.patterns)

	items, err := m.store.List(ctx)
	if err != nil {
		m.logger.Error("list records failed", "error", err)
		items = nil
	}

	intent, err := m.interp.Interpret(ctx, interpreter.Request{
		Utterance:    normalized,
		Records:      items,
		Conversation: m.interpreterLogLocked(),
		Hints:        m.hintsLocked(),
	})
	if err != nil {
		m.logger.Error("interpreter failed", "error", err)
		return fmt.Sprintf("I could not process that: %v", err)
	}

	if intent.Action == interpreter.ActionUnknown || intent.Confidence < m.confidenceThreshold {
		m.logger.Info("low-confidence intent ignored",
			"action", intent.Action, "confidence", intent.Confidence)
		if intent.Message != "" {
			return fmt.Sprintf("I am not sure I got that: %s", intent.Message)
		}
		return "I am not sure I got that. Could you rephrase?"
	}

	return m.applyIntentLocked(ctx, intent)
}

// applyIntentLocked drives the accumulator or the confirmation gate with an
// above-threshold intent.
func (m *Machine) applyIntentLocked(ctx context.Context, intent interpreter.Intent) string {
	switch intent.Action {
	case interpreter.ActionConversation:
		return intent.Message

	case interpreter.ActionQuery:
		return m.queryLocked(ctx, intent)

	case interpreter.ActionUpdate:
		// A field merge into the open draft is pre-authorized; updates to
		// any other line go through the gate.
		if m.draft != nil && (intent.TargetID == "" || intent.TargetID == m.draft.ID) {
			return m.mergeDraftLocked(ctx, intent.Fields)
		}
		return m.stagePendingLocked(intent)

	case interpreter.ActionCreate, interpreter.ActionDelete, interpreter.ActionCopy:
		return m.stagePendingLocked(intent)

	default:
		return intent.Message
	}
}

// mergeDraftLocked folds fields into the open draft and mirrors the merge to
// storage. The storage update is at-least-once: replaying an idempotent
// field merge is safe.
func (m *Machine) mergeDraftLocked(ctx context.Context, fields records.Fields) string {
	merged, dropped := m.draft.Merge(m.registry, fields)
	if len(merged) == 0 {
		if len(dropped) > 0 {
			return fmt.Sprintf("I do not have a field called %s.", strings.Join(dropped, " or "))
		}
		return "I did not catch any field values."
	}

	if err := m.store.Update(ctx, m.draft.ID, merged); err != nil {
		m.logger.Error("incremental update failed", "id", m.draft.ID, "error", err)
		return fmt.Sprintf("Could not save that to line %s: %v", m.draft.ID, err)
	}

	return m.draft.Summary(m.registry)
}

// queryLocked reads one line and reports its fields.
func (m *Machine) queryLocked(ctx context.Context, intent interpreter.Intent) string {
	if intent.TargetID == "" {
		return intent.Message
	}
	item, err := m.store.Get(ctx, intent.TargetID)
	if errors.Is(err, records.ErrNotFound) {
		return fmt.Sprintf("There is no line %s.", intent.TargetID)
	}
	if err != nil {
		m.logger.Error("query failed", "id", intent.TargetID, "error", err)
		return fmt.Sprintf("Could not look up line %s: %v", intent.TargetID, err)
	}

	var parts []string
	for _, spec := range m.registry.Specs() {
		if v, ok := item.Fields[spec.Name]; ok {
			parts = append(parts, fmt.Sprintf("%s %s", spec.Label, v))
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("Line %s is empty.", item.ID)
	}
	return fmt.Sprintf("Line %s: %s.", item.ID, strings.Join(parts, ", "))
}

// stagePendingLocked opens the confirmation gate for a mutating intent.
// A second command cannot pile on while one is outstanding.
func (m *Machine) stagePendingLocked(intent interpreter.Intent) string {
	if m.pending != nil {
		return "Please resolve the pending confirmation first."
	}

	m.pending = &PendingAction{
		Kind:       intent.Action,
		TargetID:   intent.TargetID,
		Fields:     intent.Fields.Clone(),
		Confidence: intent.Confidence,
	}
	m.state = StatePendingConfirmation

	if intent.Message != "" {
		return intent.Message + " Confirm?"
	}
	return fmt.Sprintf("About to %s line %s. Confirm?", intent.Action, intent.TargetID)
}

// fallbackStateLocked is the state to return to after a gate or training
// session resolves: Accumulating if a draft is open, Idle otherwise.
func (m *Machine) fallbackStateLocked() State {
	if m.draft != nil {
		return StateAccumulating
	}
	return StateIdle
}

// interpreterLogLocked converts the log for the interpreter request.
func (m *Machine) interpreterLogLocked() []interpreter.Message {
	out := make([]interpreter.Message, len(m.log))
	for i, msg := range m.log {
		out[i] = interpreter.Message{Role: msg.Role, Content: msg.Content}
	}
	return out
}

// hintsLocked derives calibration hints from the learned patterns.
func (m *Machine) hintsLocked() []string {
	var out []string
	for _, p := range m.patterns.Patterns() {
		out = append(out, fmt.Sprintf("%q means %q", p.Spoken, p.Replacement()))
	}
	return out
}

func (m *Machine) appendLocked(msg Message) {
	m.log = append(m.log, msg)
	if m.conversationSink != nil {
		snapshot := make([]Message, len(m.log))
		copy(snapshot, m.log)
		m.conversationSink(snapshot)
	}
}

func (m *Machine) notifyPatternsLocked() {
	if m.patternSink != nil {
		m.patternSink(m.patterns.Patterns())
	}
}
