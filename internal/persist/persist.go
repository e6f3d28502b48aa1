// Package persist mirrors the conversation log and learned speech patterns
// to durable storage.
//
// Saves are best-effort and debounced: each changed collection waits a fixed
// quiet delay after its last change before writing, on its own timer, so a
// burst of turns costs one write instead of one per event. A failed save is
// logged and swallowed — persistence is a mirror of in-memory state and must
// never interrupt the interactive flow.
package persist

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/linevoxhq/linevox/internal/convo"
	"github.com/linevoxhq/linevox/internal/normalize"
)

// Store is the durable backend for conversation and pattern mirrors.
type Store interface {
	LoadConversation(ctx context.Context) ([]convo.Message, error)
	SaveConversation(ctx context.Context, messages []convo.Message) error
	LoadPatterns(ctx context.Context) ([]normalize.Pattern, error)
	SavePatterns(ctx context.Context, patterns []normalize.Pattern) error
}

// saveTimeout bounds each background write.
const saveTimeout = 10 * time.Second

// Syncer debounces writes to a Store. Conversation and pattern saves run on
// independent timers: a chatty conversation does not force pattern rewrites
// and vice versa.
type Syncer struct {
	store  Store
	delay  time.Duration
	logger *slog.Logger

	mu          sync.Mutex
	closed      bool
	convTimer   *time.Timer
	patTimer    *time.Timer
	pendingConv []convo.Message
	pendingPat  []normalize.Pattern
}

// NewSyncer constructs a Syncer with the given debounce delay. A nil logger
// falls back to slog.Default.
func NewSyncer(store Store, delay time.Duration, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{store: store, delay: delay, logger: logger}
}

// ConversationChanged records the latest conversation snapshot and
// reschedules its save timer.
func (s *Syncer) ConversationChanged(messages []convo.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pendingConv = messages
	if s.convTimer != nil {
		s.convTimer.Stop()
	}
	s.convTimer = time.AfterFunc(s.delay, s.flushConversation)
}

// PatternsChanged records the latest pattern snapshot and reschedules its
// save timer.
func (s *Syncer) PatternsChanged(patterns []normalize.Pattern) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pendingPat = patterns
	if s.patTimer != nil {
		s.patTimer.Stop()
	}
	s.patTimer = time.AfterFunc(s.delay, s.flushPatterns)
}

func (s *Syncer) flushConversation() {
	s.mu.Lock()
	messages := s.pendingConv
	s.pendingConv = nil
	s.mu.Unlock()
	if messages == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := s.store.SaveConversation(ctx, messages); err != nil {
		s.logger.Warn("conversation save failed", "messages", len(messages), "error", err)
	}
}

func (s *Syncer) flushPatterns() {
	s.mu.Lock()
	patterns := s.pendingPat
	s.pendingPat = nil
	s.mu.Unlock()
	if patterns == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := s.store.SavePatterns(ctx, patterns); err != nil {
		s.logger.Warn("pattern save failed", "patterns", len(patterns), "error", err)
	}
}

// Flush writes any pending snapshots immediately, bypassing the debounce.
func (s *Syncer) Flush() {
	s.mu.Lock()
	if s.convTimer != nil {
		s.convTimer.Stop()
	}
	if s.patTimer != nil {
		s.patTimer.Stop()
	}
	s.mu.Unlock()

	s.flushConversation()
	s.flushPatterns()
}

// Close stops the timers and writes whatever is still pending. The Syncer
// accepts no further changes afterwards.
func (s *Syncer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.Flush()
}
