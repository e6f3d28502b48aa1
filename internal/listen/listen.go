// Package listen implements the turn segmentation loop: it wraps a streaming
// recognition session and converts its continuous transcript events into
// discrete, silence-terminated turns.
//
// One event-loop goroutine owns all loop state. Transcript events reset a
// silence timer (cancel-and-reschedule); when the timer fires with no
// intervening speech, the accumulated final fragments become one turn. The
// loop survives transient recognizer termination by restarting the session,
// but an explicit Stop — or a session-fatal error from the taxonomy — tears
// everything down in a fixed order: silence timer, capture, listening flag.
package listen

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/linevoxhq/linevox/pkg/audio"
	"github.com/linevoxhq/linevox/pkg/speech"
)

// Config holds the loop's tuning and stream parameters.
type Config struct {
	// SilenceDelay is the quiet period after the last transcript event that
	// closes a turn.
	SilenceDelay time.Duration

	// Stream is the recognition stream configuration.
	Stream speech.StreamConfig
}

// Option configures a Listener.
type Option func(*Listener)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(ln *Listener) { ln.logger = l }
}

// WithPreview registers the live-preview callback. It receives the running
// text on every transcript event and an empty string when a turn closes.
// Called from the event loop goroutine; it must not block.
func WithPreview(fn func(string)) Option {
	return func(ln *Listener) { ln.onPreview = fn }
}

// WithTurnSink registers the completed-turn callback.
// Called from the event loop goroutine.
func WithTurnSink(fn func(string)) Option {
	return func(ln *Listener) { ln.onTurn = fn }
}

// WithFatalSink registers the callback for session-fatal errors. After it is
// called, the listener is stopped and needs an explicit new Start.
func WithFatalSink(fn func(error)) Option {
	return func(ln *Listener) { ln.onFatal = fn }
}

// Listener is the turn segmentation loop. A single instance may be started
// and stopped repeatedly, but only one loop runs at a time.
type Listener struct {
	provider speech.Provider
	device   audio.Device
	cfg      Config
	logger   *slog.Logger

	onPreview func(string)
	onTurn    func(string)
	onFatal   func(error)

	// listening is the re-entrancy guard. It is read at call time inside
	// every asynchronous path, never captured at registration time.
	listening atomic.Bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	session speech.Session
}

// New constructs a Listener.
func New(provider speech.Provider, device audio.Device, cfg Config, opts ...Option) (*Listener, error) {
	if cfg.SilenceDelay <= 0 {
		return nil, fmt.Errorf("listen: silence delay must be positive")
	}
	ln := &Listener{
		provider: provider,
		device:   device,
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(ln)
	}
	return ln, nil
}

// Active reports whether the loop is currently listening.
func (l *Listener) Active() bool {
	return l.listening.Load()
}

// Start begins a listening session. Starting while one is already active is
// a no-op: the atomic flag, not any external state, makes that decision.
func (l *Listener) Start(ctx context.Context) error {
	// The mutex is held for the whole startup so a concurrent Stop cannot
	// observe the listening flag set before the cancel function is
	// registered: Stop blocks until the session is fully started, then
	// tears it down.
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.listening.CompareAndSwap(false, true) {
		return nil
	}

	capture, err := l.device.Acquire(ctx)
	if err != nil {
		l.listening.Store(false)
		return fmt.Errorf("listen: acquire device: %w", err)
	}

	session, err := l.provider.StartStream(ctx, l.cfg.Stream)
	if err != nil {
		capture.Close()
		l.listening.Store(false)
		return fmt.Errorf("listen: start recognition: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	l.cancel = cancel
	l.done = done
	l.session = session

	go l.run(runCtx, capture, done)
	go l.pump(runCtx, capture)
	return nil
}

// Stop ends the session and waits for the loop to finish its ordered
// teardown. Safe to call when not listening.
func (l *Listener) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// currentSession returns the session the pump should feed. It changes when
// the loop restarts a dead recognizer.
func (l *Listener) currentSession() speech.Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

func (l *Listener) setSession(s speech.Session) {
	l.mu.Lock()
	l.session = s
	l.mu.Unlock()
}

// pump forwards captured audio into whichever session is current. Send
// errors during a session swap are expected and dropped.
func (l *Listener) pump(ctx context.Context, capture audio.Capture) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-capture.Frames():
			if !ok {
				return
			}
			if s := l.currentSession(); s != nil {
				if err := s.SendAudio(frame.PCM); err != nil {
					l.logger.Debug("audio send dropped", "error", err)
				}
			}
		}
	}
}

// run is the event loop. It is the only goroutine that touches the turn
// buffer and the silence timer.
func (l *Listener) run(ctx context.Context, capture audio.Capture, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(l.cfg.SilenceDelay)
	stopTimer(timer)

	var turn []string
	session := l.currentSession()

	for {
		select {
		case <-ctx.Done():
			l.teardown(timer, capture, session)
			return

		case <-timer.C:
			if len(turn) > 0 {
				text := strings.Join(turn, " ")
				turn = nil
				l.preview("")
				if l.onTurn != nil {
					l.onTurn(text)
				}
			}

		case tr, ok := <-session.Interims():
			if !ok {
				session = l.survive(ctx, timer, capture, session)
				if session == nil {
					return
				}
				continue
			}
			l.preview(joinPreview(turn, tr.Text))
			resetTimer(timer, l.cfg.SilenceDelay)

		case tr, ok := <-session.Finals():
			if !ok {
				session = l.survive(ctx, timer, capture, session)
				if session == nil {
					return
				}
				continue
			}
			turn = append(turn, tr.Text)
			l.preview(joinPreview(turn, ""))
			resetTimer(timer, l.cfg.SilenceDelay)
		}
	}
}

// survive handles an unexpectedly ended session: restart while the loop is
// still supposed to be listening, unless the failure is session-fatal. A nil
// return means the loop is over and teardown already ran.
func (l *Listener) survive(ctx context.Context, timer *time.Timer, capture audio.Capture, dead speech.Session) speech.Session {
	err := dead.Err()
	switch speech.Categorize(err) {
	case speech.CategoryRecoverable:
		l.logger.Debug("recognizer reported no speech, restarting")
	case speech.CategoryFatal:
		l.logger.Warn("recognition session failed", "error", err)
		l.teardown(timer, capture, dead)
		if l.onFatal != nil {
			l.onFatal(err)
		}
		return nil
	default:
		if err != nil {
			l.logger.Warn("recognizer stopped unexpectedly, restarting", "error", err)
		} else {
			l.logger.Debug("recognizer stream ended, restarting")
		}
	}

	next, serr := l.provider.StartStream(ctx, l.cfg.Stream)
	if serr != nil {
		serr = fmt.Errorf("listen: restart recognition: %w", serr)
		l.logger.Error("recognizer restart failed", "error", serr)
		l.teardown(timer, capture, dead)
		if l.onFatal != nil {
			l.onFatal(serr)
		}
		return nil
	}
	l.setSession(next)
	return next
}

// teardown runs the ordered shutdown: silence timer first, then the audio
// capture, then the recognition session, and the listening flag last — so a
// late callback observing the flag can never see a half-dead loop that it
// might try to restart.
func (l *Listener) teardown(timer *time.Timer, capture audio.Capture, session speech.Session) {
	stopTimer(timer)
	capture.Close()
	if session != nil {
		session.Close()
	}
	l.preview("")
	l.listening.Store(false)
}

func (l *Listener) preview(text string) {
	if l.onPreview != nil {
		l.onPreview(text)
	}
}

// joinPreview renders the running text: accumulated finals plus the current
// interim fragment.
func joinPreview(turn []string, interim string) string {
	parts := turn
	if interim != "" {
		parts = append(append([]string(nil), turn...), interim)
	}
	return strings.Join(parts, " ")
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	stopTimer(t)
	t.Reset(d)
}
