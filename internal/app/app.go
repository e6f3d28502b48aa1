// Package app wires all linevox subsystems into a running agent.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the wait-for-speech/listen cycle, and Shutdown
// tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithRecordsStore, WithMirrorStore, etc.). When an option is not provided,
// New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/linevoxhq/linevox/internal/config"
	"github.com/linevoxhq/linevox/internal/convo"
	"github.com/linevoxhq/linevox/internal/draft"
	"github.com/linevoxhq/linevox/internal/listen"
	"github.com/linevoxhq/linevox/internal/normalize"
	"github.com/linevoxhq/linevox/internal/observe"
	"github.com/linevoxhq/linevox/internal/persist"
	persistpg "github.com/linevoxhq/linevox/internal/persist/postgres"
	"github.com/linevoxhq/linevox/internal/vad"
	"github.com/linevoxhq/linevox/pkg/audio"
	"github.com/linevoxhq/linevox/pkg/interpreter"
	"github.com/linevoxhq/linevox/pkg/records"
	recordspg "github.com/linevoxhq/linevox/pkg/records/postgres"
	"github.com/linevoxhq/linevox/pkg/speech"
)

// turnTimeout bounds the handling of one turn, including the interpreter
// round trip and any storage writes.
const turnTimeout = 30 * time.Second

// keywordBoost is the recognition boost applied to domain vocabulary.
const keywordBoost = 1.5

// Providers holds one interface value per provider slot. Populated by main.go
// via the config registry.
type Providers struct {
	Interpreter interpreter.Interpreter
	Speech      speech.Provider
	Device      audio.Device
}

// App owns all subsystem lifetimes and runs the voice data-entry loop.
type App struct {
	cfg       *config.Config
	providers *Providers
	logger    *slog.Logger
	metrics   *observe.Metrics

	// Subsystems — initialised in New, torn down in Shutdown.
	registry *draft.Registry
	store    records.Store
	mirror   persist.Store
	syncer   *persist.Syncer
	machine  *convo.Machine
	detector *vad.Detector
	listener *listen.Listener

	// fatal receives session-fatal listening errors from the turn loop.
	fatal chan error

	onPreview func(string)
	onReply   func(string)

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithMetrics injects a Metrics instance instead of using the global default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithRecordsStore injects a line-item store instead of creating one from
// config.
func WithRecordsStore(s records.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMirrorStore injects a persistence mirror instead of creating one from
// config.
func WithMirrorStore(s persist.Store) Option {
	return func(a *App) { a.mirror = s }
}

// WithPreview registers a live transcript preview callback. It receives the
// running turn text on every transcript event and "" when a turn closes.
func WithPreview(fn func(string)) Option {
	return func(a *App) { a.onPreview = fn }
}

// WithReplySink registers a callback for every non-empty assistant reply.
func WithReplySink(fn func(string)) Option {
	return func(a *App) { a.onReply = fn }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Interpreter == nil || providers.Speech == nil || providers.Device == nil {
		return nil, fmt.Errorf("app: interpreter, speech, and device providers are all required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
		logger:    slog.Default(),
		fatal:     make(chan error, 1),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	reg, err := fieldRegistry(cfg.Fields)
	if err != nil {
		return nil, fmt.Errorf("app: build field registry: %w", err)
	}
	a.registry = reg

	if err := a.initRecords(ctx); err != nil {
		return nil, fmt.Errorf("app: init records: %w", err)
	}
	if err := a.initMirror(ctx); err != nil {
		return nil, fmt.Errorf("app: init persistence: %w", err)
	}

	a.initMachine()

	if err := a.restore(ctx); err != nil {
		// Best effort: an unreadable mirror must not block startup.
		a.logger.Warn("restore persisted state failed", "error", err)
	}

	detector, err := vad.New(vad.Config{
		EnergyThreshold:  cfg.VAD.EnergyThreshold,
		ActivationFrames: cfg.VAD.ActivationFrames,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: init vad: %w", err)
	}
	a.detector = detector

	listener, err := listen.New(providers.Speech, providers.Device, listen.Config{
		SilenceDelay: cfg.Turn.SilenceDelay.Std(),
		Stream: speech.StreamConfig{
			SampleRate: cfg.Turn.SampleRate,
			Channels:   1,
			Language:   cfg.Turn.Language,
			Keywords:   a.keywords(),
		},
	},
		listen.WithLogger(a.logger),
		listen.WithPreview(a.onPreview),
		listen.WithTurnSink(a.handleTurn),
		listen.WithFatalSink(a.handleFatal),
	)
	if err != nil {
		return nil, fmt.Errorf("app: init listener: %w", err)
	}
	a.listener = listener

	return a, nil
}

// initRecords sets up the PostgreSQL line-item store or uses an injected one.
func (a *App) initRecords(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	dsn := a.cfg.Records.PostgresDSN
	if dsn == "" {
		return fmt.Errorf("records.postgres_dsn is required when a store is not injected")
	}

	store, err := recordspg.NewStore(ctx, dsn)
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	return nil
}

// initMirror sets up the persistence mirror. An empty DSN without an injected
// store means state lives in memory only, which is a supported mode.
func (a *App) initMirror(ctx context.Context) error {
	if a.mirror == nil {
		dsn := a.cfg.Persistence.PostgresDSN
		if dsn == "" {
			a.logger.Info("no persistence DSN configured, state is in-memory only")
			return nil
		}
		store, err := persistpg.NewStore(ctx, dsn)
		if err != nil {
			return err
		}
		a.mirror = store
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
	}

	a.syncer = persist.NewSyncer(a.mirror, a.cfg.Persistence.DebounceDelay.Std(), a.logger)
	return nil
}

// initMachine builds the conversation state machine with its sinks pointed at
// the synchronizer.
func (a *App) initMachine() {
	opts := []convo.Option{
		convo.WithLogger(a.logger),
		convo.WithRegistry(a.registry),
		convo.WithConfidenceThreshold(a.cfg.Turn.ConfidenceThreshold),
		convo.WithIDFamily(a.cfg.Records.IDFamily),
	}
	if len(a.cfg.Training.Phrases) > 0 {
		opts = append(opts, convo.WithTrainingPhrases(a.cfg.Training.Phrases))
	}
	if a.syncer != nil {
		opts = append(opts,
			convo.WithConversationSink(a.syncer.ConversationChanged),
			convo.WithPatternSink(func(patterns []normalize.Pattern) {
				a.syncer.PatternsChanged(patterns)
				a.metrics.PatternsLearned.Add(context.Background(), 1)
			}),
		)
	} else {
		opts = append(opts, convo.WithPatternSink(func([]normalize.Pattern) {
			a.metrics.PatternsLearned.Add(context.Background(), 1)
		}))
	}

	a.machine = convo.New(a.store, a.providers.Interpreter, opts...)
}

// restore seeds the machine with the persisted conversation log and learned
// patterns.
func (a *App) restore(ctx context.Context) error {
	if a.mirror == nil {
		return nil
	}

	messages, err := a.mirror.LoadConversation(ctx)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	patterns, err := a.mirror.LoadPatterns(ctx)
	if err != nil {
		return fmt.Errorf("load patterns: %w", err)
	}

	a.machine.Restore(messages, patterns)
	a.logger.Info("restored persisted state",
		"messages", len(messages), "patterns", len(patterns))
	return nil
}

// keywords builds the recognition vocabulary hints: field labels and the
// calibration phrase list are the terms the recognizer most often mangles.
func (a *App) keywords() []speech.KeywordBoost {
	var out []speech.KeywordBoost
	for _, spec := range a.registry.Specs() {
		out = append(out, speech.KeywordBoost{Keyword: spec.Label, Boost: keywordBoost})
	}
	for _, phrase := range a.cfg.Training.Phrases {
		out = append(out, speech.KeywordBoost{Keyword: phrase, Boost: keywordBoost})
	}
	return out
}

// Run executes the main cycle: wait for speech onset with the detector, then
// hand the device to the listener. Run blocks until ctx is cancelled, the
// device becomes unusable, or the recognition session fails fatally. A fatal
// session error is surfaced in the conversation log and ends Run — resuming
// after one is an explicit restart, never something the agent does on its
// own.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("agent running",
		"fields", len(a.registry.Specs()),
		"confidence_threshold", a.cfg.Turn.ConfidenceThreshold)

	for {
		if err := a.detector.Detect(ctx, a.providers.Device); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("app: wait for speech onset: %w", err)
		}
		a.metrics.VADActivations.Add(ctx, 1)

		a.machine.SetListening(true)
		if err := a.listener.Start(ctx); err != nil {
			a.machine.SetListening(false)
			return fmt.Errorf("app: start listening: %w", err)
		}
		a.metrics.ActiveListeners.Add(ctx, 1)

		select {
		case <-ctx.Done():
			a.listener.Stop()
			a.metrics.ActiveListeners.Add(context.Background(), -1)
			a.machine.SetListening(false)
			return ctx.Err()

		case err := <-a.fatal:
			a.metrics.ActiveListeners.Add(ctx, -1)
			a.machine.SetListening(false)

			category := errorCategory(err)
			a.metrics.RecordSessionError(ctx, category)
			a.logger.Warn("listening session failed", "category", category, "error", err)

			// The speaker hears about the failure through the conversation,
			// like any other error.
			notice := fatalNotice(category)
			a.machine.Notify(notice)
			if a.onReply != nil {
				a.onReply(notice)
			}
			return fmt.Errorf("app: listening session failed: %w", err)
		}
	}
}

// fatalNotice renders the user-facing message for a dead listening session.
func fatalNotice(category string) string {
	switch category {
	case "permission":
		return "Listening stopped: microphone permission was denied. Grant access and restart linevox."
	case "device":
		return "Listening stopped: the audio device is unavailable. Reconnect it and restart linevox."
	case "network":
		return "Listening stopped: the recognition service is unreachable. Check the connection and restart linevox."
	default:
		return "Listening stopped after an unexpected recognition failure. Restart linevox to continue."
	}
}

// handleTurn feeds one completed turn through the state machine. Called from
// the listener's event loop goroutine.
func (a *App) handleTurn(turn string) {
	ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
	defer cancel()

	start := time.Now()
	reply := a.machine.HandleTurn(ctx, turn)
	a.metrics.Turns.Add(ctx, 1)
	a.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())

	if reply == "" {
		return
	}
	a.logger.Info("turn handled", "state", a.machine.State().String(), "reply", reply)
	if a.onReply != nil {
		a.onReply(reply)
	}
}

// handleFatal forwards a session-fatal error to the Run loop. The buffered
// channel never blocks the listener's teardown path.
func (a *App) handleFatal(err error) {
	select {
	case a.fatal <- err:
	default:
	}
}

// Shutdown tears down all subsystems in order: the listener first so no new
// turns arrive, then the synchronizer so pending state flushes, then the
// stores. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.logger.Info("shutting down", "closers", len(a.closers))

		a.listener.Stop()
		if a.syncer != nil {
			a.syncer.Close()
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.logger.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.logger.Warn("closer error", "index", i, "error", err)
			}
		}

		a.logger.Info("shutdown complete")
	})
	return shutdownErr
}

// errorCategory names the failure class for the session-error metric.
func errorCategory(err error) string {
	switch {
	case errors.Is(err, speech.ErrNetworkUnavailable):
		return "network"
	case errors.Is(err, speech.ErrPermissionDenied):
		return "permission"
	case errors.Is(err, speech.ErrDeviceUnavailable):
		return "device"
	default:
		return "unknown"
	}
}

// fieldRegistry converts the configured field list into a registry. An empty
// list selects the built-in lumber schema.
func fieldRegistry(fields []config.FieldConfig) (*draft.Registry, error) {
	if len(fields) == 0 {
		return draft.DefaultRegistry(), nil
	}

	specs := make([]draft.FieldSpec, 0, len(fields))
	for _, f := range fields {
		kind, err := fieldKind(f.Kind)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		label := f.Label
		if label == "" {
			label = f.Name
		}
		specs = append(specs, draft.FieldSpec{
			Name:     f.Name,
			Label:    label,
			Kind:     kind,
			Required: f.Required,
		})
	}
	return draft.NewRegistry(specs)
}

// fieldKind maps a config kind string to the registry kind.
func fieldKind(kind string) (draft.Kind, error) {
	switch kind {
	case "", "text":
		return draft.KindText, nil
	case "dimension":
		return draft.KindDimension, nil
	case "number":
		return draft.KindNumber, nil
	case "money":
		return draft.KindMoney, nil
	default:
		return 0, fmt.Errorf("unknown field kind %q", kind)
	}
}
