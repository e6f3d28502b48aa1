package app_test

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/linevoxhq/linevox/internal/app"
	"github.com/linevoxhq/linevox/internal/config"
	"github.com/linevoxhq/linevox/internal/convo"
	"github.com/linevoxhq/linevox/internal/normalize"
	"github.com/linevoxhq/linevox/pkg/audio"
	audiomock "github.com/linevoxhq/linevox/pkg/audio/mock"
	"github.com/linevoxhq/linevox/pkg/interpreter"
	interpretermock "github.com/linevoxhq/linevox/pkg/interpreter/mock"
	recordsmock "github.com/linevoxhq/linevox/pkg/records/mock"
	"github.com/linevoxhq/linevox/pkg/speech"
	speechmock "github.com/linevoxhq/linevox/pkg/speech/mock"
)

// testConfig returns a config with delays short enough for tests.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.VAD.ActivationFrames = 2
	cfg.Turn.SilenceDelay = config.Duration(50 * time.Millisecond)
	cfg.Persistence.DebounceDelay = config.Duration(20 * time.Millisecond)
	return cfg
}

// memMirror is an in-memory persist.Store.
type memMirror struct {
	mu       sync.Mutex
	messages []convo.Message
	patterns []normalize.Pattern
}

func (m *memMirror) LoadConversation(ctx context.Context) ([]convo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]convo.Message(nil), m.messages...), nil
}

func (m *memMirror) SaveConversation(ctx context.Context, messages []convo.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append([]convo.Message(nil), messages...)
	return nil
}

func (m *memMirror) LoadPatterns(ctx context.Context) ([]normalize.Pattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]normalize.Pattern(nil), m.patterns...), nil
}

func (m *memMirror) SavePatterns(ctx context.Context, patterns []normalize.Pattern) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns = append([]normalize.Pattern(nil), patterns...)
	return nil
}

func (m *memMirror) conversation() []convo.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]convo.Message(nil), m.messages...)
}

// pcmFrame builds a little-endian 16-bit PCM frame with a constant amplitude
// in [0, 1).
func pcmFrame(amplitude float64, samples int) audio.Frame {
	pcm := make([]byte, samples*2)
	value := int16(amplitude * 32767)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(value))
	}
	return audio.Frame{PCM: pcm, SampleRate: 16000, Channels: 1}
}

// waitFor polls cond until it returns true or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

type testHarness struct {
	app     *app.App
	device  *audiomock.Device
	speech  *speechmock.Provider
	interp  *interpretermock.Interpreter
	records *recordsmock.Store
	mirror  *memMirror
	errCh   chan error
	cancel  context.CancelFunc
}

// startApp wires an App from mocks and runs it in the background.
func startApp(t *testing.T, cfg *config.Config) *testHarness {
	t.Helper()

	h := &testHarness{
		device:  &audiomock.Device{},
		speech:  &speechmock.Provider{},
		interp:  &interpretermock.Interpreter{},
		records: &recordsmock.Store{},
		mirror:  &memMirror{},
		errCh:   make(chan error, 1),
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	t.Cleanup(cancel)

	a, err := app.New(ctx, cfg, &app.Providers{
		Interpreter: h.interp,
		Speech:      h.speech,
		Device:      h.device,
	},
		app.WithLogger(slog.Default()),
		app.WithRecordsStore(h.records),
		app.WithMirrorStore(h.mirror),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.app = a
	t.Cleanup(func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
		defer shutdownCancel()
		_ = a.Shutdown(shutdownCtx)
	})

	go func() { h.errCh <- a.Run(ctx) }()
	return h
}

// triggerVAD pushes enough loud frames into the detector's capture to fire
// speech onset, then waits for the listener to take over the device.
func (h *testHarness) triggerVAD(t *testing.T, vadCapture int) {
	t.Helper()
	waitFor(t, func() bool { return len(h.device.Captures()) > vadCapture },
		"detector never acquired the device")
	capture := h.device.Captures()[vadCapture]
	for i := 0; i < 3; i++ {
		capture.Push(pcmFrame(0.5, 160))
	}
	waitFor(t, func() bool { return len(h.device.Captures()) > vadCapture+1 },
		"listener never acquired the device after speech onset")
}

func TestNew_RequiresProviders(t *testing.T) {
	t.Parallel()
	_, err := app.New(context.Background(), testConfig(), &app.Providers{})
	if err == nil {
		t.Fatal("New accepted empty providers")
	}
}

func TestNew_RequiresRecordsStoreOrDSN(t *testing.T) {
	t.Parallel()
	_, err := app.New(context.Background(), testConfig(), &app.Providers{
		Interpreter: &interpretermock.Interpreter{},
		Speech:      &speechmock.Provider{},
		Device:      &audiomock.Device{},
	})
	if err == nil {
		t.Fatal("New accepted a config with no records store and no DSN")
	}
}

func TestNew_RejectsUnknownFieldKind(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Fields = []config.FieldConfig{{Name: "size", Kind: "volume"}}
	_, err := app.New(context.Background(), cfg, &app.Providers{
		Interpreter: &interpretermock.Interpreter{},
		Speech:      &speechmock.Provider{},
		Device:      &audiomock.Device{},
	}, app.WithRecordsStore(&recordsmock.Store{}))
	if err == nil {
		t.Fatal("New accepted an unknown field kind")
	}
}

func TestApp_FullCycle(t *testing.T) {
	t.Parallel()
	h := startApp(t, testConfig())

	h.triggerVAD(t, 0)

	// The listener's recognition session is the first stream started.
	sess := h.speech.Session(0)
	if sess == nil {
		t.Fatal("no recognition session started")
	}
	sess.EmitFinal("add new line")

	// The control phrase opens a draft: one create against the store.
	waitFor(t, func() bool { return len(h.records.CallsFor("create")) == 1 },
		"turn never reached the state machine")

	// The conversation mirror picks up the turn after the debounce delay.
	waitFor(t, func() bool { return len(h.mirror.conversation()) >= 2 },
		"conversation was never mirrored to the store")

	h.cancel()
	if err := <-h.errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
}

func TestApp_FatalErrorStopsRunWithNotice(t *testing.T) {
	t.Parallel()
	h := startApp(t, testConfig())

	h.triggerVAD(t, 0)
	h.speech.Session(0).Fail(speech.ErrNetworkUnavailable)

	// Run ends: resuming after a fatal session error is an explicit restart.
	select {
	case err := <-h.errCh:
		if !errors.Is(err, speech.ErrNetworkUnavailable) {
			t.Errorf("Run = %v, want wrapped ErrNetworkUnavailable", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run kept going after a fatal session error")
	}

	// The speaker is told through the conversation log, not just slog.
	waitFor(t, func() bool {
		for _, msg := range h.mirror.conversation() {
			if msg.Role == "assistant" && strings.Contains(msg.Content, "Listening stopped") {
				return true
			}
		}
		return false
	}, "no assistant notice reached the conversation log after the fatal error")

	// The device is released and no replacement session was started.
	waitFor(t, func() bool { return !h.device.Busy() },
		"device still held after the fatal error")
	if n := len(h.speech.Sessions()); n != 1 {
		t.Errorf("recognition sessions = %d, want 1 (no automatic restart)", n)
	}
}

func TestApp_RestoresPersistedState(t *testing.T) {
	t.Parallel()
	cfg := testConfig()

	mirror := &memMirror{
		messages: []convo.Message{
			{Role: "user", Content: "add new line"},
			{Role: "assistant", Content: "Started line L1. Go ahead."},
		},
		patterns: []normalize.Pattern{
			{Spoken: "too by four", Command: "two by four"},
		},
	}

	h := &testHarness{
		device:  &audiomock.Device{},
		speech:  &speechmock.Provider{},
		interp:  &interpretermock.Interpreter{},
		records: &recordsmock.Store{},
		mirror:  mirror,
		errCh:   make(chan error, 1),
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, &app.Providers{
		Interpreter: h.interp,
		Speech:      h.speech,
		Device:      h.device,
	},
		app.WithRecordsStore(h.records),
		app.WithMirrorStore(mirror),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.app = a
	go func() { h.errCh <- a.Run(ctx) }()

	h.triggerVAD(t, 0)

	// A free-form utterance goes to the interpreter with the restored log and
	// the learned pattern applied.
	h.interp.Reply(interpreter.Intent{
		Action:     interpreter.ActionConversation,
		Message:    "Noted.",
		Confidence: 0.95,
	})
	h.speech.Session(0).EmitFinal("too by four boards please")

	waitFor(t, func() bool { return len(h.interp.Requests()) > 0 },
		"interpreter was never called")

	req, _ := h.interp.LastRequest()
	if len(req.Conversation) < 3 {
		t.Errorf("conversation length = %d, want restored log plus new turn", len(req.Conversation))
	}
	if req.Utterance != "two by four boards please" {
		t.Errorf("utterance = %q, want learned pattern applied", req.Utterance)
	}

	cancel()
	<-h.errCh
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
	defer shutdownCancel()
	_ = a.Shutdown(shutdownCtx)
}

func TestApp_ShutdownIsIdempotent(t *testing.T) {
	t.Parallel()
	h := startApp(t, testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.app.Shutdown(ctx); err != nil {
		t.Errorf("first Shutdown: %v", err)
	}
	if err := h.app.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}
