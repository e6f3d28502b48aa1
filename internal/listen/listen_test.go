package listen

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	audiomock "github.com/linevoxhq/linevox/pkg/audio/mock"
	"github.com/linevoxhq/linevox/pkg/speech"
	speechmock "github.com/linevoxhq/linevox/pkg/speech/mock"
)

// turnRecorder collects turns and previews safely across goroutines.
type turnRecorder struct {
	mu       sync.Mutex
	turns    []string
	previews []string
	turnCh   chan string
	fatalCh  chan error
}

func newTurnRecorder() *turnRecorder {
	return &turnRecorder{
		turnCh:  make(chan string, 16),
		fatalCh: make(chan error, 16),
	}
}

func (r *turnRecorder) onTurn(text string) {
	r.mu.Lock()
	r.turns = append(r.turns, text)
	r.mu.Unlock()
	r.turnCh <- text
}

func (r *turnRecorder) onPreview(text string) {
	r.mu.Lock()
	r.previews = append(r.previews, text)
	r.mu.Unlock()
}

func (r *turnRecorder) onFatal(err error) {
	r.fatalCh <- err
}

func (r *turnRecorder) waitTurn(t *testing.T) string {
	t.Helper()
	select {
	case turn := <-r.turnCh:
		return turn
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a turn")
		return ""
	}
}

func (r *turnRecorder) waitFatal(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.fatalCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for fatal error")
		return nil
	}
}

func newTestListener(t *testing.T, delay time.Duration) (*Listener, *speechmock.Provider, *audiomock.Device, *turnRecorder) {
	t.Helper()
	provider := &speechmock.Provider{}
	device := &audiomock.Device{}
	rec := newTurnRecorder()

	ln, err := New(provider, device, Config{
		SilenceDelay: delay,
		Stream:       speech.StreamConfig{SampleRate: 16000, Channels: 1},
	},
		WithTurnSink(rec.onTurn),
		WithPreview(rec.onPreview),
		WithFatalSink(rec.onFatal),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ln, provider, device, rec
}

// gatedProvider blocks StartStream until released, holding a Start call open
// so tests can interleave other calls with an in-progress startup.
type gatedProvider struct {
	inner   speechmock.Provider
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedProvider) StartStream(ctx context.Context, cfg speech.StreamConfig) (speech.Session, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.inner.StartStream(ctx, cfg)
}

func TestListener_StopDuringStartTearsDown(t *testing.T) {
	t.Parallel()
	provider := &gatedProvider{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	device := &audiomock.Device{}
	rec := newTurnRecorder()

	ln, err := New(provider, device, Config{
		SilenceDelay: 50 * time.Millisecond,
		Stream:       speech.StreamConfig{SampleRate: 16000, Channels: 1},
	},
		WithTurnSink(rec.onTurn),
		WithFatalSink(rec.onFatal),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	startDone := make(chan error, 1)
	go func() { startDone <- ln.Start(context.Background()) }()
	<-provider.entered

	// Stop races the in-progress Start. It must not return until the
	// session that Start is bringing up has been torn down again.
	stopDone := make(chan struct{})
	go func() {
		ln.Stop()
		close(stopDone)
	}()

	close(provider.release)
	if err := <-startDone; err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-stopDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop never returned")
	}

	if ln.Active() {
		t.Error("listener still active after Stop")
	}
	if device.Busy() {
		t.Error("device still held after Stop")
	}
}

func TestListener_TurnClosesAfterSilence(t *testing.T) {
	t.Parallel()
	ln, provider, _, rec := newTestListener(t, 200*time.Millisecond)

	if err := ln.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer ln.Stop()

	start := time.Now()
	sess := provider.Session(0)
	sess.EmitFinal("add new")
	time.Sleep(50 * time.Millisecond)
	sess.EmitFinal("line")

	turn := rec.waitTurn(t)
	elapsed := time.Since(start)

	if turn != "add new line" {
		t.Errorf("turn = %q, want concatenated fragments", turn)
	}
	// The turn closes one full silence delay after the LAST event, so it
	// cannot arrive sooner than event time + delay.
	if elapsed < 250*time.Millisecond {
		t.Errorf("turn closed after %v, want at least 250ms (50ms events + 200ms delay)", elapsed)
	}
}

func TestListener_TimerResetsOnEveryEvent(t *testing.T) {
	t.Parallel()
	ln, provider, _, rec := newTestListener(t, 150*time.Millisecond)

	if err := ln.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer ln.Stop()

	sess := provider.Session(0)
	// Keep the timer from firing by speaking every 50ms, well inside the
	// 150ms delay. If the timer did not reset, a turn would close mid-way.
	for i := 0; i < 5; i++ {
		sess.EmitFinal("word")
		time.Sleep(50 * time.Millisecond)
	}

	turn := rec.waitTurn(t)
	if turn != "word word word word word" {
		t.Errorf("turn = %q, want all five fragments in one turn", turn)
	}
}

func TestListener_StartWhileActiveIsNoOp(t *testing.T) {
	t.Parallel()
	ln, provider, _, _ := newTestListener(t, 200*time.Millisecond)

	if err := ln.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer ln.Stop()

	if err := ln.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if got := len(provider.Sessions()); got != 1 {
		t.Errorf("sessions = %d, want 1 (no duplicate recognizer)", got)
	}
	if !ln.Active() {
		t.Error("listener not active")
	}
}

func TestListener_StopReleasesEverything(t *testing.T) {
	t.Parallel()
	ln, provider, device, _ := newTestListener(t, 200*time.Millisecond)

	if err := ln.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ln.Stop()

	if ln.Active() {
		t.Error("listener still active after Stop")
	}
	if device.Busy() {
		t.Error("audio device still held after Stop")
	}
	if got := len(provider.Sessions()); got != 1 {
		t.Errorf("sessions = %d, want 1 (explicit stop must not restart)", got)
	}

	// The listener is restartable after an explicit stop.
	if err := ln.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer ln.Stop()
	if got := len(provider.Sessions()); got != 2 {
		t.Errorf("sessions = %d, want 2 after explicit restart", got)
	}
}

func TestListener_AutoRestartsOnUnexpectedDeath(t *testing.T) {
	t.Parallel()
	ln, provider, _, rec := newTestListener(t, 100*time.Millisecond)

	if err := ln.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer ln.Stop()

	// No-speech is recoverable: the session is replaced silently.
	provider.Session(0).Fail(speech.ErrNoSpeech)

	deadline := time.Now().Add(5 * time.Second)
	for len(provider.Sessions()) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("recognizer was not restarted")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The replacement session keeps producing turns.
	provider.Session(1).EmitFinal("still here")
	if turn := rec.waitTurn(t); turn != "still here" {
		t.Errorf("turn = %q, want transcript from restarted session", turn)
	}
	if !ln.Active() {
		t.Error("listener inactive after recoverable restart")
	}
}

func TestListener_FatalErrorStopsWithoutRestart(t *testing.T) {
	t.Parallel()
	ln, provider, device, rec := newTestListener(t, 100*time.Millisecond)

	if err := ln.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	provider.Session(0).Fail(speech.ErrNetworkUnavailable)

	err := rec.waitFatal(t)
	if !errors.Is(err, speech.ErrNetworkUnavailable) {
		t.Errorf("fatal error = %v, want ErrNetworkUnavailable", err)
	}
	if ln.Active() {
		t.Error("listener still active after fatal error")
	}
	if device.Busy() {
		t.Error("audio device still held after fatal error")
	}
	if got := len(provider.Sessions()); got != 1 {
		t.Errorf("sessions = %d, want 1 (fatal error must not restart)", got)
	}
}

func TestListener_StartFailsWhenDeviceBusy(t *testing.T) {
	t.Parallel()
	ln, _, device, _ := newTestListener(t, 100*time.Millisecond)

	held, err := device.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer held.Close()

	if err := ln.Start(context.Background()); err == nil {
		t.Fatal("Start succeeded with a busy device")
	}
	if ln.Active() {
		t.Error("listener claims active after failed start")
	}
}

func TestListener_InterimsOnlyPreview(t *testing.T) {
	t.Parallel()
	ln, provider, _, rec := newTestListener(t, 100*time.Millisecond)

	if err := ln.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer ln.Stop()

	sess := provider.Session(0)
	sess.EmitInterim("quant")
	sess.EmitFinal("quantity five")

	turn := rec.waitTurn(t)
	if turn != "quantity five" {
		t.Errorf("turn = %q; interim fragments must not enter the turn", turn)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	var sawInterim, sawCleared bool
	for _, p := range rec.previews {
		if p == "quant" {
			sawInterim = true
		}
		if p == "" {
			sawCleared = true
		}
	}
	if !sawInterim {
		t.Error("interim text never reached the preview")
	}
	if !sawCleared {
		t.Error("preview was not cleared after the turn closed")
	}
}
