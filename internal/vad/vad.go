// Package vad implements speech-onset detection over a raw PCM capture.
//
// The detector holds the audio device only until it fires: input devices are
// exclusive-access (notably Bluetooth headsets), so the capture is released
// before the recognizer acquires the device.
package vad

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"

	"github.com/linevoxhq/linevox/pkg/audio"
)

// Config holds the detection tuning constants. Both are deliberate
// configuration, not fixed law: the right values depend on microphone and
// environment.
type Config struct {
	// EnergyThreshold is the normalized RMS energy (0..1) a frame must
	// exceed to count as speech.
	EnergyThreshold float64

	// ActivationFrames is how many consecutive frames must exceed the
	// threshold before the detector fires. The hysteresis keeps transient
	// noise spikes from triggering a recognition turn.
	ActivationFrames int
}

// DefaultConfig returns tuning values that work for a close-talking headset
// in a quiet room.
func DefaultConfig() Config {
	return Config{
		EnergyThreshold:  0.02,
		ActivationFrames: 3,
	}
}

// Detector watches a capture for sustained speech energy.
type Detector struct {
	cfg    Config
	logger *slog.Logger
}

// New constructs a Detector. A nil logger falls back to slog.Default.
func New(cfg Config, logger *slog.Logger) (*Detector, error) {
	if cfg.EnergyThreshold <= 0 || cfg.EnergyThreshold >= 1 {
		return nil, fmt.Errorf("vad: energy threshold %v out of (0, 1)", cfg.EnergyThreshold)
	}
	if cfg.ActivationFrames < 1 {
		return nil, fmt.Errorf("vad: activation frames %d must be at least 1", cfg.ActivationFrames)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{cfg: cfg, logger: logger}, nil
}

// Detect acquires the device, waits for speech onset, and returns nil once
// it fires. The capture is closed before returning in every path, so the
// caller can immediately re-acquire the device for recognition. Detect fires
// at most once per call.
func (d *Detector) Detect(ctx context.Context, device audio.Device) error {
	capture, err := device.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("vad: acquire device: %w", err)
	}
	defer capture.Close()

	consecutive := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-capture.Frames():
			if !ok {
				return fmt.Errorf("vad: capture ended before speech onset")
			}
			energy := rms(frame.PCM)
			if energy > d.cfg.EnergyThreshold {
				consecutive++
			} else {
				consecutive = 0
			}
			if consecutive >= d.cfg.ActivationFrames {
				d.logger.Debug("speech onset detected",
					"energy", energy, "frames", consecutive)
				return nil
			}
		}
	}
}

// rms computes the normalized root-mean-square energy of little-endian
// 16-bit PCM samples.
func rms(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[2*i:]))
		v := float64(sample) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
