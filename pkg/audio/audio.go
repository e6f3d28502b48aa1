// Package audio defines the capture-side audio abstractions for linevox.
//
// The two primary abstractions are:
//
//   - [Device] — an audio input device that can be acquired for capture.
//   - [Capture] — an active capture session delivering a stream of [Frame]
//     values until it is closed.
//
// A Device is an exclusive-access resource. Many input devices — Bluetooth
// headsets in particular — support only one active consumer, so the voice
// activity detector must release its capture before the recognizer acquires
// the device. [Device.Acquire] fails with [ErrDeviceBusy] while a previous
// capture is still open.
//
// Implementations of these interfaces are provided by platform-specific
// adapter packages; pkg/audio/mock ships a scripted implementation for tests.
package audio

import (
	"context"
	"errors"
	"time"
)

// ErrDeviceBusy is returned by [Device.Acquire] when the device already has
// an open capture. The holder must Close its capture before anyone else can
// acquire the device.
var ErrDeviceBusy = errors.New("audio: device is already captured")

// Frame represents a single frame of PCM audio flowing out of a capture.
// Frames are the atomic unit the voice activity detector operates on.
type Frame struct {
	// PCM is raw little-endian 16-bit PCM data.
	PCM []byte

	// SampleRate in Hz (e.g., 16000 for STT-optimised mono capture).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to capture start.
	Timestamp time.Duration
}

// Capture is an open capture session on an audio input device.
//
// Frames delivers audio until Close is called or the device fails; the
// channel is closed in both cases. Callers must call Close when done —
// holding a capture open blocks every other consumer of the device.
type Capture interface {
	// Frames returns the read-only channel of captured audio frames.
	// The channel is closed when the capture ends.
	Frames() <-chan Frame

	// Close releases the capture and frees the device for the next consumer.
	// Calling Close more than once is safe and returns nil.
	Close() error
}

// Device is an exclusive-access audio input device.
//
// Implementations must be safe for concurrent use; Acquire must atomically
// reject a second acquisition while a capture is open.
type Device interface {
	// Acquire opens a capture session on the device. Returns [ErrDeviceBusy]
	// if a previous capture has not been closed yet. The supplied ctx governs
	// the acquisition attempt only; the returned Capture stays open until
	// Close is called.
	Acquire(ctx context.Context) (Capture, error)
}
