// Package pipe adapts a raw PCM byte stream to the audio.Device interface.
//
// The stream source is any io.Reader: stdin fed by an external capture tool
// (`arecord -f S16_LE -r 16000 -c 1 | linevox`), a FIFO, or a file in tests.
// The device slices the stream into fixed-duration frames and enforces the
// same exclusive-access discipline as a hardware device: one open capture at
// a time, audio.ErrDeviceBusy otherwise.
//
// Closing a capture does not close the underlying reader. The stream is a
// shared, append-only source; the next Acquire simply resumes framing from
// wherever the stream currently is.
package pipe

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/linevoxhq/linevox/pkg/audio"
)

// Config describes the PCM format of the byte stream.
type Config struct {
	// SampleRate in Hz.
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// FrameDuration is the length of one emitted frame. Zero means 20ms.
	FrameDuration time.Duration
}

// DefaultFrameDuration is used when Config.FrameDuration is zero.
const DefaultFrameDuration = 20 * time.Millisecond

// Device frames a PCM byte stream into audio captures.
type Device struct {
	r          io.Reader
	cfg        Config
	frameBytes int

	mu   sync.Mutex
	busy bool

	// readMu serialises stream reads across capture generations: a stale
	// framing goroutine that is still blocked in Read must finish before the
	// next capture's goroutine touches the stream.
	readMu sync.Mutex
}

// NewDevice wraps r as an exclusive-access audio device.
func NewDevice(r io.Reader, cfg Config) (*Device, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("pipe: sample rate %d must be positive", cfg.SampleRate)
	}
	if cfg.Channels != 1 && cfg.Channels != 2 {
		return nil, fmt.Errorf("pipe: channels must be 1 or 2, got %d", cfg.Channels)
	}
	if cfg.FrameDuration == 0 {
		cfg.FrameDuration = DefaultFrameDuration
	}
	if cfg.FrameDuration < 0 {
		return nil, fmt.Errorf("pipe: frame duration must be positive")
	}

	samples := int(float64(cfg.SampleRate) * cfg.FrameDuration.Seconds())
	if samples < 1 {
		return nil, fmt.Errorf("pipe: frame duration %v too short for sample rate %d", cfg.FrameDuration, cfg.SampleRate)
	}

	return &Device{
		r:          r,
		cfg:        cfg,
		frameBytes: samples * cfg.Channels * 2,
	}, nil
}

// Acquire implements audio.Device.
func (d *Device) Acquire(ctx context.Context) (audio.Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	if d.busy {
		d.mu.Unlock()
		return nil, audio.ErrDeviceBusy
	}
	d.busy = true
	d.mu.Unlock()

	c := &capture{
		frames: make(chan audio.Frame, 8),
		done:   make(chan struct{}),
		onClose: func() {
			d.mu.Lock()
			d.busy = false
			d.mu.Unlock()
		},
	}
	go d.frame(c)
	return c, nil
}

// frame reads fixed-size chunks off the stream until the capture is closed
// or the stream ends. It is the only writer of c.frames and closes it on
// exit.
func (d *Device) frame(c *capture) {
	defer close(c.frames)

	start := time.Now()
	for {
		select {
		case <-c.done:
			return
		default:
		}

		buf := make([]byte, d.frameBytes)
		d.readMu.Lock()
		_, err := io.ReadFull(d.r, buf)
		d.readMu.Unlock()
		if err != nil {
			// EOF or a broken pipe ends the capture; the consumer sees the
			// channel close and reacts through its own error taxonomy.
			return
		}

		frame := audio.Frame{
			PCM:        buf,
			SampleRate: d.cfg.SampleRate,
			Channels:   d.cfg.Channels,
			Timestamp:  time.Since(start),
		}
		select {
		case <-c.done:
			return
		case c.frames <- frame:
		}
	}
}

// capture is one framing session over the shared stream.
type capture struct {
	frames  chan audio.Frame
	done    chan struct{}
	once    sync.Once
	onClose func()
}

// Frames implements audio.Capture.
func (c *capture) Frames() <-chan audio.Frame { return c.frames }

// Close implements audio.Capture. The frames channel closes once the framing
// goroutine observes the signal, which may be after its current blocking read
// completes.
func (c *capture) Close() error {
	c.once.Do(func() {
		close(c.done)
		c.onClose()
	})
	return nil
}
