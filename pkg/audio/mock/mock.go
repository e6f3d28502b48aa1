// Package mock provides test doubles for the audio.Device and audio.Capture
// interfaces.
//
// The mock Device enforces the same exclusive-access discipline as a real
// input device: a second Acquire while a capture is open fails with
// audio.ErrDeviceBusy. Tests feed frames through [Capture.Push] and can
// observe acquisition counts after the fact.
package mock

import (
	"context"
	"sync"

	"github.com/linevoxhq/linevox/pkg/audio"
)

// Capture is a scripted implementation of audio.Capture.
type Capture struct {
	frames chan audio.Frame

	mu     sync.Mutex
	closed bool

	// onClose is invoked once when the capture is closed. Used by Device to
	// release the busy flag.
	onClose func()
}

// NewCapture creates a standalone capture with the given channel buffer size.
func NewCapture(buffer int) *Capture {
	return &Capture{frames: make(chan audio.Frame, buffer)}
}

// Push delivers a frame to the capture's consumer. Returns false if the
// capture has been closed.
func (c *Capture) Push(f audio.Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.frames <- f
	return true
}

// Frames implements audio.Capture.
func (c *Capture) Frames() <-chan audio.Frame { return c.frames }

// Close implements audio.Capture.
func (c *Capture) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.frames)
	onClose := c.onClose
	c.mu.Unlock()

	if onClose != nil {
		onClose()
	}
	return nil
}

// Closed reports whether Close has been called.
func (c *Capture) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Device is a scripted implementation of audio.Device.
// The zero value is ready to use.
type Device struct {
	mu       sync.Mutex
	busy     bool
	captures []*Capture

	// AcquireErr, if non-nil, is returned by every Acquire call.
	AcquireErr error

	// Buffer is the frame channel buffer size for new captures (default 64).
	Buffer int
}

// Acquire implements audio.Device. It returns audio.ErrDeviceBusy while a
// previously acquired capture remains open.
func (d *Device) Acquire(ctx context.Context) (audio.Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.AcquireErr != nil {
		return nil, d.AcquireErr
	}
	if d.busy {
		return nil, audio.ErrDeviceBusy
	}

	buffer := d.Buffer
	if buffer == 0 {
		buffer = 64
	}
	c := NewCapture(buffer)
	c.onClose = func() {
		d.mu.Lock()
		d.busy = false
		d.mu.Unlock()
	}
	d.busy = true
	d.captures = append(d.captures, c)
	return c, nil
}

// Captures returns every capture handed out so far, in acquisition order.
func (d *Device) Captures() []*Capture {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Capture, len(d.captures))
	copy(out, d.captures)
	return out
}

// Busy reports whether a capture is currently open.
func (d *Device) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.busy
}
