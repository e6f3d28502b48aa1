// Package speech defines the Provider interface for streaming speech
// recognition backends.
//
// A speech provider wraps a real-time transcription service (e.g., Deepgram,
// or a platform recognition capability) and exposes a uniform streaming
// interface. The central abstraction is [Session]: once opened, a session
// accepts raw PCM audio and emits two streams of [Transcript] values —
// low-latency interims for the live preview and authoritative finals that
// the turn segmentation loop accumulates into turns.
//
// Session failures carry a [Category] so callers can distinguish the
// recoverable no-speech condition (keep listening) from session-fatal,
// user-actionable conditions (permission denied, device unavailable, network
// unavailable) that require an explicit restart.
//
// Implementations must be safe for concurrent use.
package speech

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for the recognizer failure taxonomy. Implementations wrap
// these so that [Categorize] works through errors.Is.
var (
	// ErrNoSpeech indicates the recognizer gave up because nothing was said.
	// This is not an error condition for the caller — listening continues.
	ErrNoSpeech = errors.New("speech: no speech detected")

	// ErrPermissionDenied indicates microphone or API access was refused.
	ErrPermissionDenied = errors.New("speech: permission denied")

	// ErrDeviceUnavailable indicates the audio input device cannot be used.
	ErrDeviceUnavailable = errors.New("speech: audio device unavailable")

	// ErrNetworkUnavailable indicates the recognition service is unreachable.
	ErrNetworkUnavailable = errors.New("speech: network unavailable")
)

// Category classifies a recognizer failure for error handling policy.
type Category int

const (
	// CategoryUnknown is any failure not covered by the taxonomy below.
	// Treated as session-fatal.
	CategoryUnknown Category = iota

	// CategoryRecoverable failures (no-speech) are ignored; listening continues.
	CategoryRecoverable

	// CategoryFatal failures end the listening session and require an
	// explicit user-initiated restart.
	CategoryFatal
)

// String returns the human-readable name of the category.
func (c Category) String() string {
	switch c {
	case CategoryRecoverable:
		return "recoverable"
	case CategoryFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Categorize maps err onto the recognizer failure taxonomy.
// A nil error has no category and returns CategoryUnknown.
func Categorize(err error) Category {
	switch {
	case err == nil:
		return CategoryUnknown
	case errors.Is(err, ErrNoSpeech):
		return CategoryRecoverable
	case errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrDeviceUnavailable),
		errors.Is(err, ErrNetworkUnavailable):
		return CategoryFatal
	default:
		return CategoryUnknown
	}
}

// Transcript represents a recognition result. Both interim and final
// transcripts use this type.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal indicates whether this is a final (authoritative) or interim
	// (preview-only) transcript.
	IsFinal bool

	// Confidence is the overall confidence score (0.0–1.0). May be zero if
	// the provider does not report confidence.
	Confidence float64

	// Timestamp marks when the utterance started, relative to session start.
	Timestamp time.Duration

	// Duration is the length of the utterance.
	Duration time.Duration
}

// KeywordBoost is a vocabulary hint that increases recognition probability
// for domain terms the recognizer would otherwise mishear ("two by four",
// lumber grades, species names).
type KeywordBoost struct {
	// Keyword is the text to boost.
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}

// StreamConfig describes the audio format and recognition hints for a new
// session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz (commonly 16000).
	SampleRate int

	// Channels is the number of audio channels. 1 = mono.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// Empty lets the provider auto-detect, if supported.
	Language string

	// Keywords is the vocabulary hint list.
	Keywords []KeywordBoost
}

// Session represents an open streaming recognition session.
//
// Callers must call Close when the session is no longer needed; failing to
// do so may leak goroutines and network connections inside the provider.
// All methods must be safe for concurrent use.
type Session interface {
	// SendAudio delivers a chunk of raw PCM audio to the provider. The chunk
	// must match the format agreed in StreamConfig. Calling SendAudio after
	// Close returns an error.
	SendAudio(chunk []byte) error

	// Interims returns a read-only channel of low-latency interim transcripts,
	// suitable for the live preview only. Closed when the session ends.
	Interims() <-chan Transcript

	// Finals returns a read-only channel of authoritative transcripts.
	// Closed when the session ends.
	Finals() <-chan Transcript

	// Err reports why the session ended. It must only be called after both
	// transcript channels are closed. A nil result means a clean shutdown
	// (Close was called); a non-nil result is classified via [Categorize].
	Err() error

	// Close terminates the session, flushes pending audio, and releases all
	// associated resources. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Provider is the abstraction over any streaming recognition backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// StartStream opens a new streaming recognition session. The returned
	// Session is ready to accept audio immediately. The caller owns the
	// Session and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (Session, error)
}
