// Package mock provides a test double for the speech.Provider interface.
//
// The mock Provider hands out scripted Sessions. Tests emit transcripts with
// [Session.EmitInterim] and [Session.EmitFinal], simulate recognizer failures
// with [Session.Fail], and inspect audio delivery afterwards.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/linevoxhq/linevox/pkg/speech"
)

// Session is a scripted implementation of speech.Session.
type Session struct {
	interims chan speech.Transcript
	finals   chan speech.Transcript

	mu     sync.Mutex
	closed bool
	err    error
	audio  [][]byte
}

// NewSession creates a standalone scripted session.
func NewSession() *Session {
	return &Session{
		interims: make(chan speech.Transcript, 16),
		finals:   make(chan speech.Transcript, 16),
	}
}

// EmitInterim delivers an interim transcript to the consumer.
func (s *Session) EmitInterim(text string) {
	s.emit(speech.Transcript{Text: text, IsFinal: false})
}

// EmitFinal delivers a final transcript to the consumer.
func (s *Session) EmitFinal(text string) {
	s.emit(speech.Transcript{Text: text, IsFinal: true, Confidence: 0.95})
}

func (s *Session) emit(t speech.Transcript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if t.IsFinal {
		s.finals <- t
	} else {
		s.interims <- t
	}
}

// Fail terminates the session with err, as if the recognizer died.
// Both transcript channels are closed; Err will return err.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.interims)
	close(s.finals)
}

// SendAudio implements speech.Session, recording the chunk for inspection.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("mock: session is closed")
	}
	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	s.audio = append(s.audio, buf)
	return nil
}

// Interims implements speech.Session.
func (s *Session) Interims() <-chan speech.Transcript { return s.interims }

// Finals implements speech.Session.
func (s *Session) Finals() <-chan speech.Transcript { return s.finals }

// Err implements speech.Session.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close implements speech.Session. A clean Close leaves Err nil.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.interims)
	close(s.finals)
	return nil
}

// Audio returns every chunk passed to SendAudio, in order.
func (s *Session) Audio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.audio))
	copy(out, s.audio)
	return out
}

// Provider is a mock implementation of speech.Provider.
// The zero value is ready to use.
type Provider struct {
	mu       sync.Mutex
	sessions []*Session

	// StartErr, if non-nil, is returned by every StartStream call.
	StartErr error

	// Configs records the StreamConfig of every StartStream call.
	Configs []speech.StreamConfig
}

// StartStream implements speech.Provider by handing out a fresh scripted
// session.
func (p *Provider) StartStream(ctx context.Context, cfg speech.StreamConfig) (speech.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.StartErr != nil {
		return nil, p.StartErr
	}
	s := NewSession()
	p.sessions = append(p.sessions, s)
	p.Configs = append(p.Configs, cfg)
	return s, nil
}

// Sessions returns every session handed out so far, in order.
func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Session, len(p.sessions))
	copy(out, p.sessions)
	return out
}

// Session returns the i-th session handed out, or nil.
func (p *Provider) Session(i int) *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.sessions) {
		return nil
	}
	return p.sessions[i]
}
