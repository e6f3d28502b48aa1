// Package mock provides a scripted interpreter test double.
package mock

import (
	"context"
	"sync"

	"github.com/linevoxhq/linevox/pkg/interpreter"
)

// Interpreter is a scripted implementation of interpreter.Interpreter.
// Responses are consumed in order; after the script is exhausted, every call
// returns an unknown intent with zero confidence. The zero value is ready to
// use.
type Interpreter struct {
	mu       sync.Mutex
	script   []response
	requests []interpreter.Request
}

type response struct {
	intent interpreter.Intent
	err    error
}

// Reply appends a scripted intent.
func (m *Interpreter) Reply(intent interpreter.Intent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, response{intent: intent})
}

// Fail appends a scripted error.
func (m *Interpreter) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, response{err: err})
}

// Interpret implements interpreter.Interpreter.
func (m *Interpreter) Interpret(ctx context.Context, req interpreter.Request) (interpreter.Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	if len(m.script) == 0 {
		return interpreter.Intent{
			Action:  interpreter.ActionUnknown,
			Message: "mock: script exhausted",
		}, nil
	}
	next := m.script[0]
	m.script = m.script[1:]
	return next.intent, next.err
}

// Requests returns every request seen, in order.
func (m *Interpreter) Requests() []interpreter.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]interpreter.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// LastRequest returns the most recent request, or false if none were made.
func (m *Interpreter) LastRequest() (interpreter.Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return interpreter.Request{}, false
	}
	return m.requests[len(m.requests)-1], true
}
