package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/linevoxhq/linevox/pkg/interpreter"
	"github.com/linevoxhq/linevox/pkg/speech"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	interpreter map[string]func(ProviderEntry) (interpreter.Interpreter, error)
	speech      map[string]func(ProviderEntry) (speech.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		interpreter: make(map[string]func(ProviderEntry) (interpreter.Interpreter, error)),
		speech:      make(map[string]func(ProviderEntry) (speech.Provider, error)),
	}
}

// RegisterInterpreter registers an interpreter factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterInterpreter(name string, factory func(ProviderEntry) (interpreter.Interpreter, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interpreter[name] = factory
}

// RegisterSpeech registers a speech provider factory under name.
func (r *Registry) RegisterSpeech(name string, factory func(ProviderEntry) (speech.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speech[name] = factory
}

// CreateInterpreter instantiates an interpreter using the factory registered
// under entry.Name. Returns [ErrProviderNotRegistered] if no factory has
// been registered for that name.
func (r *Registry) CreateInterpreter(entry ProviderEntry) (interpreter.Interpreter, error) {
	r.mu.RLock()
	factory, ok := r.interpreter[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: interpreter/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSpeech instantiates a speech provider using the factory registered
// under entry.Name.
func (r *Registry) CreateSpeech(entry ProviderEntry) (speech.Provider, error) {
	r.mu.RLock()
	factory, ok := r.speech[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: speech/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
