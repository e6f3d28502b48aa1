// Package anyllm provides an interpreter backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and more.
//
// Usage:
//
//	i, err := anyllm.New("anthropic", "claude-3-5-haiku-latest", anyllmlib.WithAPIKey("sk-ant-..."))
//	i, err := anyllm.NewOllama("llama3.2")
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/linevoxhq/linevox/pkg/interpreter"
)

// Interpreter implements interpreter.Interpreter by wrapping any-llm-go.
type Interpreter struct {
	backend anyllmlib.Provider
	model   string
}

// New creates a new Interpreter backed by the given LLM provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama", "deepseek",
// "mistral", "groq", "llamacpp", "llamafile".
//
// opts are any-llm-go configuration options (e.g., anyllmlib.WithAPIKey).
// If no API key option is provided, the backend falls back to its usual
// environment variable (OPENAI_API_KEY, ANTHROPIC_API_KEY, ...).
func New(providerName string, model string, opts ...anyllmlib.Option) (*Interpreter, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}
	return &Interpreter{backend: backend, model: model}, nil
}

// NewOpenAI creates an Interpreter backed by OpenAI.
func NewOpenAI(model string, opts ...anyllmlib.Option) (*Interpreter, error) {
	return New("openai", model, opts...)
}

// NewAnthropic creates an Interpreter backed by Anthropic.
func NewAnthropic(model string, opts ...anyllmlib.Option) (*Interpreter, error) {
	return New("anthropic", model, opts...)
}

// NewGemini creates an Interpreter backed by Google Gemini.
func NewGemini(model string, opts ...anyllmlib.Option) (*Interpreter, error) {
	return New("gemini", model, opts...)
}

// NewOllama creates an Interpreter backed by Ollama (local inference).
// Without options, it connects to http://localhost:11434.
func NewOllama(model string, opts ...anyllmlib.Option) (*Interpreter, error) {
	return New("ollama", model, opts...)
}

// createBackend creates the underlying any-llm-go provider.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", providerName)
	}
}

// Interpret implements interpreter.Interpreter.
func (i *Interpreter) Interpret(ctx context.Context, req interpreter.Request) (interpreter.Intent, error) {
	system, user := interpreter.EncodePrompt(req)

	messages := []anyllmlib.Message{
		{Role: anyllmlib.RoleSystem, Content: system},
	}
	for _, m := range req.Conversation {
		role := anyllmlib.RoleUser
		if m.Role == "assistant" {
			role = anyllmlib.RoleAssistant
		}
		messages = append(messages, anyllmlib.Message{Role: role, Content: m.Content})
	}
	messages = append(messages, anyllmlib.Message{Role: anyllmlib.RoleUser, Content: user})

	temperature := 0.0
	params := anyllmlib.CompletionParams{
		Model:       i.model,
		Messages:    messages,
		Temperature: &temperature,
	}

	resp, err := i.backend.Completion(ctx, params)
	if err != nil {
		return interpreter.Intent{}, fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return interpreter.Intent{}, fmt.Errorf("anyllm: empty choices in response")
	}

	intent, err := interpreter.DecodeIntent(resp.Choices[0].Message.ContentString())
	if err != nil {
		return interpreter.Intent{}, fmt.Errorf("anyllm: %w", err)
	}
	return intent, nil
}
