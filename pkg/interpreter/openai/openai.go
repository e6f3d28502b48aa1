// Package openai provides an interpreter backed by the OpenAI chat API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/linevoxhq/linevox/pkg/interpreter"
)

// Interpreter implements interpreter.Interpreter using the OpenAI API.
type Interpreter struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the interpreter.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Interpreter.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI-backed Interpreter.
func New(apiKey string, model string, opts ...Option) (*Interpreter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Interpreter{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Interpret implements interpreter.Interpreter. Temperature is pinned to zero
// and the response is forced into JSON mode: intent extraction needs
// repeatable structured output, not creative variation.
func (i *Interpreter) Interpret(ctx context.Context, req interpreter.Request) (interpreter.Intent, error) {
	system, user := interpreter.EncodePrompt(req)

	messages := []oai.ChatCompletionMessageParamUnion{
		oai.SystemMessage(system),
	}
	for _, m := range req.Conversation {
		switch m.Role {
		case "assistant":
			messages = append(messages, oai.AssistantMessage(m.Content))
		default:
			messages = append(messages, oai.UserMessage(m.Content))
		}
	}
	messages = append(messages, oai.UserMessage(user))

	params := oai.ChatCompletionNewParams{
		Model:       shared.ChatModel(i.model),
		Messages:    messages,
		Temperature: param.NewOpt(0.0),
		ResponseFormat: oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}

	resp, err := i.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return interpreter.Intent{}, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return interpreter.Intent{}, fmt.Errorf("openai: empty choices in response")
	}

	intent, err := interpreter.DecodeIntent(resp.Choices[0].Message.Content)
	if err != nil {
		return interpreter.Intent{}, fmt.Errorf("openai: %w", err)
	}
	return intent, nil
}
