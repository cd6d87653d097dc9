// Package genai provides AI text completion using the OpenAI API.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/BTreeMap/MemberFlow/internal/models"
)

// Default client settings.
const (
	DefaultModel       = string(openai.ChatModelGPT4oMini)
	DefaultTemperature = 0.4
)

// ErrNoChoicesReturned is returned when the API responds without any completion choice.
var ErrNoChoicesReturned = errors.New("no choices returned")

// ErrIncompleteCompletion is returned when generation stopped before the model finished.
var ErrIncompleteCompletion = errors.New("completion incomplete")

// chatService defines minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// completionsAdapter adapts the SDK's completion service to chatService.
type completionsAdapter struct {
	svc *openai.ChatCompletionService
}

func (a completionsAdapter) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := a.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Opts holds configuration for the GenAI client.
type Opts struct {
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the chat model. An empty name keeps the default.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) { o.Temperature = t }
}

// WithTimeout bounds every request made by the client.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	chat        chatService
	model       string
	temperature float64
	timeout     time.Duration
}

// NewClient initializes a new GenAI client. An API key is required.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{Temperature: DefaultTemperature}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("genai.NewClient: client created", "model", cfg.Model, "timeout", cfg.Timeout)
	return &Client{
		chat:        completionsAdapter{svc: &cli.Chat.Completions},
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
	}, nil
}

// IsConfigured reports whether the client can make calls.
func (c *Client) IsConfigured() bool {
	return c != nil && c.chat != nil
}

// Complete sends prompt as a single user message and returns the completion
// text. Failures are reported as *models.AIBackendError.
func (c *Client) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if !c.IsConfigured() {
		return "", &models.AIBackendError{Reason: models.AIFailureTransport, Err: errors.New("client not configured")}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Temperature: openai.Float(c.temperature),
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	start := time.Now()
	resp, err := c.chat.Create(ctx, params)
	if err != nil {
		classified := classify(ctx, err)
		slog.Debug("Client.Complete: request failed", "model", c.model, "elapsed", time.Since(start), "error", classified)
		return "", classified
	}
	if len(resp.Choices) == 0 {
		return "", &models.AIBackendError{Reason: models.AIFailureMalformed, Err: ErrNoChoicesReturned}
	}
	choice := resp.Choices[0]
	switch choice.FinishReason {
	case "length", "content_filter":
		slog.Debug("Client.Complete: completion cut short", "model", c.model, "finishReason", choice.FinishReason)
		return "", &models.AIBackendError{Reason: models.AIFailureMalformed, Err: fmt.Errorf("%w: finish_reason=%s", ErrIncompleteCompletion, choice.FinishReason)}
	}
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return "", &models.AIBackendError{Reason: models.AIFailureMalformed, Err: errors.New("empty completion")}
	}
	slog.Debug("Client.Complete: completion received", "model", c.model, "elapsed", time.Since(start), "chars", len(text))
	return text, nil
}

func classify(ctx context.Context, err error) error {
	var apiErr *openai.Error
	switch {
	case errors.As(err, &apiErr):
		return &models.AIBackendError{Reason: models.AIFailureStatus, StatusCode: apiErr.StatusCode, Err: err}
	case errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil:
		return &models.AIBackendError{Reason: models.AIFailureTimeout, Err: err}
	default:
		return &models.AIBackendError{Reason: models.AIFailureTransport, Err: err}
	}
}
