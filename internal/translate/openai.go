package translate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alnah/go-bisub/internal/apierr"
)

// chatCompleter is the slice of *openai.Client this package uses.
// It allows injecting mocks in tests.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Compile-time interface compliance check.
var _ Translator = (*OpenAITranslator)(nil)

// OpenAITranslator translates through OpenAI's chat completion API (or any
// OpenAI-compatible endpoint the client was built against).
type OpenAITranslator struct {
	client          chatCompleter
	model           string
	maxInputTokens  int
	maxOutputTokens int
	maxRetries      int
	baseDelay       time.Duration
	maxDelay        time.Duration
}

// Option configures an OpenAITranslator.
type Option func(*OpenAITranslator)

const (
	defaultOpenAIModel           = "gpt-4o-mini"
	defaultOpenAIMaxOutputTokens = 16384

	defaultMaxRetries = 2
	defaultBaseDelay  = 1 * time.Second
	defaultMaxDelay   = 30 * time.Second
)

// WithModel sets the model requests are sent with.
func WithModel(model string) Option {
	return func(t *OpenAITranslator) {
		t.model = model
	}
}

// WithMaxInputTokens sets the estimated input token limit.
func WithMaxInputTokens(max int) Option {
	return func(t *OpenAITranslator) {
		if max > 0 {
			t.maxInputTokens = max
		}
	}
}

// WithMaxOutputTokens sets the completion token limit.
func WithMaxOutputTokens(max int) Option {
	return func(t *OpenAITranslator) {
		if max > 0 {
			t.maxOutputTokens = max
		}
	}
}

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(n int) Option {
	return func(t *OpenAITranslator) {
		if n >= 0 {
			t.maxRetries = n
		}
	}
}

// WithRetryDelays sets the base and max delays for exponential backoff.
func WithRetryDelays(base, max time.Duration) Option {
	return func(t *OpenAITranslator) {
		if base > 0 {
			t.baseDelay = base
		}
		if max > 0 {
			t.maxDelay = max
		}
	}
}

// withChatCompleter sets a custom chat completer (for testing).
func withChatCompleter(cc chatCompleter) Option {
	return func(t *OpenAITranslator) {
		t.client = cc
	}
}

// NewOpenAITranslator wraps an OpenAI client for translation calls.
func NewOpenAITranslator(client *openai.Client, opts ...Option) *OpenAITranslator {
	t := &OpenAITranslator{
		client:          client,
		model:           defaultOpenAIModel,
		maxInputTokens:  defaultMaxInputTokens,
		maxOutputTokens: defaultOpenAIMaxOutputTokens,
		maxRetries:      defaultMaxRetries,
		baseDelay:       defaultBaseDelay,
		maxDelay:        defaultMaxDelay,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Model returns the model requests are sent with.
func (t *OpenAITranslator) Model() string {
	return t.model
}

// Translate sends the prompt as a single user message. Temperature is
// pinned to zero so retries and re-runs stay reproducible. Transient
// failures (rate limits, timeouts, 5xx) are retried with backoff.
func (t *OpenAITranslator) Translate(ctx context.Context, prompt string) (Result, error) {
	if estimated := estimateTokens(prompt); estimated > t.maxInputTokens {
		return Result{}, fmt.Errorf("prompt is %dK tokens estimated, max %dK: %w",
			estimated/1000, t.maxInputTokens/1000, ErrPromptTooLong)
	}

	req := openai.ChatCompletionRequest{
		Model:               t.model,
		MaxCompletionTokens: t.maxOutputTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0,
	}

	cfg := apierr.RetryConfig{
		MaxRetries: t.maxRetries,
		BaseDelay:  t.baseDelay,
		MaxDelay:   t.maxDelay,
	}

	return apierr.RetryWithBackoff(ctx, cfg, func() (Result, error) {
		resp, err := t.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return Result{}, classifyOpenAIError(err)
		}
		if len(resp.Choices) == 0 {
			return Result{}, fmt.Errorf("no choices in response: %w", apierr.ErrAPIFailure)
		}
		return Result{
			Text:         resp.Choices[0].Message.Content,
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}, nil
	}, isRetryableOpenAIError)
}

// classifyOpenAIError maps OpenAI API errors to sentinel errors.
func classifyOpenAIError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests:
			if code, ok := apiErr.Code.(string); ok && strings.Contains(code, "insufficient_quota") {
				return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrQuotaExceeded)
			}
			return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrRateLimit)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrAuthFailed)
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrTimeout)
		case http.StatusBadRequest:
			if strings.Contains(apiErr.Message, "context_length") ||
				strings.Contains(apiErr.Message, "maximum context length") {
				return fmt.Errorf("API rejected: %w", ErrPromptTooLong)
			}
			return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrBadRequest)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timed out: %w", apierr.ErrTimeout)
	}

	return err
}

// isRetryableOpenAIError determines if an error is transient.
func isRetryableOpenAIError(err error) bool {
	if errors.Is(err, apierr.ErrRateLimit) || errors.Is(err, apierr.ErrTimeout) {
		return true
	}

	// Server errors (5xx) pass through classification typed; retry them.
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
	}

	return false
}
