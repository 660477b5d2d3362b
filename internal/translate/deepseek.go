package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alnah/go-bisub/internal/apierr"
)

// DeepSeek API configuration.
const (
	defaultDeepSeekBaseURL = "https://api.deepseek.com"

	// deepseek-chat caps output at 8K tokens; deepseek-reasoner allows 64K.
	defaultDeepSeekModel           = "deepseek-chat"
	defaultDeepSeekMaxOutputTokens = 8192

	// Long timeout: a full chunk's subtitles in one completion.
	defaultDeepSeekHTTPTimeout = 10 * time.Minute

	// Response size limit to prevent OOM from malformed responses (10MB).
	maxResponseSize = 10 * 1024 * 1024
)

// httpDoer abstracts the HTTP client for testing.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Compile-time interface compliance check.
var _ Translator = (*DeepSeekTranslator)(nil)

// DeepSeekTranslator translates through DeepSeek's chat completion API.
// DeepSeek's wire format is OpenAI-shaped but its error conventions differ
// (402 for insufficient balance), so it gets a direct HTTP client.
type DeepSeekTranslator struct {
	apiKey          string
	baseURL         string
	model           string
	maxInputTokens  int
	maxOutputTokens int
	maxRetries      int
	baseDelay       time.Duration
	maxDelay        time.Duration
	httpTimeout     time.Duration
	httpClient      httpDoer
}

// DeepSeekOption configures a DeepSeekTranslator.
type DeepSeekOption func(*DeepSeekTranslator)

// WithDeepSeekModel sets the model requests are sent with.
// Available: "deepseek-chat" (8K output), "deepseek-reasoner" (64K output).
func WithDeepSeekModel(model string) DeepSeekOption {
	return func(t *DeepSeekTranslator) {
		t.model = model
	}
}

// WithDeepSeekMaxInputTokens sets the estimated input token limit.
func WithDeepSeekMaxInputTokens(max int) DeepSeekOption {
	return func(t *DeepSeekTranslator) {
		if max > 0 {
			t.maxInputTokens = max
		}
	}
}

// WithDeepSeekMaxOutputTokens sets the completion token limit.
func WithDeepSeekMaxOutputTokens(max int) DeepSeekOption {
	return func(t *DeepSeekTranslator) {
		if max > 0 {
			t.maxOutputTokens = max
		}
	}
}

// WithDeepSeekMaxRetries sets the maximum number of retry attempts.
func WithDeepSeekMaxRetries(n int) DeepSeekOption {
	return func(t *DeepSeekTranslator) {
		if n >= 0 {
			t.maxRetries = n
		}
	}
}

// WithDeepSeekRetryDelays sets the base and max delays for exponential backoff.
func WithDeepSeekRetryDelays(base, max time.Duration) DeepSeekOption {
	return func(t *DeepSeekTranslator) {
		if base > 0 {
			t.baseDelay = base
		}
		if max > 0 {
			t.maxDelay = max
		}
	}
}

// WithDeepSeekBaseURL sets a custom base URL (for testing or proxies).
func WithDeepSeekBaseURL(url string) DeepSeekOption {
	return func(t *DeepSeekTranslator) {
		t.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithDeepSeekHTTPTimeout sets the HTTP client timeout.
func WithDeepSeekHTTPTimeout(timeout time.Duration) DeepSeekOption {
	return func(t *DeepSeekTranslator) {
		if timeout > 0 {
			t.httpTimeout = timeout
		}
	}
}

// withDeepSeekHTTPClient sets a custom HTTP client (for testing).
func withDeepSeekHTTPClient(client httpDoer) DeepSeekOption {
	return func(t *DeepSeekTranslator) {
		t.httpClient = client
	}
}

// NewDeepSeekTranslator creates a DeepSeek-backed translator.
// Returns ErrEmptyAPIKey if apiKey is empty.
func NewDeepSeekTranslator(apiKey string, opts ...DeepSeekOption) (*DeepSeekTranslator, error) {
	if apiKey == "" {
		return nil, ErrEmptyAPIKey
	}

	t := &DeepSeekTranslator{
		apiKey:          apiKey,
		baseURL:         defaultDeepSeekBaseURL,
		model:           defaultDeepSeekModel,
		maxInputTokens:  defaultMaxInputTokens,
		maxOutputTokens: defaultDeepSeekMaxOutputTokens,
		maxRetries:      defaultMaxRetries,
		baseDelay:       defaultBaseDelay,
		maxDelay:        defaultMaxDelay,
		httpTimeout:     defaultDeepSeekHTTPTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	// Create the HTTP client after options are applied (timeout may be
	// customized).
	if t.httpClient == nil {
		t.httpClient = &http.Client{Timeout: t.httpTimeout}
	}
	return t, nil
}

// Model returns the model requests are sent with.
func (t *DeepSeekTranslator) Model() string {
	return t.model
}

// Translate sends the prompt as a single user message at temperature zero.
// Transient failures (rate limits, timeouts, 5xx) are retried with backoff.
func (t *DeepSeekTranslator) Translate(ctx context.Context, prompt string) (Result, error) {
	if estimated := estimateTokens(prompt); estimated > t.maxInputTokens {
		return Result{}, fmt.Errorf("prompt is %dK tokens estimated, max %dK: %w",
			estimated/1000, t.maxInputTokens/1000, ErrPromptTooLong)
	}

	req := deepSeekRequest{
		Model:       t.model,
		MaxTokens:   t.maxOutputTokens,
		Temperature: 0,
		Messages: []deepSeekMessage{
			{Role: "user", Content: prompt},
		},
	}

	cfg := apierr.RetryConfig{
		MaxRetries: t.maxRetries,
		BaseDelay:  t.baseDelay,
		MaxDelay:   t.maxDelay,
	}

	return apierr.RetryWithBackoff(ctx, cfg, func() (Result, error) {
		resp, err := t.callAPI(ctx, req)
		if err != nil {
			return Result{}, classifyDeepSeekError(err)
		}
		if len(resp.Choices) == 0 {
			return Result{}, fmt.Errorf("no choices in response: %w", apierr.ErrAPIFailure)
		}
		return Result{
			Text:         resp.Choices[0].Message.Content,
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}, nil
	}, isRetryableDeepSeekError)
}

// deepSeekRequest represents a DeepSeek chat completion request.
type deepSeekRequest struct {
	Model       string            `json:"model"`
	Messages    []deepSeekMessage `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float64           `json:"temperature"`
}

// deepSeekMessage represents a message in the conversation.
type deepSeekMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// deepSeekResponse represents a DeepSeek chat completion response.
type deepSeekResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// deepSeekErrorResponse represents an error response from the DeepSeek API.
type deepSeekErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// callAPI makes one HTTP request to the DeepSeek API.
func (t *DeepSeekTranslator) callAPI(ctx context.Context, reqBody deepSeekRequest) (_ *deepSeekResponse, err error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := t.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close response body: %w", closeErr)
		}
	}()

	// Limit response size to prevent OOM from malformed responses.
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseDeepSeekError(resp.StatusCode, respBody)
	}

	var result deepSeekResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &result, nil
}

// deepSeekAPIError represents a typed DeepSeek API error.
type deepSeekAPIError struct {
	StatusCode int
	Message    string
	Type       string
	Code       string
}

func (e *deepSeekAPIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("DeepSeek API error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("DeepSeek API error %d", e.StatusCode)
}

// parseDeepSeekError parses an error response from the DeepSeek API.
func parseDeepSeekError(statusCode int, body []byte) *deepSeekAPIError {
	var errResp deepSeekErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		return &deepSeekAPIError{
			StatusCode: statusCode,
			Message:    string(body),
		}
	}

	return &deepSeekAPIError{
		StatusCode: statusCode,
		Message:    errResp.Error.Message,
		Type:       errResp.Error.Type,
		Code:       errResp.Error.Code,
	}
}

// classifyDeepSeekError maps DeepSeek API errors to sentinel errors.
func classifyDeepSeekError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *deepSeekAPIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests: // 429
			return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrRateLimit)
		case http.StatusUnauthorized: // 401
			return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrAuthFailed)
		case http.StatusPaymentRequired: // 402, insufficient balance
			return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrQuotaExceeded)
		case http.StatusRequestTimeout, http.StatusGatewayTimeout: // 408, 504
			return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrTimeout)
		case http.StatusBadRequest: // 400
			if strings.Contains(apiErr.Message, "context_length") ||
				strings.Contains(apiErr.Message, "maximum context length") ||
				strings.Contains(apiErr.Message, "too long") {
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

// isRetryableDeepSeekError determines if an error is transient.
func isRetryableDeepSeekError(err error) bool {
	if errors.Is(err, apierr.ErrRateLimit) || errors.Is(err, apierr.ErrTimeout) {
		return true
	}

	// Server errors (5xx) pass through classification typed; retry them.
	var apiErr *deepSeekAPIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
	}

	return false
}
