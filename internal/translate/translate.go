// Package translate sends rendered translation prompts to a chat completion
// provider and returns the raw response text together with token usage.
// The provider is picked from the model name; both implementations retry
// transient failures with exponential backoff.
package translate

import (
	"context"
	"strings"
)

// Result is one successful completion.
type Result struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Translator turns one translation prompt into raw model output.
type Translator interface {
	// Translate sends the prompt as a single user message and returns the
	// model's full text response.
	Translate(ctx context.Context, prompt string) (Result, error)

	// Model returns the model name requests are sent with.
	Model() string
}

// Provider identifies a chat completion backend.
type Provider string

const (
	ProviderDeepSeek Provider = "deepseek"
	ProviderOpenAI   Provider = "openai"
)

// ProviderFor picks the backend serving a model name. Anything that is not
// recognizably DeepSeek goes through the OpenAI-compatible client.
func ProviderFor(model string) Provider {
	if strings.Contains(strings.ToLower(model), "deepseek") {
		return ProviderDeepSeek
	}
	return ProviderOpenAI
}

// Input budget shared by both providers. Prompts carry one chunk's
// transcript plus its reference cues, so this is generous headroom.
const (
	defaultMaxInputTokens = 100000

	// Token estimation: conservative at ~3 chars per token.
	charsPerToken = 3
)

// estimateTokens estimates the number of tokens in a text.
func estimateTokens(text string) int {
	return len(text) / charsPerToken
}
