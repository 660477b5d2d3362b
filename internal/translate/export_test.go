package translate

// Exports for testing. These allow black-box tests to inject dependencies
// without modifying the public API.

// Option exports for dependency injection in tests.
var (
	WithChatCompleter      = withChatCompleter
	WithDeepSeekHTTPClient = withDeepSeekHTTPClient
)

// Function exports for unit testing internal logic.
var (
	ClassifyOpenAIError      = classifyOpenAIError
	IsRetryableOpenAIError   = isRetryableOpenAIError
	ClassifyDeepSeekError    = classifyDeepSeekError
	IsRetryableDeepSeekError = isRetryableDeepSeekError
	EstimateTokens           = estimateTokens
)
