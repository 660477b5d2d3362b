package cli

import "errors"

// CLI-specific sentinel errors: validation and setup failures that belong to
// the command boundary rather than a domain package.

var (
	// ErrFileNotFound indicates the video or reference file does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrInvalidFlag indicates a flag value or combination that cannot work.
	ErrInvalidFlag = errors.New("invalid flag value")

	// ErrGeminiKeyMissing indicates GEMINI_API_KEY is not set.
	ErrGeminiKeyMissing = errors.New("GEMINI_API_KEY environment variable not set")

	// ErrDeepSeekKeyMissing indicates DEEPSEEK_API_KEY is not set.
	ErrDeepSeekKeyMissing = errors.New("DEEPSEEK_API_KEY environment variable not set")

	// ErrOpenAIKeyMissing indicates OPENAI_API_KEY is not set.
	ErrOpenAIKeyMissing = errors.New("OPENAI_API_KEY environment variable not set")
)
