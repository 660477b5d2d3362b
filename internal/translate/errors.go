package translate

import "errors"

// ErrEmptyAPIKey indicates that the API key was not provided.
var ErrEmptyAPIKey = errors.New("API key is required")

// ErrPromptTooLong indicates the rendered prompt exceeds the provider's
// input budget. Not retryable; the chunking parameters must change.
var ErrPromptTooLong = errors.New("prompt too long")
