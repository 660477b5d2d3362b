package gemini

import "errors"

// ErrEmptyAPIKey indicates that the API key was not provided.
var ErrEmptyAPIKey = errors.New("API key is required")

// ErrFileProcessing indicates an uploaded file never reached the ACTIVE
// state, either because the service rejected it or processing timed out.
var ErrFileProcessing = errors.New("file processing failed")
