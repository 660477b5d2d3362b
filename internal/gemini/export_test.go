package gemini

// Exports for testing. These allow black-box tests to inject dependencies
// without modifying the public API.

// Option export for dependency injection in tests.
var WithHTTPClient = withHTTPClient

// Function exports for unit testing internal logic.
var (
	ClassifyError = classifyError
	ParseError    = parseError
	MIMETypeFor   = mimeTypeFor
	CollectStream = collectStream
)
