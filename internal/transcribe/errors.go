package transcribe

import "errors"

// ErrTranscriptRejected indicates every attempt produced a transcript that
// failed coverage validation.
var ErrTranscriptRejected = errors.New("transcript failed validation")
