package lang

import "errors"

// ErrInvalid indicates a language that is neither a recognized ISO 639-1
// code nor a recognized English language name.
var ErrInvalid = errors.New("invalid language")
