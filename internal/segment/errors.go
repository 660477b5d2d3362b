package segment

import "errors"

// ErrInvalidWindowing indicates chunk parameters that cannot cover the
// timeline: non-positive duration or chunk size, or overlap >= chunk.
var ErrInvalidWindowing = errors.New("invalid windowing parameters")
