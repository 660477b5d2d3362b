package pipeline

import "errors"

// ErrAllSegmentsFailed indicates no segment survived a stage, so there is
// nothing left to process.
var ErrAllSegmentsFailed = errors.New("all segments failed")

// ErrPartOutOfRange indicates --only-part named a segment the run does not
// have.
var ErrPartOutOfRange = errors.New("part out of range")

// ErrValidationExhausted marks a segment whose translations kept failing
// validation after every retry. Its parsed data stays on disk.
var ErrValidationExhausted = errors.New("validation retries exhausted")
