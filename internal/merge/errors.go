package merge

import "errors"

// ErrNoTimingSource indicates there is nowhere to take cue timings from:
// response timings are disabled and no reference subtitles were provided.
var ErrNoTimingSource = errors.New("no timing source available")

// ErrNothingToMerge indicates no parsed entry survived merging.
var ErrNothingToMerge = errors.New("no subtitles to merge")
