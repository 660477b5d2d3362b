package ffmpeg

import "errors"

// ErrNotFound indicates a required binary (ffmpeg or ffprobe) is not installed.
var ErrNotFound = errors.New("binary not found")

// ErrProbeFailed indicates the source media could not be probed for duration.
var ErrProbeFailed = errors.New("probe failed")

// ErrSliceFailed indicates a chunk could not be extracted from the source.
var ErrSliceFailed = errors.New("slice failed")
