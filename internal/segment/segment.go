// Package segment models the chunks a source video is cut into and the
// working-directory layout their artifacts live in.
package segment

import (
	"fmt"

	"github.com/alnah/go-bisub/internal/timefmt"
)

// Status tracks a chunk through the stages.
type Status string

const (
	StatusPending      Status = "pending"
	StatusSplitting    Status = "splitting"
	StatusTranscribing Status = "transcribing"
	StatusPrompting    Status = "prompting"
	StatusTranslating  Status = "translating"
	StatusParsing      Status = "parsing"
	StatusValidating   Status = "validating"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// Attempt records one model call, successful or not, for cost accounting.
type Attempt struct {
	Model        string
	InputTokens  int
	OutputTokens int
}

// Record is the working state for one chunk. A record is owned by a single
// worker goroutine until the stage pool drains; only then does the
// orchestrator read it.
type Record struct {
	Part     int // 1-based chunk number
	StartSec float64
	EndSec   float64

	MediaPath    string
	RefPath      string // sliced reference SRT, empty when no reference file
	RawPath      string
	FailedPath   string // retention path for transcripts that failed validation
	AdjustedPath string
	ResponsePath string
	ParsedPath   string

	Status                Status
	TranscriptionAttempts []Attempt
	TranslationAttempts   []Attempt
	Err                   error
}

// DurationSec returns the chunk length in seconds.
func (r *Record) DurationSec() float64 {
	return r.EndSec - r.StartSec
}

// Fail marks the record failed and keeps the triggering error.
func (r *Record) Fail(err error) {
	r.Status = StatusFailed
	r.Err = err
}

// Label returns the zero-padded chunk name used in filenames and logs.
func (r *Record) Label() string {
	return Label(r.Part)
}

// String returns a human-readable representation for progress lines.
func (r *Record) String() string {
	return fmt.Sprintf("%s: %s-%s",
		r.Label(),
		timefmt.FormatSRT(r.StartSec),
		timefmt.FormatSRT(r.EndSec))
}

// Label formats a 1-based part number as "partNN".
func Label(part int) string {
	return fmt.Sprintf("part%02d", part)
}
