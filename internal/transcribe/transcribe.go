// Package transcribe runs the transcription stage for one segment: upload
// the media slice, request a timestamped transcript, check that it plausibly
// covers the chunk, and retry with a fresh upload when it does not. Rejected
// transcripts are kept on disk with the rejection reason for post-mortem.
package transcribe

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/alnah/go-bisub/internal/gemini"
	"github.com/alnah/go-bisub/internal/issue"
	"github.com/alnah/go-bisub/internal/segment"
	"github.com/alnah/go-bisub/internal/timefmt"
)

// Coverage thresholds for accepting a transcript. A transcript is rejected
// when it has too few timestamped lines, spans too little of the chunk, or
// spans much less than the reference subtitles for the same window.
const (
	minTimestampedLines = 5
	minChunkCoverage    = 0.75
	minRefCoverage      = 0.90

	// Reference slices shorter than this carry no usable timing signal.
	minUsefulRefSpanSec = 1.0
)

const (
	defaultRetries = 2

	// deleteTimeout bounds the remote file cleanup, which runs on a detached
	// context so cancellation cannot leak uploads.
	deleteTimeout = 30 * time.Second
)

// MediaClient is the remote transcription surface the stage needs.
// *gemini.Client implements it.
type MediaClient interface {
	Upload(ctx context.Context, path string) (gemini.RemoteFile, error)
	Transcribe(ctx context.Context, file gemini.RemoteFile, prompt string) (gemini.Transcript, error)
	Delete(ctx context.Context, file gemini.RemoteFile) error
	Model() string
}

var _ MediaClient = (*gemini.Client)(nil)

// Transcriber drives the attempt loop for segments.
type Transcriber struct {
	client  MediaClient
	retries int
}

// Option configures a Transcriber.
type Option func(*Transcriber)

// WithRetries sets how many extra attempts a rejected transcript gets.
func WithRetries(n int) Option {
	return func(t *Transcriber) {
		if n >= 0 {
			t.retries = n
		}
	}
}

func New(client MediaClient, opts ...Option) *Transcriber {
	t := &Transcriber{client: client, retries: defaultRetries}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run transcribes one segment's media slice. Every model call is recorded on
// the record for cost accounting, accepted or not. API errors abort the loop
// immediately; only validation rejections are retried. On success the raw
// transcript lands at rec.RawPath and the record moves to prompting.
//
// refSpanSec is the time span covered by the segment's reference subtitle
// slice, zero when the run has no reference.
func (t *Transcriber) Run(ctx context.Context, rec *segment.Record, prompt string, refSpanSec float64, c *issue.Collector) error {
	attempts := t.retries + 1
	var lastReason string

	for attempt := 1; attempt <= attempts; attempt++ {
		tr, err := t.transcribeOnce(ctx, rec.MediaPath, prompt)
		if err != nil {
			return err
		}
		rec.TranscriptionAttempts = append(rec.TranscriptionAttempts, segment.Attempt{
			Model:        t.client.Model(),
			InputTokens:  tr.InputTokens,
			OutputTokens: tr.OutputTokens,
		})

		reason := checkCoverage(tr.Text, rec.DurationSec(), refSpanSec)
		if reason == "" {
			if err := os.WriteFile(rec.RawPath, []byte(tr.Text), 0o644); err != nil {
				return fmt.Errorf("saving raw transcript: %w", err)
			}
			rec.Status = segment.StatusPrompting
			return nil
		}

		lastReason = reason
		reject := fmt.Sprintf("VALIDATION FAILED (attempt %d): %s\n\n%s", attempt, reason, tr.Text)
		if err := os.WriteFile(rec.FailedPath, []byte(reject), 0o644); err != nil {
			return fmt.Errorf("saving rejected transcript: %w", err)
		}
		c.Add(issue.Issue{
			Kind:     issue.Transcription,
			Severity: issue.SeverityWarning,
			Part:     rec.Part,
			Message:  fmt.Sprintf("transcript rejected on attempt %d/%d: %s", attempt, attempts, reason),
		})
	}

	return fmt.Errorf("%s after %d attempts (%s): %w",
		rec.Label(), attempts, lastReason, ErrTranscriptRejected)
}

// transcribeOnce uploads the slice, generates, and always deletes the remote
// copy, even when generation fails or the context is already canceled.
func (t *Transcriber) transcribeOnce(ctx context.Context, mediaPath, prompt string) (gemini.Transcript, error) {
	file, err := t.client.Upload(ctx, mediaPath)
	if err != nil {
		return gemini.Transcript{}, fmt.Errorf("upload failed: %w", err)
	}
	defer func() {
		delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deleteTimeout)
		defer cancel()
		_ = t.client.Delete(delCtx, file)
	}()

	return t.client.Transcribe(ctx, file, prompt)
}

// checkCoverage decides whether a transcript plausibly covers the chunk.
// The empty string means it does; otherwise the reason feeds the retained
// artifact and the issue log.
func checkCoverage(transcript string, chunkDurSec, refSpanSec float64) string {
	ranges, span := measure(transcript)
	if ranges < minTimestampedLines {
		return fmt.Sprintf("only %d timestamped lines, want at least %d",
			ranges, minTimestampedLines)
	}
	if span < minChunkCoverage*chunkDurSec {
		return fmt.Sprintf("transcript spans %.0fs of a %.0fs chunk, want at least %.0f%%",
			span, chunkDurSec, minChunkCoverage*100)
	}
	if refSpanSec > minUsefulRefSpanSec && span < minRefCoverage*refSpanSec {
		return fmt.Sprintf("transcript spans %.0fs but the reference spans %.0fs, want at least %.0f%%",
			span, refSpanSec, minRefCoverage*100)
	}
	return ""
}

// measure counts the timestamped lines and the total time span they cover.
func measure(transcript string) (ranges int, spanSec float64) {
	first := math.Inf(1)
	last := math.Inf(-1)
	for _, line := range strings.Split(transcript, "\n") {
		start, end, _, ok := timefmt.FindMMSSRange(line)
		if !ok {
			continue
		}
		ranges++
		first = math.Min(first, math.Min(start, end))
		last = math.Max(last, math.Max(start, end))
	}
	if ranges == 0 {
		return 0, 0
	}
	return ranges, last - first
}
