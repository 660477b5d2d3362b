package subline

import (
	"fmt"
	"math"
	"strconv"

	"github.com/alnah/go-bisub/internal/srt"
)

// Validation thresholds. Rates are relative to the reference cues for the
// same window; a segment without reference cues is trivially valid.
const (
	maxParseErrorRate = 0.05
	minCountCoverage  = 0.90
	minIDCoverage     = 0.90
	timingMarginSec   = 3.0
	maxTimingMismatch = 0.10
)

// ValidateOptions adjusts how strict a verdict is.
type ValidateOptions struct {
	// DisableTiming skips the timing consistency check entirely.
	DisableTiming bool

	// LastSegment and FinalAttempt together downgrade a timing failure to a
	// warning. The tail of a video legitimately drifts from its reference
	// when credits or silence pad the end, and there is no retry left that
	// could do better.
	LastSegment  bool
	FinalAttempt bool
}

// Verdict is the outcome of validating one segment's parsed entries.
// Critical findings mean the segment should be retried; warnings ride along
// into the report.
type Verdict struct {
	OK       bool
	Critical []string
	Warnings []string
}

// Validate scores parsed entries against the reference cues covering the
// same window. parseErrors is how many error-severity parse issues the
// response produced.
func Validate(entries []Entry, reference []srt.Entry, parseErrors int, opts ValidateOptions) Verdict {
	v := Verdict{OK: true}
	if len(reference) == 0 {
		return v
	}

	refCount := float64(len(reference))

	if rate := float64(parseErrors) / refCount; rate > maxParseErrorRate {
		v.fail(fmt.Sprintf("parse error rate %.2f exceeds %.2f (%d errors for %d reference cues)",
			rate, maxParseErrorRate, parseErrors, len(reference)))
	}

	if coverage := float64(len(entries)) / refCount; coverage < minCountCoverage {
		v.fail(fmt.Sprintf("only %d of %d reference cues came back (coverage %.2f, need %.2f)",
			len(entries), len(reference), coverage, minCountCoverage))
	}

	byID := make(map[string]Entry, len(entries))
	for _, e := range entries {
		if _, ok := byID[e.OriginalID]; !ok {
			byID[e.OriginalID] = e
		}
	}
	matchedIDs := 0
	for _, r := range reference {
		if _, ok := byID[strconv.Itoa(r.ID)]; ok {
			matchedIDs++
		}
	}
	if coverage := float64(matchedIDs) / refCount; coverage < minIDCoverage {
		v.fail(fmt.Sprintf("%d of %d reference ids matched (coverage %.2f, need %.2f)",
			matchedIDs, len(reference), coverage, minIDCoverage))
	}

	if !opts.DisableTiming {
		v.checkTiming(byID, reference, opts.LastSegment && opts.FinalAttempt)
	}

	return v
}

// checkTiming compares parsed times against the reference per matched id.
// A pair whose start offset or duration drifts beyond the margin is a
// mismatch; only the aggregate rate fails the segment.
func (v *Verdict) checkTiming(byID map[string]Entry, reference []srt.Entry, lenient bool) {
	matched, mismatched := 0, 0
	for _, r := range reference {
		e, ok := byID[strconv.Itoa(r.ID)]
		if !ok || !e.HasTimes() {
			continue
		}
		matched++
		startDelta := math.Abs(*e.StartSec - r.StartSec)
		durDelta := math.Abs((*e.EndSec - *e.StartSec) - r.Duration())
		if startDelta > timingMarginSec || durDelta > timingMarginSec {
			mismatched++
		}
	}
	if matched == 0 {
		return
	}

	rate := float64(mismatched) / float64(matched)
	if rate <= maxTimingMismatch {
		return
	}
	msg := fmt.Sprintf("timing mismatch rate %.2f exceeds %.2f (%d of %d matched cues drift beyond %.1fs)",
		rate, maxTimingMismatch, mismatched, matched, timingMarginSec)
	if lenient {
		v.Warnings = append(v.Warnings, msg+"; accepted on the last segment's final attempt")
		return
	}
	v.fail(msg)
}

func (v *Verdict) fail(msg string) {
	v.OK = false
	v.Critical = append(v.Critical, msg)
}
