// Package merge assembles parsed per-segment entries into the final
// bilingual cue list: cross-segment deduplication, timing repair, and SRT
// rendering.
package merge

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/alnah/go-bisub/internal/issue"
	"github.com/alnah/go-bisub/internal/srt"
	"github.com/alnah/go-bisub/internal/subline"
)

// TimingSource records where a final cue's times came from.
type TimingSource string

const (
	// TimingLLM means the model's own parsed timing range was used.
	TimingLLM TimingSource = "llm"

	// TimingOriginal means the matching reference cue's times were used.
	TimingOriginal TimingSource = "original"
)

// Final is one merged bilingual cue, not yet numbered or offset.
type Final struct {
	OriginalID   string
	StartSec     float64
	EndSec       float64
	English      string
	Target       string
	IsFallback   bool
	TimingSource TimingSource
}

// Duration returns the cue length in seconds.
func (f Final) Duration() float64 {
	return f.EndSec - f.StartSec
}

// Merge combines entries from all segments into final cues. Per original id
// the entry from the highest segment wins (later segments re-cover overlap
// windows with more context). Entries the model marked with the skip marker
// are dropped, as are entries with no usable timing.
//
// useResponseTimings prefers the model's parsed times over the reference;
// without it the reference is the only timing source and its absence is a
// hard error.
func Merge(entries []subline.Entry, reference []srt.Entry, targetKey string, useResponseTimings bool, c *issue.Collector) ([]Final, error) {
	if !useResponseTimings && len(reference) == 0 {
		return nil, fmt.Errorf("response timings disabled and no reference subtitles: %w", ErrNoTimingSource)
	}

	// Highest segment wins per id.
	byID := make(map[string]subline.Entry, len(entries))
	for _, e := range entries {
		if prev, ok := byID[e.OriginalID]; ok && prev.SourceChunk >= e.SourceChunk {
			continue
		}
		byID[e.OriginalID] = e
	}

	ordered := make([]subline.Entry, 0, len(byID))
	for _, e := range byID {
		ordered = append(ordered, e)
	}
	// The raw id breaks numeric ties so map iteration order cannot leak into
	// the output.
	sort.Slice(ordered, func(i, j int) bool {
		if a, b := ordered[i].IDNum(), ordered[j].IDNum(); a != b {
			return a < b
		}
		return ordered[i].OriginalID < ordered[j].OriginalID
	})

	refByID := make(map[int]srt.Entry, len(reference))
	for _, r := range reference {
		refByID[r.ID] = r
	}

	var finals []Final
	for _, e := range ordered {
		english, _ := e.Translation(subline.EnglishKey)
		target, _ := e.Translation(targetKey)

		if english == subline.SkipMarker || target == subline.SkipMarker {
			c.Add(issue.Issue{
				Kind:       issue.Merge,
				Severity:   issue.SeverityInfo,
				Message:    "subtitle marked for skipping by the model",
				Part:       e.SourceChunk,
				SubtitleID: e.OriginalID,
			})
			continue
		}

		f := Final{OriginalID: e.OriginalID, Target: target}

		ref, hasRef := lookupRef(refByID, e.OriginalID)
		switch {
		case useResponseTimings && e.HasTimes():
			f.StartSec, f.EndSec = *e.StartSec, *e.EndSec
			f.TimingSource = TimingLLM
		case hasRef:
			f.StartSec, f.EndSec = ref.StartSec, ref.EndSec
			f.TimingSource = TimingOriginal
		default:
			c.Add(issue.Issue{
				Kind:       issue.Merge,
				Severity:   issue.SeverityWarning,
				Message:    "no usable timing for subtitle; dropped",
				Part:       e.SourceChunk,
				SubtitleID: e.OriginalID,
			})
			continue
		}

		switch {
		case english != "":
			f.English = english
		case hasRef:
			f.English = ref.Text
			f.IsFallback = true
		}

		finals = append(finals, f)
	}

	if len(finals) == 0 {
		return nil, fmt.Errorf("%d parsed entries yielded no cues: %w", len(entries), ErrNothingToMerge)
	}

	sortByStart(finals)
	return finals, nil
}

// lookupRef resolves a parsed id against the reference cues.
func lookupRef(refByID map[int]srt.Entry, id string) (srt.Entry, bool) {
	n, err := strconv.Atoi(id)
	if err != nil {
		return srt.Entry{}, false
	}
	r, ok := refByID[n]
	return r, ok
}

// sortByStart orders cues by start time, numeric id breaking ties so equal
// starts keep a stable, reproducible order.
func sortByStart(finals []Final) {
	sort.SliceStable(finals, func(i, j int) bool {
		if finals[i].StartSec != finals[j].StartSec {
			return finals[i].StartSec < finals[j].StartSec
		}
		return idNum(finals[i].OriginalID) < idNum(finals[j].OriginalID)
	})
}

func idNum(id string) int {
	n, _ := strconv.Atoi(id)
	return n
}
