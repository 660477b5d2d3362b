package merge

import (
	"fmt"

	"github.com/alnah/go-bisub/internal/issue"
)

// Timing repair bounds. Cues shorter than minCueDuration are unreadable,
// longer than maxCueDuration they overstay; overlapping cues get shortened
// down to minCueGap apart.
const (
	minCueDuration  = 0.5
	maxCueDuration  = 7.0
	minCueGap       = 0.05
	maxRepairPasses = 10
)

// Repair resolves overlaps between adjacent cues by shortening the earlier
// one, then clamps every duration into [minCueDuration, maxCueDuration].
// Overlaps that cannot be shortened away (the cue would drop below the
// minimum) are reported and left; clamping may reintroduce small overlaps,
// which is accepted over losing text.
func Repair(finals []Final, c *issue.Collector) []Final {
	sortByStart(finals)

	for pass := 0; pass < maxRepairPasses; pass++ {
		changed := false
		for i := 0; i+1 < len(finals); i++ {
			cur, nxt := &finals[i], &finals[i+1]
			if cur.EndSec <= nxt.StartSec {
				continue
			}
			target := min(cur.StartSec+maxCueDuration, nxt.StartSec-minCueGap)
			if target-cur.StartSec < minCueDuration {
				continue
			}
			if target != cur.EndSec {
				cur.EndSec = target
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	// Whatever still overlaps could not be shortened within bounds.
	for i := 0; i+1 < len(finals); i++ {
		if finals[i].EndSec > finals[i+1].StartSec {
			c.Add(issue.Issue{
				Kind:       issue.Merge,
				Severity:   issue.SeverityWarning,
				Message:    fmt.Sprintf("cues overlap by %.2fs and cannot be shortened further", finals[i].EndSec-finals[i+1].StartSec),
				SubtitleID: finals[i].OriginalID,
			})
		}
	}

	for i := range finals {
		f := &finals[i]
		switch {
		case f.Duration() < minCueDuration:
			f.EndSec = f.StartSec + minCueDuration
		case f.Duration() > maxCueDuration:
			f.EndSec = f.StartSec + maxCueDuration
		}
	}

	sortByStart(finals)
	return finals
}
