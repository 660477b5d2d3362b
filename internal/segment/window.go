package segment

import (
	"fmt"
	"math"
)

// Window is a span of the source timeline, in absolute seconds.
type Window struct {
	StartSec float64
	EndSec   float64
}

// DurationSec returns the window length in seconds.
func (w Window) DurationSec() float64 {
	return w.EndSec - w.StartSec
}

// Windows computes chunk windows covering totalSec. Consecutive windows
// overlap by overlapSec so speech at a boundary lands in both chunks. A
// final window shorter than a third of chunkSec merges into the previous
// one instead of standing alone.
func Windows(totalSec, chunkSec, overlapSec float64) ([]Window, error) {
	if totalSec <= 0 {
		return nil, fmt.Errorf("total duration %gs: %w", totalSec, ErrInvalidWindowing)
	}
	if chunkSec <= 0 || overlapSec < 0 || overlapSec >= chunkSec {
		return nil, fmt.Errorf("chunk %gs overlap %gs: %w", chunkSec, overlapSec, ErrInvalidWindowing)
	}

	var windows []Window
	step := chunkSec - overlapSec
	for i := 0; ; i++ {
		start := float64(i) * step
		if start >= totalSec {
			break
		}
		end := math.Min(start+chunkSec, totalSec)
		windows = append(windows, Window{StartSec: start, EndSec: end})

		// Last window reached the end.
		if end >= totalSec {
			break
		}
	}

	if n := len(windows); n >= 2 {
		last := windows[n-1]
		if last.DurationSec() < chunkSec/3 {
			windows[n-2].EndSec = last.EndSec
			windows = windows[:n-1]
		}
	}
	return windows, nil
}

// Plan lays out one pending record per window with its artifact paths.
// mediaExt is "mp3" or "mp4" depending on the chunk format.
func Plan(windows []Window, l Layout, mediaExt string, withReference bool) []*Record {
	records := make([]*Record, 0, len(windows))
	for i, w := range windows {
		part := i + 1
		r := &Record{
			Part:         part,
			StartSec:     w.StartSec,
			EndSec:       w.EndSec,
			MediaPath:    l.MediaPath(part, mediaExt),
			RawPath:      l.RawPath(part),
			FailedPath:   l.FailedRawPath(part),
			AdjustedPath: l.AdjustedPath(part),
			ResponsePath: l.ResponsePath(part),
			ParsedPath:   l.ParsedPath(part),
			Status:       StatusPending,
		}
		if withReference {
			r.RefPath = l.RefPath(part)
		}
		records = append(records, r)
	}
	return records
}
