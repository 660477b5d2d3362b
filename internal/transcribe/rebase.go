package transcribe

import (
	"strings"

	"github.com/alnah/go-bisub/internal/timefmt"
)

// Rebase rewrites each line's first "mm:ss - mm:ss" range as an absolute
// "HH:MM:SS,mmm --> HH:MM:SS,mmm" range shifted by offsetSec, turning
// chunk-relative transcript times into video time. Lines without a range
// pass through untouched, so running Rebase twice is a no-op.
func Rebase(transcript string, offsetSec float64) string {
	lines := strings.Split(transcript, "\n")
	for i, line := range lines {
		start, end, loc, ok := timefmt.FindMMSSRange(line)
		if !ok {
			continue
		}
		lines[i] = line[:loc[0]] +
			timefmt.FormatSRT(start+offsetSec) + " --> " + timefmt.FormatSRT(end+offsetSec) +
			line[loc[1]:]
	}
	return strings.Join(lines, "\n")
}
