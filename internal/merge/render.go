package merge

import (
	"fmt"
	"strings"

	"github.com/alnah/go-bisub/internal/issue"
	"github.com/alnah/go-bisub/internal/timefmt"
)

// DefaultFallbackMarker prefixes English lines that were copied from the
// reference because the model returned nothing better.
const DefaultFallbackMarker = "[*] "

// RenderOptions style the final SRT.
type RenderOptions struct {
	// OffsetSec shifts every cue; cues starting before zero are dropped.
	OffsetSec float64

	// Font colors, as #RRGGBB strings.
	ColorEnglish string
	ColorTarget  string

	// MarkFallbacks prefixes fallback English lines with FallbackMarker.
	MarkFallbacks  bool
	FallbackMarker string
}

// Render serializes repaired cues as bilingual SRT text: per cue a fresh
// sequence number, the timing line, then the English and target lines each
// wrapped in a font color tag. Cues with no text at all are dropped.
func Render(finals []Final, opts RenderOptions, c *issue.Collector) string {
	marker := opts.FallbackMarker
	if marker == "" {
		marker = DefaultFallbackMarker
	}

	var b strings.Builder
	id := 1
	for _, f := range finals {
		start := f.StartSec + opts.OffsetSec
		end := f.EndSec + opts.OffsetSec
		if start < 0 {
			c.Add(issue.Issue{
				Kind:       issue.Format,
				Severity:   issue.SeverityWarning,
				Message:    fmt.Sprintf("dropping cue shifted before zero by offset %+.3fs", opts.OffsetSec),
				SubtitleID: f.OriginalID,
			})
			continue
		}

		english := f.English
		if f.IsFallback && opts.MarkFallbacks && english != "" {
			english = marker + english
		}
		if english == "" && f.Target == "" {
			c.Add(issue.Issue{
				Kind:       issue.Format,
				Severity:   issue.SeverityWarning,
				Message:    "dropping cue with no text",
				SubtitleID: f.OriginalID,
			})
			continue
		}

		if id > 1 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n", id, timefmt.FormatSRT(start), timefmt.FormatSRT(end))
		if english != "" {
			fmt.Fprintf(&b, "<font color=\"%s\">%s</font>\n", opts.ColorEnglish, english)
		}
		if f.Target != "" {
			fmt.Fprintf(&b, "<font color=\"%s\">%s</font>\n", opts.ColorTarget, f.Target)
		}
		id++
	}
	return b.String()
}
