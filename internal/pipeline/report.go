package pipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/alnah/go-bisub/internal/cost"
	"github.com/alnah/go-bisub/internal/issue"
	"github.com/alnah/go-bisub/internal/segment"
	"github.com/alnah/go-bisub/internal/timefmt"
)

// maxReportIssues bounds the issue list in the final report; the full set
// stays available in the structured log.
const maxReportIssues = 50

// report prints the end-of-run summary: segment counts, per-model costs,
// and the collected issues.
func (p *Pipeline) report(records []*segment.Record, durationSec float64, elapsed time.Duration, outPath string) {
	w := p.deps.Stderr

	completed, failed := 0, 0
	for _, rec := range records {
		switch rec.Status {
		case segment.StatusCompleted:
			completed++
		case segment.StatusFailed:
			failed++
		}
	}

	fmt.Fprintf(w, "\ndone in %s: %d/%d segment(s) completed",
		timefmt.DurationHuman(elapsed), completed, len(records))
	if failed > 0 {
		fmt.Fprintf(w, ", %d failed", failed)
	}
	fmt.Fprintln(w)

	p.reportCosts(w, records, durationSec)
	p.reportIssues(w)
	fmt.Fprintf(w, "output: %s\n", outPath)
}

func (p *Pipeline) reportCosts(w io.Writer, records []*segment.Record, durationSec float64) {
	sum := cost.NewSummary()
	for _, rec := range records {
		for _, a := range rec.TranscriptionAttempts {
			sum.Add(a.Model, a.InputTokens, a.OutputTokens)
		}
		for _, a := range rec.TranslationAttempts {
			sum.Add(a.Model, a.InputTokens, a.OutputTokens)
		}
	}
	models := sum.Models()
	if len(models) == 0 {
		return
	}

	fmt.Fprintln(w, "cost:")
	for _, u := range models {
		if u.Priced {
			fmt.Fprintf(w, "  %s: %d call(s), %d in / %d out tokens, $%.4f\n",
				u.Model, u.Calls, u.InputTokens, u.OutputTokens, u.USD)
			continue
		}
		fmt.Fprintf(w, "  %s: %d call(s), %d in / %d out tokens (no pricing data)\n",
			u.Model, u.Calls, u.InputTokens, u.OutputTokens)
		p.issues.Add(issue.Issue{
			Kind:     issue.Format,
			Severity: issue.SeverityWarning,
			Message:  fmt.Sprintf("no pricing for model %q; token counts reported unpriced", u.Model),
		})
	}

	totalLine := fmt.Sprintf("  total: $%.4f, %d tokens", sum.TotalUSD(), sum.TotalTokens())
	if durationSec > 0 {
		totalLine += fmt.Sprintf(", $%.4f per media minute", sum.TotalUSD()/(durationSec/60))
	}
	fmt.Fprintln(w, totalLine)
}

func (p *Pipeline) reportIssues(w io.Writer) {
	all := p.issues.Issues()
	if len(all) == 0 {
		return
	}

	fmt.Fprintf(w, "issues: %d error(s), %d warning(s), %d info\n",
		p.issues.Count(issue.SeverityError),
		p.issues.Count(issue.SeverityWarning),
		p.issues.Count(issue.SeverityInfo))

	shown := all
	if len(shown) > maxReportIssues {
		shown = shown[:maxReportIssues]
	}
	for _, i := range shown {
		fmt.Fprintf(w, "  %s\n", i.String())
	}
	if rest := len(all) - len(shown); rest > 0 {
		fmt.Fprintf(w, "  ... and %d more\n", rest)
	}
}
