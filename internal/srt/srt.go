// Package srt reads and writes SubRip subtitle files. Parsing is tolerant:
// malformed blocks are reported as issues and skipped rather than failing
// the whole file.
package srt

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/alnah/go-bisub/internal/issue"
	"github.com/alnah/go-bisub/internal/timefmt"
)

// Entry is one subtitle cue. Text keeps internal newlines.
type Entry struct {
	ID       int
	StartSec float64
	EndSec   float64
	Text     string
}

// Duration returns the cue length in seconds.
func (e Entry) Duration() float64 {
	return e.EndSec - e.StartSec
}

// Parse reads SRT content. A UTF-8 BOM and Windows line endings are
// accepted. offsetSec shifts every cue; cues whose shifted start would be
// negative are dropped. Malformed blocks are recorded on c and skipped.
func Parse(content string, offsetSec float64, c *issue.Collector) []Entry {
	content = strings.TrimPrefix(content, "\uFEFF")
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	lines := strings.Split(content, "\n")

	var entries []Entry
	i := 0
	for i < len(lines) {
		for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
			i++
		}
		if i >= len(lines) {
			break
		}

		blockLine := i + 1
		var block []string
		for i < len(lines) && strings.TrimSpace(lines[i]) != "" {
			block = append(block, lines[i])
			i++
		}

		entry, err := parseBlock(block)
		if err != nil {
			if c != nil {
				c.Add(issue.Issue{
					Kind:     issue.Format,
					Severity: issue.SeverityWarning,
					Message:  fmt.Sprintf("skipping malformed subtitle block: %v", err),
					Line:     blockLine,
					Context:  issue.Snippet(strings.Join(block, " ")),
				})
			}
			continue
		}

		entry.StartSec += offsetSec
		entry.EndSec += offsetSec
		if entry.StartSec < 0 {
			if c != nil {
				c.Add(issue.Issue{
					Kind:       issue.Format,
					Severity:   issue.SeverityWarning,
					Message:    fmt.Sprintf("dropping cue shifted before zero by offset %+.3fs", offsetSec),
					SubtitleID: strconv.Itoa(entry.ID),
					Line:       blockLine,
				})
			}
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

func parseBlock(block []string) (Entry, error) {
	if len(block) < 3 {
		return Entry{}, fmt.Errorf("want index, timing and text, got %d lines", len(block))
	}
	id, err := strconv.Atoi(strings.TrimSpace(block[0]))
	if err != nil {
		return Entry{}, fmt.Errorf("index %q is not a number", strings.TrimSpace(block[0]))
	}
	start, end, err := parseTiming(block[1])
	if err != nil {
		return Entry{}, err
	}
	text := strings.TrimSpace(strings.Join(block[2:], "\n"))
	if text == "" {
		return Entry{}, fmt.Errorf("cue %d has no text", id)
	}
	return Entry{ID: id, StartSec: start, EndSec: end, Text: text}, nil
}

func parseTiming(line string) (float64, float64, error) {
	left, right, found := strings.Cut(line, "-->")
	if !found {
		return 0, 0, fmt.Errorf("timing line %q has no arrow", strings.TrimSpace(line))
	}
	start, err := timefmt.ParseSRT(left)
	if err != nil {
		return 0, 0, fmt.Errorf("bad start time: %w", err)
	}
	end, err := timefmt.ParseSRT(right)
	if err != nil {
		return 0, 0, fmt.Errorf("bad end time: %w", err)
	}
	return start, end, nil
}

// ParseFile reads and parses the SRT file at path.
func ParseFile(path string, offsetSec float64, c *issue.Collector) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading subtitle file: %w", err)
	}
	return Parse(string(data), offsetSec, c), nil
}

// Window returns the cues overlapping [startSec, endSec). IDs and absolute
// times are preserved.
func Window(entries []Entry, startSec, endSec float64) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.EndSec > startSec && e.StartSec < endSec {
			out = append(out, e)
		}
	}
	return out
}

// Span returns the time covered from the earliest start to the latest end,
// or zero for an empty slice.
func Span(entries []Entry) float64 {
	if len(entries) == 0 {
		return 0
	}
	minStart := entries[0].StartSec
	maxEnd := entries[0].EndSec
	for _, e := range entries[1:] {
		minStart = math.Min(minStart, e.StartSec)
		maxEnd = math.Max(maxEnd, e.EndSec)
	}
	return maxEnd - minStart
}

// Serialize renders entries as SRT text with Unix line endings and a blank
// line between cues. IDs are written as stored, without renumbering.
func Serialize(entries []Entry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n",
			e.ID,
			timefmt.FormatSRT(e.StartSec),
			timefmt.FormatSRT(e.EndSec),
			e.Text)
	}
	return b.String()
}
