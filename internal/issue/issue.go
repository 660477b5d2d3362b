// Package issue collects non-fatal diagnostics produced while a video is
// processed. Stages append findings to a shared Collector instead of
// aborting, and the final report prints them grouped by severity.
package issue

import (
	"fmt"
	"strings"
	"sync"
)

// Severity ranks a finding. Errors mark data that was dropped or replaced,
// warnings mark degraded output, infos record notable but harmless events.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Kind identifies the failure class of a finding. Parse kinds carry a
// "ParseError/" prefix so reports group them under the parsing stage.
type Kind string

const (
	Split         Kind = "SplitError"
	Transcription Kind = "TranscriptionError"
	Translation   Kind = "TranslationError"
	Validation    Kind = "ValidationError"
	Merge         Kind = "MergeError"
	Format        Kind = "FormatError"
)

// Parse failure kinds, one per way a model response can defeat the parser.
const (
	MissingTag                  Kind = "ParseError/MissingTag"
	MalformedTag                Kind = "ParseError/MalformedTag"
	NumberNotFound              Kind = "ParseError/NumberNotFound"
	TextNotFound                Kind = "ParseError/TextNotFound"
	InvalidTimingFormat         Kind = "ParseError/InvalidTimingFormat"
	InvalidTimingValue          Kind = "ParseError/InvalidTimingValue"
	DuplicateID                 Kind = "ParseError/DuplicateId"
	AmbiguousStructure          Kind = "ParseError/AmbiguousStructure"
	ExtractionFailed            Kind = "ParseError/ExtractionFailed"
	MarkdownBlockEmptyOrInvalid Kind = "ParseError/MarkdownBlockEmptyOrInvalid"
)

// IsParse reports whether k belongs to the parsing stage.
func (k Kind) IsParse() bool {
	return strings.HasPrefix(string(k), "ParseError/")
}

// maxContextLen caps the source snippet attached to an issue.
const maxContextLen = 150

// Issue is a single diagnostic finding.
type Issue struct {
	Kind       Kind     `json:"kind"`
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	Part       int      `json:"part,omitempty"`
	SubtitleID string   `json:"subtitle_id,omitempty"`
	Line       int      `json:"line,omitempty"`
	Context    string   `json:"context,omitempty"`
}

// String renders the issue as a single report line.
func (i Issue) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", i.Severity, i.Kind)

	var loc []string
	if i.Part > 0 {
		loc = append(loc, fmt.Sprintf("part %d", i.Part))
	}
	if i.SubtitleID != "" {
		loc = append(loc, "id "+i.SubtitleID)
	}
	if i.Line > 0 {
		loc = append(loc, fmt.Sprintf("line %d", i.Line))
	}
	if len(loc) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(loc, ", "))
	}

	b.WriteString(": ")
	b.WriteString(i.Message)
	if i.Context != "" {
		fmt.Fprintf(&b, " near %q", i.Context)
	}
	return b.String()
}

// Snippet collapses whitespace in s and clamps it to the context length
// limit so each issue stays on one report line. Truncation is rune-aware.
func Snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= maxContextLen {
		return s
	}
	return string(r[:maxContextLen-3]) + "..."
}

// Collector accumulates issues from concurrent stages.
type Collector struct {
	mu     sync.Mutex
	issues []Issue
}

func NewCollector() *Collector {
	return &Collector{}
}

// Add appends one issue.
func (c *Collector) Add(i Issue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issues = append(c.issues, i)
}

// Extend appends a batch of issues produced by a single stage.
func (c *Collector) Extend(batch []Issue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issues = append(c.issues, batch...)
}

// Issues returns a copy of everything collected so far.
func (c *Collector) Issues() []Issue {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Issue, len(c.issues))
	copy(out, c.issues)
	return out
}

// Count returns how many collected issues carry the given severity.
func (c *Collector) Count(s Severity) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, i := range c.issues {
		if i.Severity == s {
			n++
		}
	}
	return n
}
