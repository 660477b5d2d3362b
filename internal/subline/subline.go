// Package subline interprets translation model responses. The model is
// asked for <subline> blocks inside a fenced code block, but responses
// drift: tags get misspelled, closers go missing, blocks escape the fence.
// The parser here recovers everything recoverable and reports the rest as
// issues instead of failing the chunk.
package subline

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/alnah/go-bisub/internal/issue"
)

// SkipMarker is the exact translation value the model returns for subtitles
// that must not appear in the output (credits, untranslatable lyrics).
const SkipMarker = "[SKIP THIS SUBTITLE]"

// EnglishKey is the translations-map key for the improved English line.
// The target language key is the language tag.
const EnglishKey = "english"

// SourceFormat records which structural path recovered an entry, kept in
// the parsed artifact for postmortems on bad responses.
type SourceFormat string

const (
	SourceFencedBlock   SourceFormat = "fencedBlock"
	SourceBareTag       SourceFormat = "bareTag"
	SourceRegexFallback SourceFormat = "regexFallback"
)

// Entry is one parsed subtitle record from a model response.
type Entry struct {
	OriginalID   string             `json:"original_id"`
	OriginalLine string             `json:"original_line,omitempty"`
	Timing       string             `json:"original_timing,omitempty"`
	StartSec     *float64           `json:"start_sec,omitempty"`
	EndSec       *float64           `json:"end_sec,omitempty"`
	Translations map[string]*string `json:"translations"`
	SourceChunk  int                `json:"source_chunk"`
	SourceFormat SourceFormat       `json:"source_format"`
}

// HasTimes reports whether the response carried a usable timing range.
func (e Entry) HasTimes() bool {
	return e.StartSec != nil && e.EndSec != nil
}

// Translation returns the non-empty translation for key, if any.
func (e Entry) Translation(key string) (string, bool) {
	v, ok := e.Translations[key]
	if !ok || v == nil || *v == "" {
		return "", false
	}
	return *v, true
}

// IDNum returns the numeric form of the entry id.
func (e Entry) IDNum() int {
	n, _ := strconv.Atoi(e.OriginalID)
	return n
}

// Save writes entries as indented JSON to path. The artifact doubles as the
// resume state for completed chunks, so the encoding is deterministic.
func Save(path string, entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding parsed entries: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing parsed entries: %w", err)
	}
	return nil
}

// Load reads entries back from a parsed artifact.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading parsed entries: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decoding parsed entries %s: %w", path, err)
	}
	return entries, nil
}

// CountParseErrors counts the error-severity parse findings in a batch,
// the numerator of the validator's parse error rate.
func CountParseErrors(issues []issue.Issue) int {
	n := 0
	for _, i := range issues {
		if i.Severity == issue.SeverityError && i.Kind.IsParse() {
			n++
		}
	}
	return n
}
