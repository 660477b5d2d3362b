package merge_test

// Notes:
// - Entries are built by tiny helpers so each case shows only the dimension
//   it perturbs (segment, timing source, skip marker, fallback).
// - The target translations key is always "portuguese".

import (
	"errors"
	"strings"
	"testing"

	"github.com/alnah/go-bisub/internal/issue"
	"github.com/alnah/go-bisub/internal/merge"
	"github.com/alnah/go-bisub/internal/srt"
	"github.com/alnah/go-bisub/internal/subline"
)

const targetKey = "portuguese"

func entry(id string, chunk int, english, target string) subline.Entry {
	e := subline.Entry{
		OriginalID:   id,
		SourceChunk:  chunk,
		Translations: map[string]*string{},
	}
	if english != "" {
		e.Translations[subline.EnglishKey] = &english
	}
	if target != "" {
		e.Translations[targetKey] = &target
	}
	return e
}

func timed(e subline.Entry, start, end float64) subline.Entry {
	e.StartSec, e.EndSec = &start, &end
	return e
}

func ref(id int, start, end float64, text string) srt.Entry {
	return srt.Entry{ID: id, StartSec: start, EndSec: end, Text: text}
}

// ---------------------------------------------------------------------------
// TestMerge - Cross-segment assembly
// ---------------------------------------------------------------------------

func TestMerge(t *testing.T) {
	t.Parallel()

	t.Run("reference timings win by default", func(t *testing.T) {
		t.Parallel()
		c := issue.NewCollector()
		finals, err := merge.Merge(
			[]subline.Entry{timed(entry("1", 1, "Hi.", "Oi."), 0.5, 3.5)},
			[]srt.Entry{ref(1, 1, 4, "Hi there.")},
			targetKey, false, c)
		if err != nil {
			t.Fatalf("Merge failed: %v", err)
		}
		f := finals[0]
		if f.StartSec != 1 || f.EndSec != 4 {
			t.Errorf("times = [%v, %v], want reference [1, 4]", f.StartSec, f.EndSec)
		}
		if f.TimingSource != merge.TimingOriginal {
			t.Errorf("TimingSource = %q, want original", f.TimingSource)
		}
	})

	t.Run("response timings when enabled", func(t *testing.T) {
		t.Parallel()
		c := issue.NewCollector()
		finals, err := merge.Merge(
			[]subline.Entry{timed(entry("1", 1, "Hi.", "Oi."), 0.5, 3.5)},
			[]srt.Entry{ref(1, 1, 4, "Hi there.")},
			targetKey, true, c)
		if err != nil {
			t.Fatalf("Merge failed: %v", err)
		}
		f := finals[0]
		if f.StartSec != 0.5 || f.EndSec != 3.5 {
			t.Errorf("times = [%v, %v], want parsed [0.5, 3.5]", f.StartSec, f.EndSec)
		}
		if f.TimingSource != merge.TimingLLM {
			t.Errorf("TimingSource = %q, want llm", f.TimingSource)
		}
	})

	t.Run("response timings fall back to the reference", func(t *testing.T) {
		t.Parallel()
		c := issue.NewCollector()
		finals, err := merge.Merge(
			[]subline.Entry{entry("1", 1, "Hi.", "Oi.")},
			[]srt.Entry{ref(1, 1, 4, "Hi there.")},
			targetKey, true, c)
		if err != nil {
			t.Fatalf("Merge failed: %v", err)
		}
		if finals[0].TimingSource != merge.TimingOriginal {
			t.Errorf("TimingSource = %q, want original", finals[0].TimingSource)
		}
	})

	t.Run("highest segment wins per id", func(t *testing.T) {
		t.Parallel()
		c := issue.NewCollector()
		finals, err := merge.Merge(
			[]subline.Entry{
				entry("5", 1, "old reading", "velho"),
				entry("5", 2, "new reading", "novo"),
				entry("6", 2, "other", "outro"),
			},
			[]srt.Entry{ref(5, 10, 13, "x"), ref(6, 14, 17, "y")},
			targetKey, false, c)
		if err != nil {
			t.Fatalf("Merge failed: %v", err)
		}
		if len(finals) != 2 {
			t.Fatalf("got %d finals, want 2", len(finals))
		}
		if finals[0].English != "new reading" || finals[0].Target != "novo" {
			t.Errorf("final = %+v, want the segment 2 reading", finals[0])
		}
	})

	t.Run("skip marker drops the cue", func(t *testing.T) {
		t.Parallel()
		c := issue.NewCollector()
		finals, err := merge.Merge(
			[]subline.Entry{
				entry("1", 1, subline.SkipMarker, subline.SkipMarker),
				entry("2", 1, "Keep.", "Fica."),
			},
			[]srt.Entry{ref(1, 1, 3, "x"), ref(2, 4, 6, "y")},
			targetKey, false, c)
		if err != nil {
			t.Fatalf("Merge failed: %v", err)
		}
		if len(finals) != 1 || finals[0].OriginalID != "2" {
			t.Errorf("finals = %+v, want only id 2", finals)
		}
		if got := c.Count(issue.SeverityInfo); got != 1 {
			t.Errorf("info issues = %d, want 1", got)
		}
	})

	t.Run("english falls back to the reference text", func(t *testing.T) {
		t.Parallel()
		c := issue.NewCollector()
		finals, err := merge.Merge(
			[]subline.Entry{entry("1", 1, "", "Oi.")},
			[]srt.Entry{ref(1, 1, 4, "Hello from the reference.")},
			targetKey, false, c)
		if err != nil {
			t.Fatalf("Merge failed: %v", err)
		}
		f := finals[0]
		if f.English != "Hello from the reference." || !f.IsFallback {
			t.Errorf("final = %+v, want fallback english", f)
		}
	})

	t.Run("entry without any timing is dropped", func(t *testing.T) {
		t.Parallel()
		c := issue.NewCollector()
		finals, err := merge.Merge(
			[]subline.Entry{
				entry("99", 1, "Lost.", "Perdido."),
				timed(entry("1", 1, "Kept.", "Mantido."), 0, 2),
			},
			nil, targetKey, true, c)
		if err != nil {
			t.Fatalf("Merge failed: %v", err)
		}
		if len(finals) != 1 || finals[0].OriginalID != "1" {
			t.Errorf("finals = %+v, want only id 1", finals)
		}
		if got := c.Count(issue.SeverityWarning); got != 1 {
			t.Errorf("warnings = %d, want 1", got)
		}
	})

	t.Run("no reference without response timings is a hard error", func(t *testing.T) {
		t.Parallel()
		c := issue.NewCollector()
		_, err := merge.Merge(
			[]subline.Entry{entry("1", 1, "Hi.", "Oi.")},
			nil, targetKey, false, c)
		if !errors.Is(err, merge.ErrNoTimingSource) {
			t.Fatalf("err = %v, want ErrNoTimingSource", err)
		}
	})

	t.Run("nothing merged is an error", func(t *testing.T) {
		t.Parallel()
		c := issue.NewCollector()
		_, err := merge.Merge(
			[]subline.Entry{entry("1", 1, subline.SkipMarker, "x")},
			[]srt.Entry{ref(1, 1, 3, "x")},
			targetKey, false, c)
		if !errors.Is(err, merge.ErrNothingToMerge) {
			t.Fatalf("err = %v, want ErrNothingToMerge", err)
		}
	})

	t.Run("finals come out ordered by start", func(t *testing.T) {
		t.Parallel()
		c := issue.NewCollector()
		finals, err := merge.Merge(
			[]subline.Entry{
				timed(entry("2", 1, "b", "b"), 10, 12),
				timed(entry("1", 1, "a", "a"), 20, 22),
			},
			nil, targetKey, true, c)
		if err != nil {
			t.Fatalf("Merge failed: %v", err)
		}
		if finals[0].OriginalID != "2" || finals[1].OriginalID != "1" {
			t.Errorf("order = [%s, %s], want [2, 1] by start time",
				finals[0].OriginalID, finals[1].OriginalID)
		}
	})
}

// ---------------------------------------------------------------------------
// TestRepair - Overlap and duration repair
// ---------------------------------------------------------------------------

func TestRepair(t *testing.T) {
	t.Parallel()

	mk := func(id string, start, end float64) merge.Final {
		return merge.Final{OriginalID: id, StartSec: start, EndSec: end, English: "e", Target: "t"}
	}

	t.Run("overlap shortened to a gap", func(t *testing.T) {
		t.Parallel()
		c := issue.NewCollector()
		got := merge.Repair([]merge.Final{mk("1", 0, 5), mk("2", 3, 6)}, c)
		if got[0].EndSec != 2.95 {
			t.Errorf("first end = %v, want 2.95", got[0].EndSec)
		}
		if got[1].EndSec != 6 {
			t.Errorf("second end = %v, want untouched 6", got[1].EndSec)
		}
		if len(c.Issues()) != 0 {
			t.Errorf("issues = %v, want none", c.Issues())
		}
	})

	t.Run("overlap chain resolves and long cue clamps", func(t *testing.T) {
		t.Parallel()
		c := issue.NewCollector()
		got := merge.Repair([]merge.Final{mk("1", 0, 10), mk("2", 2, 12), mk("3", 4, 14)}, c)
		wantEnds := []float64{1.95, 3.95, 11}
		for i, want := range wantEnds {
			if got[i].EndSec != want {
				t.Errorf("cue %d end = %v, want %v", i, got[i].EndSec, want)
			}
		}
	})

	t.Run("unshortenable overlap is reported and left", func(t *testing.T) {
		t.Parallel()
		c := issue.NewCollector()
		got := merge.Repair([]merge.Final{mk("1", 0, 1), mk("2", 0.2, 2)}, c)
		if got[0].EndSec != 1 {
			t.Errorf("first end = %v, want untouched 1", got[0].EndSec)
		}
		if warnings := c.Count(issue.SeverityWarning); warnings != 1 {
			t.Errorf("warnings = %d, want 1", warnings)
		}
	})

	t.Run("short cue extended to the minimum", func(t *testing.T) {
		t.Parallel()
		c := issue.NewCollector()
		got := merge.Repair([]merge.Final{mk("1", 0, 0.2)}, c)
		if got[0].EndSec != 0.5 {
			t.Errorf("end = %v, want 0.5", got[0].EndSec)
		}
	})

	t.Run("overlong cue trimmed to the maximum", func(t *testing.T) {
		t.Parallel()
		c := issue.NewCollector()
		got := merge.Repair([]merge.Final{mk("1", 0, 20)}, c)
		if got[0].EndSec != 7 {
			t.Errorf("end = %v, want 7", got[0].EndSec)
		}
	})

	t.Run("clamping may reintroduce overlap silently", func(t *testing.T) {
		t.Parallel()
		c := issue.NewCollector()
		got := merge.Repair([]merge.Final{mk("1", 0, 0.2), mk("2", 0.3, 5)}, c)
		if got[0].EndSec != 0.5 {
			t.Errorf("first end = %v, want extended 0.5", got[0].EndSec)
		}
		if len(c.Issues()) != 0 {
			t.Errorf("issues = %v, want none", c.Issues())
		}
	})

	t.Run("unsorted input is sorted by start", func(t *testing.T) {
		t.Parallel()
		c := issue.NewCollector()
		got := merge.Repair([]merge.Final{mk("2", 10, 12), mk("1", 0, 2)}, c)
		if got[0].OriginalID != "1" || got[1].OriginalID != "2" {
			t.Errorf("order = [%s, %s], want [1, 2]", got[0].OriginalID, got[1].OriginalID)
		}
	})
}

// ---------------------------------------------------------------------------
// TestRender - Bilingual SRT serialization
// ---------------------------------------------------------------------------

func TestRender(t *testing.T) {
	t.Parallel()

	opts := merge.RenderOptions{
		ColorEnglish:  "#FFFFFF",
		ColorTarget:   "#FFFF00",
		MarkFallbacks: true,
	}

	t.Run("bilingual block layout", func(t *testing.T) {
		t.Parallel()
		c := issue.NewCollector()
		got := merge.Render([]merge.Final{
			{OriginalID: "7", StartSec: 1, EndSec: 4, English: "Hello.", Target: "Olá."},
		}, opts, c)

		want := "1\n" +
			"00:00:01,000 --> 00:00:04,000\n" +
			"<font color=\"#FFFFFF\">Hello.</font>\n" +
			"<font color=\"#FFFF00\">Olá.</font>\n"
		if got != want {
			t.Errorf("Render =\n%q\nwant\n%q", got, want)
		}
	})

	t.Run("cues renumber from one", func(t *testing.T) {
		t.Parallel()
		c := issue.NewCollector()
		got := merge.Render([]merge.Final{
			{OriginalID: "7", StartSec: 1, EndSec: 4, English: "a", Target: "x"},
			{OriginalID: "9", StartSec: 5, EndSec: 8, English: "b", Target: "y"},
		}, opts, c)

		for _, fragment := range []string{"1\n00:00:01,000", "\n\n2\n00:00:05,000"} {
			if !containsFragment(got, fragment) {
				t.Errorf("output missing %q:\n%s", fragment, got)
			}
		}
	})

	t.Run("fallback english gets the marker", func(t *testing.T) {
		t.Parallel()
		c := issue.NewCollector()
		got := merge.Render([]merge.Final{
			{OriginalID: "1", StartSec: 1, EndSec: 4, English: "Hello.", Target: "Olá.", IsFallback: true},
		}, opts, c)
		if !containsFragment(got, "<font color=\"#FFFFFF\">[*] Hello.</font>") {
			t.Errorf("output missing marked fallback:\n%s", got)
		}
	})

	t.Run("marker suppressed when disabled", func(t *testing.T) {
		t.Parallel()
		c := issue.NewCollector()
		plain := opts
		plain.MarkFallbacks = false
		got := merge.Render([]merge.Final{
			{OriginalID: "1", StartSec: 1, EndSec: 4, English: "Hello.", Target: "Olá.", IsFallback: true},
		}, plain, c)
		if containsFragment(got, "[*]") {
			t.Errorf("output carries a marker despite MarkFallbacks=false:\n%s", got)
		}
	})

	t.Run("custom marker", func(t *testing.T) {
		t.Parallel()
		c := issue.NewCollector()
		custom := opts
		custom.FallbackMarker = ">> "
		got := merge.Render([]merge.Final{
			{OriginalID: "1", StartSec: 1, EndSec: 4, English: "Hello.", Target: "Olá.", IsFallback: true},
		}, custom, c)
		if !containsFragment(got, ">> Hello.") {
			t.Errorf("output missing custom marker:\n%s", got)
		}
	})

	t.Run("negative offset drops leading cues and renumbers", func(t *testing.T) {
		t.Parallel()
		c := issue.NewCollector()
		shifted := opts
		shifted.OffsetSec = -5
		got := merge.Render([]merge.Final{
			{OriginalID: "1", StartSec: 1, EndSec: 4, English: "gone", Target: "x"},
			{OriginalID: "2", StartSec: 10, EndSec: 13, English: "kept", Target: "y"},
		}, shifted, c)

		if containsFragment(got, "gone") {
			t.Errorf("dropped cue still rendered:\n%s", got)
		}
		if !containsFragment(got, "1\n00:00:05,000") {
			t.Errorf("survivor not renumbered from 1:\n%s", got)
		}
		if warnings := c.Count(issue.SeverityWarning); warnings != 1 {
			t.Errorf("warnings = %d, want 1", warnings)
		}
	})

	t.Run("textless cue dropped", func(t *testing.T) {
		t.Parallel()
		c := issue.NewCollector()
		got := merge.Render([]merge.Final{
			{OriginalID: "1", StartSec: 1, EndSec: 4},
		}, opts, c)
		if got != "" {
			t.Errorf("Render = %q, want empty output", got)
		}
		if warnings := c.Count(issue.SeverityWarning); warnings != 1 {
			t.Errorf("warnings = %d, want 1", warnings)
		}
	})

	t.Run("target-only cue keeps one line", func(t *testing.T) {
		t.Parallel()
		c := issue.NewCollector()
		got := merge.Render([]merge.Final{
			{OriginalID: "1", StartSec: 1, EndSec: 4, Target: "Olá."},
		}, opts, c)
		if containsFragment(got, "#FFFFFF") {
			t.Errorf("unexpected english line:\n%s", got)
		}
		if !containsFragment(got, "<font color=\"#FFFF00\">Olá.</font>") {
			t.Errorf("missing target line:\n%s", got)
		}
	})
}

func containsFragment(s, fragment string) bool {
	return strings.Contains(s, fragment)
}
