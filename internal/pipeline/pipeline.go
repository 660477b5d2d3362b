// Package pipeline orchestrates a full run: probe and window the video,
// slice chunks, transcribe them, translate against the reference subtitles,
// parse and validate the responses, then merge everything into one bilingual
// SRT. Segment failures are tolerated and reported; only whole-run failures
// (nothing probed, nothing sliced, nothing merged) are terminal.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alnah/go-bisub/internal/ffmpeg"
	"github.com/alnah/go-bisub/internal/issue"
	"github.com/alnah/go-bisub/internal/lang"
	"github.com/alnah/go-bisub/internal/log"
	"github.com/alnah/go-bisub/internal/merge"
	"github.com/alnah/go-bisub/internal/progress"
	"github.com/alnah/go-bisub/internal/segment"
	"github.com/alnah/go-bisub/internal/srt"
	"github.com/alnah/go-bisub/internal/subline"
	"github.com/alnah/go-bisub/internal/template"
	"github.com/alnah/go-bisub/internal/timefmt"
	"github.com/alnah/go-bisub/internal/transcribe"
	"github.com/alnah/go-bisub/internal/translate"
)

// Options is the fully resolved run configuration. The CLI layer validates
// everything before constructing it; the pipeline trusts the values.
type Options struct {
	VideoPath string
	SRTPath   string // empty when the run has no reference subtitles
	OutputDir string
	WorkDir   string

	SourceLangs []lang.Language
	TargetLang  lang.Language

	ChunkDurationSec float64
	ChunkOverlapSec  float64
	ChunkFormat      ffmpeg.Format

	MaxConcurrent   int
	Retries         int
	Force           bool
	ProcessOnlyPart int // zero processes every part

	DisableTimingValidation bool
	UseResponseTimings      bool

	MarkFallbacks  bool
	ColorEnglish   string
	ColorTarget    string
	FallbackMarker string

	InputOffsetSec  float64
	OutputOffsetSec float64
}

// Prober reports the duration of a media file.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Slicer cuts one chunk out of the source media.
type Slicer interface {
	Slice(ctx context.Context, spec ffmpeg.Spec) error
}

// Transcriber runs the transcription attempt loop for one segment.
type Transcriber interface {
	Run(ctx context.Context, rec *segment.Record, prompt string, refSpanSec float64, c *issue.Collector) error
}

var (
	_ Prober      = (*ffmpeg.Prober)(nil)
	_ Slicer      = (*ffmpeg.Slicer)(nil)
	_ Transcriber = (*transcribe.Transcriber)(nil)
)

// Deps holds the pipeline's injectable collaborators. Tests swap them for
// fakes; production wiring happens in the CLI layer.
type Deps struct {
	Prober      Prober
	Slicer      Slicer
	Transcriber Transcriber
	Translator  translate.Translator
	Stderr      io.Writer
}

// Pipeline drives one video through every stage.
type Pipeline struct {
	opts   Options
	deps   Deps
	layout segment.Layout
	issues *issue.Collector
}

func New(opts Options, deps Deps) *Pipeline {
	if deps.Stderr == nil {
		deps.Stderr = io.Discard
	}
	return &Pipeline{
		opts:   opts,
		deps:   deps,
		layout: segment.NewLayout(opts.WorkDir),
		issues: issue.NewCollector(),
	}
}

// Run executes the whole pipeline and prints the final report. It returns
// nil once the bilingual SRT has been written.
func (p *Pipeline) Run(ctx context.Context) error {
	started := time.Now()

	if err := p.layout.EnsureDirs(); err != nil {
		return err
	}

	durationSec, err := p.deps.Prober.Duration(ctx, p.opts.VideoPath)
	if err != nil {
		return fmt.Errorf("probing %s: %w", p.opts.VideoPath, err)
	}

	windows, err := segment.Windows(durationSec, p.opts.ChunkDurationSec, p.opts.ChunkOverlapSec)
	if err != nil {
		return err
	}

	var reference []srt.Entry
	if p.opts.SRTPath != "" {
		reference, err = srt.ParseFile(p.opts.SRTPath, p.opts.InputOffsetSec, p.issues)
		if err != nil {
			return err
		}
	}

	records := segment.Plan(windows, p.layout, p.opts.ChunkFormat.Ext(), p.opts.SRTPath != "")
	fmt.Fprintf(p.deps.Stderr, "%s: %s, %d segment(s)\n",
		filepath.Base(p.opts.VideoPath),
		timefmt.Duration(time.Duration(durationSec*float64(time.Second))),
		len(records))
	log.LogNoPart("run planned",
		"video", p.opts.VideoPath,
		"duration_sec", fmt.Sprintf("%.1f", durationSec),
		"segments", len(records),
		"reference_cues", len(reference))
	for _, rec := range records {
		log.AddContext(rec.Part, "window", fmt.Sprintf("%.0fs-%.0fs", rec.StartSec, rec.EndSec))
	}

	// S1: slice media and write per-segment reference slices.
	err = p.forEach(ctx, "splitting", records, func(ctx context.Context, rec *segment.Record) error {
		return p.splitOne(ctx, rec, reference)
	})
	if err != nil {
		return err
	}
	if err := p.anySurvived(records, "splitting"); err != nil {
		return err
	}

	work, err := p.selectWork(records)
	if err != nil {
		return err
	}

	// S2: transcribe.
	err = p.forEach(ctx, "transcribing", work, p.transcribeOne)
	if err != nil {
		return err
	}
	if err := p.anySurvived(work, "transcription"); err != nil {
		return err
	}

	// S3: rebase chunk-relative timestamps, sequentially.
	p.rebaseAll(work)

	// S4 with the parse/validate retry loop inside each worker.
	lastPart := records[len(records)-1].Part
	err = p.forEach(ctx, "translating", work, func(ctx context.Context, rec *segment.Record) error {
		return p.translateOne(ctx, rec, lastPart)
	})
	if err != nil {
		return err
	}

	// S7+S8: merge across segments and repair timing.
	finals, err := p.assemble(reference, records)
	if err != nil {
		return err
	}

	// S9: render and write the bilingual SRT.
	outPath, err := p.emit(finals)
	if err != nil {
		return err
	}

	p.report(records, durationSec, time.Since(started), outPath)
	return nil
}

// ---------------------------------------------------------------------------
// Stage pool
// ---------------------------------------------------------------------------

// forEach runs fn over records through a bounded worker pool with a progress
// line. Segment-level failures are recorded on the records and do not stop
// the pool; fn returns an error only to abort the whole run (cancellation).
func (p *Pipeline) forEach(ctx context.Context, stage string, records []*segment.Record, fn func(context.Context, *segment.Record) error) error {
	if len(records) == 0 {
		return nil
	}
	fmt.Fprintf(p.deps.Stderr, "%s...\n", stage)

	acc := progress.NewAccumulator()
	progressCtx, stopProgress := context.WithCancel(context.Background())
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		progress.Report(progressCtx, p.deps.Stderr, stage, len(records), acc.Count)
	}()
	defer func() {
		stopProgress()
		<-progressDone
	}()

	workers := p.opts.MaxConcurrent
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)

	g, gctx := errgroup.WithContext(ctx)
	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			if err := fn(gctx, rec); err != nil {
				return err
			}
			acc.Accumulate(1)
			return nil
		})
	}
	return g.Wait()
}

// segmentFailed marks one record failed and records the reason, leaving the
// rest of the pool running.
func (p *Pipeline) segmentFailed(rec *segment.Record, kind issue.Kind, err error) {
	rec.Fail(err)
	p.issues.Add(issue.Issue{
		Kind:     kind,
		Severity: issue.SeverityError,
		Part:     rec.Part,
		Message:  err.Error(),
	})
	log.LogError(rec.Part, "segment failed", err, "stage", string(kind))
}

// anySurvived aborts the run when a stage failed every segment.
func (p *Pipeline) anySurvived(records []*segment.Record, stage string) error {
	for _, rec := range records {
		if rec.Status != segment.StatusFailed {
			return nil
		}
	}
	return fmt.Errorf("%s left no usable segments of %d: %w",
		stage, len(records), ErrAllSegmentsFailed)
}

// selectWork narrows the run to one part when --only-part is set.
func (p *Pipeline) selectWork(records []*segment.Record) ([]*segment.Record, error) {
	only := p.opts.ProcessOnlyPart
	if only == 0 {
		return records, nil
	}
	if only < 1 || only > len(records) {
		return nil, fmt.Errorf("part %d of a %d-segment run: %w", only, len(records), ErrPartOutOfRange)
	}
	fmt.Fprintf(p.deps.Stderr, "processing only %s\n", segment.Label(only))
	return records[only-1 : only], nil
}

// ---------------------------------------------------------------------------
// S1: split
// ---------------------------------------------------------------------------

func (p *Pipeline) splitOne(ctx context.Context, rec *segment.Record, reference []srt.Entry) error {
	// The reference slice is rewritten every run: it is local, cheap, and
	// derived deterministically from the input file.
	if rec.RefPath != "" {
		slice := srt.Window(reference, rec.StartSec, rec.EndSec)
		if err := os.WriteFile(rec.RefPath, []byte(srt.Serialize(slice)), 0o644); err != nil {
			p.segmentFailed(rec, issue.Split, fmt.Errorf("writing reference slice: %w", err))
			return nil
		}
	}

	if !p.opts.Force && fileExists(rec.MediaPath) {
		rec.Status = segment.StatusTranscribing
		return nil
	}

	rec.Status = segment.StatusSplitting
	err := p.deps.Slicer.Slice(ctx, ffmpeg.Spec{
		Input:    p.opts.VideoPath,
		Output:   rec.MediaPath,
		StartSec: rec.StartSec,
		DurSec:   rec.DurationSec(),
		Format:   p.opts.ChunkFormat,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.segmentFailed(rec, issue.Split, err)
		return nil
	}
	rec.Status = segment.StatusTranscribing
	return nil
}

// ---------------------------------------------------------------------------
// S2: transcribe
// ---------------------------------------------------------------------------

func (p *Pipeline) transcribeOne(ctx context.Context, rec *segment.Record) error {
	if rec.Status == segment.StatusFailed {
		return nil
	}
	if !p.opts.Force && fileExists(rec.RawPath) {
		rec.Status = segment.StatusPrompting
		return nil
	}

	refSpanSec := 0.0
	if rec.RefPath != "" {
		slice, err := srt.ParseFile(rec.RefPath, 0, nil)
		if err != nil {
			p.segmentFailed(rec, issue.Transcription, err)
			return nil
		}
		refSpanSec = srt.Span(slice)
	}

	prompt := template.Transcription(p.opts.SourceLangs)
	if err := p.deps.Transcriber.Run(ctx, rec, prompt, refSpanSec, p.issues); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.segmentFailed(rec, issue.Transcription, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// S3: rebase
// ---------------------------------------------------------------------------

// rebaseAll turns chunk-relative transcript times into video time. The work
// is pure string rewriting, so it runs sequentially between the pools.
func (p *Pipeline) rebaseAll(records []*segment.Record) {
	for _, rec := range records {
		if rec.Status != segment.StatusPrompting {
			continue
		}
		if !p.opts.Force && fileExists(rec.AdjustedPath) {
			rec.Status = segment.StatusTranslating
			continue
		}

		raw, err := os.ReadFile(rec.RawPath)
		if err != nil {
			p.segmentFailed(rec, issue.Transcription, fmt.Errorf("reading raw transcript: %w", err))
			continue
		}
		adjusted := transcribe.Rebase(string(raw), rec.StartSec)
		if err := os.WriteFile(rec.AdjustedPath, []byte(adjusted), 0o644); err != nil {
			p.segmentFailed(rec, issue.Transcription, fmt.Errorf("writing adjusted transcript: %w", err))
			continue
		}
		rec.Status = segment.StatusTranslating
	}
}

// ---------------------------------------------------------------------------
// S4-S6: translate, parse, validate
// ---------------------------------------------------------------------------

func (p *Pipeline) translateOne(ctx context.Context, rec *segment.Record, lastPart int) error {
	if rec.Status != segment.StatusTranslating {
		return nil
	}
	if !p.opts.Force && fileExists(rec.ParsedPath) {
		rec.Status = segment.StatusCompleted
		return nil
	}

	adjusted, err := os.ReadFile(rec.AdjustedPath)
	if err != nil {
		p.segmentFailed(rec, issue.Translation, fmt.Errorf("reading adjusted transcript: %w", err))
		return nil
	}

	var refText string
	var refSlice []srt.Entry
	if rec.RefPath != "" {
		data, err := os.ReadFile(rec.RefPath)
		if err != nil {
			p.segmentFailed(rec, issue.Translation, fmt.Errorf("reading reference slice: %w", err))
			return nil
		}
		refText = string(data)
		refSlice = srt.Parse(refText, 0, nil)
	}

	prompt := template.Translation(string(adjusted), refText, p.opts.TargetLang)
	attempts := p.opts.Retries + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		rec.Status = segment.StatusTranslating
		result, err := p.deps.Translator.Translate(ctx, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.segmentFailed(rec, issue.Translation, err)
			return nil
		}
		rec.TranslationAttempts = append(rec.TranslationAttempts, segment.Attempt{
			Model:        p.deps.Translator.Model(),
			InputTokens:  result.InputTokens,
			OutputTokens: result.OutputTokens,
		})
		// The raw response and the parsed entries are saved on every attempt
		// so a failed run leaves its evidence behind.
		if err := os.WriteFile(rec.ResponsePath, []byte(result.Text), 0o644); err != nil {
			p.segmentFailed(rec, issue.Translation, fmt.Errorf("writing response: %w", err))
			return nil
		}

		rec.Status = segment.StatusParsing
		batch := issue.NewCollector()
		entries := subline.Parse(result.Text, p.opts.TargetLang, rec.Part, batch)
		parseIssues := batch.Issues()
		p.issues.Extend(parseIssues)
		if err := subline.Save(rec.ParsedPath, entries); err != nil {
			p.segmentFailed(rec, issue.Translation, err)
			return nil
		}

		rec.Status = segment.StatusValidating
		verdict := subline.Validate(entries, refSlice, subline.CountParseErrors(parseIssues), subline.ValidateOptions{
			DisableTiming: p.opts.DisableTimingValidation,
			LastSegment:   rec.Part == lastPart,
			FinalAttempt:  attempt == attempts,
		})
		for _, w := range verdict.Warnings {
			p.issues.Add(issue.Issue{
				Kind:     issue.Validation,
				Severity: issue.SeverityWarning,
				Part:     rec.Part,
				Message:  w,
			})
		}
		if verdict.OK {
			rec.Status = segment.StatusCompleted
			log.Log(rec.Part, "segment completed",
				"entries", len(entries),
				"attempt", attempt)
			return nil
		}

		final := attempt == attempts
		severity := issue.SeverityWarning
		if final {
			severity = issue.SeverityError
		}
		for _, msg := range verdict.Critical {
			p.issues.Add(issue.Issue{
				Kind:     issue.Validation,
				Severity: severity,
				Part:     rec.Part,
				Message:  fmt.Sprintf("attempt %d/%d: %s", attempt, attempts, msg),
			})
		}
		if final {
			rec.Fail(fmt.Errorf("%s: %w", strings.Join(verdict.Critical, "; "), ErrValidationExhausted))
			log.LogError(rec.Part, "validation retries exhausted", rec.Err)
			return nil
		}
		log.Log(rec.Part, "validation failed, retrying translation",
			"attempt", attempt,
			"critical", strings.Join(verdict.Critical, "; "))
	}
	return nil
}

// ---------------------------------------------------------------------------
// S7-S9: assemble and emit
// ---------------------------------------------------------------------------

// assemble loads parsed entries for the merge. Every segment whose parsed
// artifact exists contributes: completed segments always, failed ones with
// whatever their last attempt produced, and under --only-part the parts
// written by earlier runs.
func (p *Pipeline) assemble(reference []srt.Entry, records []*segment.Record) ([]merge.Final, error) {
	var entries []subline.Entry
	for _, rec := range records {
		if !fileExists(rec.ParsedPath) {
			continue
		}
		parsed, err := subline.Load(rec.ParsedPath)
		if err != nil {
			return nil, err
		}
		entries = append(entries, parsed...)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no parsed subtitles from %d segments: %w",
			len(records), ErrAllSegmentsFailed)
	}

	finals, err := merge.Merge(entries, reference, p.opts.TargetLang.Tag(), p.opts.UseResponseTimings, p.issues)
	if err != nil {
		return nil, err
	}
	return merge.Repair(finals, p.issues), nil
}

func (p *Pipeline) emit(finals []merge.Final) (string, error) {
	content := merge.Render(finals, merge.RenderOptions{
		OffsetSec:      p.opts.OutputOffsetSec,
		ColorEnglish:   p.opts.ColorEnglish,
		ColorTarget:    p.opts.ColorTarget,
		MarkFallbacks:  p.opts.MarkFallbacks,
		FallbackMarker: p.opts.FallbackMarker,
	}, p.issues)

	name := fmt.Sprintf("%s.bilingual.%s.srt", videoBase(p.opts.VideoPath), p.opts.TargetLang.Tag())
	path := filepath.Join(p.opts.OutputDir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing final subtitles: %w", err)
	}
	log.LogNoPart("output written",
		"path", path,
		"cues", len(finals),
		"size", timefmt.Size(int64(len(content))))
	return path, nil
}

// videoBase returns the video filename without directory or extension.
func videoBase(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
