// Package template builds the model prompts. The wording here is part of
// the wire contract: the transcript line format and the subline tag names
// it requests are what the parser on the response side expects.
package template

import (
	"fmt"
	"strings"

	"github.com/alnah/go-bisub/internal/lang"
	"github.com/alnah/go-bisub/internal/subline"
)

const fence = "```"

// transcriptionRules instructs the multimodal model. The mm:ss ranges it
// asks for are rebased to absolute time after the response arrives.
const transcriptionRules = `You transcribe the speech in a media file.

Rules:
- Output plain text only, no markdown, no commentary
- One line per utterance, in this exact format: mm:ss - mm:ss - transcribed line
- Timestamps are relative to the start of THIS file
- Seconds are zero-padded (7:05 not 7:5); minutes may exceed 59
- Cover the entire file, from the first utterance to the last
- Transcribe what is said; do not invent, summarize, or translate`

// Transcription returns the prompt for the transcription model. When source
// languages are known they are named so the model does not mistake the
// audio language.
func Transcription(sources []lang.Language) string {
	if len(sources) == 0 {
		return transcriptionRules
	}
	names := make([]string, len(sources))
	for i, l := range sources {
		names[i] = l.Name()
	}
	return transcriptionRules + fmt.Sprintf("\n- The spoken language is %s", strings.Join(names, " or "))
}

// translationHeader opens the translation prompt. %[1]s is the target
// language name, %[2]s its tag, %[3]s the fence marker.
const translationHeader = `You subtitle film dialogue in %[1]s and improve its English subtitles.

Output one block per subtitle. Put ALL blocks inside a single %[3]sxml fence:

<subline>
<original_number>subtitle id</original_number>
<original_line>original English subtitle text</original_line>
<original_timing>HH:MM:SS,mmm --> HH:MM:SS,mmm</original_timing>
<better_english_translation>corrected English based on the transcript</better_english_translation>
<%[2]s_translation>%[1]s translation of the spoken line</%[2]s_translation>
</subline>
`

// translationRules lists the hard constraints. %[1]s is the skip marker.
const translationRules = `
Rules:
- Base both translations on the spoken transcript, not only the English line
- Keep lines short enough to read as subtitles
- For credits, untranslatable lyrics, or non-speech captions, output exactly
  %[1]s as both translations
- Do not merge, split, or reorder subtitles`

const withReferenceRules = `
- Output one block for EVERY subtitle in the English reference below
- Keep subtitle ids and timings exactly as they appear in the reference`

const withoutReferenceRules = `
- No English reference exists: create the subtitles yourself from the transcript
- Number blocks from 1 in playback order
- Derive each block's timing from the transcript timestamps`

// Translation returns the prompt for the translation model. referenceSRT may
// be empty when the run has no reference subtitles.
func Translation(transcript, referenceSRT string, target lang.Language) string {
	var b strings.Builder
	fmt.Fprintf(&b, translationHeader, target.Name(), target.Tag(), fence)
	fmt.Fprintf(&b, translationRules, subline.SkipMarker)
	if referenceSRT != "" {
		b.WriteString(withReferenceRules)
	} else {
		b.WriteString(withoutReferenceRules)
	}

	b.WriteString("\n\nTranscript:\n")
	b.WriteString(strings.TrimSpace(transcript))
	if referenceSRT != "" {
		b.WriteString("\n\nEnglish reference subtitles:\n")
		b.WriteString(strings.TrimSpace(referenceSRT))
	}
	b.WriteString("\n")
	return b.String()
}
