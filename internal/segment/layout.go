package segment

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout resolves artifact paths inside a work directory. Every chunk
// artifact is addressed by its part number so interrupted runs can be
// resumed by looking at what already exists on disk.
type Layout struct {
	Root string
}

func NewLayout(root string) Layout {
	return Layout{Root: root}
}

func (l Layout) MediaDir() string       { return filepath.Join(l.Root, "media") }
func (l Layout) RefDir() string         { return filepath.Join(l.Root, "srt") }
func (l Layout) RawDir() string         { return filepath.Join(l.Root, "raw_llm_transcripts") }
func (l Layout) TranscriptsDir() string { return filepath.Join(l.Root, "transcripts") }
func (l Layout) ResponsesDir() string   { return filepath.Join(l.Root, "responses") }
func (l Layout) ParsedDir() string      { return filepath.Join(l.Root, "parsed_data") }

// EnsureDirs creates the work directory tree.
func (l Layout) EnsureDirs() error {
	dirs := []string{
		l.MediaDir(),
		l.RefDir(),
		l.RawDir(),
		l.TranscriptsDir(),
		l.ResponsesDir(),
		l.ParsedDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating work directory %s: %w", dir, err)
		}
	}
	return nil
}

// MediaPath returns media/partNN.<ext>.
func (l Layout) MediaPath(part int, ext string) string {
	return filepath.Join(l.MediaDir(), Label(part)+"."+ext)
}

// RefPath returns srt/partNN.srt, the reference slice for one chunk.
func (l Layout) RefPath(part int) string {
	return filepath.Join(l.RefDir(), Label(part)+".srt")
}

// RawPath returns raw_llm_transcripts/partNN_raw.txt.
func (l Layout) RawPath(part int) string {
	return filepath.Join(l.RawDir(), Label(part)+"_raw.txt")
}

// FailedRawPath returns the retention path for a transcript that failed
// validation on the final attempt.
func (l Layout) FailedRawPath(part int) string {
	return filepath.Join(l.RawDir(), Label(part)+"_raw_transcript_FAILED.txt")
}

// AdjustedPath returns transcripts/partNN_adjusted.txt, the transcript
// after timestamps were rebased to absolute time.
func (l Layout) AdjustedPath(part int) string {
	return filepath.Join(l.TranscriptsDir(), Label(part)+"_adjusted.txt")
}

// ResponsePath returns responses/partNN_response.txt, the raw translation
// model output.
func (l Layout) ResponsePath(part int) string {
	return filepath.Join(l.ResponsesDir(), Label(part)+"_response.txt")
}

// ParsedPath returns parsed_data/partNN_parsed.json.
func (l Layout) ParsedPath(part int) string {
	return filepath.Join(l.ParsedDir(), Label(part)+"_parsed.json")
}
