package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	ffmpeggo "github.com/u2takey/ffmpeg-go"
)

// Format selects the media shape of extracted chunks.
type Format string

const (
	// FormatAudio produces mono 16 kHz 64 kbps mp3, small enough to upload
	// quickly while keeping speech intelligible.
	FormatAudio Format = "audio"

	// FormatVideo produces 360p low-framerate mp4 with the audio track
	// dropped, for models that read lip movement and on-screen text.
	FormatVideo Format = "video"
)

// Valid reports whether f is a known chunk format.
func (f Format) Valid() bool {
	return f == FormatAudio || f == FormatVideo
}

// Ext returns the container extension for the format, without the dot.
func (f Format) Ext() string {
	if f == FormatVideo {
		return "mp4"
	}
	return "mp3"
}

// Spec describes one slice of the source media.
type Spec struct {
	Input    string
	Output   string
	StartSec float64
	DurSec   float64
	Format   Format
}

// Slicer cuts chunks out of the source with ffmpeg.
type Slicer struct {
	binPath string
}

// NewSlicer creates a Slicer running the ffmpeg binary at binPath.
// An empty path runs "ffmpeg" from PATH.
func NewSlicer(binPath string) *Slicer {
	return &Slicer{binPath: binPath}
}

// outputArgs assembles the encoder arguments for one slice. The stream map
// drops the unused track so audio chunks carry no video and vice versa.
func outputArgs(spec Spec) ffmpeggo.KwArgs {
	if spec.Format == FormatVideo {
		return ffmpeggo.KwArgs{
			"t":      spec.DurSec,
			"map":    "0:v:0",
			"vf":     "scale=-2:360",
			"r":      "12",
			"c:v":    "libx264",
			"preset": "veryfast",
			"crf":    "30",
		}
	}
	return ffmpeggo.KwArgs{
		"t":   spec.DurSec,
		"map": "0:a:0",
		"c:a": "libmp3lame",
		"ac":  "1",
		"ar":  "16000",
		"b:a": "64k",
	}
}

// Slice extracts [StartSec, StartSec+DurSec) from spec.Input into
// spec.Output. The seek is on the input side so ffmpeg jumps straight to the
// window instead of decoding everything before it.
func (s *Slicer) Slice(ctx context.Context, spec Spec) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ffmpegErr := bytes.Buffer{}
	stream := ffmpeggo.Input(spec.Input, ffmpeggo.KwArgs{"ss": spec.StartSec}).
		Output(spec.Output, outputArgs(spec)).
		OverWriteOutput().
		WithErrorOutput(&ffmpegErr)
	if s.binPath != "" {
		stream = stream.SetFfmpegPath(s.binPath)
	}

	if err := stream.Run(); err != nil {
		return fmt.Errorf("slicing %s at %.1fs (%s) [%s]: %w",
			spec.Input, spec.StartSec, err, tail(ffmpegErr.String(), 300), ErrSliceFailed)
	}
	return nil
}

// tail returns the last n bytes of s. ffmpeg front-loads banners and build
// flags; the actual failure reason is at the end of its stderr.
func tail(s string, n int) string {
	s = strings.TrimRight(s, " \t\r\n")
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
