package ffmpeg

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	ffprobe "gopkg.in/vansante/go-ffprobe.v2"
)

// Probe limits. ffprobe on a healthy local file finishes in well under a
// second; the timeout guards against network mounts and truncated files that
// make the demuxer hang.
const (
	probeTimeout    = 60 * time.Second
	probeMaxRetries = 3
)

// Prober reads media metadata with ffprobe.
type Prober struct {
	binPath string
}

// NewProber creates a Prober running the ffprobe binary at binPath.
// An empty path keeps the library default ("ffprobe" on PATH).
func NewProber(binPath string) *Prober {
	if binPath != "" {
		ffprobe.SetFFProbeBinPath(binPath)
	}
	return &Prober{binPath: binPath}
}

// Duration probes the file at path and returns its duration in seconds.
// Failures are retried with exponential backoff before giving up.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	var data *ffprobe.ProbeData
	probe := func() error {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()

		var err error
		data, err = ffprobe.ProbeURL(probeCtx, path, "-loglevel", "error")
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = 0

	retries := backoff.WithContext(backoff.WithMaxRetries(policy, probeMaxRetries), ctx)
	if err := backoff.Retry(probe, retries); err != nil {
		return 0, fmt.Errorf("probing %s: %v: %w", path, err, ErrProbeFailed)
	}

	if data == nil || data.Format == nil || data.Format.DurationSeconds <= 0 {
		return 0, fmt.Errorf("probing %s: no duration in probe data: %w", path, ErrProbeFailed)
	}
	return data.Format.DurationSeconds, nil
}
