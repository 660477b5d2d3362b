package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Environment variables that override binary discovery.
const (
	envFFmpegPath  = "FFMPEG_PATH"
	envFFprobePath = "FFPROBE_PATH"
)

// minFFmpegMajorVersion is the oldest major release known to support the
// filters and codec flags the slicer uses.
const minFFmpegMajorVersion = 4

// Paths holds the resolved transcoder binaries.
type Paths struct {
	FFmpeg  string
	FFprobe string
}

// ---------------------------------------------------------------------------
// Resolver - binary discovery with dependency injection
// ---------------------------------------------------------------------------

// Resolver locates the ffmpeg and ffprobe binaries. Environment overrides
// win over PATH; nothing is ever downloaded.
type Resolver struct {
	env  envProvider
	stat fileStater
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithEnvProvider sets the environment provider implementation.
func WithEnvProvider(e envProvider) ResolverOption {
	return func(r *Resolver) { r.env = e }
}

// WithFileStater sets the file existence checker implementation.
func WithFileStater(s fileStater) ResolverOption {
	return func(r *Resolver) { r.stat = s }
}

// NewResolver creates a Resolver with the given options.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		env:  osEnvProvider{},
		stat: osFileStater{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve finds both binaries using the following order:
//  1. FFMPEG_PATH / FFPROBE_PATH environment variables (error if set but invalid)
//  2. System PATH
func (r *Resolver) Resolve() (Paths, error) {
	ffmpegPath, err := r.resolveBinary(envFFmpegPath, "ffmpeg")
	if err != nil {
		return Paths{}, err
	}
	ffprobePath, err := r.resolveBinary(envFFprobePath, "ffprobe")
	if err != nil {
		return Paths{}, err
	}
	return Paths{FFmpeg: ffmpegPath, FFprobe: ffprobePath}, nil
}

// resolveBinary finds a single binary by environment override or PATH.
// An override pointing at a missing file is an error rather than a silent
// fallback, so misconfiguration surfaces immediately.
func (r *Resolver) resolveBinary(envKey, name string) (string, error) {
	if envPath := r.env.Getenv(envKey); envPath != "" {
		if _, err := r.stat.Stat(envPath); err != nil {
			return "", fmt.Errorf("%w: %s is set to %q but no binary exists there",
				ErrNotFound, envKey, envPath)
		}
		return envPath, nil
	}

	if path, err := r.env.LookPath(name); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("%w: %s is not on PATH (install it or set %s)",
		ErrNotFound, name, envKey)
}

var (
	defaultResolver     *Resolver
	defaultResolverOnce sync.Once
)

// getDefaultResolver returns the lazily-initialized default resolver.
func getDefaultResolver() *Resolver {
	defaultResolverOnce.Do(func() {
		defaultResolver = NewResolver()
	})
	return defaultResolver
}

// Resolve finds ffmpeg and ffprobe using the default resolver.
// This is a facade for the Resolver.Resolve method.
func Resolve() (Paths, error) {
	return getDefaultResolver().Resolve()
}

// ---------------------------------------------------------------------------
// VersionChecker - soft minimum version enforcement
// ---------------------------------------------------------------------------

// VersionChecker verifies FFmpeg version requirements.
type VersionChecker struct {
	executor *Executor
	stderr   io.Writer
}

// VersionCheckerOption configures a VersionChecker.
type VersionCheckerOption func(*VersionChecker)

// WithVersionExecutor sets the executor for running FFmpeg.
func WithVersionExecutor(e *Executor) VersionCheckerOption {
	return func(vc *VersionChecker) { vc.executor = e }
}

// WithVersionStderr sets the writer for warning messages.
func WithVersionStderr(w io.Writer) VersionCheckerOption {
	return func(vc *VersionChecker) { vc.stderr = w }
}

// NewVersionChecker creates a VersionChecker with the given options.
func NewVersionChecker(opts ...VersionCheckerOption) *VersionChecker {
	vc := &VersionChecker{
		executor: getDefaultExecutor(),
		stderr:   os.Stderr,
	}
	for _, opt := range opts {
		opt(vc)
	}
	return vc
}

// Check verifies that ffmpeg meets minimum version requirements.
// Prints a warning to stderr if version is below minimum but doesn't fail.
// Returns true if version was successfully checked, false if parsing failed.
func (vc *VersionChecker) Check(ctx context.Context, ffmpegPath string) bool {
	output, err := vc.executor.RunOutput(ctx, ffmpegPath, []string{"-version"})
	if err != nil && output == "" {
		return false // Can't check version, proceed anyway
	}

	// Parse version from output like "ffmpeg version 6.1.1 Copyright..."
	lines := strings.Split(output, "\n")
	if len(lines) == 0 || lines[0] == "" {
		return false
	}

	var major int
	_, err = fmt.Sscanf(lines[0], "ffmpeg version %d", &major)
	if err != nil {
		// Try alternative format "ffmpeg version n6.1.1..."
		_, err = fmt.Sscanf(lines[0], "ffmpeg version n%d", &major)
		if err != nil {
			return false // Can't parse version
		}
	}

	if major < minFFmpegMajorVersion {
		fmt.Fprintf(vc.stderr, "Warning: ffmpeg version %d detected, version %d+ recommended\n",
			major, minFFmpegMajorVersion)
	}
	return true
}

// CheckVersion verifies that ffmpeg meets minimum version requirements.
// This is a facade for the VersionChecker.Check method.
func CheckVersion(ctx context.Context, ffmpegPath string) {
	NewVersionChecker().Check(ctx, ffmpegPath)
}
