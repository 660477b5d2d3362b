package ffmpeg

import (
	"context"
	"os/exec"
	"sync"
)

// ---------------------------------------------------------------------------
// Executor - testable binary execution with dependency injection
// ---------------------------------------------------------------------------

// runOutputFn is the function type for running a command and capturing output.
type runOutputFn func(ctx context.Context, path string, args []string) (string, error)

// Executor runs ffmpeg-family commands and captures their output.
type Executor struct {
	runOutput runOutputFn
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithRunOutput sets a custom runOutput function (for testing).
func WithRunOutput(fn runOutputFn) ExecutorOption {
	return func(e *Executor) { e.runOutput = fn }
}

// NewExecutor creates an Executor with the given options.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		runOutput: defaultRunOutput,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunOutput executes the binary and captures its combined output.
func (e *Executor) RunOutput(ctx context.Context, path string, args []string) (string, error) {
	return e.runOutput(ctx, path, args)
}

// defaultRunOutput is the production implementation. ffmpeg splits its
// diagnostics between stdout and stderr depending on the flag ("-version"
// prints to stdout, probe info to stderr), so both are captured. Output is
// returned even when the command fails, since ffmpeg returns non-zero exit
// codes for some valid operations.
func defaultRunOutput(ctx context.Context, path string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

var (
	defaultExecutor     *Executor
	defaultExecutorOnce sync.Once
)

// getDefaultExecutor returns the lazily-initialized default executor.
func getDefaultExecutor() *Executor {
	defaultExecutorOnce.Do(func() {
		defaultExecutor = NewExecutor()
	})
	return defaultExecutor
}
