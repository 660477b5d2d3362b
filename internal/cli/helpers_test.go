package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// ---------------------------------------------------------------------------
// syncBuffer - thread-safe bytes.Buffer for concurrent test output
// ---------------------------------------------------------------------------

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Compile-time check that syncBuffer implements io.Writer.
var _ io.Writer = (*syncBuffer)(nil)

// ---------------------------------------------------------------------------
// testMocks - convenience struct for grouping all mocks
// ---------------------------------------------------------------------------

type testMocks struct {
	ffmpeg      *mockFFmpegLocator
	defaults    *mockDefaultsLoader
	transcriber *mockTranscriberFactory
	translator  *mockTranslatorFactory
	pipeline    *pipelineCapture
}

func newTestMocks() *testMocks {
	return &testMocks{
		ffmpeg:      &mockFFmpegLocator{},
		defaults:    &mockDefaultsLoader{},
		transcriber: &mockTranscriberFactory{},
		translator:  &mockTranslatorFactory{},
		pipeline:    &pipelineCapture{},
	}
}

// ---------------------------------------------------------------------------
// testEnv - creates a fully mocked Env for testing
// ---------------------------------------------------------------------------

// testEnvOptions configures a test environment.
type testEnvOptions struct {
	stderr io.Writer
	getenv func(string) string
	mocks  *testMocks
}

// testEnvOption configures testEnv.
type testEnvOption func(*testEnvOptions)

func withTestGetenv(getenv func(string) string) testEnvOption {
	return func(o *testEnvOptions) { o.getenv = getenv }
}

func withTestStderr(w io.Writer) testEnvOption {
	return func(o *testEnvOptions) { o.stderr = w }
}

func withTestMocks(m *testMocks) testEnvOption {
	return func(o *testEnvOptions) { o.mocks = m }
}

// testEnv creates a test Env with all dependencies mocked.
// Returns the Env and the mocks for assertions.
func testEnv(opts ...testEnvOption) (*Env, *testMocks) {
	options := &testEnvOptions{
		stderr: &syncBuffer{},
		getenv: defaultTestEnv,
		mocks:  newTestMocks(),
	}

	for _, opt := range opts {
		opt(options)
	}

	env := &Env{
		Stderr:             options.stderr,
		Getenv:             options.getenv,
		FFmpeg:             options.mocks.ffmpeg,
		DefaultsLoader:     options.mocks.defaults,
		TranscriberFactory: options.mocks.transcriber,
		TranslatorFactory:  options.mocks.translator,
		RunPipeline:        options.mocks.pipeline.Run,
	}

	return env, options.mocks
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// staticEnv returns a getenv function that returns values from the given map.
func staticEnv(env map[string]string) func(string) string {
	return func(key string) string {
		return env[key]
	}
}

// defaultTestEnv returns API keys for every provider.
func defaultTestEnv(key string) string {
	switch key {
	case EnvGeminiAPIKey:
		return "test-gemini-key"
	case EnvDeepSeekAPIKey:
		return "test-deepseek-key"
	case EnvOpenAIAPIKey:
		return "test-openai-key"
	default:
		return ""
	}
}

// createTestFile creates a non-empty file for tests that only need the path
// to exist. Returns the file path.
func createTestFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)

	if err := os.WriteFile(path, []byte("fake content"), 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	return path
}

// executeRoot runs the root command against the given env with the given
// command line.
func executeRoot(t *testing.T, env *Env, args ...string) error {
	t.Helper()

	cmd := RootCmd(env)
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd.ExecuteContext(context.Background())
}
