package cli

import (
	"context"
	"sync"

	"github.com/alnah/go-bisub/internal/config"
	"github.com/alnah/go-bisub/internal/ffmpeg"
	"github.com/alnah/go-bisub/internal/issue"
	"github.com/alnah/go-bisub/internal/pipeline"
	"github.com/alnah/go-bisub/internal/segment"
	"github.com/alnah/go-bisub/internal/translate"
)

// ---------------------------------------------------------------------------
// Mock FFmpegLocator
// ---------------------------------------------------------------------------

type mockFFmpegLocator struct {
	ResolveFunc      func() (ffmpeg.Paths, error)
	CheckVersionFunc func(ctx context.Context, ffmpegPath string)

	mu                sync.Mutex
	resolveCalls      int
	checkVersionCalls []string
}

func (m *mockFFmpegLocator) Resolve() (ffmpeg.Paths, error) {
	m.mu.Lock()
	m.resolveCalls++
	m.mu.Unlock()

	if m.ResolveFunc != nil {
		return m.ResolveFunc()
	}
	return ffmpeg.Paths{FFmpeg: "/usr/bin/ffmpeg", FFprobe: "/usr/bin/ffprobe"}, nil
}

func (m *mockFFmpegLocator) CheckVersion(ctx context.Context, ffmpegPath string) {
	m.mu.Lock()
	m.checkVersionCalls = append(m.checkVersionCalls, ffmpegPath)
	m.mu.Unlock()

	if m.CheckVersionFunc != nil {
		m.CheckVersionFunc(ctx, ffmpegPath)
	}
}

func (m *mockFFmpegLocator) ResolveCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveCalls
}

func (m *mockFFmpegLocator) CheckVersionCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.checkVersionCalls...)
}

// ---------------------------------------------------------------------------
// Mock DefaultsLoader
// ---------------------------------------------------------------------------

type mockDefaultsLoader struct {
	LoadFunc func() (config.Defaults, error)

	mu        sync.Mutex
	loadCalls int
}

func (m *mockDefaultsLoader) Load() (config.Defaults, error) {
	m.mu.Lock()
	m.loadCalls++
	m.mu.Unlock()

	if m.LoadFunc != nil {
		return m.LoadFunc()
	}
	return config.Defaults{}, nil
}

func (m *mockDefaultsLoader) LoadCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadCalls
}

// ---------------------------------------------------------------------------
// Mock TranscriberFactory + stub pipeline.Transcriber
// ---------------------------------------------------------------------------

type mockTranscriberFactory struct {
	NewFunc func(apiKey, model string, retries int) (pipeline.Transcriber, error)

	mu       sync.Mutex
	newCalls []factoryCall
}

type factoryCall struct {
	APIKey  string
	Model   string
	Retries int
}

func (m *mockTranscriberFactory) New(apiKey, model string, retries int) (pipeline.Transcriber, error) {
	m.mu.Lock()
	m.newCalls = append(m.newCalls, factoryCall{APIKey: apiKey, Model: model, Retries: retries})
	m.mu.Unlock()

	if m.NewFunc != nil {
		return m.NewFunc(apiKey, model, retries)
	}
	return &stubTranscriber{}, nil
}

func (m *mockTranscriberFactory) NewCalls() []factoryCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]factoryCall(nil), m.newCalls...)
}

type stubTranscriber struct{}

func (s *stubTranscriber) Run(ctx context.Context, rec *segment.Record, prompt string, refSpanSec float64, c *issue.Collector) error {
	return nil
}

// ---------------------------------------------------------------------------
// Mock TranslatorFactory + stub translate.Translator
// ---------------------------------------------------------------------------

type mockTranslatorFactory struct {
	NewFunc func(apiKey, model string, retries int) (translate.Translator, error)

	mu       sync.Mutex
	newCalls []factoryCall
}

func (m *mockTranslatorFactory) New(apiKey, model string, retries int) (translate.Translator, error) {
	m.mu.Lock()
	m.newCalls = append(m.newCalls, factoryCall{APIKey: apiKey, Model: model, Retries: retries})
	m.mu.Unlock()

	if m.NewFunc != nil {
		return m.NewFunc(apiKey, model, retries)
	}
	return &stubTranslator{model: model}, nil
}

func (m *mockTranslatorFactory) NewCalls() []factoryCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]factoryCall(nil), m.newCalls...)
}

type stubTranslator struct {
	model string
}

func (s *stubTranslator) Translate(ctx context.Context, prompt string) (translate.Result, error) {
	return translate.Result{Text: "stub"}, nil
}

func (s *stubTranslator) Model() string { return s.model }

// ---------------------------------------------------------------------------
// Pipeline capture - records what runRoot hands to the pipeline
// ---------------------------------------------------------------------------

type pipelineCapture struct {
	RunFunc func(ctx context.Context, opts pipeline.Options, deps pipeline.Deps) error

	mu    sync.Mutex
	calls []pipelineCall
}

type pipelineCall struct {
	Opts pipeline.Options
	Deps pipeline.Deps
}

func (p *pipelineCapture) Run(ctx context.Context, opts pipeline.Options, deps pipeline.Deps) error {
	p.mu.Lock()
	p.calls = append(p.calls, pipelineCall{Opts: opts, Deps: deps})
	p.mu.Unlock()

	if p.RunFunc != nil {
		return p.RunFunc(ctx, opts, deps)
	}
	return nil
}

func (p *pipelineCapture) Calls() []pipelineCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pipelineCall(nil), p.calls...)
}

// ---------------------------------------------------------------------------
// Compile-time interface verification
// ---------------------------------------------------------------------------

var (
	_ FFmpegLocator        = (*mockFFmpegLocator)(nil)
	_ DefaultsLoader       = (*mockDefaultsLoader)(nil)
	_ TranscriberFactory   = (*mockTranscriberFactory)(nil)
	_ TranslatorFactory    = (*mockTranslatorFactory)(nil)
	_ pipeline.Transcriber = (*stubTranscriber)(nil)
	_ translate.Translator = (*stubTranslator)(nil)
)
