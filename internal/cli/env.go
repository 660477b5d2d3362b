package cli

import (
	"context"
	"io"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alnah/go-bisub/internal/config"
	"github.com/alnah/go-bisub/internal/ffmpeg"
	"github.com/alnah/go-bisub/internal/gemini"
	"github.com/alnah/go-bisub/internal/pipeline"
	"github.com/alnah/go-bisub/internal/transcribe"
	"github.com/alnah/go-bisub/internal/translate"
)

// Environment variables holding provider credentials.
const (
	EnvGeminiAPIKey   = "GEMINI_API_KEY"
	EnvDeepSeekAPIKey = "DEEPSEEK_API_KEY"
	EnvOpenAIAPIKey   = "OPENAI_API_KEY"
)

// Env holds injectable dependencies for the command.
// This is the central injection point for testing the CLI in isolation.
//
// All fields have production defaults via DefaultEnv(). Tests override
// specific fields with the With* options or by building a custom Env.
type Env struct {
	// I/O and environment
	Stderr io.Writer
	Getenv func(string) string

	// Collaborators behind the command
	FFmpeg             FFmpegLocator
	DefaultsLoader     DefaultsLoader
	TranscriberFactory TranscriberFactory
	TranslatorFactory  TranslatorFactory

	// RunPipeline executes a fully wired run. Tests replace it to capture
	// the resolved options instead of running the stages.
	RunPipeline func(ctx context.Context, opts pipeline.Options, deps pipeline.Deps) error
}

// FFmpegLocator finds the transcoder binaries and checks their version.
type FFmpegLocator interface {
	Resolve() (ffmpeg.Paths, error)
	CheckVersion(ctx context.Context, ffmpegPath string)
}

// DefaultsLoader reads the user defaults file.
type DefaultsLoader interface {
	Load() (config.Defaults, error)
}

// TranscriberFactory builds the transcription stage for a model name.
type TranscriberFactory interface {
	New(apiKey, model string, retries int) (pipeline.Transcriber, error)
}

// TranslatorFactory builds the translation client for a model name.
type TranslatorFactory interface {
	New(apiKey, model string, retries int) (translate.Translator, error)
}

// EnvOption configures an Env.
type EnvOption func(*Env)

// WithStderr sets the stderr writer.
func WithStderr(w io.Writer) EnvOption {
	return func(e *Env) { e.Stderr = w }
}

// WithGetenv sets the environment variable getter.
func WithGetenv(fn func(string) string) EnvOption {
	return func(e *Env) { e.Getenv = fn }
}

// WithFFmpeg sets the transcoder locator.
func WithFFmpeg(l FFmpegLocator) EnvOption {
	return func(e *Env) { e.FFmpeg = l }
}

// WithDefaultsLoader sets the defaults file loader.
func WithDefaultsLoader(l DefaultsLoader) EnvOption {
	return func(e *Env) { e.DefaultsLoader = l }
}

// WithTranscriberFactory sets the transcriber factory.
func WithTranscriberFactory(f TranscriberFactory) EnvOption {
	return func(e *Env) { e.TranscriberFactory = f }
}

// WithTranslatorFactory sets the translator factory.
func WithTranslatorFactory(f TranslatorFactory) EnvOption {
	return func(e *Env) { e.TranslatorFactory = f }
}

// WithRunPipeline sets the pipeline runner.
func WithRunPipeline(fn func(ctx context.Context, opts pipeline.Options, deps pipeline.Deps) error) EnvOption {
	return func(e *Env) { e.RunPipeline = fn }
}

// DefaultEnv returns an Env with production defaults.
func DefaultEnv() *Env {
	return &Env{
		Stderr:             os.Stderr,
		Getenv:             os.Getenv,
		FFmpeg:             &defaultFFmpegLocator{},
		DefaultsLoader:     &defaultDefaultsLoader{},
		TranscriberFactory: &defaultTranscriberFactory{},
		TranslatorFactory:  &defaultTranslatorFactory{},
		RunPipeline: func(ctx context.Context, opts pipeline.Options, deps pipeline.Deps) error {
			return pipeline.New(opts, deps).Run(ctx)
		},
	}
}

// NewEnv creates an Env with the given options applied to defaults.
func NewEnv(opts ...EnvOption) *Env {
	env := DefaultEnv()
	for _, opt := range opts {
		opt(env)
	}
	return env
}

// ---------------------------------------------------------------------------
// Default implementations - delegate to real packages
// ---------------------------------------------------------------------------

type defaultFFmpegLocator struct{}

func (defaultFFmpegLocator) Resolve() (ffmpeg.Paths, error) {
	return ffmpeg.Resolve()
}

func (defaultFFmpegLocator) CheckVersion(ctx context.Context, ffmpegPath string) {
	ffmpeg.CheckVersion(ctx, ffmpegPath)
}

type defaultDefaultsLoader struct{}

func (defaultDefaultsLoader) Load() (config.Defaults, error) {
	return config.Load()
}

type defaultTranscriberFactory struct{}

func (defaultTranscriberFactory) New(apiKey, model string, retries int) (pipeline.Transcriber, error) {
	client, err := gemini.New(apiKey, gemini.WithModel(model))
	if err != nil {
		return nil, err
	}
	return transcribe.New(client, transcribe.WithRetries(retries)), nil
}

// defaultTranslatorFactory routes DeepSeek model names to the native client
// and everything else through the OpenAI-compatible one. The retry count
// bounds the provider's transient-failure backoff loop.
type defaultTranslatorFactory struct{}

func (defaultTranslatorFactory) New(apiKey, model string, retries int) (translate.Translator, error) {
	if translate.ProviderFor(model) == translate.ProviderDeepSeek {
		return translate.NewDeepSeekTranslator(apiKey,
			translate.WithDeepSeekModel(model),
			translate.WithDeepSeekMaxRetries(retries))
	}
	client := openai.NewClient(apiKey)
	return translate.NewOpenAITranslator(client,
		translate.WithModel(model),
		translate.WithMaxRetries(retries)), nil
}

// Compile-time interface verification.
var (
	_ FFmpegLocator      = (*defaultFFmpegLocator)(nil)
	_ DefaultsLoader     = (*defaultDefaultsLoader)(nil)
	_ TranscriberFactory = (*defaultTranscriberFactory)(nil)
	_ TranslatorFactory  = (*defaultTranslatorFactory)(nil)
)
