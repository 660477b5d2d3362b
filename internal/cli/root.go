package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alnah/go-bisub/internal/config"
	"github.com/alnah/go-bisub/internal/ffmpeg"
	"github.com/alnah/go-bisub/internal/lang"
	"github.com/alnah/go-bisub/internal/pipeline"
	"github.com/alnah/go-bisub/internal/translate"
)

// maxConcurrentLimit caps the worker pools; more parallel uploads than this
// trips provider rate limits well before it saves any time.
const maxConcurrentLimit = 16

// hexColorRe matches #RRGGBB font colors.
var hexColorRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// rootFlags collects raw flag values before validation.
type rootFlags struct {
	srtPath              string
	outputDir            string
	workDir              string
	sourceLangs          string
	targetLang           string
	transcriptionModel   string
	translationModel     string
	chunkDuration        float64
	chunkOverlap         float64
	chunkFormat          string
	maxConcurrent        int
	retries              int
	transcriptionRetries int
	force                bool
	onlyPart             int
	noTimingValidation   bool
	useResponseTimings   bool
	markFallbacks        bool
	colorEnglish         string
	colorTarget          string
	outputOffset         float64
	inputOffset          float64
}

// RootCmd creates the bisub command. The env parameter provides injectable
// dependencies for testing.
func RootCmd(env *Env) *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "bisub <video>",
		Short: "Generate bilingual subtitles for a video",
		Long: `Generate bilingual subtitles for a video: the audio is cut into
overlapping chunks, transcribed with a multimodal model, translated against
the English reference subtitles, validated, and merged into one SRT carrying
both languages.

Transcription uses Gemini. Translation uses DeepSeek by default, or any
OpenAI-compatible chat model via --translation-model.

Interrupted runs resume: artifacts already in the work directory are reused
unless --force is set.`,
		Example: `  bisub movie.mkv --srt movie.srt -t pt-BR
  bisub movie.mkv --srt movie.srt -t french -o ~/subs
  bisub lecture.mp4 -t es --use-response-timings
  bisub movie.mkv --srt movie.srt -t pt-BR --only-part 3 --force`,
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoot(cmd, env, args[0], flags)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.srtPath, "srt", "", "English reference subtitles (SRT)")
	f.StringVarP(&flags.outputDir, "output-dir", "o", ".", "Directory for the final bilingual SRT")
	f.StringVar(&flags.workDir, "work-dir", "", "Directory for intermediate artifacts (default: <video>_work)")
	f.StringVar(&flags.sourceLangs, "source-langs", "", "Spoken languages, comma-separated (e.g. ja,en); empty lets the model detect them")
	f.StringVarP(&flags.targetLang, "target-lang", "t", "", "Translation language, ISO 639-1 code or name (required)")
	f.StringVar(&flags.transcriptionModel, "transcription-model", "gemini-2.0-flash", "Multimodal model for transcription")
	f.StringVar(&flags.translationModel, "translation-model", "deepseek-chat", "Chat model for translation")
	f.Float64Var(&flags.chunkDuration, "chunk-duration", 1200, "Chunk length in seconds")
	f.Float64Var(&flags.chunkOverlap, "chunk-overlap", 300, "Chunk overlap in seconds")
	f.StringVar(&flags.chunkFormat, "chunk-format", string(ffmpeg.FormatAudio), "Chunk media shape: audio, video")
	f.IntVar(&flags.maxConcurrent, "max-concurrent", 4, "Concurrent workers per stage (1-16)")
	f.IntVar(&flags.retries, "retries", 2, "Translation retries after a failed validation")
	f.IntVar(&flags.transcriptionRetries, "transcription-retries", 2, "Transcription retries after a rejected transcript")
	f.BoolVar(&flags.force, "force", false, "Reprocess every stage, ignoring existing artifacts")
	f.IntVar(&flags.onlyPart, "only-part", 0, "Process a single part (1-based) and merge whatever exists")
	f.BoolVar(&flags.noTimingValidation, "no-timing-validation", false, "Skip the transcript-to-reference timing check")
	f.BoolVar(&flags.useResponseTimings, "use-response-timings", false, "Prefer model timings over the reference")
	f.BoolVar(&flags.markFallbacks, "mark-fallbacks", true, "Prefix fallback English lines with a marker")
	f.StringVar(&flags.colorEnglish, "color-english", "#FFFFFF", "Font color of the English line")
	f.StringVar(&flags.colorTarget, "color-target", "#FFFF00", "Font color of the translated line")
	f.Float64Var(&flags.outputOffset, "output-offset", 0, "Shift all output cues by this many seconds")
	f.Float64Var(&flags.inputOffset, "input-offset", 0, "Shift all reference cues by this many seconds")

	// Error is ignored: MarkFlagRequired only fails if the flag doesn't
	// exist, which is a programming error caught at development time.
	_ = cmd.MarkFlagRequired("target-lang")

	return cmd
}

// runRoot validates the flags, wires the collaborators, and hands off to the
// pipeline.
// Validation order: video -> defaults -> languages -> reference -> timing
// source -> chunk geometry -> format -> colors -> bounds -> output dir ->
// API keys.
func runRoot(cmd *cobra.Command, env *Env, videoPath string, flags rootFlags) error {
	ctx := cmd.Context()

	// === VALIDATION (fail-fast) ===

	// 1. Video exists
	if _, err := os.Stat(videoPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, videoPath)
		}
		return fmt.Errorf("cannot access video: %w", err)
	}

	// 2. Defaults file seeds flags the user left untouched (warn-only)
	defaults, err := env.DefaultsLoader.Load()
	if err != nil {
		fmt.Fprintf(env.Stderr, "Warning: failed to load defaults: %v\n", err)
	}
	applyDefaults(cmd, &flags, defaults)

	// 3. Target language parses and is not English
	target, err := lang.Parse(flags.targetLang)
	if err != nil {
		return fmt.Errorf("--target-lang: %w", err)
	}
	if target.IsEnglish() {
		return fmt.Errorf("target language is English but the English line is already carried: %w", ErrInvalidFlag)
	}

	// 4. Source languages parse
	sources, err := lang.ParseList(flags.sourceLangs)
	if err != nil {
		return fmt.Errorf("--source-langs: %w", err)
	}

	// 5. Reference file exists when named
	if flags.srtPath != "" {
		if _, err := os.Stat(flags.srtPath); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("%w: %s", ErrFileNotFound, flags.srtPath)
			}
			return fmt.Errorf("cannot access reference subtitles: %w", err)
		}
	}

	// 6. Some timing source must exist
	if flags.srtPath == "" && !flags.useResponseTimings {
		return fmt.Errorf("no --srt reference given; pass --use-response-timings to time cues from the model output: %w", ErrInvalidFlag)
	}

	// 7. Chunk geometry
	if flags.chunkDuration <= 0 {
		return fmt.Errorf("--chunk-duration %gs must be positive: %w", flags.chunkDuration, ErrInvalidFlag)
	}
	if flags.chunkOverlap < 0 || flags.chunkOverlap >= flags.chunkDuration {
		return fmt.Errorf("--chunk-overlap %gs must be at least 0 and below the chunk duration: %w", flags.chunkOverlap, ErrInvalidFlag)
	}

	// 8. Chunk format
	format := ffmpeg.Format(flags.chunkFormat)
	if !format.Valid() {
		return fmt.Errorf("--chunk-format %q (use audio or video): %w", flags.chunkFormat, ErrInvalidFlag)
	}

	// 9. Colors
	for name, value := range map[string]string{
		"color-english": flags.colorEnglish,
		"color-target":  flags.colorTarget,
	} {
		if !hexColorRe.MatchString(value) {
			return fmt.Errorf("--%s %q is not a #RRGGBB color: %w", name, value, ErrInvalidFlag)
		}
	}

	// 10. Worker and retry bounds
	maxConcurrent := clampConcurrent(flags.maxConcurrent)
	retries := clampNonNegative(flags.retries)
	transcriptionRetries := clampNonNegative(flags.transcriptionRetries)
	if flags.onlyPart < 0 {
		return fmt.Errorf("--only-part %d must be positive: %w", flags.onlyPart, ErrInvalidFlag)
	}

	// 11. Output directory usable (created when missing)
	outputDir := config.ExpandPath(flags.outputDir)
	if err := config.ValidOutputDir(outputDir); err != nil {
		return fmt.Errorf("--output-dir: %w", err)
	}

	// 12. Work directory
	workDir := flags.workDir
	if workDir == "" {
		workDir = defaultWorkDir(videoPath)
	}

	// 13. API keys for both providers
	geminiKey := env.Getenv(EnvGeminiAPIKey)
	if geminiKey == "" {
		return fmt.Errorf("%w (set it with: export %s=...)", ErrGeminiKeyMissing, EnvGeminiAPIKey)
	}
	translationKey, err := translationKey(env, flags.translationModel)
	if err != nil {
		return err
	}

	// === SETUP ===

	paths, err := env.FFmpeg.Resolve()
	if err != nil {
		return err
	}
	env.FFmpeg.CheckVersion(ctx, paths.FFmpeg)

	transcriber, err := env.TranscriberFactory.New(geminiKey, flags.transcriptionModel, transcriptionRetries)
	if err != nil {
		return err
	}
	translator, err := env.TranslatorFactory.New(translationKey, flags.translationModel, retries)
	if err != nil {
		return err
	}

	// === RUN ===

	opts := pipeline.Options{
		VideoPath:               videoPath,
		SRTPath:                 flags.srtPath,
		OutputDir:               outputDir,
		WorkDir:                 workDir,
		SourceLangs:             sources,
		TargetLang:              target,
		ChunkDurationSec:        flags.chunkDuration,
		ChunkOverlapSec:         flags.chunkOverlap,
		ChunkFormat:             format,
		MaxConcurrent:           maxConcurrent,
		Retries:                 retries,
		Force:                   flags.force,
		ProcessOnlyPart:         flags.onlyPart,
		DisableTimingValidation: flags.noTimingValidation,
		UseResponseTimings:      flags.useResponseTimings,
		MarkFallbacks:           flags.markFallbacks,
		ColorEnglish:            flags.colorEnglish,
		ColorTarget:             flags.colorTarget,
		FallbackMarker:          defaults.FallbackMarker,
		InputOffsetSec:          flags.inputOffset,
		OutputOffsetSec:         flags.outputOffset,
	}
	deps := pipeline.Deps{
		Prober:      ffmpeg.NewProber(paths.FFprobe),
		Slicer:      ffmpeg.NewSlicer(paths.FFmpeg),
		Transcriber: transcriber,
		Translator:  translator,
		Stderr:      env.Stderr,
	}
	return env.RunPipeline(ctx, opts, deps)
}

// applyDefaults overlays the defaults file onto flags the user did not set.
// A flag given on the command line always wins.
func applyDefaults(cmd *cobra.Command, flags *rootFlags, d config.Defaults) {
	set := func(name string) bool { return cmd.Flags().Changed(name) }
	if !set("output-dir") && d.OutputDir != "" {
		flags.outputDir = d.OutputDir
	}
	if !set("transcription-model") && d.TranscriptionModel != "" {
		flags.transcriptionModel = d.TranscriptionModel
	}
	if !set("translation-model") && d.TranslationModel != "" {
		flags.translationModel = d.TranslationModel
	}
	if !set("color-english") && d.ColorEnglish != "" {
		flags.colorEnglish = d.ColorEnglish
	}
	if !set("color-target") && d.ColorTarget != "" {
		flags.colorTarget = d.ColorTarget
	}
	if !set("max-concurrent") && d.MaxConcurrent > 0 {
		flags.maxConcurrent = d.MaxConcurrent
	}
}

// translationKey picks the credential for the translation model's provider.
func translationKey(env *Env, model string) (string, error) {
	if translate.ProviderFor(model) == translate.ProviderDeepSeek {
		key := env.Getenv(EnvDeepSeekAPIKey)
		if key == "" {
			return "", fmt.Errorf("%w (set it with: export %s=sk-...)", ErrDeepSeekKeyMissing, EnvDeepSeekAPIKey)
		}
		return key, nil
	}
	key := env.Getenv(EnvOpenAIAPIKey)
	if key == "" {
		return "", fmt.Errorf("%w (set it with: export %s=sk-...)", ErrOpenAIKeyMissing, EnvOpenAIAPIKey)
	}
	return key, nil
}

// defaultWorkDir places intermediate artifacts next to the video, in
// <basename>_work.
func defaultWorkDir(videoPath string) string {
	base := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	return filepath.Join(filepath.Dir(videoPath), base+"_work")
}

// clampConcurrent constrains worker counts to [1, maxConcurrentLimit].
func clampConcurrent(n int) int {
	if n < 1 {
		return 1
	}
	if n > maxConcurrentLimit {
		return maxConcurrentLimit
	}
	return n
}

// clampNonNegative floors retry counts at zero.
func clampNonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
