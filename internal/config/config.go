// Package config loads user defaults from the XDG config file. Values here
// seed flag defaults; a flag set on the command line always wins.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config file keys. Each mirrors the command-line flag of the same name,
// except fallback-marker which has no flag.
const (
	KeyOutputDir          = "output-dir"
	KeyTranscriptionModel = "transcription-model"
	KeyTranslationModel   = "translation-model"
	KeyColorEnglish       = "color-english"
	KeyColorTarget        = "color-target"
	KeyFallbackMarker     = "fallback-marker"
	KeyMaxConcurrent      = "max-concurrent"
)

// Environment variable fallbacks.
const (
	EnvOutputDir = "BISUB_OUTPUT_DIR"
)

// Defaults holds user preferences loaded from ~/.config/bisub/config.
// Zero values mean "not configured".
type Defaults struct {
	OutputDir          string
	TranscriptionModel string
	TranslationModel   string
	ColorEnglish       string
	ColorTarget        string
	FallbackMarker     string
	MaxConcurrent      int
}

// dir returns the configuration directory path.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/bisub.
func dir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "bisub"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "bisub"), nil
}

// path returns the full path to the config file.
func path() (string, error) {
	d, err := dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "config"), nil
}

// Load reads the configuration file and environment variables.
// Precedence: config file values, then environment variable fallbacks.
// Returns an empty Defaults if the file doesn't exist (not an error).
func Load() (Defaults, error) {
	var d Defaults

	p, err := path()
	if err != nil {
		return d, err
	}

	if data, err := parseFile(p); err == nil {
		d.OutputDir = data[KeyOutputDir]
		d.TranscriptionModel = data[KeyTranscriptionModel]
		d.TranslationModel = data[KeyTranslationModel]
		d.ColorEnglish = data[KeyColorEnglish]
		d.ColorTarget = data[KeyColorTarget]
		d.FallbackMarker = data[KeyFallbackMarker]
		if raw := data[KeyMaxConcurrent]; raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				return d, fmt.Errorf("invalid %s %q in %s", KeyMaxConcurrent, raw, p)
			}
			d.MaxConcurrent = n
		}
	} else if !os.IsNotExist(err) {
		return d, fmt.Errorf("failed to read config: %w", err)
	}

	// Environment variable fallback (only if not set in config).
	if d.OutputDir == "" {
		d.OutputDir = os.Getenv(EnvOutputDir)
	}

	return d, nil
}

// parseFile reads a key=value config file.
// Format: one key=value per line, # comments, empty lines ignored.
func parseFile(p string) (map[string]string, error) {
	f, err := os.Open(p) // #nosec G304 -- config path is constructed from home dir
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	data := make(map[string]string)
	scanner := bufio.NewScanner(f)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key=value.
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid syntax at line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		data[key] = value
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return data, nil
}

// ValidOutputDir checks if a directory path is valid for use as an output
// directory, creating it when missing.
// Returns nil if valid, or an error describing the problem.
func ValidOutputDir(d string) error {
	if d == "" {
		return fmt.Errorf("output directory cannot be empty")
	}

	d = ExpandPath(d)

	// Check if path exists.
	info, err := os.Stat(d)
	if err != nil {
		if os.IsNotExist(err) {
			// Directory doesn't exist - try to create it.
			if err := os.MkdirAll(d, 0750); err != nil { // #nosec G301 -- user output dir
				return fmt.Errorf("cannot create directory: %w", err)
			}
			return nil
		}
		return fmt.Errorf("cannot access directory: %w", err)
	}

	// Check if it's a directory.
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", d)
	}

	// Check if writable by attempting to create a temp file.
	testFile := filepath.Join(d, ".bisub-write-test")
	f, err := os.Create(testFile) // #nosec G304 -- path is constructed from validated dir
	if err != nil {
		return fmt.Errorf("directory is not writable: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(testFile)
		return fmt.Errorf("directory is not writable: %w", err)
	}
	_ = os.Remove(testFile) // Best effort cleanup, ignore error

	return nil
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(p string) string {
	if strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, p[2:])
	}
	return p
}
