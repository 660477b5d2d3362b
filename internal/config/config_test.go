package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Notes:
// - White-box testing (package config) to test internal parseFile function.
// - Uses t.TempDir() + t.Setenv("XDG_CONFIG_HOME") for I/O isolation.
// - Tests using t.Setenv are NOT parallel (incompatible with t.Parallel).
// - os.UserHomeDir() failure paths are intentionally untested (system-level
//   errors that would require extensive mocking for minimal benefit).

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// writeConfigFile creates a config file in the given directory.
func writeConfigFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "bisub")
	if err := os.MkdirAll(configDir, 0750); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	configPath := filepath.Join(configDir, "config")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
}

// ---------------------------------------------------------------------------
// TestLoad - Defaults file reading
// ---------------------------------------------------------------------------

func TestLoad(t *testing.T) {
	t.Run("missing file yields zero defaults", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", t.TempDir())
		t.Setenv(EnvOutputDir, "")

		d, err := Load()
		if err != nil {
			t.Fatalf("Load() unexpected error: %v", err)
		}
		if d != (Defaults{}) {
			t.Errorf("Load() = %+v, want zero Defaults", d)
		}
	})

	t.Run("all keys read", func(t *testing.T) {
		tmp := t.TempDir()
		writeConfigFile(t, tmp, `
# user defaults
output-dir = /srv/subs
transcription-model = gemini-2.5-pro
translation-model = gpt-4o
color-english = #EEEEEE
color-target = #00FFFF
fallback-marker = [?]
max-concurrent = 8
`)
		t.Setenv("XDG_CONFIG_HOME", tmp)

		d, err := Load()
		if err != nil {
			t.Fatalf("Load() unexpected error: %v", err)
		}
		if d.OutputDir != "/srv/subs" {
			t.Errorf("OutputDir = %q", d.OutputDir)
		}
		if d.TranscriptionModel != "gemini-2.5-pro" {
			t.Errorf("TranscriptionModel = %q", d.TranscriptionModel)
		}
		if d.TranslationModel != "gpt-4o" {
			t.Errorf("TranslationModel = %q", d.TranslationModel)
		}
		if d.ColorEnglish != "#EEEEEE" || d.ColorTarget != "#00FFFF" {
			t.Errorf("colors = %q / %q", d.ColorEnglish, d.ColorTarget)
		}
		if d.FallbackMarker != "[?]" {
			t.Errorf("FallbackMarker = %q", d.FallbackMarker)
		}
		if d.MaxConcurrent != 8 {
			t.Errorf("MaxConcurrent = %d", d.MaxConcurrent)
		}
	})

	t.Run("bad max-concurrent errors", func(t *testing.T) {
		tmp := t.TempDir()
		writeConfigFile(t, tmp, "max-concurrent = many\n")
		t.Setenv("XDG_CONFIG_HOME", tmp)

		if _, err := Load(); err == nil {
			t.Error("Load() expected error for non-numeric max-concurrent")
		}
	})

	t.Run("zero max-concurrent errors", func(t *testing.T) {
		tmp := t.TempDir()
		writeConfigFile(t, tmp, "max-concurrent = 0\n")
		t.Setenv("XDG_CONFIG_HOME", tmp)

		if _, err := Load(); err == nil {
			t.Error("Load() expected error for zero max-concurrent")
		}
	})

	t.Run("env fallback for output dir", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", t.TempDir())
		t.Setenv(EnvOutputDir, "/from/env")

		d, err := Load()
		if err != nil {
			t.Fatalf("Load() unexpected error: %v", err)
		}
		if d.OutputDir != "/from/env" {
			t.Errorf("OutputDir = %q, want /from/env", d.OutputDir)
		}
	})

	t.Run("file wins over env", func(t *testing.T) {
		tmp := t.TempDir()
		writeConfigFile(t, tmp, "output-dir = /from/file\n")
		t.Setenv("XDG_CONFIG_HOME", tmp)
		t.Setenv(EnvOutputDir, "/from/env")

		d, err := Load()
		if err != nil {
			t.Fatalf("Load() unexpected error: %v", err)
		}
		if d.OutputDir != "/from/file" {
			t.Errorf("OutputDir = %q, want /from/file", d.OutputDir)
		}
	})
}

// ---------------------------------------------------------------------------
// TestParseFile - key=value syntax
// ---------------------------------------------------------------------------

func TestParseFile(t *testing.T) {
	t.Parallel()

	t.Run("comments and blanks skipped", func(t *testing.T) {
		t.Parallel()

		p := filepath.Join(t.TempDir(), "config")
		content := "# comment\n\nkey = value\nother=x\n"
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}

		data, err := parseFile(p)
		if err != nil {
			t.Fatalf("parseFile() unexpected error: %v", err)
		}
		if data["key"] != "value" || data["other"] != "x" {
			t.Errorf("data = %v", data)
		}
	})

	t.Run("line without equals errors", func(t *testing.T) {
		t.Parallel()

		p := filepath.Join(t.TempDir(), "config")
		if err := os.WriteFile(p, []byte("not a pair\n"), 0644); err != nil {
			t.Fatal(err)
		}

		if _, err := parseFile(p); err == nil || !strings.Contains(err.Error(), "line 1") {
			t.Errorf("parseFile() error = %v, want syntax error naming line 1", err)
		}
	})
}

// ---------------------------------------------------------------------------
// TestValidOutputDir / TestExpandPath
// ---------------------------------------------------------------------------

func TestValidOutputDir(t *testing.T) {
	t.Parallel()

	t.Run("existing writable dir", func(t *testing.T) {
		t.Parallel()

		if err := ValidOutputDir(t.TempDir()); err != nil {
			t.Errorf("ValidOutputDir() unexpected error: %v", err)
		}
	})

	t.Run("missing dir is created", func(t *testing.T) {
		t.Parallel()

		d := filepath.Join(t.TempDir(), "new", "nested")
		if err := ValidOutputDir(d); err != nil {
			t.Fatalf("ValidOutputDir() unexpected error: %v", err)
		}
		if info, err := os.Stat(d); err != nil || !info.IsDir() {
			t.Errorf("directory was not created: %v", err)
		}
	})

	t.Run("file path rejected", func(t *testing.T) {
		t.Parallel()

		p := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := ValidOutputDir(p); err == nil {
			t.Error("ValidOutputDir() expected error for file path")
		}
	})

	t.Run("empty rejected", func(t *testing.T) {
		t.Parallel()

		if err := ValidOutputDir(""); err == nil {
			t.Error("ValidOutputDir() expected error for empty path")
		}
	})
}

func TestExpandPath(t *testing.T) {
	t.Parallel()

	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "tilde prefix", input: "~/subs", want: filepath.Join(home, "subs")},
		{name: "absolute unchanged", input: "/srv/subs", want: "/srv/subs"},
		{name: "relative unchanged", input: "subs", want: "subs"},
		{name: "bare tilde unchanged", input: "~", want: "~"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := ExpandPath(tt.input); got != tt.want {
				t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
