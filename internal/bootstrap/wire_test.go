package bootstrap

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vectort/internal/config"
	"vectort/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildSuccess(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("VECTORT_CONFIG_FILE", "")
	t.Setenv("DEEPGRAM_API_KEY", "test-key")

	services, err := Build(noopInputHost{}, noopGenerationSink{}, discardLogger())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer services.Close()

	if services.Speech == nil || services.Input == nil || services.Stream == nil {
		t.Fatalf("expected all services, got %+v", services)
	}
}

func TestBuildFailsOnInvalidConfigFile(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "bad.toml")
	if err := os.WriteFile(path, []byte("not = [valid"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	t.Setenv("HOME", home)
	t.Setenv("VECTORT_CONFIG_FILE", path)

	if _, err := Build(noopInputHost{}, noopGenerationSink{}, discardLogger()); err == nil {
		t.Fatalf("expected build error due to invalid config file")
	}
}

func TestBuildWithoutKeyIsUnsupported(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	services := BuildWithConfig(cfg, noopInputHost{}, noopGenerationSink{}, discardLogger())
	defer services.Close()

	if services.Speech.State().IsSupported {
		t.Fatalf("expected speech to be unsupported without an API key")
	}
}

func TestBuildWithMissingRecorderIsUnsupported(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	cfg.Deepgram.APIKey = "key"
	cfg.Audio.RecorderCommand = filepath.Join(t.TempDir(), "no-such-recorder")

	services := BuildWithConfig(cfg, noopInputHost{}, noopGenerationSink{}, discardLogger())
	defer services.Close()

	if services.Speech.State().IsSupported {
		t.Fatalf("expected speech to be unsupported without a recorder")
	}
}

func TestBuildWithRecorderIsSupported(t *testing.T) {
	t.Parallel()

	recorder := filepath.Join(t.TempDir(), "recorder.sh")
	if err := os.WriteFile(recorder, []byte("#!/usr/bin/env bash\nexit 0\n"), 0o700); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cfg := config.Defaults()
	cfg.Deepgram.APIKey = "key"
	cfg.Audio.RecorderCommand = recorder

	services := BuildWithConfig(cfg, noopInputHost{}, noopGenerationSink{}, discardLogger())
	defer services.Close()

	if !services.Speech.State().IsSupported {
		t.Fatalf("expected speech to be supported")
	}
}

func TestBuildInputMergesTranscripts(t *testing.T) {
	t.Parallel()

	services := BuildWithConfig(config.Defaults(), noopInputHost{}, noopGenerationSink{}, discardLogger())
	defer services.Close()

	services.Input.TranscriptChanged(domain.TranscriptState{Transcript: "bonjour"})
	if got := services.Input.Value(); got != "bonjour" {
		t.Fatalf("unexpected input value: %q", got)
	}
}

func TestNewLoggerRespectsLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn")
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected log output: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for input, want := range cases {
		if got := ParseLevel(input); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

type noopInputHost struct{}

func (noopInputHost) OnChange(_ domain.ChangeEvent)                {}
func (noopInputHost) OnFileUpload(_ []domain.FileHandle)           {}
func (noopInputHost) OnGithubSave(_ string, _ []domain.FileHandle) {}
func (noopInputHost) OnFork(_ string)                              {}
func (noopInputHost) OnUltraMode(_ bool)                           {}

type noopGenerationSink struct{}

func (noopGenerationSink) StreamSessionChanged(_ domain.StreamSession) {}
func (noopGenerationSink) GenerationComplete(_ string)                 {}

