package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config stores runtime configuration. Values come from built-in defaults,
// then the optional TOML file, then environment variables.
type Config struct {
	Backend  BackendConfig  `toml:"backend"`
	Speech   SpeechConfig   `toml:"speech"`
	Deepgram DeepgramConfig `toml:"deepgram"`
	Audio    AudioConfig    `toml:"audio"`
	Session  SessionConfig  `toml:"session"`
	Input    InputConfig    `toml:"input"`
	Stream   StreamConfig   `toml:"stream"`
	Log      LogConfig      `toml:"log"`

	// File is the config file that was loaded, if any.
	File string `toml:"-"`
}

type BackendConfig struct {
	BaseURL string `toml:"base_url"`
	Token   string `toml:"token"`
}

type SpeechConfig struct {
	Language          string        `toml:"language"`
	Continuous        bool          `toml:"continuous"`
	InterimResults    bool          `toml:"interim_results"`
	MaxAlternatives   int           `toml:"max_alternatives"`
	ResetStopsCapture bool          `toml:"reset_stops_capture"`
	StartRetryDelay   time.Duration `toml:"start_retry_delay"`
}

type DeepgramConfig struct {
	APIKey      string `toml:"api_key"`
	APIBaseURL  string `toml:"api_base"`
	Model       string `toml:"model"`
	Language    string `toml:"language"`
	SmartFormat bool   `toml:"smart_format"`
}

type AudioConfig struct {
	RecorderCommand string `toml:"recorder_command"`
	InputFormat     string `toml:"input_format"`
	InputDevice     string `toml:"input_device"`
	SampleRate      int    `toml:"sample_rate"`
	Channels        int    `toml:"channels"`
}

type SessionConfig struct {
	ChunkSize      int           `toml:"chunk_size"`
	StreamingGrace time.Duration `toml:"streaming_grace"`
	StreamTimeout  time.Duration `toml:"stream_timeout"`
}

type InputConfig struct {
	Name            string        `toml:"name"`
	MicLockDuration time.Duration `toml:"mic_lock_duration"`
}

type StreamConfig struct {
	ReconnectDelay         time.Duration `toml:"reconnect_delay"`
	MaxReconnectDelay      time.Duration `toml:"max_reconnect_delay"`
	MaxConsecutiveFailures int           `toml:"max_consecutive_failures"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	return Config{
		Backend: BackendConfig{
			BaseURL: "http://localhost:8000",
		},
		Speech: SpeechConfig{
			Language:          "fr-FR",
			Continuous:        false,
			InterimResults:    true,
			MaxAlternatives:   1,
			ResetStopsCapture: true,
			StartRetryDelay:   200 * time.Millisecond,
		},
		Deepgram: DeepgramConfig{
			APIBaseURL:  "https://api.deepgram.com/v1",
			Model:       "nova-2",
			SmartFormat: true,
		},
		Audio: AudioConfig{
			RecorderCommand: "ffmpeg",
			InputFormat:     "pulse",
			InputDevice:     "default",
			SampleRate:      16000,
			Channels:        1,
		},
		Session: SessionConfig{
			ChunkSize:      4096,
			StreamingGrace: time.Second,
			StreamTimeout:  4 * time.Second,
		},
		Input: InputConfig{
			Name:            "prompt",
			MicLockDuration: 300 * time.Millisecond,
		},
		Stream: StreamConfig{
			ReconnectDelay:         time.Second,
			MaxReconnectDelay:      30 * time.Second,
			MaxConsecutiveFailures: 5,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load resolves configuration from the config file, environment variables
// and defaults.
func Load() (Config, error) {
	cfg := Defaults()

	path, explicit, err := configFilePath()
	if err != nil {
		return Config{}, err
	}
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return Config{}, err
			}
		} else {
			cfg.File = path
		}
	}

	applyEnv(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func configFilePath() (path string, explicit bool, err error) {
	if path := strings.TrimSpace(os.Getenv("VECTORT_CONFIG_FILE")); path != "" {
		return path, true, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, errors.New("could not determine home directory")
	}
	return filepath.Join(home, ".config", "vectort", "config.toml"), false, nil
}

func decodeFile(path string, cfg *Config) error {
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return err
		}
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Backend.BaseURL = envOrDefault("VECTORT_BACKEND_URL", cfg.Backend.BaseURL)
	cfg.Backend.Token = envOrDefault("VECTORT_TOKEN", cfg.Backend.Token)

	cfg.Speech.Language = envOrDefault("VECTORT_SPEECH_LANGUAGE", cfg.Speech.Language)
	cfg.Speech.Continuous = envOrDefaultBool("VECTORT_SPEECH_CONTINUOUS", cfg.Speech.Continuous)
	cfg.Speech.InterimResults = envOrDefaultBool("VECTORT_SPEECH_INTERIM_RESULTS", cfg.Speech.InterimResults)
	cfg.Speech.MaxAlternatives = envOrDefaultInt("VECTORT_SPEECH_MAX_ALTERNATIVES", cfg.Speech.MaxAlternatives)
	cfg.Speech.ResetStopsCapture = envOrDefaultBool("VECTORT_RESET_STOPS_CAPTURE", cfg.Speech.ResetStopsCapture)
	cfg.Speech.StartRetryDelay = envOrDefaultMillis("VECTORT_START_RETRY_DELAY_MS", cfg.Speech.StartRetryDelay)

	cfg.Deepgram.APIKey = envOrDefault("DEEPGRAM_API_KEY", cfg.Deepgram.APIKey)
	cfg.Deepgram.APIBaseURL = envOrDefault("DEEPGRAM_API_BASE", cfg.Deepgram.APIBaseURL)
	cfg.Deepgram.Model = envOrDefault("DEEPGRAM_MODEL", cfg.Deepgram.Model)
	cfg.Deepgram.Language = envOrDefault("DEEPGRAM_LANGUAGE", cfg.Deepgram.Language)
	cfg.Deepgram.SmartFormat = envOrDefaultBool("DEEPGRAM_SMART_FORMAT", cfg.Deepgram.SmartFormat)

	cfg.Audio.RecorderCommand = envOrDefault("VECTORT_FFMPEG_COMMAND", cfg.Audio.RecorderCommand)
	cfg.Audio.InputFormat = envOrDefault("VECTORT_AUDIO_INPUT_FORMAT", cfg.Audio.InputFormat)
	cfg.Audio.InputDevice = firstNonEmpty(
		os.Getenv("VECTORT_AUDIO_INPUT_DEVICE"),
		os.Getenv("DEEPGRAM_PULSE_SOURCE"),
		cfg.Audio.InputDevice,
	)
	cfg.Audio.SampleRate = envOrDefaultInt("VECTORT_SAMPLE_RATE", cfg.Audio.SampleRate)
	cfg.Audio.Channels = envOrDefaultInt("VECTORT_CHANNELS", cfg.Audio.Channels)

	cfg.Session.ChunkSize = envOrDefaultInt("VECTORT_AUDIO_CHUNK_SIZE", cfg.Session.ChunkSize)
	cfg.Session.StreamingGrace = envOrDefaultMillis("VECTORT_STREAMING_GRACE_MS", cfg.Session.StreamingGrace)
	cfg.Session.StreamTimeout = envOrDefaultMillis("VECTORT_STREAM_TIMEOUT_MS", cfg.Session.StreamTimeout)

	cfg.Input.Name = envOrDefault("VECTORT_INPUT_NAME", cfg.Input.Name)
	cfg.Input.MicLockDuration = envOrDefaultMillis("VECTORT_MIC_LOCK_MS", cfg.Input.MicLockDuration)

	cfg.Stream.ReconnectDelay = envOrDefaultMillis("VECTORT_STREAM_RECONNECT_MS", cfg.Stream.ReconnectDelay)
	cfg.Stream.MaxReconnectDelay = envOrDefaultMillis("VECTORT_STREAM_MAX_RECONNECT_MS", cfg.Stream.MaxReconnectDelay)
	cfg.Stream.MaxConsecutiveFailures = envOrDefaultInt("VECTORT_STREAM_MAX_FAILURES", cfg.Stream.MaxConsecutiveFailures)

	cfg.Log.Level = envOrDefault("VECTORT_LOG_LEVEL", cfg.Log.Level)
}

func normalize(cfg *Config) {
	defaults := Defaults()

	cfg.Backend.BaseURL = strings.TrimRight(cfg.Backend.BaseURL, "/")
	if cfg.Speech.MaxAlternatives <= 0 {
		cfg.Speech.MaxAlternatives = defaults.Speech.MaxAlternatives
	}
	if cfg.Speech.StartRetryDelay < 0 {
		cfg.Speech.StartRetryDelay = defaults.Speech.StartRetryDelay
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = defaults.Audio.SampleRate
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = defaults.Audio.Channels
	}
	if cfg.Session.ChunkSize < 256 {
		cfg.Session.ChunkSize = defaults.Session.ChunkSize
	}
	if cfg.Session.StreamingGrace < 0 {
		cfg.Session.StreamingGrace = defaults.Session.StreamingGrace
	}
	if cfg.Session.StreamTimeout <= 0 {
		cfg.Session.StreamTimeout = defaults.Session.StreamTimeout
	}
	if cfg.Input.MicLockDuration < 0 {
		cfg.Input.MicLockDuration = defaults.Input.MicLockDuration
	}
	if cfg.Stream.ReconnectDelay <= 0 {
		cfg.Stream.ReconnectDelay = defaults.Stream.ReconnectDelay
	}
	if cfg.Stream.MaxReconnectDelay < cfg.Stream.ReconnectDelay {
		cfg.Stream.MaxReconnectDelay = max(defaults.Stream.MaxReconnectDelay, cfg.Stream.ReconnectDelay)
	}
	if cfg.Stream.MaxConsecutiveFailures <= 0 {
		cfg.Stream.MaxConsecutiveFailures = defaults.Stream.MaxConsecutiveFailures
	}
}

// VoiceConfigured reports whether a speech provider key is present.
func (c Config) VoiceConfigured() bool {
	return strings.TrimSpace(c.Deepgram.APIKey) != ""
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func envOrDefaultMillis(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return time.Duration(parsed) * time.Millisecond
}
