package bootstrap

import (
	"log/slog"

	"vectort/internal/audio"
	"vectort/internal/config"
	"vectort/internal/ports"
	"vectort/internal/providers/deepgram"
	"vectort/internal/providers/sse"
	"vectort/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Speech *usecase.SpeechEngine
	Input  *usecase.VoiceInput
	Stream *usecase.GenerationStreamConsumer
	Config config.Config
}

// Close releases the speech recognizer and any open generation stream.
func (s Services) Close() {
	if s.Input != nil {
		s.Input.Close()
	}
	if s.Speech != nil {
		s.Speech.Close()
	}
	if s.Stream != nil {
		s.Stream.Close()
	}
}

// Build wires all backend dependencies for the current runtime.
func Build(host ports.InputHost, sink ports.GenerationSink, logger *slog.Logger) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	if logger == nil {
		logger = NewLogger(nil, cfg.Log.Level)
	}
	return BuildWithConfig(cfg, host, sink, logger), nil
}

// BuildWithConfig wires dependencies for an already resolved configuration.
func BuildWithConfig(cfg config.Config, host ports.InputHost, sink ports.GenerationSink, logger *slog.Logger) Services {
	capture := audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand)

	var recognizer ports.SpeechRecognizer
	switch {
	case !cfg.VoiceConfigured():
		logger.Info("voice input disabled", "reason", "DEEPGRAM_API_KEY is not configured")
	case !capture.Available():
		logger.Info("voice input disabled", "reason", "audio recorder not found", "command", cfg.Audio.RecorderCommand)
	default:
		recognizer = usecase.NewStreamingRecognizer(
			capture,
			deepgram.NewProvider(deepgram.Config{
				APIKey:      cfg.Deepgram.APIKey,
				APIBaseURL:  cfg.Deepgram.APIBaseURL,
				Model:       cfg.Deepgram.Model,
				Language:    cfg.Deepgram.Language,
				SmartFormat: cfg.Deepgram.SmartFormat,
			}),
			usecase.RecognizerConfig{
				Audio: ports.AudioConfig{
					SampleRate:  cfg.Audio.SampleRate,
					Channels:    cfg.Audio.Channels,
					InputFormat: cfg.Audio.InputFormat,
					InputDevice: cfg.Audio.InputDevice,
				},
				Streaming: ports.StreamingConfig{
					SampleRate: cfg.Audio.SampleRate,
					Channels:   cfg.Audio.Channels,
					Encoding:   "linear16",
				},
				ChunkSize:      cfg.Session.ChunkSize,
				StreamingGrace: cfg.Session.StreamingGrace,
				StreamTimeout:  cfg.Session.StreamTimeout,
			},
			logger,
		)
	}

	speech := usecase.NewSpeechEngine(recognizer, usecase.SpeechEngineConfig{
		Recognition: ports.RecognitionConfig{
			Continuous:      cfg.Speech.Continuous,
			InterimResults:  cfg.Speech.InterimResults,
			Language:        cfg.Speech.Language,
			MaxAlternatives: cfg.Speech.MaxAlternatives,
		},
		ResetStopsCapture: cfg.Speech.ResetStopsCapture,
		StartRetryDelay:   cfg.Speech.StartRetryDelay,
	}, logger)

	input := usecase.NewVoiceInput(speech, host, usecase.VoiceInputConfig{
		Name:            cfg.Input.Name,
		MicLockDuration: cfg.Input.MicLockDuration,
	}, logger)
	speech.Subscribe(input)

	source := sse.NewSource(sse.Config{
		BaseURL:                cfg.Backend.BaseURL,
		Token:                  cfg.Backend.Token,
		ReconnectDelay:         cfg.Stream.ReconnectDelay,
		MaxReconnectDelay:      cfg.Stream.MaxReconnectDelay,
		MaxConsecutiveFailures: cfg.Stream.MaxConsecutiveFailures,
	}, logger)
	stream := usecase.NewGenerationStreamConsumer(source, sink, logger)

	return Services{
		Speech: speech,
		Input:  input,
		Stream: stream,
		Config: cfg,
	}
}
