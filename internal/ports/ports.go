package ports

import (
	"context"
	"errors"
	"io"

	"vectort/internal/domain"
)

// ErrRecognitionActive is returned by SpeechRecognizer.Start when a session
// is already running.
var ErrRecognitionActive = errors.New("speech recognition already started")

// ErrProviderUnauthorized is wrapped by providers that reject the configured
// credentials.
var ErrProviderUnauthorized = errors.New("transcription provider rejected credentials")

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate      int
	Channels        int
	Encoding        string
	InterimResults  bool
	Language        string
	MaxAlternatives int
}

// StreamingSession is an active provider websocket session.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider starts streaming transcription sessions.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// RecognitionConfig mirrors the flags of a speech recognition facility.
type RecognitionConfig struct {
	Continuous      bool
	InterimResults  bool
	Language        string
	MaxAlternatives int
}

// RecognitionHandler receives recognizer callbacks. Callbacks of one
// session are delivered serially; OnEnd is always the last one.
type RecognitionHandler interface {
	OnStart()
	OnResult(results []domain.RecognitionResult)
	OnError(err domain.RecognitionError)
	OnEnd()
}

// SpeechRecognizer is the speech-to-text capability used by the capture engine.
type SpeechRecognizer interface {
	Configure(cfg RecognitionConfig)
	SetHandler(handler RecognitionHandler)
	Start(ctx context.Context) error
	Stop() error
}

// TranscriptObserver is notified whenever the observable transcript state changes.
type TranscriptObserver interface {
	TranscriptChanged(state domain.TranscriptState)
}

// InputHost receives notifications from the voice-aware text input.
type InputHost interface {
	OnChange(event domain.ChangeEvent)
	OnFileUpload(files []domain.FileHandle)
	OnGithubSave(text string, files []domain.FileHandle)
	OnFork(text string)
	OnUltraMode(enabled bool)
}

// GenerationStream is one live connection to a project's event stream.
type GenerationStream interface {
	Signals() <-chan domain.StreamSignal
	Close() error
}

// GenerationEventSource opens project event streams.
type GenerationEventSource interface {
	Subscribe(ctx context.Context, projectID string) (GenerationStream, error)
}

// GenerationSink receives stream session updates.
type GenerationSink interface {
	StreamSessionChanged(session domain.StreamSession)
	GenerationComplete(projectID string)
}

// Clipboard writes text into the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}
