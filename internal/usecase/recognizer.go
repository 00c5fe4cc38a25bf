package usecase

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"vectort/internal/domain"
	"vectort/internal/ports"
)

// RecognizerConfig controls microphone capture and provider streaming.
type RecognizerConfig struct {
	Audio          ports.AudioConfig
	Streaming      ports.StreamingConfig
	ChunkSize      int
	StreamingGrace time.Duration
	StreamTimeout  time.Duration
}

// StreamingRecognizer implements ports.SpeechRecognizer by pumping
// microphone audio into a streaming transcription provider.
type StreamingRecognizer struct {
	audio    ports.AudioCapture
	provider ports.TranscriptionProvider
	cfg      RecognizerConfig
	logger   *slog.Logger

	mu          sync.Mutex
	recognition ports.RecognitionConfig
	handler     ports.RecognitionHandler
	current     *recognitionSession
}

func NewStreamingRecognizer(
	audio ports.AudioCapture,
	provider ports.TranscriptionProvider,
	cfg RecognizerConfig,
	logger *slog.Logger,
) *StreamingRecognizer {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = 4 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamingRecognizer{
		audio:       audio,
		provider:    provider,
		cfg:         cfg,
		logger:      logger.With("component", "recognizer"),
		recognition: ports.RecognitionConfig{InterimResults: true, MaxAlternatives: 1},
		handler:     nopRecognitionHandler{},
	}
}

func (r *StreamingRecognizer) Configure(cfg ports.RecognitionConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recognition = cfg
}

func (r *StreamingRecognizer) SetHandler(handler ports.RecognitionHandler) {
	if handler == nil {
		handler = nopRecognitionHandler{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = handler
}

// Start begins a recognition session. Callbacks arrive asynchronously.
func (r *StreamingRecognizer) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.current != nil {
		r.mu.Unlock()
		return ports.ErrRecognitionActive
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	session := &recognitionSession{cancel: cancel, done: make(chan struct{})}
	r.current = session
	handler := r.handler
	recognition := r.recognition
	r.mu.Unlock()

	go r.run(sessionCtx, session, handler, recognition)
	return nil
}

// Stop ends the active session, if any. The handler receives OnEnd once the
// provider has flushed its last results.
func (r *StreamingRecognizer) Stop() error {
	r.mu.Lock()
	session := r.current
	r.mu.Unlock()

	if session != nil {
		session.stop(true)
	}
	return nil
}

// Wait blocks until the active session, if any, has ended.
func (r *StreamingRecognizer) Wait() {
	r.mu.Lock()
	session := r.current
	r.mu.Unlock()

	if session != nil {
		<-session.done
	}
}

func (r *StreamingRecognizer) run(
	ctx context.Context,
	session *recognitionSession,
	handler ports.RecognitionHandler,
	recognition ports.RecognitionConfig,
) {
	defer handler.OnEnd()
	defer r.finish(session)

	streamingCfg := r.cfg.Streaming
	streamingCfg.InterimResults = true
	if recognition.Language != "" {
		streamingCfg.Language = recognition.Language
	}
	if recognition.MaxAlternatives > 0 {
		streamingCfg.MaxAlternatives = recognition.MaxAlternatives
	}

	stream, err := r.provider.StartStreaming(ctx, streamingCfg)
	if err != nil {
		handler.OnError(domain.RecognitionError{Code: providerErrorCode(err), Message: err.Error()})
		return
	}

	audioSession, err := r.audio.Start(ctx, r.cfg.Audio)
	if err != nil {
		_ = stream.Close()
		handler.OnError(domain.RecognitionError{Code: audioErrorCode(err), Message: err.Error()})
		return
	}

	if !session.attach(audioSession) {
		_ = audioSession.Stop()
		_ = stream.Close()
		handler.OnError(domain.RecognitionError{Code: domain.RecognitionErrorAborted})
		return
	}

	handler.OnStart()

	pumpDone := make(chan *domain.RecognitionError, 1)
	go func() {
		pumpDone <- pumpAudioChunks(audioSession, stream, r.cfg.ChunkSize, r.cfg.StreamingGrace)
	}()

	results := newResultAccumulator(recognition.InterimResults)
	for event := range stream.Events() {
		if !results.Add(event) {
			continue
		}
		handler.OnResult(results.Results())
		if !recognition.Continuous && event.Kind == domain.TranscriptKindFinal && event.IsSpeechFinal {
			session.requestStop()
		}
	}

	session.requestStop()
	pumpErr := <-pumpDone
	streamErr := waitForStream(stream, r.cfg.StreamTimeout)

	switch {
	case streamErr != nil:
		handler.OnError(domain.RecognitionError{Code: domain.RecognitionErrorNetwork, Message: streamErr.Error()})
	case pumpErr != nil:
		handler.OnError(*pumpErr)
	case results.Empty() && !session.stoppedByCaller():
		handler.OnError(domain.RecognitionError{Code: domain.RecognitionErrorNoSpeech})
	}
}

func providerErrorCode(err error) domain.RecognitionErrorCode {
	if errors.Is(err, ports.ErrProviderUnauthorized) {
		return domain.RecognitionErrorServiceNotAllowed
	}
	return domain.RecognitionErrorNetwork
}

func audioErrorCode(err error) domain.RecognitionErrorCode {
	if errors.Is(err, fs.ErrPermission) {
		return domain.RecognitionErrorNotAllowed
	}
	return domain.RecognitionErrorAudioCapture
}

func (r *StreamingRecognizer) finish(session *recognitionSession) {
	session.cancel()

	r.mu.Lock()
	if r.current == session {
		r.current = nil
	}
	r.mu.Unlock()

	close(session.done)
}

type recognitionSession struct {
	cancel func()
	done   chan struct{}

	mu       sync.Mutex
	audio    ports.AudioSession
	stopped  bool
	external bool
}

// attach records the live audio session, or reports false when a stop was
// requested before capture started.
func (s *recognitionSession) attach(audio ports.AudioSession) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.audio = audio
	return true
}

func (s *recognitionSession) requestStop() {
	s.stop(false)
}

func (s *recognitionSession) stop(external bool) {
	s.mu.Lock()
	if external {
		s.external = true
	}
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	audio := s.audio
	s.mu.Unlock()

	if audio != nil {
		_ = audio.Stop()
	}
}

func (s *recognitionSession) stoppedByCaller() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.external
}

type nopRecognitionHandler struct{}

func (nopRecognitionHandler) OnStart()                              {}
func (nopRecognitionHandler) OnResult(_ []domain.RecognitionResult) {}
func (nopRecognitionHandler) OnError(_ domain.RecognitionError)     {}
func (nopRecognitionHandler) OnEnd()                                {}
