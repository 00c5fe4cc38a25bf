package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"vectort/internal/domain"
	"vectort/internal/ports"
)

const defaultStartRetryDelay = 200 * time.Millisecond

// SpeechEngineConfig controls speech capture behavior.
type SpeechEngineConfig struct {
	Recognition       ports.RecognitionConfig
	ResetStopsCapture bool
	StartRetryDelay   time.Duration
}

type stopper interface {
	Stop() bool
}

type scheduleFunc func(delay time.Duration, fn func()) stopper

func afterFunc(delay time.Duration, fn func()) stopper {
	return time.AfterFunc(delay, fn)
}

// SpeechEngine wraps a speech recognizer into a start/stop/reset state
// machine producing an incremental transcript.
type SpeechEngine struct {
	recognizer ports.SpeechRecognizer
	cfg        SpeechEngineConfig
	logger     *slog.Logger
	schedule   scheduleFunc

	mu           sync.Mutex
	state        domain.ListeningState
	transcript   string
	lastError    string
	retryPending bool
	stopPending  bool
	retryTimer   stopper
	closed       bool
	observers    []ports.TranscriptObserver
}

// NewSpeechEngine builds an engine over recognizer. A nil recognizer means
// speech capture is unsupported and every operation is a no-op.
func NewSpeechEngine(recognizer ports.SpeechRecognizer, cfg SpeechEngineConfig, logger *slog.Logger) *SpeechEngine {
	if cfg.StartRetryDelay <= 0 {
		cfg.StartRetryDelay = defaultStartRetryDelay
	}
	if cfg.Recognition.MaxAlternatives <= 0 {
		cfg.Recognition.MaxAlternatives = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &SpeechEngine{
		recognizer: recognizer,
		cfg:        cfg,
		logger:     logger.With("component", "speech"),
		schedule:   afterFunc,
		state:      domain.ListeningStateIdle,
	}
	if recognizer != nil {
		recognizer.Configure(cfg.Recognition)
		recognizer.SetHandler(engineCallbacks{engine: e})
	}
	return e
}

// Subscribe registers an observer for transcript state changes.
func (e *SpeechEngine) Subscribe(observer ports.TranscriptObserver) {
	if observer == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, observer)
}

// State returns the observable transcript state.
func (e *SpeechEngine) State() domain.TranscriptState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// StartListening clears the transcript and starts capture. It does nothing
// when unsupported, closed, or when a session is starting or active.
func (e *SpeechEngine) StartListening(ctx context.Context) {
	e.mu.Lock()
	if e.recognizer == nil || e.closed {
		e.mu.Unlock()
		return
	}
	next, ok := transition(e.state, triggerStartRequested)
	if !ok {
		e.mu.Unlock()
		return
	}
	e.state = next
	e.transcript = ""
	e.lastError = ""
	e.stopPending = false
	snapshot := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(snapshot)

	err := e.recognizer.Start(ctx)
	if err == nil {
		return
	}

	if !errors.Is(err, ports.ErrRecognitionActive) {
		e.logger.Error("start speech recognition failed", "error", err)
		e.fail(triggerStartFailed, err.Error())
		return
	}

	e.logger.Warn("speech recognition already active, restarting", "error", err)
	e.mu.Lock()
	if e.closed || e.state != domain.ListeningStateStarting {
		e.mu.Unlock()
		return
	}
	e.retryPending = true
	e.mu.Unlock()

	if stopErr := e.recognizer.Stop(); stopErr != nil {
		e.logger.Warn("stop active speech recognition failed", "error", stopErr)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || !e.retryPending || e.state != domain.ListeningStateStarting {
		e.retryPending = false
		return
	}
	e.retryTimer = e.schedule(e.cfg.StartRetryDelay, func() { e.retryStart(ctx) })
}

// StopListening requests the end of capture. Listening turns false once the
// recognizer reports the end of the session. A stop requested while capture
// is still starting is applied as soon as the recognizer starts.
func (e *SpeechEngine) StopListening() {
	e.mu.Lock()
	if e.recognizer == nil || e.closed {
		e.mu.Unlock()
		return
	}
	if e.state == domain.ListeningStateStarting {
		e.stopPending = true
		e.mu.Unlock()
		e.logger.Debug("deferring stop until recognition starts")
		return
	}
	next, ok := transition(e.state, triggerStopRequested)
	if !ok {
		e.mu.Unlock()
		return
	}
	e.state = next
	e.mu.Unlock()

	if err := e.recognizer.Stop(); err != nil {
		e.logger.Error("stop speech recognition failed", "error", err)
		e.fail(triggerErrored, err.Error())
	}
}

// Active reports whether a capture session is starting or running.
func (e *SpeechEngine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state != domain.ListeningStateIdle
}

// ResetTranscript clears the transcript, and stops an active capture when
// configured to.
func (e *SpeechEngine) ResetTranscript() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	changed := e.transcript != ""
	e.transcript = ""
	stop := e.cfg.ResetStopsCapture && e.state == domain.ListeningStateListening
	snapshot := e.snapshotLocked()
	e.mu.Unlock()

	if changed {
		e.notify(snapshot)
	}
	if stop {
		e.StopListening()
	}
}

// Close releases the recognizer and disables the engine. It is safe to call
// more than once.
func (e *SpeechEngine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	if e.retryTimer != nil {
		e.retryTimer.Stop()
		e.retryTimer = nil
	}
	e.retryPending = false
	e.stopPending = false
	active := e.state != domain.ListeningStateIdle
	e.state = domain.ListeningStateIdle
	e.observers = nil
	e.mu.Unlock()

	if active && e.recognizer != nil {
		if err := e.recognizer.Stop(); err != nil {
			e.logger.Warn("release speech recognizer failed", "error", err)
		}
	}
}

func (e *SpeechEngine) retryStart(ctx context.Context) {
	e.mu.Lock()
	e.retryTimer = nil
	if e.closed || !e.retryPending || e.state != domain.ListeningStateStarting {
		e.retryPending = false
		e.mu.Unlock()
		return
	}
	e.retryPending = false
	e.mu.Unlock()

	if err := e.recognizer.Start(ctx); err != nil {
		e.logger.Error("restart speech recognition failed, giving up", "error", err)
		e.fail(triggerStartFailed, err.Error())
	}
}

func (e *SpeechEngine) fail(trigger listeningTrigger, message string) {
	e.mu.Lock()
	next, ok := transition(e.state, trigger)
	if !ok || e.closed {
		e.mu.Unlock()
		return
	}
	e.state = next
	if next == domain.ListeningStateIdle {
		e.stopPending = false
	}
	if message != "" {
		e.lastError = message
	}
	snapshot := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(snapshot)
}

func (e *SpeechEngine) snapshotLocked() domain.TranscriptState {
	return domain.TranscriptState{
		IsListening: isListening(e.state),
		Transcript:  e.transcript,
		IsSupported: e.recognizer != nil,
		LastError:   e.lastError,
	}
}

func (e *SpeechEngine) notify(state domain.TranscriptState) {
	e.mu.Lock()
	observers := append([]ports.TranscriptObserver(nil), e.observers...)
	e.mu.Unlock()

	for _, observer := range observers {
		observer.TranscriptChanged(state)
	}
}

// engineCallbacks keeps the recognizer callbacks off the engine's public API.
type engineCallbacks struct {
	engine *SpeechEngine
}

func (c engineCallbacks) OnStart() {
	e := c.engine
	e.mu.Lock()
	current := e.state
	next, ok := transition(current, triggerStarted)
	if !ok || e.closed {
		e.mu.Unlock()
		e.logger.Debug("ignoring recognizer start", "state", current)
		return
	}
	e.state = next
	stop := e.stopPending
	if stop {
		e.stopPending = false
		e.state, _ = transition(next, triggerStopRequested)
	}
	snapshot := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(snapshot)

	if stop {
		if err := e.recognizer.Stop(); err != nil {
			e.logger.Error("stop speech recognition failed", "error", err)
			e.fail(triggerErrored, err.Error())
		}
	}
}

func (c engineCallbacks) OnResult(results []domain.RecognitionResult) {
	e := c.engine
	e.mu.Lock()
	if e.closed || e.state == domain.ListeningStateIdle {
		e.mu.Unlock()
		return
	}
	transcript := buildTranscript(results, e.cfg.Recognition.InterimResults)
	if transcript == e.transcript {
		e.mu.Unlock()
		return
	}
	e.transcript = transcript
	snapshot := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(snapshot)
}

func (c engineCallbacks) OnError(err domain.RecognitionError) {
	e := c.engine
	e.mu.Lock()
	if e.retryPending && e.state == domain.ListeningStateStarting {
		e.mu.Unlock()
		e.logger.Debug("ignoring error from replaced recognition session", "error", err.Error())
		return
	}
	e.mu.Unlock()

	e.logger.Warn("speech recognition error", "code", err.Code, "error", err.Error())
	e.fail(triggerErrored, err.Error())
}

func (c engineCallbacks) OnEnd() {
	e := c.engine
	e.mu.Lock()
	if e.retryPending && e.state == domain.ListeningStateStarting {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	e.fail(triggerEnded, "")
}
