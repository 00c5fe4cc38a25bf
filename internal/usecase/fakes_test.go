package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"vectort/internal/domain"
	"vectort/internal/ports"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAudioSession returns its chunks, then blocks until stopped unless
// eof is set.
type fakeAudioSession struct {
	chunks [][]byte
	eof    bool

	mu       sync.Mutex
	index    int
	stopOnce sync.Once
	stopped  chan struct{}
}

func newFakeAudioSession(eof bool, chunks ...[]byte) *fakeAudioSession {
	return &fakeAudioSession{chunks: chunks, eof: eof, stopped: make(chan struct{})}
}

func (s *fakeAudioSession) Read(p []byte) (int, error) {
	s.mu.Lock()
	if s.index < len(s.chunks) {
		n := copy(p, s.chunks[s.index])
		s.index++
		s.mu.Unlock()
		return n, nil
	}
	s.mu.Unlock()

	if !s.eof {
		<-s.stopped
	}
	return 0, io.EOF
}

func (s *fakeAudioSession) Close() error { return s.Stop() }

func (s *fakeAudioSession) Stop() error {
	s.stopOnce.Do(func() { close(s.stopped) })
	return nil
}

type fakeAudioCapture struct {
	session *fakeAudioSession
	err     error
}

func (c *fakeAudioCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.session, nil
}

// fakeStreamingSession ends its event stream once the send side is closed.
type fakeStreamingSession struct {
	events chan domain.TranscriptEvent
	done   chan struct{}
	err    error

	mu        sync.Mutex
	sent      [][]byte
	closeOnce sync.Once
}

func newFakeStreamingSession() *fakeStreamingSession {
	return &fakeStreamingSession{
		events: make(chan domain.TranscriptEvent, 16),
		done:   make(chan struct{}),
	}
}

func (s *fakeStreamingSession) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, append([]byte(nil), chunk...))
	return nil
}

func (s *fakeStreamingSession) CloseSend() error {
	s.closeOnce.Do(func() {
		close(s.events)
		close(s.done)
	})
	return nil
}

func (s *fakeStreamingSession) Events() <-chan domain.TranscriptEvent { return s.events }

func (s *fakeStreamingSession) Wait() error {
	<-s.done
	return s.err
}

func (s *fakeStreamingSession) Close() error {
	_ = s.CloseSend()
	return s.err
}

func (s *fakeStreamingSession) sentBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, chunk := range s.sent {
		total += len(chunk)
	}
	return total
}

type fakeProvider struct {
	session *fakeStreamingSession
	err     error

	mu  sync.Mutex
	cfg ports.StreamingConfig
}

func (p *fakeProvider) StartStreaming(_ context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return p.session, nil
}

func (p *fakeProvider) lastConfig() ports.StreamingConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// recordingHandler captures recognizer callbacks.
type recordingHandler struct {
	started chan struct{}
	ended   chan struct{}

	mu      sync.Mutex
	results [][]domain.RecognitionResult
	errs    []domain.RecognitionError
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		started: make(chan struct{}, 4),
		ended:   make(chan struct{}, 4),
	}
}

func (h *recordingHandler) OnStart() { h.started <- struct{}{} }

func (h *recordingHandler) OnResult(results []domain.RecognitionResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, results)
}

func (h *recordingHandler) OnError(err domain.RecognitionError) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, err)
}

func (h *recordingHandler) OnEnd() { h.ended <- struct{}{} }

func (h *recordingHandler) lastResults() []domain.RecognitionResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.results) == 0 {
		return nil
	}
	return h.results[len(h.results)-1]
}

func (h *recordingHandler) errors() []domain.RecognitionError {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.RecognitionError(nil), h.errs...)
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}
