package sse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"vectort/internal/domain"
	"vectort/internal/ports"
)

const (
	defaultStreamPath             = "/api/projects/{project}/stream"
	defaultReconnectDelay         = 1 * time.Second
	defaultMaxReconnectDelay      = 30 * time.Second
	defaultMaxConsecutiveFailures = 5
)

// Config controls the generation event stream connection.
type Config struct {
	BaseURL                string
	Token                  string
	StreamPath             string
	HTTPClient             *http.Client
	ReconnectDelay         time.Duration
	MaxReconnectDelay      time.Duration
	MaxConsecutiveFailures int
}

// Source implements ports.GenerationEventSource over server-sent events.
// Like a browser EventSource it cannot send custom headers, so the token
// travels in the query string.
type Source struct {
	cfg    Config
	logger *slog.Logger
}

func NewSource(cfg Config, logger *slog.Logger) *Source {
	if cfg.StreamPath == "" {
		cfg.StreamPath = defaultStreamPath
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.MaxReconnectDelay <= 0 {
		cfg.MaxReconnectDelay = defaultMaxReconnectDelay
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = defaultMaxConsecutiveFailures
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{cfg: cfg, logger: logger.With("component", "sse")}
}

func (s *Source) Subscribe(ctx context.Context, projectID string) (ports.GenerationStream, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, errors.New("project id is required")
	}
	streamURL, err := buildStreamURL(s.cfg, projectID)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	st := &stream{
		cfg:     s.cfg,
		logger:  s.logger.With("project", projectID),
		url:     streamURL,
		signals: make(chan domain.StreamSignal, 64),
		cancel:  cancel,
		done:    make(chan struct{}),
		delay:   s.cfg.ReconnectDelay,
	}
	go st.run(streamCtx)
	return st, nil
}

// terminalError marks a failure after which the stream must not reconnect.
type terminalError struct {
	err error
}

func (e *terminalError) Error() string { return e.err.Error() }
func (e *terminalError) Unwrap() error { return e.err }

type stream struct {
	cfg     Config
	logger  *slog.Logger
	url     string
	signals chan domain.StreamSignal
	cancel  context.CancelFunc
	done    chan struct{}

	closeOnce   sync.Once
	lastEventID string
	delay       time.Duration
}

func (s *stream) Signals() <-chan domain.StreamSignal {
	return s.signals
}

func (s *stream) Close() error {
	s.closeOnce.Do(s.cancel)
	<-s.done
	return nil
}

func (s *stream) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.signals)

	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}

		opened, err := s.connectOnce(ctx)
		if ctx.Err() != nil {
			return
		}

		var terminal *terminalError
		if errors.As(err, &terminal) {
			s.emit(ctx, domain.StreamSignal{Kind: domain.StreamSignalError, Err: terminal.err, Terminal: true})
			return
		}

		if opened {
			failures = 0
		}
		failures++
		if err == nil {
			err = io.EOF
		}

		if failures >= s.cfg.MaxConsecutiveFailures {
			s.emit(ctx, domain.StreamSignal{
				Kind:     domain.StreamSignalError,
				Err:      fmt.Errorf("giving up after %d attempts: %w", failures, err),
				Terminal: true,
			})
			return
		}
		if !s.emit(ctx, domain.StreamSignal{Kind: domain.StreamSignalError, Err: err}) {
			return
		}

		delay := backoff(s.delay, s.cfg.MaxReconnectDelay, failures)
		s.logger.Debug("reconnecting generation stream", "delay", delay, "failures", failures)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

// connectOnce reads one connection until it drops. opened reports whether
// the server accepted the stream.
func (s *stream) connectOnce(ctx context.Context) (opened bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return false, &terminalError{err: err}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if s.lastEventID != "" {
		req.Header.Set("Last-Event-ID", s.lastEventID)
	}

	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, &terminalError{err: fmt.Errorf("unexpected stream status %d", resp.StatusCode)}
	}
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "text/event-stream" {
		return false, &terminalError{err: fmt.Errorf("unexpected stream content type %q", resp.Header.Get("Content-Type"))}
	}

	if !s.emit(ctx, domain.StreamSignal{Kind: domain.StreamSignalOpen}) {
		return true, ctx.Err()
	}

	parser := newFrameParser(resp.Body)
	for {
		next, err := parser.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return true, nil
			}
			return true, err
		}

		if next.HasID {
			s.lastEventID = next.ID
		}
		if next.Retry > 0 {
			s.delay = next.Retry
		}
		if len(next.Data) == 0 {
			continue
		}
		if next.Event != "" && next.Event != "message" {
			s.logger.Debug("ignoring named stream event", "event", next.Event)
			continue
		}

		if !s.emit(ctx, domain.StreamSignal{Kind: domain.StreamSignalMessage, Data: next.Data}) {
			return true, ctx.Err()
		}
	}
}

func (s *stream) emit(ctx context.Context, signal domain.StreamSignal) bool {
	select {
	case s.signals <- signal:
		return true
	case <-ctx.Done():
		return false
	}
}

func backoff(base time.Duration, limit time.Duration, failures int) time.Duration {
	delay := time.Duration(float64(base) * math.Pow(2, float64(min(failures-1, 5))))
	if delay > limit {
		delay = limit
	}
	return delay
}

func buildStreamURL(cfg Config, projectID string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return "", errors.New("backend base URL is not configured")
	}

	path := strings.ReplaceAll(cfg.StreamPath, "{project}", url.PathEscape(projectID))
	streamURL, err := url.Parse(base + path)
	if err != nil {
		return "", fmt.Errorf("invalid backend base URL: %w", err)
	}
	if streamURL.Scheme != "http" && streamURL.Scheme != "https" {
		return "", fmt.Errorf("unsupported backend URL scheme %q", streamURL.Scheme)
	}

	if cfg.Token != "" {
		query := streamURL.Query()
		query.Set("token", cfg.Token)
		streamURL.RawQuery = query.Encode()
	}
	return streamURL.String(), nil
}
