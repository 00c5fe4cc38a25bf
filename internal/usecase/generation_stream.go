package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vectort/internal/domain"
	"vectort/internal/ports"
)

var ErrNoActiveStream = errors.New("no active generation stream")

// GenerationStreamConsumer projects a project's generation events into a
// StreamSession. Sink callbacks must not call Attach or Detach synchronously.
type GenerationStreamConsumer struct {
	source ports.GenerationEventSource
	sink   ports.GenerationSink
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	mu      sync.Mutex
	active  *streamAttachment
	session domain.StreamSession
}

type streamAttachment struct {
	projectID string
	cancel    context.CancelFunc
	stream    ports.GenerationStream
	done      chan struct{}
}

func (a *streamAttachment) finished() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

func NewGenerationStreamConsumer(source ports.GenerationEventSource, sink ports.GenerationSink, logger *slog.Logger) *GenerationStreamConsumer {
	if sink == nil {
		sink = nopGenerationSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GenerationStreamConsumer{
		source:  source,
		sink:    sink,
		logger:  logger.With("component", "stream"),
		now:     time.Now,
		newID:   uuid.NewString,
		session: NewStreamSession(""),
	}
}

// Attach connects to projectID's event stream. Attaching to the project
// already attached is a no-op; any other project replaces the current stream.
func (c *GenerationStreamConsumer) Attach(ctx context.Context, projectID string) error {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		c.Detach()
		return nil
	}

	c.mu.Lock()
	if c.active != nil && c.active.projectID == projectID && !c.active.finished() {
		c.mu.Unlock()
		return nil
	}
	previous := c.active
	c.active = nil
	c.mu.Unlock()

	if previous != nil {
		c.stop(previous)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := c.source.Subscribe(streamCtx, projectID)
	if err != nil {
		cancel()
		c.logger.Error("subscribe to generation stream failed", "project", projectID, "error", err)

		session := NewStreamSession(projectID)
		session.Error = streamLostUserMessage
		c.mu.Lock()
		c.session = session
		c.mu.Unlock()
		c.sink.StreamSessionChanged(session.Clone())
		return fmt.Errorf("subscribe to project %s stream: %w", projectID, err)
	}

	attachment := &streamAttachment{
		projectID: projectID,
		cancel:    cancel,
		stream:    stream,
		done:      make(chan struct{}),
	}

	c.mu.Lock()
	c.active = attachment
	c.session = NewStreamSession(projectID)
	snapshot := c.session.Clone()
	c.mu.Unlock()

	c.sink.StreamSessionChanged(snapshot)
	go c.consume(attachment)
	return nil
}

// Detach closes the current stream, if any. It is safe to call repeatedly.
func (c *GenerationStreamConsumer) Detach() {
	c.mu.Lock()
	active := c.active
	c.active = nil
	c.mu.Unlock()

	if active != nil {
		c.stop(active)
	}
}

// Close is Detach.
func (c *GenerationStreamConsumer) Close() {
	c.Detach()
}

// Session returns a snapshot of the current stream session.
func (c *GenerationStreamConsumer) Session() domain.StreamSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Clone()
}

// Wait blocks until the attached stream finishes or ctx is done.
func (c *GenerationStreamConsumer) Wait(ctx context.Context) error {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()

	if active == nil {
		return ErrNoActiveStream
	}
	select {
	case <-active.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *GenerationStreamConsumer) stop(attachment *streamAttachment) {
	attachment.cancel()
	if err := attachment.stream.Close(); err != nil {
		c.logger.Debug("close generation stream", "project", attachment.projectID, "error", err)
	}
	<-attachment.done
}

func (c *GenerationStreamConsumer) consume(attachment *streamAttachment) {
	defer close(attachment.done)
	defer func() { _ = attachment.stream.Close() }()

	for signal := range attachment.stream.Signals() {
		if !c.handleSignal(attachment, signal) {
			return
		}
	}
}

// handleSignal applies one transport signal and reports whether consumption
// should continue.
func (c *GenerationStreamConsumer) handleSignal(attachment *streamAttachment, signal domain.StreamSignal) bool {
	switch signal.Kind {
	case domain.StreamSignalOpen:
		c.logger.Info("generation stream connected", "project", attachment.projectID)
		return c.apply(attachment, func(session domain.StreamSession) domain.StreamSession {
			session.Connected = true
			return appendStreamMessage(session, c.message(domain.StreamEventInfo, streamConnectedText))
		})

	case domain.StreamSignalMessage:
		event, err := ParseStreamEvent(signal.Data)
		if err != nil {
			c.logger.Warn("dropping malformed stream payload", "project", attachment.projectID, "error", err)
			return true
		}
		if !event.Type.Known() {
			c.logger.Debug("unknown stream event type", "project", attachment.projectID, "type", event.Type)
		}

		completed := false
		applied := c.apply(attachment, func(session domain.StreamSession) domain.StreamSession {
			next, done := ReduceStreamEvent(session, event, c.now(), c.newID())
			completed = done
			return next
		})
		if !applied {
			return false
		}
		if completed {
			c.logger.Info("generation complete", "project", attachment.projectID)
			c.sink.GenerationComplete(attachment.projectID)
			return false
		}
		return true

	case domain.StreamSignalError:
		if !signal.Terminal {
			c.logger.Warn("generation stream interrupted", "project", attachment.projectID, "error", signal.Err)
			return true
		}
		c.logger.Error("generation stream closed", "project", attachment.projectID, "error", signal.Err)
		c.apply(attachment, func(session domain.StreamSession) domain.StreamSession {
			session.Connected = false
			session.Error = streamLostUserMessage
			return appendStreamMessage(session, c.message(domain.StreamEventError, streamLostText))
		})
		return false

	default:
		c.logger.Debug("ignoring stream signal", "kind", signal.Kind)
		return true
	}
}

// apply mutates the session on behalf of attachment and publishes the
// result. It reports false when attachment is no longer current.
func (c *GenerationStreamConsumer) apply(attachment *streamAttachment, mutate func(domain.StreamSession) domain.StreamSession) bool {
	c.mu.Lock()
	if c.active != attachment {
		c.mu.Unlock()
		return false
	}
	c.session = mutate(c.session)
	snapshot := c.session.Clone()
	c.mu.Unlock()

	c.sink.StreamSessionChanged(snapshot)
	return true
}

func (c *GenerationStreamConsumer) message(kind domain.StreamEventType, content string) domain.StreamMessage {
	return domain.StreamMessage{
		ID:        c.newID(),
		Type:      kind,
		Content:   content,
		Timestamp: c.now(),
	}
}

type nopGenerationSink struct{}

func (nopGenerationSink) StreamSessionChanged(_ domain.StreamSession) {}
func (nopGenerationSink) GenerationComplete(_ string)                 {}
