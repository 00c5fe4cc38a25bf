package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"vectort/internal/domain"
)

const (
	defaultStreamPhase    = "Initializing..."
	streamConnectedText   = "Connected, waiting for generation..."
	streamLostText        = "Connection lost"
	streamLostUserMessage = "Connection lost. Reload the page."
)

var errMissingEventType = errors.New("stream event has no type")

// NewStreamSession returns the initial state for a project's generation run.
func NewStreamSession(projectID string) domain.StreamSession {
	return domain.StreamSession{
		ProjectID:    projectID,
		Messages:     []domain.StreamMessage{},
		FilesCreated: []string{},
		Phase:        defaultStreamPhase,
	}
}

// ParseStreamEvent decodes one stream payload.
func ParseStreamEvent(data []byte) (domain.StreamEvent, error) {
	var event domain.StreamEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.StreamEvent{}, fmt.Errorf("decode stream event: %w", err)
	}
	event.Type = domain.StreamEventType(strings.TrimSpace(string(event.Type)))
	if event.Type == "" {
		return domain.StreamEvent{}, errMissingEventType
	}
	return event, nil
}

// ReduceStreamEvent folds event into session. The second result reports
// whether this event completed the run; it is true at most once per session.
func ReduceStreamEvent(session domain.StreamSession, event domain.StreamEvent, at time.Time, id string) (domain.StreamSession, bool) {
	if event.Progress != nil {
		session.Progress = clampProgress(*event.Progress)
	}

	session = appendStreamMessage(session, domain.StreamMessage{
		ID:        id,
		Type:      event.Type,
		Content:   event.Content,
		Agent:     event.Agent,
		Timestamp: at,
	})

	switch event.Type {
	case domain.StreamEventPhase:
		session.Phase = event.Content
	case domain.StreamEventFileCreated:
		if event.FilePath != "" && !slices.Contains(session.FilesCreated, event.FilePath) {
			session.FilesCreated = append(session.FilesCreated, event.FilePath)
		}
	case domain.StreamEventComplete:
		completed := !session.IsComplete
		session.IsComplete = true
		session.Progress = 100
		return session, completed
	case domain.StreamEventError:
		session.Error = event.Content
	}

	return session, false
}

func appendStreamMessage(session domain.StreamSession, message domain.StreamMessage) domain.StreamSession {
	session.Messages = append(session.Messages, message)
	return session
}

func clampProgress(progress int) int {
	switch {
	case progress < 0:
		return 0
	case progress > 100:
		return 100
	default:
		return progress
	}
}
