package usecase

import (
	"fmt"
	"testing"
	"time"

	"vectort/internal/domain"
)

func reduceAll(t *testing.T, payloads ...string) (domain.StreamSession, int) {
	t.Helper()

	session := NewStreamSession("p1")
	completions := 0
	for i, payload := range payloads {
		event, err := ParseStreamEvent([]byte(payload))
		if err != nil {
			t.Fatalf("parse %q: %v", payload, err)
		}
		var done bool
		session, done = ReduceStreamEvent(session, event, time.Unix(int64(i), 0), fmt.Sprintf("m%d", i))
		if done {
			completions++
		}
	}
	return session, completions
}

func TestNewStreamSessionDefaults(t *testing.T) {
	t.Parallel()

	session := NewStreamSession("p1")
	if session.Phase != defaultStreamPhase || session.Progress != 0 || session.IsComplete {
		t.Fatalf("unexpected initial session: %+v", session)
	}
	if session.Messages == nil || session.FilesCreated == nil {
		t.Fatalf("expected empty, non-nil lists")
	}
}

func TestReduceStreamEventPhaseFileComplete(t *testing.T) {
	t.Parallel()

	session, completions := reduceAll(t,
		`{"type":"phase","content":"Generating backend"}`,
		`{"type":"file_created","content":"Created server.py","file_path":"server.py"}`,
		`{"type":"complete","content":"Done"}`,
	)

	if session.Phase != "Generating backend" {
		t.Fatalf("unexpected phase: %q", session.Phase)
	}
	if len(session.FilesCreated) != 1 || session.FilesCreated[0] != "server.py" {
		t.Fatalf("unexpected files: %+v", session.FilesCreated)
	}
	if session.Progress != 100 || !session.IsComplete {
		t.Fatalf("expected completion at 100%%: %+v", session)
	}
	if completions != 1 {
		t.Fatalf("expected one completion, got %d", completions)
	}
}

func TestReduceStreamEventDedupsFilesInOrder(t *testing.T) {
	t.Parallel()

	session, _ := reduceAll(t,
		`{"type":"file_created","file_path":"a.js"}`,
		`{"type":"file_created","file_path":"b.js"}`,
		`{"type":"file_created","file_path":"a.js"}`,
		`{"type":"file_created","file_path":""}`,
	)

	if len(session.FilesCreated) != 2 || session.FilesCreated[0] != "a.js" || session.FilesCreated[1] != "b.js" {
		t.Fatalf("unexpected files: %+v", session.FilesCreated)
	}
	if len(session.Messages) != 4 {
		t.Fatalf("every event must be logged, got %d", len(session.Messages))
	}
}

func TestReduceStreamEventCompletionForcesFullProgress(t *testing.T) {
	t.Parallel()

	session, completions := reduceAll(t,
		`{"type":"info","content":"working","progress":40}`,
		`{"type":"complete","content":"done"}`,
		`{"type":"complete","content":"done again"}`,
	)

	if session.Progress != 100 || !session.IsComplete {
		t.Fatalf("unexpected session: %+v", session)
	}
	if completions != 1 {
		t.Fatalf("completion must be reported once, got %d", completions)
	}
}

func TestReduceStreamEventKeepsArrivalOrder(t *testing.T) {
	t.Parallel()

	session, _ := reduceAll(t,
		`{"type":"phase","content":"one"}`,
		`{"type":"info","content":"two"}`,
		`{"type":"file_created","content":"three","file_path":"x.go"}`,
		`{"type":"complete","content":"four"}`,
	)

	want := []domain.StreamEventType{
		domain.StreamEventPhase,
		domain.StreamEventInfo,
		domain.StreamEventFileCreated,
		domain.StreamEventComplete,
	}
	if len(session.Messages) != len(want) {
		t.Fatalf("unexpected message count: %d", len(session.Messages))
	}
	for i, message := range session.Messages {
		if message.Type != want[i] || message.ID != fmt.Sprintf("m%d", i) {
			t.Fatalf("message %d out of order: %+v", i, message)
		}
	}
}

func TestReduceStreamEventClampsProgress(t *testing.T) {
	t.Parallel()

	session, _ := reduceAll(t, `{"type":"info","progress":150}`)
	if session.Progress != 100 {
		t.Fatalf("expected clamp to 100, got %d", session.Progress)
	}
	session, _ = reduceAll(t, `{"type":"info","progress":-5}`)
	if session.Progress != 0 {
		t.Fatalf("expected clamp to 0, got %d", session.Progress)
	}
	session, _ = reduceAll(t, `{"type":"info","progress":30}`, `{"type":"info"}`)
	if session.Progress != 30 {
		t.Fatalf("missing progress must keep the previous value, got %d", session.Progress)
	}
}

func TestReduceStreamEventErrorKeepsSessionOpen(t *testing.T) {
	t.Parallel()

	session, _ := reduceAll(t,
		`{"type":"error","content":"agent crashed","agent":"backend"}`,
		`{"type":"info","content":"retrying"}`,
	)

	if session.Error != "agent crashed" || session.IsComplete {
		t.Fatalf("unexpected session: %+v", session)
	}
	if session.Messages[0].Agent != "backend" {
		t.Fatalf("expected agent on message: %+v", session.Messages[0])
	}
}

func TestReduceStreamEventUnknownTypeIsLoggedOnly(t *testing.T) {
	t.Parallel()

	session, _ := reduceAll(t, `{"type":"agent_thinking","content":"hmm","progress":10}`)
	if len(session.Messages) != 1 || session.Messages[0].Type != "agent_thinking" {
		t.Fatalf("unexpected messages: %+v", session.Messages)
	}
	if session.Phase != defaultStreamPhase || session.Progress != 10 {
		t.Fatalf("unexpected session: %+v", session)
	}
}

func TestParseStreamEventRejectsMalformedPayloads(t *testing.T) {
	t.Parallel()

	for _, payload := range []string{`not json`, `{"content":"no type"}`, `{"type":"  "}`, `[]`} {
		if _, err := ParseStreamEvent([]byte(payload)); err == nil {
			t.Fatalf("expected error for %q", payload)
		}
	}

	event, err := ParseStreamEvent([]byte(`{"type":"phase","content":"x","agent":null,"file_path":null,"metadata":{"k":1}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Agent != "" || event.FilePath != "" || event.Metadata["k"] != float64(1) {
		t.Fatalf("unexpected event: %+v", event)
	}
}
