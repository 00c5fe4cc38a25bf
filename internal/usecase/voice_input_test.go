package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"vectort/internal/domain"
)

type fakeSpeech struct {
	mu         sync.Mutex
	state      domain.TranscriptState
	starting   bool
	startCalls int
	stopCalls  int
	resetCalls int
}

func (s *fakeSpeech) StartListening(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startCalls++
	s.state.IsListening = true
}

func (s *fakeSpeech) StopListening() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCalls++
	s.starting = false
	s.state.IsListening = false
}

func (s *fakeSpeech) ResetTranscript() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetCalls++
	s.state.Transcript = ""
}

func (s *fakeSpeech) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starting || s.state.IsListening
}

func (s *fakeSpeech) State() domain.TranscriptState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

type recordingHost struct {
	mu        sync.Mutex
	changes   []domain.ChangeEvent
	uploads   [][]domain.FileHandle
	saves     []string
	saveFiles [][]domain.FileHandle
	forks     []string
	ultra     []bool
}

func (h *recordingHost) OnChange(event domain.ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.changes = append(h.changes, event)
}

func (h *recordingHost) OnFileUpload(files []domain.FileHandle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.uploads = append(h.uploads, files)
}

func (h *recordingHost) OnGithubSave(text string, files []domain.FileHandle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.saves = append(h.saves, text)
	h.saveFiles = append(h.saveFiles, files)
}

func (h *recordingHost) OnFork(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.forks = append(h.forks, text)
}

func (h *recordingHost) OnUltraMode(enabled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ultra = append(h.ultra, enabled)
}

func (h *recordingHost) lastValue() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.changes) == 0 {
		return ""
	}
	return h.changes[len(h.changes)-1].Target.Value
}

func newTestInput(speech SpeechControl, cfg VoiceInputConfig) (*VoiceInput, *recordingHost) {
	host := &recordingHost{}
	return NewVoiceInput(speech, host, cfg, discardLogger()), host
}

func spoken(text string) domain.TranscriptState {
	return domain.TranscriptState{IsSupported: true, Transcript: text}
}

func TestVoiceInputManualTextIsPreserved(t *testing.T) {
	t.Parallel()

	input, host := newTestInput(&fakeSpeech{}, VoiceInputConfig{InitialValue: "hello"})
	input.Edit("hello world")
	input.TranscriptChanged(spoken("foo"))

	if got := input.Value(); got != "hello world foo" {
		t.Fatalf("unexpected value: %q", got)
	}
	if got := host.lastValue(); got != "hello world foo" {
		t.Fatalf("host saw %q", got)
	}
	if len(host.changes) != 2 {
		t.Fatalf("expected edit and merge to be forwarded, got %d", len(host.changes))
	}
}

func TestVoiceInputReplacesVoiceFragment(t *testing.T) {
	t.Parallel()

	input, _ := newTestInput(&fakeSpeech{}, VoiceInputConfig{InitialValue: "hello"})
	input.TranscriptChanged(spoken("foo"))
	if got := input.Value(); got != "hello foo" {
		t.Fatalf("unexpected value after first fragment: %q", got)
	}

	input.TranscriptChanged(spoken("foo bar"))
	buffer := input.Buffer()
	if buffer.CurrentValue != "hello foo bar" {
		t.Fatalf("expected fragment replacement, got %q", buffer.CurrentValue)
	}
	if buffer.LastTranscript != "foo bar" || !buffer.VoiceTextAdded {
		t.Fatalf("unexpected bookkeeping: %+v", buffer)
	}
}

func TestVoiceInputEditAfterVoiceAppendsNextFragment(t *testing.T) {
	t.Parallel()

	input, _ := newTestInput(&fakeSpeech{}, VoiceInputConfig{})
	input.TranscriptChanged(spoken("foo"))
	input.Edit("foo!")
	input.TranscriptChanged(spoken("foo bar"))

	if got := input.Value(); got != "foo! foo bar" {
		t.Fatalf("unexpected value: %q", got)
	}
}

func TestVoiceInputIgnoresEmptyAndRepeatedTranscripts(t *testing.T) {
	t.Parallel()

	input, host := newTestInput(&fakeSpeech{}, VoiceInputConfig{})
	input.TranscriptChanged(spoken(""))
	input.TranscriptChanged(spoken("same"))
	input.TranscriptChanged(spoken("same"))

	if len(host.changes) != 1 {
		t.Fatalf("expected one forwarded change, got %d", len(host.changes))
	}
}

func TestVoiceInputChangeEventShape(t *testing.T) {
	t.Parallel()

	input, host := newTestInput(&fakeSpeech{}, VoiceInputConfig{Name: "prompt"})
	input.Edit("typed")
	input.TranscriptChanged(spoken("spoken"))

	for _, event := range host.changes {
		if event.Target.Name != "prompt" {
			t.Fatalf("unexpected change target: %+v", event.Target)
		}
	}
}

func TestMergeTranscript(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		buffer     domain.InputBuffer
		transcript string
		want       string
	}{
		{
			name:       "empty buffer",
			buffer:     domain.InputBuffer{},
			transcript: "hi",
			want:       "hi",
		},
		{
			name:       "trailing space",
			buffer:     domain.InputBuffer{CurrentValue: "hello "},
			transcript: "there",
			want:       "hello there",
		},
		{
			name:       "trailing newline",
			buffer:     domain.InputBuffer{CurrentValue: "line\n"},
			transcript: "next",
			want:       "line\nnext",
		},
		{
			name:       "fragment edited away",
			buffer:     domain.InputBuffer{CurrentValue: "hello", LastTranscript: "foo", VoiceTextAdded: true},
			transcript: "foo bar",
			want:       "hello foo bar",
		},
		{
			name:       "replaces last occurrence",
			buffer:     domain.InputBuffer{CurrentValue: "foo and foo", LastTranscript: "foo", VoiceTextAdded: true},
			transcript: "food",
			want:       "foo and food",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, changed := mergeTranscript(tc.buffer, tc.transcript)
			if !changed || got.CurrentValue != tc.want {
				t.Fatalf("mergeTranscript = %q (changed=%v), want %q", got.CurrentValue, changed, tc.want)
			}
		})
	}
}

func TestVoiceInputToggleMicStartsAndStops(t *testing.T) {
	t.Parallel()

	speech := &fakeSpeech{state: domain.TranscriptState{IsSupported: true}}
	input, _ := newTestInput(speech, VoiceInputConfig{MicLockDuration: time.Millisecond})
	now := time.Unix(0, 0)
	input.now = func() time.Time { return now }

	input.TranscriptChanged(spoken("old"))
	input.ToggleMic(context.Background())
	if speech.startCalls != 1 || speech.resetCalls != 1 {
		t.Fatalf("expected reset and start, got start=%d reset=%d", speech.startCalls, speech.resetCalls)
	}
	if buffer := input.Buffer(); buffer.LastTranscript != "" || buffer.VoiceTextAdded {
		t.Fatalf("expected bookkeeping to be cleared: %+v", buffer)
	}
	if got := input.Value(); got != "old" {
		t.Fatalf("toggle must not touch the text, got %q", got)
	}

	now = now.Add(time.Second)
	input.ToggleMic(context.Background())
	if speech.stopCalls != 1 {
		t.Fatalf("expected stop, got %d", speech.stopCalls)
	}
}

func TestVoiceInputToggleMicStopsWhileStarting(t *testing.T) {
	t.Parallel()

	speech := &fakeSpeech{state: domain.TranscriptState{IsSupported: true}, starting: true}
	input, _ := newTestInput(speech, VoiceInputConfig{MicLockDuration: time.Millisecond})

	input.ToggleMic(context.Background())
	if speech.startCalls != 0 || speech.stopCalls != 1 {
		t.Fatalf("toggle while starting must stop: start=%d stop=%d", speech.startCalls, speech.stopCalls)
	}
}

func TestVoiceInputToggleMicProcessingLock(t *testing.T) {
	t.Parallel()

	speech := &fakeSpeech{state: domain.TranscriptState{IsSupported: true}}
	input, _ := newTestInput(speech, VoiceInputConfig{})
	now := time.Unix(0, 0)
	input.now = func() time.Time { return now }

	input.ToggleMic(context.Background())
	now = now.Add(100 * time.Millisecond)
	input.ToggleMic(context.Background())
	if speech.startCalls != 1 || speech.stopCalls != 0 {
		t.Fatalf("double activation must be suppressed: start=%d stop=%d", speech.startCalls, speech.stopCalls)
	}

	now = now.Add(defaultMicLockDuration)
	input.ToggleMic(context.Background())
	if speech.stopCalls != 1 {
		t.Fatalf("expected stop after lock window, got %d", speech.stopCalls)
	}
}

func TestVoiceInputToggleMicInertWhenUnsupportedOrDisabled(t *testing.T) {
	t.Parallel()

	unsupported := &fakeSpeech{}
	input, _ := newTestInput(unsupported, VoiceInputConfig{})
	input.ToggleMic(context.Background())
	if unsupported.startCalls != 0 {
		t.Fatalf("unsupported speech must not start")
	}
	input.Edit("typing still works")
	if input.Value() != "typing still works" {
		t.Fatalf("manual editing must be unaffected")
	}

	speech := &fakeSpeech{state: domain.TranscriptState{IsSupported: true}}
	disabled, _ := newTestInput(speech, VoiceInputConfig{Disabled: true})
	disabled.ToggleMic(context.Background())
	if speech.startCalls != 0 {
		t.Fatalf("disabled input must not start")
	}
	disabled.SetDisabled(false)
	disabled.ToggleMic(context.Background())
	if speech.startCalls != 1 {
		t.Fatalf("re-enabled input should start")
	}

	nilSpeech, _ := newTestInput(nil, VoiceInputConfig{})
	nilSpeech.ToggleMic(context.Background())
	nilSpeech.ClearVoice()
}

func TestVoiceInputClearVoice(t *testing.T) {
	t.Parallel()

	speech := &fakeSpeech{state: domain.TranscriptState{IsSupported: true, IsListening: true}}
	input, _ := newTestInput(speech, VoiceInputConfig{})
	input.TranscriptChanged(spoken("foo"))

	input.ClearVoice()
	if buffer := input.Buffer(); buffer.VoiceTextAdded || buffer.LastTranscript != "" || buffer.CurrentValue != "foo" {
		t.Fatalf("unexpected buffer: %+v", buffer)
	}
	if speech.resetCalls != 1 || speech.stopCalls != 1 {
		t.Fatalf("expected reset and stop, got reset=%d stop=%d", speech.resetCalls, speech.stopCalls)
	}
}

func TestVoiceInputFiles(t *testing.T) {
	t.Parallel()

	input, host := newTestInput(&fakeSpeech{}, VoiceInputConfig{})
	input.AttachFiles([]domain.FileHandle{{Name: "a.txt"}})
	input.AttachFiles([]domain.FileHandle{{Name: "b.txt"}, {Name: "a.txt"}})
	input.AttachFiles(nil)

	if len(host.uploads) != 2 || len(host.uploads[1]) != 2 || host.uploads[1][0].Name != "b.txt" {
		t.Fatalf("expected only newly selected files per upload, got %+v", host.uploads)
	}
	if files := input.Files(); len(files) != 3 {
		t.Fatalf("expected 3 files without dedup, got %+v", files)
	}

	if err := input.RemoveFile(1); err != nil {
		t.Fatalf("unexpected remove error: %v", err)
	}
	files := input.Files()
	if len(files) != 2 || files[0].Name != "a.txt" || files[1].Name != "a.txt" {
		t.Fatalf("unexpected files after removal: %+v", files)
	}
	if err := input.RemoveFile(5); !errors.Is(err, ErrFileIndexOutOfRange) {
		t.Fatalf("expected out of range error, got %v", err)
	}
	if err := input.RemoveFile(-1); !errors.Is(err, ErrFileIndexOutOfRange) {
		t.Fatalf("expected out of range error, got %v", err)
	}
}

func TestVoiceInputSideTools(t *testing.T) {
	t.Parallel()

	input, host := newTestInput(&fakeSpeech{}, VoiceInputConfig{InitialValue: "make a blog"})
	input.AttachFiles([]domain.FileHandle{{Name: "notes.md"}})

	input.SaveToGithub()
	input.Fork()
	input.SetUltraMode(true)

	if len(host.saves) != 1 || host.saves[0] != "make a blog" || len(host.saveFiles[0]) != 1 {
		t.Fatalf("unexpected github save: %+v %+v", host.saves, host.saveFiles)
	}
	if len(host.forks) != 1 || host.forks[0] != "make a blog" {
		t.Fatalf("unexpected fork: %+v", host.forks)
	}
	if len(host.ultra) != 1 || !host.ultra[0] || !input.UltraMode() {
		t.Fatalf("unexpected ultra mode: %+v", host.ultra)
	}
}

func TestVoiceInputSetValueIsNotForwarded(t *testing.T) {
	t.Parallel()

	input, host := newTestInput(&fakeSpeech{}, VoiceInputConfig{})
	input.SetValue("from host")
	if input.Value() != "from host" || len(host.changes) != 0 {
		t.Fatalf("unexpected state: value=%q changes=%d", input.Value(), len(host.changes))
	}
}

func TestVoiceInputCloseStopsMerging(t *testing.T) {
	t.Parallel()

	speech := &fakeSpeech{state: domain.TranscriptState{IsSupported: true}}
	input, host := newTestInput(speech, VoiceInputConfig{})
	input.Close()
	input.TranscriptChanged(spoken("late"))
	input.ToggleMic(context.Background())

	if len(host.changes) != 0 || speech.startCalls != 0 {
		t.Fatalf("closed input must be inert")
	}
}
