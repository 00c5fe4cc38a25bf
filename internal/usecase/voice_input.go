package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"vectort/internal/domain"
	"vectort/internal/ports"
)

const defaultMicLockDuration = 300 * time.Millisecond

var ErrFileIndexOutOfRange = errors.New("file index out of range")

// SpeechControl is the part of SpeechEngine the text input drives.
type SpeechControl interface {
	StartListening(ctx context.Context)
	StopListening()
	ResetTranscript()
	State() domain.TranscriptState
	Active() bool
}

// VoiceInputConfig controls the voice-aware text input.
type VoiceInputConfig struct {
	Name            string
	InitialValue    string
	Disabled        bool
	MicLockDuration time.Duration
}

// VoiceInput merges voice transcripts into a user-editable text buffer and
// forwards every change to its host in a single event shape.
type VoiceInput struct {
	speech       SpeechControl
	host         ports.InputHost
	logger       *slog.Logger
	name         string
	lockDuration time.Duration
	now          func() time.Time

	mu          sync.Mutex
	buffer      domain.InputBuffer
	files       []domain.FileHandle
	ultraMode   bool
	disabled    bool
	lockedUntil time.Time
	closed      bool
}

func NewVoiceInput(speech SpeechControl, host ports.InputHost, cfg VoiceInputConfig, logger *slog.Logger) *VoiceInput {
	if cfg.MicLockDuration <= 0 {
		cfg.MicLockDuration = defaultMicLockDuration
	}
	if host == nil {
		host = nopInputHost{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VoiceInput{
		speech:       speech,
		host:         host,
		logger:       logger.With("component", "input"),
		name:         cfg.Name,
		lockDuration: cfg.MicLockDuration,
		now:          time.Now,
		buffer:       domain.InputBuffer{CurrentValue: cfg.InitialValue},
		disabled:     cfg.Disabled,
	}
}

// SetValue re-syncs the buffer with an externally supplied value. The host
// already knows this value, so nothing is forwarded.
func (v *VoiceInput) SetValue(value string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.buffer.CurrentValue = value
}

// SetDisabled toggles whether the microphone can be activated.
func (v *VoiceInput) SetDisabled(disabled bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.disabled = disabled
}

// Edit applies a manual edit and forwards it unconditionally.
func (v *VoiceInput) Edit(value string) {
	v.mu.Lock()
	v.buffer.CurrentValue = value
	v.buffer.VoiceTextAdded = false
	event := v.changeEventLocked()
	v.mu.Unlock()

	v.host.OnChange(event)
}

// TranscriptChanged merges a transcript update into the buffer.
func (v *VoiceInput) TranscriptChanged(state domain.TranscriptState) {
	if state.Transcript == "" {
		return
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	next, changed := mergeTranscript(v.buffer, state.Transcript)
	if !changed {
		v.mu.Unlock()
		return
	}
	v.buffer = next
	event := v.changeEventLocked()
	v.mu.Unlock()

	v.host.OnChange(event)
}

// ToggleMic stops an active capture or starts a fresh one. Activations
// within the processing lock window are ignored.
func (v *VoiceInput) ToggleMic(ctx context.Context) {
	if v.speech == nil {
		return
	}
	state := v.speech.State()
	if !state.IsSupported {
		return
	}

	v.mu.Lock()
	if v.closed || v.disabled {
		v.mu.Unlock()
		return
	}
	now := v.now()
	if now.Before(v.lockedUntil) {
		v.mu.Unlock()
		v.logger.Debug("ignoring mic toggle during processing lock")
		return
	}
	v.lockedUntil = now.Add(v.lockDuration)

	if state.IsListening || v.speech.Active() {
		v.mu.Unlock()
		v.speech.StopListening()
		return
	}

	v.buffer.LastTranscript = ""
	v.buffer.VoiceTextAdded = false
	v.mu.Unlock()

	v.speech.ResetTranscript()
	v.speech.StartListening(ctx)
}

// ClearVoice discards the pending voice fragment bookkeeping and stops capture.
func (v *VoiceInput) ClearVoice() {
	if v.speech == nil {
		return
	}
	v.mu.Lock()
	v.buffer.LastTranscript = ""
	v.buffer.VoiceTextAdded = false
	v.mu.Unlock()

	v.speech.ResetTranscript()
	v.speech.StopListening()
}

// AttachFiles appends files and reports only the new ones to the host.
func (v *VoiceInput) AttachFiles(files []domain.FileHandle) {
	if len(files) == 0 {
		return
	}
	added := append([]domain.FileHandle(nil), files...)

	v.mu.Lock()
	v.files = append(v.files, added...)
	v.mu.Unlock()

	v.host.OnFileUpload(added)
}

// RemoveFile drops the attached file at index.
func (v *VoiceInput) RemoveFile(index int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if index < 0 || index >= len(v.files) {
		return ErrFileIndexOutOfRange
	}
	v.files = append(v.files[:index], v.files[index+1:]...)
	return nil
}

func (v *VoiceInput) SaveToGithub() {
	v.mu.Lock()
	text := v.buffer.CurrentValue
	files := append([]domain.FileHandle(nil), v.files...)
	v.mu.Unlock()

	v.host.OnGithubSave(text, files)
}

func (v *VoiceInput) Fork() {
	v.host.OnFork(v.Value())
}

func (v *VoiceInput) SetUltraMode(enabled bool) {
	v.mu.Lock()
	v.ultraMode = enabled
	v.mu.Unlock()

	v.host.OnUltraMode(enabled)
}

func (v *VoiceInput) UltraMode() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ultraMode
}

// Value returns the current display value.
func (v *VoiceInput) Value() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.buffer.CurrentValue
}

func (v *VoiceInput) Buffer() domain.InputBuffer {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.buffer
}

func (v *VoiceInput) Files() []domain.FileHandle {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]domain.FileHandle(nil), v.files...)
}

// Close stops merging transcripts and ignores later mic toggles.
func (v *VoiceInput) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
}

func (v *VoiceInput) changeEventLocked() domain.ChangeEvent {
	return domain.ChangeEvent{Target: domain.ChangeTarget{Value: v.buffer.CurrentValue, Name: v.name}}
}

// mergeTranscript folds transcript into buffer. A still-present voice
// fragment is replaced in place; otherwise the transcript is appended.
// Manually typed text is never removed.
func mergeTranscript(buffer domain.InputBuffer, transcript string) (domain.InputBuffer, bool) {
	if transcript == "" || transcript == buffer.LastTranscript {
		return buffer, false
	}

	current := buffer.CurrentValue
	replaced := false
	if buffer.VoiceTextAdded && buffer.LastTranscript != "" {
		if at := strings.LastIndex(current, buffer.LastTranscript); at >= 0 {
			current = current[:at] + transcript + current[at+len(buffer.LastTranscript):]
			replaced = true
		}
	}
	if !replaced {
		current = appendWithSeparator(current, transcript)
	}

	return domain.InputBuffer{
		CurrentValue:   current,
		LastTranscript: transcript,
		VoiceTextAdded: true,
	}, true
}

func appendWithSeparator(current string, text string) string {
	if current == "" {
		return text
	}
	last, _ := utf8.DecodeLastRuneInString(current)
	if unicode.IsSpace(last) {
		return current + text
	}
	return current + " " + text
}

type nopInputHost struct{}

func (nopInputHost) OnChange(_ domain.ChangeEvent)                {}
func (nopInputHost) OnFileUpload(_ []domain.FileHandle)           {}
func (nopInputHost) OnGithubSave(_ string, _ []domain.FileHandle) {}
func (nopInputHost) OnFork(_ string)                              {}
func (nopInputHost) OnUltraMode(_ bool)                           {}
