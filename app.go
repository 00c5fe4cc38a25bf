package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"vectort/internal/bootstrap"
	"vectort/internal/config"
	"vectort/internal/domain"
	"vectort/internal/ports"
	"vectort/internal/usecase"
)

const (
	eventTranscript     = "vectort:transcript"
	eventInput          = "vectort:input"
	eventFiles          = "vectort:files"
	eventGithubSave     = "vectort:github-save"
	eventFork           = "vectort:fork"
	eventUltraMode      = "vectort:ultra-mode"
	eventStream         = "vectort:stream"
	eventStreamComplete = "vectort:stream-complete"
	eventError          = "vectort:error"
)

// App is the Wails application root. It hosts the prompt input and relays
// speech and generation updates to the frontend.
type App struct {
	ctx context.Context

	speech    *usecase.SpeechEngine
	input     *usecase.VoiceInput
	stream    *usecase.GenerationStreamConsumer
	services  bootstrap.Services
	clipboard ports.Clipboard
	cfg       config.Config
	bootErr   error

	mu              sync.Mutex
	lastSpeechError string
}

func NewApp() *App {
	return &App{clipboard: &wailsClipboard{}}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, a, nil)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = services
	a.cfg = services.Config
	a.speech = services.Speech
	a.input = services.Input
	a.stream = services.Stream
	a.speech.Subscribe(a)
	a.TranscriptChanged(a.speech.State())
}

func (a *App) shutdown(_ context.Context) {
	a.services.Close()
}

// ToggleMic starts or stops voice capture for the prompt input.
func (a *App) ToggleMic() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.input.ToggleMic(a.ctx)
	return nil
}

// StopListening ends voice capture without touching the prompt text.
func (a *App) StopListening() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.speech.StopListening()
	return nil
}

// ResetTranscript clears the live transcript.
func (a *App) ResetTranscript() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.speech.ResetTranscript()
	return nil
}

// ClearVoice drops the pending voice fragment and stops capture.
func (a *App) ClearVoice() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.input.ClearVoice()
	return nil
}

// EditInput applies a keystroke-level edit from the frontend.
func (a *App) EditInput(value string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.input.Edit(value)
	return nil
}

// SetInputValue re-syncs the prompt with a value owned by the frontend.
func (a *App) SetInputValue(value string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.input.SetValue(value)
	return nil
}

// SetInputDisabled enables or disables microphone activation.
func (a *App) SetInputDisabled(disabled bool) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.input.SetDisabled(disabled)
	return nil
}

// SelectFiles opens a file picker and attaches the chosen files.
func (a *App) SelectFiles() ([]domain.FileHandle, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	paths, err := runtime.OpenMultipleFilesDialog(a.ctx, runtime.OpenDialogOptions{Title: "Attach files"})
	if err != nil {
		a.SessionError(domain.ErrorCodeInput, err.Error())
		return nil, err
	}

	files := make([]domain.FileHandle, 0, len(paths))
	for _, path := range paths {
		handle, err := fileHandle(path)
		if err != nil {
			a.SessionError(domain.ErrorCodeInput, err.Error())
			return nil, err
		}
		files = append(files, handle)
	}
	a.input.AttachFiles(files)
	return files, nil
}

// AttachFiles attaches files the frontend already resolved.
func (a *App) AttachFiles(files []domain.FileHandle) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.input.AttachFiles(files)
	return nil
}

// RemoveFile detaches the file at index.
func (a *App) RemoveFile(index int) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.input.RemoveFile(index); err != nil {
		a.SessionError(domain.ErrorCodeInput, err.Error())
		return err
	}
	a.emit(eventFiles, a.input.Files())
	return nil
}

func (a *App) SaveToGithub() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.input.SaveToGithub()
	return nil
}

func (a *App) Fork() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.input.Fork()
	return nil
}

func (a *App) SetUltraMode(enabled bool) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.input.SetUltraMode(enabled)
	return nil
}

// GetInput returns the prompt text and the attached files.
func (a *App) GetInput() map[string]any {
	if a.input == nil {
		return map[string]any{"value": "", "files": []domain.FileHandle{}, "ultraMode": false}
	}
	return map[string]any{
		"value":     a.input.Value(),
		"files":     a.input.Files(),
		"ultraMode": a.input.UltraMode(),
	}
}

// GetTranscriptState returns the current speech capture state.
func (a *App) GetTranscriptState() domain.TranscriptState {
	if a.speech == nil {
		state := domain.TranscriptState{}
		if a.bootErr != nil {
			state.LastError = a.bootErr.Error()
		}
		return state
	}
	return a.speech.State()
}

// WatchGeneration follows the generation stream of projectID.
func (a *App) WatchGeneration(projectID string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.stream.Attach(a.ctx, projectID); err != nil {
		a.SessionError(domain.ErrorCodeStream, err.Error())
		return err
	}
	return nil
}

// StopWatching closes the generation stream, if any.
func (a *App) StopWatching() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.stream.Detach()
	return nil
}

// GetStreamSession returns the current generation session.
func (a *App) GetStreamSession() domain.StreamSession {
	if a.stream == nil {
		return usecase.NewStreamSession("")
	}
	return a.stream.Session()
}

// CopyInput copies the prompt text to the clipboard.
func (a *App) CopyInput() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.clipboard.SetText(a.ctx, a.input.Value()); err != nil {
		a.SessionError(domain.ErrorCodeClipboard, err.Error())
		return err
	}
	return nil
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	supported := false
	if a.speech != nil {
		supported = a.speech.State().IsSupported
	}
	return map[string]string{
		"provider":         "Deepgram",
		"model":            a.cfg.Deepgram.Model,
		"language":         a.cfg.Speech.Language,
		"voiceSupported":   strconv.FormatBool(supported),
		"backend":          a.cfg.Backend.BaseURL,
		"configFile":       a.cfg.File,
		"audioInput":       a.cfg.Audio.InputDevice,
		"audioInputFormat": a.cfg.Audio.InputFormat,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.input == nil || a.speech == nil || a.stream == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// TranscriptChanged emits speech state and surfaces new recognition errors.
func (a *App) TranscriptChanged(state domain.TranscriptState) {
	a.emit(eventTranscript, state)

	a.mu.Lock()
	fresh := state.LastError != "" && state.LastError != a.lastSpeechError
	a.lastSpeechError = state.LastError
	a.mu.Unlock()
	if fresh {
		a.SessionError(domain.ErrorCodeSpeech, state.LastError)
	}
}

// OnChange emits prompt changes, typed or dictated.
func (a *App) OnChange(event domain.ChangeEvent) {
	a.emit(eventInput, event)
}

// OnFileUpload emits newly attached files.
func (a *App) OnFileUpload(files []domain.FileHandle) {
	a.emit(eventFiles, files)
}

func (a *App) OnGithubSave(text string, files []domain.FileHandle) {
	a.emit(eventGithubSave, map[string]any{"text": text, "files": files})
}

func (a *App) OnFork(text string) {
	a.emit(eventFork, map[string]string{"text": text})
}

func (a *App) OnUltraMode(enabled bool) {
	a.emit(eventUltraMode, map[string]bool{"enabled": enabled})
}

// StreamSessionChanged emits generation progress.
func (a *App) StreamSessionChanged(session domain.StreamSession) {
	a.emit(eventStream, session)
}

// GenerationComplete signals that projectID finished generating.
func (a *App) GenerationComplete(projectID string) {
	a.emit(eventStreamComplete, map[string]string{"projectId": projectID})
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.emit(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func (a *App) emit(name string, payload any) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, name, payload)
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeSpeech:
		return "Speech recognition error"
	case domain.ErrorCodeStream:
		return "Generation stream unavailable"
	case domain.ErrorCodeClipboard:
		return "Clipboard write failed"
	case domain.ErrorCodeInput:
		return "Input error"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

func fileHandle(path string) (domain.FileHandle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.FileHandle{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return domain.FileHandle{}, fmt.Errorf("%s is a directory", path)
	}
	return domain.FileHandle{
		Name:     filepath.Base(path),
		Path:     path,
		MIMEType: mime.TypeByExtension(filepath.Ext(path)),
		Size:     info.Size(),
	}, nil
}

type wailsClipboard struct{}

func (c *wailsClipboard) SetText(ctx context.Context, text string) error {
	return runtime.ClipboardSetText(ctx, text)
}
