package domain

import "time"

// ListeningState models the speech capture lifecycle.
type ListeningState string

const (
	ListeningStateIdle      ListeningState = "idle"
	ListeningStateStarting  ListeningState = "starting"
	ListeningStateListening ListeningState = "listening"
	ListeningStateStopping  ListeningState = "stopping"
)

// TranscriptState is the observable output of speech capture.
type TranscriptState struct {
	IsListening bool   `json:"isListening"`
	Transcript  string `json:"transcript"`
	IsSupported bool   `json:"isSupported"`
	LastError   string `json:"lastError,omitempty"`
}

// RecognitionAlternative is one candidate text for a recognition segment.
type RecognitionAlternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// RecognitionResult is one segment of the cumulative result list delivered
// on every recognition tick.
type RecognitionResult struct {
	IsFinal      bool                     `json:"isFinal"`
	Alternatives []RecognitionAlternative `json:"alternatives"`
}

// Text returns the first alternative, or empty when there is none.
func (r RecognitionResult) Text() string {
	if len(r.Alternatives) == 0 {
		return ""
	}
	return r.Alternatives[0].Transcript
}

// RecognitionErrorCode identifies why a recognition session failed.
type RecognitionErrorCode string

const (
	RecognitionErrorNotAllowed        RecognitionErrorCode = "not-allowed"
	RecognitionErrorNoSpeech          RecognitionErrorCode = "no-speech"
	RecognitionErrorAudioCapture      RecognitionErrorCode = "audio-capture"
	RecognitionErrorNetwork           RecognitionErrorCode = "network"
	RecognitionErrorAborted           RecognitionErrorCode = "aborted"
	RecognitionErrorServiceNotAllowed RecognitionErrorCode = "service-not-allowed"
)

// RecognitionError is reported by a recognizer mid-session.
type RecognitionError struct {
	Code    RecognitionErrorCode `json:"code"`
	Message string               `json:"message"`
}

func (e RecognitionError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

// TranscriptKind identifies whether a provider event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent represents incremental transcription output from a provider.
type TranscriptEvent struct {
	Kind          TranscriptKind `json:"kind"`
	Text          string         `json:"text"`
	Confidence    float64        `json:"confidence"`
	IsSpeechFinal bool           `json:"isSpeechFinal"`
}

// InputBuffer is the text the user sees and edits.
type InputBuffer struct {
	CurrentValue   string `json:"currentValue"`
	LastTranscript string `json:"lastTranscript"`
	VoiceTextAdded bool   `json:"voiceTextAdded"`
}

// ChangeTarget mirrors the target of a text input change.
type ChangeTarget struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

// ChangeEvent is emitted for manual edits and voice merges alike.
type ChangeEvent struct {
	Target ChangeTarget `json:"target"`
}

// FileHandle references a file selected for upload.
type FileHandle struct {
	Name     string `json:"name"`
	Path     string `json:"path,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size"`
}

// StreamEventType is the type tag of a generation stream event.
type StreamEventType string

const (
	StreamEventInfo        StreamEventType = "info"
	StreamEventPhase       StreamEventType = "phase"
	StreamEventSuccess     StreamEventType = "success"
	StreamEventFileCreated StreamEventType = "file_created"
	StreamEventError       StreamEventType = "error"
	StreamEventComplete    StreamEventType = "complete"
)

// Known reports whether the type is one the consumer has behavior for.
func (t StreamEventType) Known() bool {
	switch t {
	case StreamEventInfo, StreamEventPhase, StreamEventSuccess,
		StreamEventFileCreated, StreamEventError, StreamEventComplete:
		return true
	default:
		return false
	}
}

// StreamEvent is one server-pushed generation step.
type StreamEvent struct {
	Type     StreamEventType `json:"type"`
	Content  string          `json:"content"`
	Agent    string          `json:"agent,omitempty"`
	FilePath string          `json:"file_path,omitempty"`
	Progress *int            `json:"progress,omitempty"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

// StreamMessage is one entry of the generation log.
type StreamMessage struct {
	ID        string          `json:"id"`
	Type      StreamEventType `json:"type"`
	Content   string          `json:"content"`
	Agent     string          `json:"agent,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// StreamSession is the state accumulated for one generation run.
type StreamSession struct {
	ProjectID    string          `json:"projectId"`
	Messages     []StreamMessage `json:"messages"`
	FilesCreated []string        `json:"filesCreated"`
	Progress     int             `json:"progress"`
	Phase        string          `json:"phase"`
	IsComplete   bool            `json:"isComplete"`
	Error        string          `json:"error,omitempty"`
	Connected    bool            `json:"connected"`
}

// Clone returns a copy that shares no slices with the receiver.
func (s StreamSession) Clone() StreamSession {
	out := s
	out.Messages = append(make([]StreamMessage, 0, len(s.Messages)), s.Messages...)
	out.FilesCreated = append(make([]string, 0, len(s.FilesCreated)), s.FilesCreated...)
	return out
}

// StreamSignalKind classifies what a stream transport delivered.
type StreamSignalKind string

const (
	StreamSignalOpen    StreamSignalKind = "open"
	StreamSignalMessage StreamSignalKind = "message"
	StreamSignalError   StreamSignalKind = "error"
)

// StreamSignal is one item handed from a stream transport to the consumer.
type StreamSignal struct {
	Kind     StreamSignalKind
	Data     []byte
	Err      error
	Terminal bool
}

// ErrorCode identifies errors surfaced to the UI.
type ErrorCode string

const (
	ErrorCodeStartup   ErrorCode = "startup"
	ErrorCodeSpeech    ErrorCode = "speech"
	ErrorCodeStream    ErrorCode = "stream"
	ErrorCodeClipboard ErrorCode = "clipboard"
	ErrorCodeInput     ErrorCode = "input"
)
