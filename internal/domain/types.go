package domain

// SessionStatus models the voice capture lifecycle.
type SessionStatus string

const (
	StatusIdle      SessionStatus = "idle"
	StatusStarting  SessionStatus = "starting"
	StatusRecording SessionStatus = "recording"
	StatusStopping  SessionStatus = "stopping"
)

// Active reports whether a session currently owns capture resources.
func (s SessionStatus) Active() bool {
	return s == StatusStarting || s == StatusRecording || s == StatusStopping
}

// ErrorCode identifies errors surfaced to the host UI.
type ErrorCode string

const (
	ErrorCodeUnsupported           ErrorCode = "unsupported"
	ErrorCodePermissionDenied      ErrorCode = "permission_denied"
	ErrorCodeMicrophoneUnavailable ErrorCode = "microphone_unavailable"
	ErrorCodeRecognition           ErrorCode = "recognition"
	ErrorCodeStartup               ErrorCode = "startup"
)

// SessionError is the single current-error field exposed by the controller.
type SessionError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// TranscriptSegment is one unit of recognizer output.
type TranscriptSegment struct {
	Text          string `json:"text"`
	IsFinal       bool   `json:"isFinal"`
	SequenceIndex int    `json:"sequenceIndex"`
}

// RecognitionEvent carries the segments reported by one recognizer callback.
// Segments below ResultIndex were already delivered and are skipped.
type RecognitionEvent struct {
	ResultIndex int                 `json:"resultIndex"`
	Segments    []TranscriptSegment `json:"segments"`
}

// SignalKind identifies a native recognizer callback.
type SignalKind string

const (
	SignalResult SignalKind = "result"
	SignalError  SignalKind = "error"
	SignalEnd    SignalKind = "end"
)

// RecognitionSignal is one callback from a native recognizer handle.
type RecognitionSignal struct {
	Kind    SignalKind
	Event   RecognitionEvent
	Code    string
	Message string
}

// TranscriptKind identifies whether a provider event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent represents incremental transcription output from a streaming provider.
type TranscriptEvent struct {
	Kind          TranscriptKind `json:"kind"`
	Text          string         `json:"text"`
	IsSpeechFinal bool           `json:"isSpeechFinal"`
}

// Snapshot is a point-in-time view of the recording session.
type Snapshot struct {
	Status        SessionStatus `json:"status"`
	CommittedText string        `json:"committedText"`
	InterimText   string        `json:"interimText"`
	VolumeLevel   float64       `json:"volumeLevel"`
	LastError     *SessionError `json:"lastError,omitempty"`
	Supported     bool          `json:"supported"`
}
