package ports

import (
	"context"
	"io"
	"time"

	"github.com/nishant160406/soft-skill-ai-coach/internal/domain"
)

// CaptureConstraints are best-effort capture quality hints.
type CaptureConstraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// MediaTrack is one live input track of a media stream.
type MediaTrack interface {
	Stop() error
}

// MediaStream is an acquired microphone stream.
type MediaStream interface {
	Tracks() []MediaTrack
}

// Analyser exposes frequency-domain data for a media stream.
type Analyser interface {
	FrequencyBinCount() int
	// ByteFrequencyData fills dst with bin magnitudes scaled to 0..255.
	ByteFrequencyData(dst []byte)
	Close() error
}

// MediaDevices acquires microphone streams and builds analysers for them.
type MediaDevices interface {
	GetUserMedia(ctx context.Context, constraints CaptureConstraints) (MediaStream, error)
	NewAnalyser(stream MediaStream, fftSize int) (Analyser, error)
}

// FrameClock delivers display refresh ticks until ctx is done.
type FrameClock interface {
	Frames(ctx context.Context) <-chan time.Time
}

// RecognitionHandle is a native continuous speech recognizer.
// Start on a handle that is already running returns domain.ErrRecognizerInvalidState.
type RecognitionHandle interface {
	Start(languageTag string) error
	Stop()
	Abort()
	Signals() <-chan domain.RecognitionSignal
	Close() error
}

// SpeechRecognizer is the platform speech recognition capability.
type SpeechRecognizer interface {
	Supported() bool
	NewHandle(ctx context.Context) (RecognitionHandle, error)
}

// SessionListener receives every observable change of the recording session.
// Calls are made in order while the controller holds its lock, so implementations
// must not block and must not call back into the controller.
type SessionListener interface {
	StatusChanged(status domain.SessionStatus)
	CommittedTextChanged(text string)
	InterimTextChanged(text string)
	VolumeChanged(level float64)
	ErrorRaised(err domain.SessionError)
	SessionFinished(text string)
}

// AudioConfig describes how raw PCM should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
	Filters     []string
}

// AudioSession is a live PCM capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
	Language       string
}

// StreamingSession is an active provider websocket session.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider starts streaming transcription sessions.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// RulesEngine transforms answers using deterministic rules.
type RulesEngine interface {
	Apply(text string) (string, error)
}

// Evaluator scores an answer to a practice question.
type Evaluator interface {
	Evaluate(ctx context.Context, question string, answer string) (domain.Evaluation, error)
}

// Synthesizer turns feedback text into a playable audio clip.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// SessionStore is an ephemeral key/value store scoped to one client tab.
type SessionStore interface {
	Get(ctx context.Context, scope string, key string) (string, bool, error)
	Set(ctx context.Context, scope string, key string, value string) error
	Delete(ctx context.Context, scope string, keys ...string) error
}

// ResultPublisher fans out finished practice results.
type ResultPublisher interface {
	PublishResult(ctx context.Context, scope string, result domain.QuestionResult) error
}
