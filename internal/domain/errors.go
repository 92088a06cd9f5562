package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupported            = errors.New("speech recognition is not supported on this platform")
	ErrPermissionDenied       = errors.New("microphone permission denied")
	ErrMicrophoneUnavailable  = errors.New("microphone unavailable")
	ErrRecognizerInvalidState = errors.New("recognizer is in an invalid state")
	ErrSessionCancelled       = errors.New("session cancelled")
)

// Recognizer error codes reported by native handles.
const (
	RecognitionCodeNoSpeech       = "no-speech"
	RecognitionCodeAborted        = "aborted"
	RecognitionCodeNotAllowed     = "not-allowed"
	RecognitionCodeNetwork        = "network"
	RecognitionCodeAudioCapture   = "audio-capture"
	RecognitionCodeRestartFailed  = "restart-failed"
	RecognitionCodeStreamEnded    = "stream-ended"
	RecognitionCodeServiceBlocked = "service-not-allowed"
)

// RecognitionError is an error reported by the speech recognizer.
type RecognitionError struct {
	Code    string
	Message string
	Err     error
}

func (e *RecognitionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("recognition error: %s", e.Code)
	}
	return fmt.Sprintf("recognition error: %s: %s", e.Code, e.Message)
}

func (e *RecognitionError) Unwrap() error {
	if e.Code == RecognitionCodeNotAllowed {
		return ErrPermissionDenied
	}
	return e.Err
}

// Transient reports whether the error should be absorbed without any visible effect.
func (e *RecognitionError) Transient() bool {
	return IsTransientRecognitionCode(e.Code)
}

// IsTransientRecognitionCode reports whether code is no-speech or aborted.
func IsTransientRecognitionCode(code string) bool {
	return code == RecognitionCodeNoSpeech || code == RecognitionCodeAborted
}

// EvaluationServiceError reports a failed call to the scoring service.
type EvaluationServiceError struct {
	StatusCode int
	Err        error
}

func (e *EvaluationServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("evaluation service returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("evaluation service unavailable: %v", e.Err)
}

func (e *EvaluationServiceError) Unwrap() error {
	return e.Err
}

// ToSessionError maps an error onto the code and message shown to the user.
func ToSessionError(err error) SessionError {
	var recErr *RecognitionError
	switch {
	case errors.Is(err, ErrUnsupported):
		return SessionError{Code: ErrorCodeUnsupported, Message: "Voice input is not supported on this device."}
	case errors.Is(err, ErrPermissionDenied):
		return SessionError{Code: ErrorCodePermissionDenied, Message: "Microphone access was denied. Grant microphone permission and try again."}
	case errors.Is(err, ErrMicrophoneUnavailable):
		return SessionError{Code: ErrorCodeMicrophoneUnavailable, Message: err.Error()}
	case errors.As(err, &recErr):
		return SessionError{Code: ErrorCodeRecognition, Message: err.Error()}
	default:
		return SessionError{Code: ErrorCodeStartup, Message: err.Error()}
	}
}
