package usecase

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nishant160406/soft-skill-ai-coach/internal/domain"
	"github.com/nishant160406/soft-skill-ai-coach/internal/ports"
)

// RecognitionConfig controls recognizer start-up and restart behavior.
type RecognitionConfig struct {
	// StartRetryDelay is waited after aborting a handle that refused the initial start.
	StartRetryDelay time.Duration
	// RestartRetryDelay is waited after aborting a handle that refused a restart.
	RestartRetryDelay time.Duration
	// MaxQuietRestarts bounds consecutive stream ends without recognized speech.
	MaxQuietRestarts int
}

func (c RecognitionConfig) withDefaults() RecognitionConfig {
	if c.StartRetryDelay <= 0 {
		c.StartRetryDelay = 50 * time.Millisecond
	}
	if c.RestartRetryDelay <= 0 {
		c.RestartRetryDelay = 100 * time.Millisecond
	}
	if c.MaxQuietRestarts <= 0 {
		c.MaxQuietRestarts = 5
	}
	return c
}

// RecognitionEvents receives the effects of recognizer callbacks. Both
// functions are invoked from the session's pump goroutine.
type RecognitionEvents struct {
	Segments func(delta string, interim string)
	Error    func(err error)
}

// RecognitionSession wraps one continuous speech recognition stream.
type RecognitionSession struct {
	recognizer ports.SpeechRecognizer
	cfg        RecognitionConfig
	events     RecognitionEvents
	logger     *log.Logger
	metrics    *sessionMetrics

	mu               sync.Mutex
	handle           ports.RecognitionHandle
	language         string
	listening        bool
	stopped          bool
	committedThrough int
	quietEnds        int
	cancel           context.CancelFunc
	done             chan struct{}
}

func NewRecognitionSession(
	recognizer ports.SpeechRecognizer,
	cfg RecognitionConfig,
	events RecognitionEvents,
	logger *log.Logger,
) *RecognitionSession {
	if logger == nil {
		logger = log.Default()
	}
	if events.Segments == nil {
		events.Segments = func(string, string) {}
	}
	if events.Error == nil {
		events.Error = func(error) {}
	}
	return &RecognitionSession{
		recognizer:       recognizer,
		cfg:              cfg.withDefaults(),
		events:           events,
		logger:           logger.WithPrefix("recognition"),
		metrics:          newSessionMetrics(),
		committedThrough: -1,
	}
}

// Start begins listening in languageTag.
func (s *RecognitionSession) Start(ctx context.Context, languageTag string) error {
	if s.recognizer == nil || !s.recognizer.Supported() {
		return domain.ErrUnsupported
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return domain.ErrSessionCancelled
	}
	if s.cancel != nil {
		s.mu.Unlock()
		return domain.ErrRecognizerInvalidState
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	handle, err := s.recognizer.NewHandle(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("open recognizer: %w", err)
	}

	if err := s.startHandle(runCtx, handle, languageTag, s.cfg.StartRetryDelay); err != nil {
		_ = handle.Close()
		cancel()
		return err
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		handle.Abort()
		_ = handle.Close()
		cancel()
		return domain.ErrSessionCancelled
	}
	s.handle = handle
	s.language = languageTag
	s.listening = true
	s.committedThrough = -1
	s.quietEnds = 0
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.logger.Debug("listening", "language", languageTag)
	go s.pump(runCtx, handle, done)
	return nil
}

// Stop ends recognition and releases the native handle. It is idempotent and
// safe to call before Start.
func (s *RecognitionSession) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.listening = false
	handle := s.handle
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if handle != nil {
		handle.Stop()
	}
	if done != nil {
		<-done
	}
	if handle != nil {
		handle.Abort()
		if err := handle.Close(); err != nil {
			s.logger.Debug("close recognizer", "err", err)
		}
	}
}

// Listening reports whether the session still restarts the recognizer on end.
func (s *RecognitionSession) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

func (s *RecognitionSession) startHandle(ctx context.Context, handle ports.RecognitionHandle, languageTag string, retryDelay time.Duration) error {
	err := handle.Start(languageTag)
	if errors.Is(err, domain.ErrRecognizerInvalidState) {
		s.logger.Debug("recognizer busy, aborting before retry", "delay", retryDelay)
		handle.Abort()
		if waitErr := sleepContext(ctx, retryDelay); waitErr != nil {
			return domain.ErrSessionCancelled
		}
		err = handle.Start(languageTag)
	}
	if err != nil {
		return fmt.Errorf("start recognizer: %w", err)
	}
	return nil
}

func (s *RecognitionSession) pump(ctx context.Context, handle ports.RecognitionHandle, done chan struct{}) {
	defer close(done)

	signals := handle.Signals()
	for {
		select {
		case <-ctx.Done():
			return
		case signal, ok := <-signals:
			if !ok {
				return
			}
			switch signal.Kind {
			case domain.SignalResult:
				s.handleResult(signal.Event)
			case domain.SignalError:
				s.handleError(signal.Code, signal.Message)
			case domain.SignalEnd:
				s.handleEnd(ctx, handle)
			}
		}
	}
}

func (s *RecognitionSession) handleResult(event domain.RecognitionEvent) {
	segments := slices.Clone(event.Segments)
	slices.SortStableFunc(segments, func(a, b domain.TranscriptSegment) int {
		return cmp.Compare(a.SequenceIndex, b.SequenceIndex)
	})

	s.mu.Lock()
	if !s.listening {
		s.mu.Unlock()
		return
	}
	var finals, interims []string
	for _, segment := range segments {
		if segment.SequenceIndex < event.ResultIndex {
			continue
		}
		if !segment.IsFinal {
			interims = append(interims, segment.Text)
			continue
		}
		if segment.SequenceIndex <= s.committedThrough {
			continue
		}
		s.committedThrough = segment.SequenceIndex
		finals = append(finals, segment.Text)
	}
	delta := joinSegments(finals)
	interim := joinSegments(interims)
	if delta != "" || interim != "" {
		s.quietEnds = 0
	}
	s.mu.Unlock()

	s.events.Segments(delta, interim)
}

func (s *RecognitionSession) handleError(code string, message string) {
	if domain.IsTransientRecognitionCode(code) {
		s.logger.Debug("ignoring transient recognizer error", "code", code)
		return
	}
	if !s.Listening() {
		return
	}
	s.metrics.recognitionError(code)
	s.logger.Warn("recognizer error", "code", code, "message", message)
	s.events.Error(&domain.RecognitionError{Code: code, Message: message})
}

func (s *RecognitionSession) handleEnd(ctx context.Context, handle ports.RecognitionHandle) {
	s.mu.Lock()
	if !s.listening {
		s.mu.Unlock()
		return
	}
	s.quietEnds++
	if s.quietEnds > s.cfg.MaxQuietRestarts {
		ends := s.quietEnds
		s.listening = false
		s.mu.Unlock()

		s.metrics.restart("exhausted")
		s.logger.Warn("recognizer keeps ending without speech", "ends", ends)
		s.events.Error(&domain.RecognitionError{
			Code:    domain.RecognitionCodeStreamEnded,
			Message: fmt.Sprintf("speech recognition ended %d times without hearing speech", ends),
		})
		return
	}
	s.committedThrough = -1
	language := s.language
	s.mu.Unlock()

	err := s.startHandle(ctx, handle, language, s.cfg.RestartRetryDelay)
	if err == nil {
		s.metrics.restart("ok")
		s.logger.Debug("recognizer restarted")
		return
	}
	if errors.Is(err, domain.ErrSessionCancelled) || ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	s.listening = false
	s.mu.Unlock()

	s.metrics.restart("failed")
	s.logger.Error("recognizer restart failed", "err", err)
	s.events.Error(&domain.RecognitionError{
		Code:    domain.RecognitionCodeRestartFailed,
		Message: "speech recognition stopped and could not be restarted",
		Err:     err,
	})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
