package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nishant160406/soft-skill-ai-coach/internal/domain"
	"github.com/nishant160406/soft-skill-ai-coach/internal/ports"
)

// Config controls voice capture sessions.
type Config struct {
	Language    string
	Recognition RecognitionConfig
	Volume      VolumeConfig
}

// SessionController is the façade a UI binds to. It owns at most one
// recording session at a time.
type SessionController struct {
	recognizer ports.SpeechRecognizer
	devices    ports.MediaDevices
	clock      ports.FrameClock
	cfg        Config
	logger     *log.Logger
	metrics    *sessionMetrics
	supported  bool

	mu          sync.Mutex
	status      domain.SessionStatus
	epoch       uint64
	transcript  TranscriptAccumulator
	volume      float64
	lastErr     *domain.SessionError
	listener    ports.SessionListener
	recognition *RecognitionSession
	monitor     *VolumeMonitor
	cancel      context.CancelFunc
	startedAt   time.Time
}

func NewSessionController(
	recognizer ports.SpeechRecognizer,
	devices ports.MediaDevices,
	clock ports.FrameClock,
	cfg Config,
	logger *log.Logger,
) *SessionController {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	supported := recognizer != nil && recognizer.Supported()
	if recognizer != nil {
		recognizer = checkedRecognizer{SpeechRecognizer: recognizer, supported: supported}
	}
	return &SessionController{
		recognizer: recognizer,
		devices:    devices,
		clock:      clock,
		cfg:        cfg,
		logger:     logger.WithPrefix("session"),
		metrics:    newSessionMetrics(),
		supported:  supported,
		status:     domain.StatusIdle,
		listener:   noopListener{},
	}
}

// SetListener registers the single observer of session changes. A nil
// listener detaches the current one.
func (c *SessionController) SetListener(listener ports.SessionListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if listener == nil {
		listener = noopListener{}
	}
	c.listener = listener
}

// Supported reports the cached recognition capability.
func (c *SessionController) Supported() bool {
	return c.supported
}

// Start begins a recording session. It returns false without side effects on
// the running session when one is already starting, recording or stopping.
func (c *SessionController) Start(ctx context.Context, languageTag string) bool {
	if languageTag == "" {
		languageTag = c.cfg.Language
	}

	c.mu.Lock()
	if c.status != domain.StatusIdle {
		c.mu.Unlock()
		return false
	}
	if !c.supported {
		c.raiseLocked(domain.ErrUnsupported)
		c.mu.Unlock()
		return false
	}

	c.transcript.Reset()
	c.volume = 0
	c.lastErr = nil
	c.epoch++
	epoch := c.epoch

	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	monitor := NewVolumeMonitor(c.devices, c.clock, c.cfg.Volume, func(level float64) {
		c.volumeSampled(epoch, level)
	}, c.logger)
	recognition := NewRecognitionSession(c.recognizer, c.cfg.Recognition, RecognitionEvents{
		Segments: func(delta string, interim string) { c.segmentsReceived(epoch, delta, interim) },
		Error:    func(err error) { c.errorOccurred(epoch, err) },
	}, c.logger)
	c.monitor = monitor
	c.recognition = recognition
	c.cancel = cancel
	c.startedAt = time.Now()
	c.listener.CommittedTextChanged("")
	c.listener.InterimTextChanged("")
	c.setStatusLocked(domain.StatusStarting)
	c.mu.Unlock()

	// Start-up honours the caller's cancellation; the session itself outlives ctx.
	detach := context.AfterFunc(ctx, cancel)
	defer detach()

	if err := monitor.Start(sessionCtx); err != nil && !errors.Is(err, domain.ErrSessionCancelled) {
		c.logger.Warn("volume readout unavailable", "err", err)
		c.errorOccurred(epoch, err)
	}

	recErr := recognition.Start(sessionCtx, languageTag)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		recognition.Stop()
		monitor.Stop()
		return false
	}
	if recErr != nil {
		c.detachLocked()
		c.volume = 0
		c.raiseLocked(recErr)
		c.setStatusLocked(domain.StatusIdle)
		c.mu.Unlock()

		recognition.Stop()
		monitor.Stop()
		cancel()
		c.metrics.session("failed")
		c.logger.Error("session failed to start", "err", recErr)
		return false
	}
	c.setStatusLocked(domain.StatusRecording)
	c.mu.Unlock()

	c.metrics.session("started")
	c.logger.Info("recording", "language", languageTag)
	return true
}

// Stop ends the current session and returns the final committed text. It is a
// no-op while idle or already stopping.
func (c *SessionController) Stop() string {
	c.mu.Lock()
	if c.status == domain.StatusIdle || c.status == domain.StatusStopping {
		text := c.transcript.Committed()
		c.mu.Unlock()
		return text
	}
	c.epoch++
	recognition, monitor, cancel := c.recognition, c.monitor, c.cancel
	startedAt := c.startedAt
	c.detachLocked()
	c.setStatusLocked(domain.StatusStopping)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if recognition != nil {
		recognition.Stop()
	}
	if monitor != nil {
		monitor.Stop()
	}

	c.mu.Lock()
	hadInterim := c.transcript.Interim() != ""
	final := c.transcript.FlushInterim()
	if hadInterim {
		c.listener.CommittedTextChanged(final)
		c.listener.InterimTextChanged("")
	}
	c.volume = 0
	c.listener.VolumeChanged(0)
	c.setStatusLocked(domain.StatusIdle)
	c.listener.SessionFinished(final)
	c.mu.Unlock()

	c.metrics.session("completed")
	c.metrics.sessionDuration(time.Since(startedAt).Seconds())
	c.logger.Info("recording stopped", "chars", len(final))
	return final
}

// Clear resets the transcript. It is only allowed while idle.
func (c *SessionController) Clear() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != domain.StatusIdle {
		return false
	}
	c.transcript.Reset()
	c.listener.CommittedTextChanged("")
	c.listener.InterimTextChanged("")
	return true
}

// Snapshot returns the current session state.
func (c *SessionController) Snapshot() domain.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := domain.Snapshot{
		Status:        c.status,
		CommittedText: c.transcript.Committed(),
		InterimText:   c.transcript.Interim(),
		VolumeLevel:   c.volume,
		Supported:     c.supported,
	}
	if c.lastErr != nil {
		lastErr := *c.lastErr
		snapshot.LastError = &lastErr
	}
	return snapshot
}

func (c *SessionController) segmentsReceived(epoch uint64, delta string, interim string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.acceptingLocked(epoch) {
		return
	}
	if c.transcript.AppendFinal(delta) {
		c.listener.CommittedTextChanged(c.transcript.Committed())
	}
	if c.transcript.SetInterim(interim) {
		c.listener.InterimTextChanged(interim)
	}
}

func (c *SessionController) errorOccurred(epoch uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.acceptingLocked(epoch) {
		return
	}
	c.raiseLocked(err)
}

func (c *SessionController) volumeSampled(epoch uint64, level float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.acceptingLocked(epoch) {
		return
	}
	c.volume = level
	c.listener.VolumeChanged(level)
}

func (c *SessionController) acceptingLocked(epoch uint64) bool {
	if epoch != c.epoch {
		return false
	}
	return c.status == domain.StatusStarting || c.status == domain.StatusRecording
}

func (c *SessionController) raiseLocked(err error) {
	sessionErr := domain.ToSessionError(err)
	c.lastErr = &sessionErr
	c.listener.ErrorRaised(sessionErr)
}

func (c *SessionController) setStatusLocked(status domain.SessionStatus) {
	if c.status == status {
		return
	}
	c.status = status
	c.listener.StatusChanged(status)
}

func (c *SessionController) detachLocked() {
	c.recognition = nil
	c.monitor = nil
	c.cancel = nil
}

// checkedRecognizer pins the capability result taken at construction.
type checkedRecognizer struct {
	ports.SpeechRecognizer
	supported bool
}

func (r checkedRecognizer) Supported() bool { return r.supported }

type noopListener struct{}

func (noopListener) StatusChanged(domain.SessionStatus) {}
func (noopListener) CommittedTextChanged(string) {}
func (noopListener) InterimTextChanged(string) {}
func (noopListener) VolumeChanged(float64) {}
func (noopListener) ErrorRaised(domain.SessionError) {}
func (noopListener) SessionFinished(string) {}
