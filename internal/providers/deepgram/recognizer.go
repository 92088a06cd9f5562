package deepgram

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nishant160406/soft-skill-ai-coach/internal/domain"
	"github.com/nishant160406/soft-skill-ai-coach/internal/ports"
)

// RecognizerConfig describes how microphone audio is captured and streamed.
type RecognizerConfig struct {
	Audio     ports.AudioConfig
	Streaming ports.StreamingConfig
	ChunkSize int
	// StopTimeout bounds how long a stopped run waits for the provider to flush.
	StopTimeout time.Duration
}

// Recognizer exposes a streaming provider plus microphone capture as a
// continuous speech recognizer with browser-style callbacks.
type Recognizer struct {
	provider ports.TranscriptionProvider
	capture  ports.AudioCapture
	cfg      RecognizerConfig
	logger   *log.Logger

	checkOnce sync.Once
	supported bool
}

func NewRecognizer(
	provider ports.TranscriptionProvider,
	capture ports.AudioCapture,
	cfg RecognizerConfig,
	logger *log.Logger,
) *Recognizer {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 2 * time.Second
	}
	cfg.Streaming.InterimResults = true
	if cfg.Streaming.SampleRate <= 0 {
		cfg.Streaming.SampleRate = cfg.Audio.SampleRate
	}
	if cfg.Streaming.Channels <= 0 {
		cfg.Streaming.Channels = cfg.Audio.Channels
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Recognizer{
		provider: provider,
		capture:  capture,
		cfg:      cfg,
		logger:   logger.WithPrefix("recognizer"),
	}
}

// Supported reports whether both the provider and the capture command are
// usable. The check runs once per recognizer.
func (r *Recognizer) Supported() bool {
	r.checkOnce.Do(func() { r.supported = r.detect() })
	return r.supported
}

func (r *Recognizer) detect() bool {
	if r.provider == nil || r.capture == nil {
		return false
	}
	if p, ok := r.provider.(interface{ Configured() bool }); ok && !p.Configured() {
		return false
	}
	if c, ok := r.capture.(interface{ Available() bool }); ok && !c.Available() {
		return false
	}
	return true
}

func (r *Recognizer) NewHandle(ctx context.Context) (ports.RecognitionHandle, error) {
	if !r.Supported() {
		return nil, domain.ErrUnsupported
	}
	return &handle{
		recognizer: r,
		ctx:        ctx,
		signals:    make(chan domain.RecognitionSignal, 64),
		quit:       make(chan struct{}),
	}, nil
}

type handle struct {
	recognizer *Recognizer
	ctx        context.Context
	signals    chan domain.RecognitionSignal
	quit       chan struct{}

	mu      sync.Mutex
	current *run
	closed  bool
	wg      sync.WaitGroup
}

// run is one capture plus provider stream, from Start until end.
type run struct {
	cancel context.CancelFunc
	audio  ports.AudioSession
	stream ports.StreamingSession

	// halted is set once capture is being shut down on purpose.
	halted  atomic.Bool
	aborted atomic.Bool
}

func (h *handle) Start(languageTag string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || h.current != nil {
		return domain.ErrRecognizerInvalidState
	}

	r := h.recognizer
	runCtx, cancel := context.WithCancel(h.ctx)
	audio, err := r.capture.Start(runCtx, r.cfg.Audio)
	if err != nil {
		cancel()
		return fmt.Errorf("start microphone: %w", err)
	}

	streamCfg := r.cfg.Streaming
	streamCfg.Language = languageTag
	stream, err := r.provider.StartStreaming(runCtx, streamCfg)
	if err != nil {
		_ = audio.Stop()
		cancel()
		return fmt.Errorf("start transcription: %w", err)
	}

	current := &run{cancel: cancel, audio: audio, stream: stream}
	h.current = current
	h.wg.Add(1)
	go h.supervise(current)
	r.logger.Debug("run started", "language", languageTag)
	return nil
}

// Stop ends capture and lets the provider flush its final results before
// the end signal.
func (h *handle) Stop() {
	h.mu.Lock()
	current := h.current
	h.mu.Unlock()
	if current == nil {
		return
	}

	current.halted.Store(true)
	go func() {
		if err := current.audio.Stop(); err != nil {
			h.recognizer.logger.Debug("stop capture", "err", err)
		}
	}()
}

// Abort discards the current run without further signals.
func (h *handle) Abort() {
	h.mu.Lock()
	current := h.current
	h.current = nil
	h.mu.Unlock()
	if current == nil {
		return
	}

	current.aborted.Store(true)
	current.halted.Store(true)
	current.cancel()
}

func (h *handle) Signals() <-chan domain.RecognitionSignal {
	return h.signals
}

func (h *handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	h.Abort()
	close(h.quit)
	h.wg.Wait()
	close(h.signals)
	return nil
}

func (h *handle) supervise(r *run) {
	defer h.wg.Done()
	defer r.cancel()

	cfg := h.recognizer.cfg
	var captureErr error
	pumped := make(chan struct{})
	go func() {
		defer close(pumped)
		if err := pumpAudioChunks(r.audio, r.stream, cfg.ChunkSize); err != nil && !r.halted.Load() {
			captureErr = err
		}
		_ = r.stream.CloseSend()
		_ = waitForStream(r.stream, cfg.StopTimeout)
	}()

	var results resultList
	for event := range r.stream.Events() {
		if r.aborted.Load() {
			continue
		}
		h.emit(domain.RecognitionSignal{Kind: domain.SignalResult, Event: results.apply(event)})
	}
	streamErr := r.stream.Wait()

	r.halted.Store(true)
	if err := r.audio.Stop(); err != nil {
		h.recognizer.logger.Debug("stop capture", "err", err)
	}
	<-pumped

	h.mu.Lock()
	if h.current == r {
		h.current = nil
	}
	h.mu.Unlock()

	if r.aborted.Load() {
		return
	}
	switch {
	case streamErr != nil:
		h.emit(errorSignal(domain.RecognitionCodeNetwork, streamErr))
	case captureErr != nil && !errors.Is(captureErr, errSendFailed):
		h.emit(errorSignal(domain.RecognitionCodeAudioCapture, captureErr))
	}
	h.emit(domain.RecognitionSignal{Kind: domain.SignalEnd})
}

func (h *handle) emit(signal domain.RecognitionSignal) {
	select {
	case h.signals <- signal:
	case <-h.quit:
	}
}

func errorSignal(code string, err error) domain.RecognitionSignal {
	return domain.RecognitionSignal{Kind: domain.SignalError, Code: code, Message: err.Error()}
}
