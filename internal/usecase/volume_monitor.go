package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nishant160406/soft-skill-ai-coach/internal/domain"
	"github.com/nishant160406/soft-skill-ai-coach/internal/ports"
)

// VolumeConfig controls microphone level sampling.
type VolumeConfig struct {
	Constraints    ports.CaptureConstraints
	FFTSize        int
	SampleInterval time.Duration
}

func (c VolumeConfig) withDefaults() VolumeConfig {
	if c.FFTSize <= 0 {
		c.FFTSize = 256
	}
	if c.SampleInterval <= 0 {
		c.SampleInterval = 33 * time.Millisecond
	}
	return c
}

// VolumeMonitor samples a live microphone stream for a level indicator.
type VolumeMonitor struct {
	devices ports.MediaDevices
	clock   ports.FrameClock
	cfg     VolumeConfig
	onLevel func(level float64)
	logger  *log.Logger

	mu       sync.Mutex
	stopped  bool
	stream   ports.MediaStream
	analyser ports.Analyser
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewVolumeMonitor(
	devices ports.MediaDevices,
	clock ports.FrameClock,
	cfg VolumeConfig,
	onLevel func(level float64),
	logger *log.Logger,
) *VolumeMonitor {
	if logger == nil {
		logger = log.Default()
	}
	if onLevel == nil {
		onLevel = func(float64) {}
	}
	return &VolumeMonitor{
		devices: devices,
		clock:   clock,
		cfg:     cfg.withDefaults(),
		onLevel: onLevel,
		logger:  logger.WithPrefix("volume"),
	}
}

// Start acquires the microphone stream and begins sampling. A stream that
// arrives after Stop is released immediately.
func (m *VolumeMonitor) Start(ctx context.Context) error {
	if m.devices == nil {
		return domain.ErrMicrophoneUnavailable
	}

	stream, err := m.devices.GetUserMedia(ctx, m.cfg.Constraints)
	if err != nil {
		if errors.Is(err, domain.ErrPermissionDenied) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrMicrophoneUnavailable, err)
	}

	if m.isStopped() {
		m.logger.Debug("releasing stream acquired after stop")
		_ = releaseTracks(stream)
		return domain.ErrSessionCancelled
	}

	analyser, err := m.devices.NewAnalyser(stream, m.cfg.FFTSize)
	if err != nil {
		_ = releaseTracks(stream)
		return fmt.Errorf("%w: analyser: %v", domain.ErrMicrophoneUnavailable, err)
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		_ = analyser.Close()
		_ = releaseTracks(stream)
		return domain.ErrSessionCancelled
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	m.stream = stream
	m.analyser = analyser
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go m.sample(loopCtx, analyser, done)
	return nil
}

// Stop cancels sampling, closes the analyser and stops every track. Each step
// runs even when an earlier one fails. It is idempotent.
func (m *VolumeMonitor) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	stream, analyser, cancel, done := m.stream, m.analyser, m.cancel, m.done
	m.stream, m.analyser = nil, nil
	m.mu.Unlock()

	var errs []error
	if cancel != nil {
		cancel()
		<-done
	}
	if analyser != nil {
		if err := analyser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close analyser: %w", err))
		}
	}
	if stream != nil {
		if err := releaseTracks(stream); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		m.logger.Debug("volume monitor cleanup", "err", err)
	}
}

func (m *VolumeMonitor) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func (m *VolumeMonitor) sample(ctx context.Context, analyser ports.Analyser, done chan struct{}) {
	defer close(done)

	bins := make([]byte, analyser.FrequencyBinCount())
	frames := m.clock.Frames(ctx)
	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case now, ok := <-frames:
			if !ok {
				return
			}
			if !last.IsZero() && now.Sub(last) < m.cfg.SampleInterval {
				continue
			}
			last = now
			analyser.ByteFrequencyData(bins)
			m.onLevel(Level(bins))
		}
	}
}

// Level is the mean frequency-bin magnitude normalized to roughly 0..2.
func Level(bins []byte) float64 {
	if len(bins) == 0 {
		return 0
	}
	var sum int
	for _, b := range bins {
		sum += int(b)
	}
	return float64(sum) / float64(len(bins)) / 128
}

func releaseTracks(stream ports.MediaStream) error {
	var errs []error
	for _, track := range stream.Tracks() {
		if err := track.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop track: %w", err))
		}
	}
	return errors.Join(errs...)
}
