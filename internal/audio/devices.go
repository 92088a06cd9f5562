package audio

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/nishant160406/soft-skill-ai-coach/internal/ports"
)

// Devices implements ports.MediaDevices with one ffmpeg process per stream.
type Devices struct {
	capture *FFMPEGCapture
	cfg     ports.AudioConfig
	logger  *log.Logger
}

func NewDevices(capture *FFMPEGCapture, cfg ports.AudioConfig, logger *log.Logger) *Devices {
	if logger == nil {
		logger = log.Default()
	}
	return &Devices{capture: capture, cfg: normalizeAudioConfig(cfg), logger: logger.WithPrefix("devices")}
}

func (d *Devices) GetUserMedia(ctx context.Context, constraints ports.CaptureConstraints) (ports.MediaStream, error) {
	cfg := d.cfg
	cfg.Filters = append(slices.Clone(cfg.Filters), ConstraintFilters(constraints)...)

	session, err := d.capture.Start(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Stream{session: session, channels: cfg.Channels}, nil
}

func (d *Devices) NewAnalyser(stream ports.MediaStream, fftSize int) (ports.Analyser, error) {
	s, ok := stream.(*Stream)
	if !ok {
		return nil, errors.New("stream was not acquired from these devices")
	}
	if !s.claimReader() {
		return nil, errors.New("stream already has an analyser")
	}
	analyser, err := NewAnalyser(s.session, s.channels, fftSize)
	if err != nil {
		return nil, fmt.Errorf("create analyser: %w", err)
	}
	return analyser, nil
}

// Stream is a live ffmpeg microphone capture exposed as a single track.
type Stream struct {
	session  ports.AudioSession
	channels int
	claimed  bool
}

func (s *Stream) Tracks() []ports.MediaTrack {
	return []ports.MediaTrack{track{session: s.session}}
}

func (s *Stream) claimReader() bool {
	if s.claimed {
		return false
	}
	s.claimed = true
	return true
}

type track struct {
	session ports.AudioSession
}

func (t track) Stop() error {
	return t.session.Stop()
}
