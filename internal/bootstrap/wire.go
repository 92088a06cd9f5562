package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nishant160406/soft-skill-ai-coach/internal/audio"
	"github.com/nishant160406/soft-skill-ai-coach/internal/bus"
	"github.com/nishant160406/soft-skill-ai-coach/internal/coachapi"
	"github.com/nishant160406/soft-skill-ai-coach/internal/config"
	"github.com/nishant160406/soft-skill-ai-coach/internal/ports"
	"github.com/nishant160406/soft-skill-ai-coach/internal/practice"
	"github.com/nishant160406/soft-skill-ai-coach/internal/providers/deepgram"
	"github.com/nishant160406/soft-skill-ai-coach/internal/rules"
	"github.com/nishant160406/soft-skill-ai-coach/internal/store"
	"github.com/nishant160406/soft-skill-ai-coach/internal/telemetry"
	"github.com/nishant160406/soft-skill-ai-coach/internal/usecase"
)

const serviceName = "soft-skill-coach"

// Services is the assembled runtime graph.
type Services struct {
	Config     config.Config
	Controller *usecase.SessionController
	Practice   *practice.Service
	Questions  *practice.QuestionBank
	Coach      *coachapi.Client
	Player     *audio.Player
	Store      store.Store
	Telemetry  *telemetry.Telemetry

	closers []func(context.Context) error
}

// Build wires all backend dependencies for cfg.
func Build(ctx context.Context, cfg config.Config, logger *log.Logger) (*Services, error) {
	if logger == nil {
		logger = log.Default()
	}
	s := &Services{Config: cfg}

	tel, err := telemetry.Setup(cfg.Telemetry.Metrics, serviceName, logger)
	if err != nil {
		return nil, fmt.Errorf("setup telemetry: %w", err)
	}
	s.Telemetry = tel
	s.closers = append(s.closers, tel.Shutdown)

	normalizer, err := rules.Load(cfg.Rules.Path, cfg.Rules.IterationLimit, nil, logger)
	if err != nil {
		s.Close(ctx)
		return nil, err
	}

	questions, err := practice.LoadQuestions(cfg.Questions.Path, uint64(time.Now().UnixNano()))
	if err != nil {
		s.Close(ctx)
		return nil, err
	}
	s.Questions = questions

	st, err := store.Open(ctx, store.Config{Driver: cfg.Store.Driver, DSN: cfg.Store.DSN, TTL: cfg.Store.TTL}, logger)
	if err != nil {
		s.Close(ctx)
		return nil, fmt.Errorf("open store: %w", err)
	}
	s.Store = st
	s.closers = append(s.closers, func(context.Context) error { return st.Close() })

	s.Coach = coachapi.New(coachapi.Config{
		BaseURL:  cfg.Coach.BaseURL,
		Timeout:  cfg.Coach.Timeout,
		CacheDir: cfg.Coach.AudioCacheDir,
	}, logger)
	s.Player = audio.NewPlayer(cfg.Coach.Player, logger)

	s.Practice = practice.NewService(practice.Deps{
		Store:     st,
		Evaluator: s.Coach,
		Rules:     normalizer,
		Fillers:   rules.NewFillerCounter(nil),
		Publisher: s.publisher(cfg.Bus, logger),
	}, logger)

	s.Controller = buildController(cfg, logger)
	return s, nil
}

func (s *Services) publisher(cfg config.BusConfig, logger *log.Logger) ports.ResultPublisher {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.URL == "" {
		return bus.Discard{}
	}
	publisher, err := bus.Connect(bus.Config{URL: cfg.URL, Subject: cfg.Subject}, logger)
	if err != nil {
		logger.Warn("result bus unavailable, results will not be published", "err", err)
		return bus.Discard{}
	}
	s.closers = append(s.closers, func(context.Context) error {
		publisher.Close()
		return nil
	})
	return publisher
}

func buildController(cfg config.Config, logger *log.Logger) *usecase.SessionController {
	capture := audio.NewFFMPEGCapture(cfg.Audio.Command, logger)
	audioCfg := ports.AudioConfig{
		SampleRate:  cfg.Audio.SampleRate,
		Channels:    cfg.Audio.Channels,
		InputFormat: cfg.Audio.InputFormat,
		InputDevice: cfg.Audio.InputDevice,
	}

	provider := deepgram.NewProvider(deepgram.Config{
		APIKey:      cfg.Deepgram.APIKey,
		APIBaseURL:  cfg.Deepgram.APIBaseURL,
		Model:       cfg.Deepgram.Model,
		Language:    cfg.Deepgram.Language,
		SmartFormat: cfg.Deepgram.SmartFormat,
	}, logger)

	recognizer := deepgram.NewRecognizer(provider, capture, deepgram.RecognizerConfig{
		Audio: audioCfg,
		Streaming: ports.StreamingConfig{
			Encoding: "linear16",
		},
		ChunkSize:   cfg.Session.ChunkSize,
		StopTimeout: cfg.Session.StopTimeout,
	}, logger)

	return usecase.NewSessionController(
		recognizer,
		audio.NewDevices(capture, audioCfg, logger),
		audio.NewDisplayClock(cfg.Session.RefreshRate),
		usecase.Config{
			Language: cfg.Session.Language,
			Recognition: usecase.RecognitionConfig{
				StartRetryDelay:   cfg.Session.StartRetryDelay,
				RestartRetryDelay: cfg.Session.RestartRetryDelay,
				MaxQuietRestarts:  cfg.Session.MaxQuietRestarts,
			},
			Volume: usecase.VolumeConfig{
				Constraints: ports.CaptureConstraints{
					EchoCancellation: cfg.Audio.EchoCancellation,
					NoiseSuppression: cfg.Audio.NoiseSuppression,
					AutoGainControl:  cfg.Audio.AutoGainControl,
				},
				FFTSize:        cfg.Session.FFTSize,
				SampleInterval: cfg.Session.SampleInterval,
			},
		},
		logger,
	)
}

// Close stops any recording and releases every opened resource in reverse order.
func (s *Services) Close(ctx context.Context) error {
	if s.Controller != nil {
		s.Controller.Stop()
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
