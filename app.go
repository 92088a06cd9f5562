package main

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/nishant160406/soft-skill-ai-coach/internal/bootstrap"
	"github.com/nishant160406/soft-skill-ai-coach/internal/config"
	"github.com/nishant160406/soft-skill-ai-coach/internal/domain"
)

const (
	eventStatus    = "coach:status"
	eventCommitted = "coach:committed"
	eventInterim   = "coach:interim"
	eventVolume    = "coach:volume"
	eventError     = "coach:error"
	eventFinished  = "coach:finished"
)

const uiEventBuffer = 256

var errNotReady = errors.New("application is not initialized")

type uiEvent struct {
	name string
	data any
}

// App is the Wails application root.
type App struct {
	ctx    context.Context
	logger *log.Logger

	services *bootstrap.Services
	scope    string
	bootErr  error

	events chan uiEvent
	emit   func(ctx context.Context, name string, data ...interface{})
}

func NewApp() *App {
	return &App{
		logger: log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "app"}),
		scope:  uuid.NewString(),
		events: make(chan uiEvent, uiEventBuffer),
		emit:   runtime.EventsEmit,
	}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	go a.pump(ctx)

	cfg, err := config.Load(os.Getenv("COACH_CONFIG"))
	if err != nil {
		a.fail(err)
		return
	}
	if level, err := log.ParseLevel(cfg.Log.Level); err == nil {
		a.logger.SetLevel(level)
	}

	services, err := bootstrap.Build(ctx, cfg, a.logger)
	if err != nil {
		a.fail(err)
		return
	}
	a.services = services
	services.Controller.SetListener(a)
	a.StatusChanged(domain.StatusIdle)
}

func (a *App) shutdown(ctx context.Context) {
	if a.services == nil {
		return
	}
	if err := a.services.Close(ctx); err != nil {
		a.logger.Warn("shutdown incomplete", "err", err)
	}
}

func (a *App) fail(err error) {
	a.bootErr = err
	a.logger.Error("startup failed", "err", err)
	a.ErrorRaised(domain.SessionError{Code: domain.ErrorCodeStartup, Message: err.Error()})
}

// Start begins recording in language, falling back to the configured language.
func (a *App) Start(language string) (domain.Snapshot, error) {
	if err := a.requireReady(); err != nil {
		return domain.Snapshot{}, err
	}
	if language = strings.TrimSpace(language); language == "" {
		language = a.services.Config.Session.Language
	}
	a.services.Controller.Start(context.WithoutCancel(a.ctx), language)
	return a.services.Controller.Snapshot(), nil
}

// Stop ends recording and returns the committed transcript.
func (a *App) Stop() (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}
	return a.services.Controller.Stop(), nil
}

// Clear empties the transcript. It reports false while recording.
func (a *App) Clear() (bool, error) {
	if err := a.requireReady(); err != nil {
		return false, err
	}
	return a.services.Controller.Clear(), nil
}

// Status returns the current session snapshot.
func (a *App) Status() domain.Snapshot {
	if err := a.requireReady(); err != nil {
		snap := domain.Snapshot{Status: domain.StatusIdle}
		if a.bootErr != nil {
			snap.LastError = &domain.SessionError{Code: domain.ErrorCodeStartup, Message: a.bootErr.Error()}
		}
		return snap
	}
	return a.services.Controller.Snapshot()
}

// Question returns a random practice question.
func (a *App) Question() (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}
	return a.services.Questions.Random(), nil
}

// Submit scores answer against question and records it for this window.
func (a *App) Submit(question string, answer string) (domain.QuestionResult, error) {
	if err := a.requireReady(); err != nil {
		return domain.QuestionResult{}, err
	}
	return a.services.Practice.Submit(a.ctx, a.scope, question, answer)
}

// Report summarises the answers submitted from this window.
func (a *App) Report() (domain.Report, error) {
	if err := a.requireReady(); err != nil {
		return domain.Report{}, err
	}
	return a.services.Practice.Report(a.ctx, a.scope)
}

// Reset forgets the answers submitted from this window.
func (a *App) Reset() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Practice.Reset(a.ctx, a.scope)
}

// Speak synthesizes text and plays it locally.
func (a *App) Speak(text string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	path, err := a.services.Coach.Synthesize(a.ctx, text)
	if err != nil {
		return err
	}
	return a.services.Player.Play(a.ctx, path)
}

// RuntimeInfo returns non-sensitive config for the UI.
func (a *App) RuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	if a.services == nil {
		return map[string]string{}
	}
	cfg := a.services.Config
	return map[string]string{
		"provider":   "Deepgram",
		"model":      cfg.Deepgram.Model,
		"language":   cfg.Session.Language,
		"coach":      cfg.Coach.BaseURL,
		"rulesFile":  cfg.Rules.Path,
		"audioInput": cfg.Audio.InputDevice,
		"store":      cfg.Store.Driver,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services == nil {
		return errNotReady
	}
	return nil
}

func (a *App) StatusChanged(status domain.SessionStatus) {
	a.queue(eventStatus, map[string]string{"status": string(status)})
}

func (a *App) CommittedTextChanged(text string) {
	a.queue(eventCommitted, map[string]string{"text": text})
}

func (a *App) InterimTextChanged(text string) {
	a.queue(eventInterim, map[string]string{"text": text})
}

func (a *App) VolumeChanged(level float64) {
	a.queue(eventVolume, map[string]float64{"level": level})
}

func (a *App) ErrorRaised(err domain.SessionError) {
	a.queue(eventError, err)
}

func (a *App) SessionFinished(text string) {
	a.queue(eventFinished, map[string]string{"text": text})
}

// queue hands an event to the emitter goroutine without blocking the session
// controller. Volume samples are dropped quietly when the frontend falls
// behind; anything else that does not fit is dropped with a warning.
func (a *App) queue(name string, data any) {
	select {
	case a.events <- uiEvent{name: name, data: data}:
	default:
		if name != eventVolume {
			a.logger.Warn("frontend event dropped", "event", name)
		}
	}
}

func (a *App) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-a.events:
			a.emit(ctx, ev.name, ev.data)
		}
	}
}
