package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nishant160406/soft-skill-ai-coach/internal/bus"
	"github.com/nishant160406/soft-skill-ai-coach/internal/config"
	"github.com/nishant160406/soft-skill-ai-coach/internal/domain"
)

func loadConfig(t *testing.T) config.Config {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DEEPGRAM_API_KEY", "")
	t.Setenv("COACH_TELEMETRY_METRICS", "false")
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Coach.AudioCacheDir = t.TempDir()
	return cfg
}

func TestBuildSuccess(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Audio.Command = "definitely-not-ffmpeg"

	services, err := Build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer services.Close(context.Background())

	if services.Controller == nil || services.Practice == nil || services.Questions == nil || services.Coach == nil {
		t.Fatalf("expected fully wired services: %+v", services)
	}
	if services.Controller.Supported() {
		t.Fatalf("expected recognition to be unsupported without an api key or capture command")
	}
	if services.Controller.Start(context.Background(), "en-US") {
		t.Fatalf("expected start to be refused when unsupported")
	}
	if snap := services.Controller.Snapshot(); snap.Status != domain.StatusIdle {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if len(services.Questions.All()) != 5 {
		t.Fatalf("expected default questions")
	}
}

func TestBuildWithSQLiteStore(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Store.Driver = "sqlite"
	cfg.Store.DSN = filepath.Join(t.TempDir(), "coach.db")

	services, err := Build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if err := services.Store.Set(context.Background(), "tab", "k", "v"); err != nil {
		t.Fatalf("store set failed: %v", err)
	}
	if err := services.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func TestBuildFailsOnInvalidRules(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Rules.Path = filepath.Join(t.TempDir(), "bad.rules")
	if err := os.WriteFile(cfg.Rules.Path, []byte("not a valid rule\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if _, err := Build(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected build error due to invalid rules")
	}
}

func TestPublisherFallsBackWhenBusUnreachable(t *testing.T) {
	cfg := loadConfig(t)
	s := &Services{}
	got := s.publisher(config.BusConfig{URL: "nats://127.0.0.1:1", Subject: "coach.results"}, nil)
	if _, ok := got.(bus.Discard); !ok {
		t.Fatalf("expected discard publisher, got %T", got)
	}
	if _, ok := s.publisher(cfg.Bus, nil).(bus.Discard); !ok {
		t.Fatalf("expected discard publisher without a url")
	}
}
