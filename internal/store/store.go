package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nishant160406/soft-skill-ai-coach/internal/ports"
)

var ErrEmptyScope = errors.New("store scope is required")

type Config struct {
	Driver string
	DSN    string
	// TTL bounds how long an untouched scope survives. Zero keeps values
	// until they are deleted.
	TTL time.Duration
}

// Store is a per-tab key/value store that forgets idle scopes.
type Store interface {
	ports.SessionStore
	// Prune removes values not written within the TTL and reports how many were dropped.
	Prune(ctx context.Context) (int, error)
	Close() error
}

// Open returns the store selected by cfg.Driver.
func Open(ctx context.Context, cfg Config, logger *log.Logger) (Store, error) {
	if logger == nil {
		logger = log.Default()
	}
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(cfg.TTL), nil
	case "sqlite":
		return OpenSQLite(ctx, cfg.DSN, cfg.TTL, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// RunPruner prunes s every interval until ctx is done.
func RunPruner(ctx context.Context, s Store, interval time.Duration, logger *log.Logger) {
	if logger == nil {
		logger = log.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.Prune(ctx)
			if err != nil {
				logger.Warn("store prune failed", "err", err)
				continue
			}
			if removed > 0 {
				logger.Debug("store pruned", "removed", removed)
			}
		}
	}
}

func expired(updated time.Time, now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(updated) > ttl
}
