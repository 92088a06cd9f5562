package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"
)

// SQLite keeps values in a sqlite database so several processes on one
// machine can share a tab's practice state.
type SQLite struct {
	db     *sql.DB
	ttl    time.Duration
	clock  func() time.Time
	logger *log.Logger
}

func OpenSQLite(ctx context.Context, path string, ttl time.Duration, logger *log.Logger) (*SQLite, error) {
	if logger == nil {
		logger = log.Default()
	}
	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLite{db: db, ttl: ttl, clock: time.Now, logger: logger.WithPrefix("store")}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if removed, err := s.Prune(ctx); err != nil {
		s.logger.Warn("store prune on start failed", "err", err)
	} else if removed > 0 {
		s.logger.Info("store pruned on start", "removed", removed)
	}
	return s, nil
}

func sqliteDSN(path string) (string, error) {
	path = strings.TrimSpace(path)
	switch {
	case path == "":
		return "", fmt.Errorf("sqlite store requires a path")
	case path == ":memory:" || strings.HasPrefix(path, "file:"):
		return path, nil
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create data dir: %w", err)
		}
	}
	return fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path), nil
}

func (s *SQLite) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS session_values (
    scope TEXT NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (scope, key)
);
CREATE INDEX IF NOT EXISTS idx_session_values_updated ON session_values(updated_at);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, scope string, key string) (string, bool, error) {
	if scope == "" {
		return "", false, ErrEmptyScope
	}
	var value string
	var updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value, updated_at FROM session_values WHERE scope = ? AND key = ?`,
		scope, key).Scan(&value, &updated)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s/%s: %w", scope, key, err)
	}
	if expired(time.Unix(0, updated), s.clock(), s.ttl) {
		return "", false, nil
	}
	return value, true, nil
}

func (s *SQLite) Set(ctx context.Context, scope string, key string, value string) error {
	if scope == "" {
		return ErrEmptyScope
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_values(scope, key, value, updated_at)
		 VALUES(?, ?, ?, ?)
		 ON CONFLICT(scope, key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		scope, key, value, s.clock().UnixNano())
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", scope, key, err)
	}
	return nil
}

// Delete removes keys from scope, or the whole scope when no keys are given.
func (s *SQLite) Delete(ctx context.Context, scope string, keys ...string) error {
	if scope == "" {
		return ErrEmptyScope
	}
	if len(keys) == 0 {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM session_values WHERE scope = ?`, scope); err != nil {
			return fmt.Errorf("delete scope %s: %w", scope, err)
		}
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM session_values WHERE scope = ? AND key = ?`, scope, key); err != nil {
			tx.Rollback()
			return fmt.Errorf("delete %s/%s: %w", scope, key, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) Prune(ctx context.Context) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	cutoff := s.clock().Add(-s.ttl).UnixNano()
	res, err := s.db.ExecContext(ctx, `DELETE FROM session_values WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(removed), nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
