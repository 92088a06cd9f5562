package store

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value   string
	updated time.Time
}

// Memory keeps values in process memory.
type Memory struct {
	mu     sync.Mutex
	ttl    time.Duration
	clock  func() time.Time
	scopes map[string]map[string]entry
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:    ttl,
		clock:  time.Now,
		scopes: make(map[string]map[string]entry),
	}
}

func (m *Memory) Get(_ context.Context, scope string, key string) (string, bool, error) {
	if scope == "" {
		return "", false, ErrEmptyScope
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.scopes[scope][key]
	if !ok || expired(e.updated, m.clock(), m.ttl) {
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(_ context.Context, scope string, key string, value string) error {
	if scope == "" {
		return ErrEmptyScope
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	values, ok := m.scopes[scope]
	if !ok {
		values = make(map[string]entry)
		m.scopes[scope] = values
	}
	values[key] = entry{value: value, updated: m.clock()}
	return nil
}

// Delete removes keys from scope, or the whole scope when no keys are given.
func (m *Memory) Delete(_ context.Context, scope string, keys ...string) error {
	if scope == "" {
		return ErrEmptyScope
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(keys) == 0 {
		delete(m.scopes, scope)
		return nil
	}
	values := m.scopes[scope]
	for _, key := range keys {
		delete(values, key)
	}
	if len(values) == 0 {
		delete(m.scopes, scope)
	}
	return nil
}

func (m *Memory) Prune(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	removed := 0
	for scope, values := range m.scopes {
		for key, e := range values {
			if expired(e.updated, now, m.ttl) {
				delete(values, key)
				removed++
			}
		}
		if len(values) == 0 {
			delete(m.scopes, scope)
		}
	}
	return removed, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scopes = make(map[string]map[string]entry)
	return nil
}
