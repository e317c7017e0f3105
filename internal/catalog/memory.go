package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory is a process-local Catalog.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]Entry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) MarkStored(ctx context.Context, key string, size int64) error {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = Entry{
		Key:       key,
		Size:      size,
		Status:    StatusStored,
		StoredAt:  now,
		UpdatedAt: now,
	}
	return nil
}

func (m *Memory) MarkIndexed(ctx context.Context, key string) error {
	now := m.now()
	m.update(key, func(e *Entry) {
		e.Status = StatusIndexed
		e.Error = ""
		e.IndexedAt = &now
		e.UpdatedAt = now
	})
	return nil
}

func (m *Memory) MarkFailed(ctx context.Context, key string, cause error) error {
	now := m.now()
	m.update(key, func(e *Entry) {
		e.Status = StatusFailed
		e.Error = errorText(cause)
		e.UpdatedAt = now
	})
	return nil
}

func (m *Memory) update(key string, fn func(*Entry)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return
	}
	fn(&e)
	m.entries[key] = e
}

func (m *Memory) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) Get(ctx context.Context, key string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return &e, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
