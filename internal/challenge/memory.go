package challenge

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	nonce     []byte
	expiresAt time.Time
}

// Memory is a process-local Store. All operations take a single mutex, so a consume is
// one atomic read-delete-compare step.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory creates an in-memory store. When sweepEvery is positive a background goroutine
// evicts expired entries at that interval until Close is called.
func NewMemory(sweepEvery time.Duration, opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	if sweepEvery > 0 {
		go m.janitor(sweepEvery)
	}
	return m
}

// Put stores a copy of nonce. Last writer wins.
func (m *Memory) Put(_ context.Context, username string, nonce []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[username] = entry{
		nonce:     append([]byte(nil), nonce...),
		expiresAt: m.now().Add(ttl),
	}
	return nil
}

// ConsumeIfMatches implements Store.
func (m *Memory) ConsumeIfMatches(_ context.Context, username string, supplied []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[username]
	if !ok {
		return false, nil
	}
	delete(m.entries, username)
	if !m.now().Before(e.expiresAt) {
		return false, nil
	}
	return matches(e.nonce, supplied), nil
}

// Forget implements Store.
func (m *Memory) Forget(_ context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, username)
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) janitor(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.done:
			return
		}
	}
}

// sweep removes expired entries.
func (m *Memory) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
		}
	}
}

// Close stops the janitor. It is safe to call multiple times.
func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		close(m.done)
		m.closed = true
	}
}
