package queue

import (
	"context"
	"sync"
)

// MemoryProvider records notices for inspection. It backs local development
// runs and tests.
type MemoryProvider struct {
	mu      sync.RWMutex
	notices []Notice
}

// NewMemory returns a memory provider.
func NewMemory() *MemoryProvider {
	return &MemoryProvider{}
}

// Publish records the notice.
func (m *MemoryProvider) Publish(_ context.Context, notice Notice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices = append(m.notices, notice)
	return nil
}

// Notices returns a copy of the recorded notices.
func (m *MemoryProvider) Notices() []Notice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Notice, len(m.notices))
	copy(out, m.notices)
	return out
}

// Close does nothing.
func (m *MemoryProvider) Close() error { return nil }
