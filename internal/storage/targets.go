package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryTargetRegistry keeps issued upload ids in process memory.
type MemoryTargetRegistry struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemoryTargetRegistry() *MemoryTargetRegistry {
	return &MemoryTargetRegistry{
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (m *MemoryTargetRegistry) Issue(_ context.Context, id string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, exp := range m.expires {
		if !now.Before(exp) {
			delete(m.expires, k)
		}
	}
	m.expires[id] = now.Add(ttl)
	return nil
}

func (m *MemoryTargetRegistry) Valid(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.expires[id]
	return ok && m.now().Before(exp), nil
}
