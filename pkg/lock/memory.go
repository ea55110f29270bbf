package lock

import (
	"context"
	"sync"
	"time"
)

type lease struct {
	token     string
	expiresAt time.Time
}

// MemoryLocker implements Locker in process memory with the same lease
// semantics as the redis implementation. Used by tests and the local
// simulation, where visibility across processes is not needed.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
}

// NewMemoryLocker creates an empty in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		leases: make(map[string]lease),
		now:    time.Now,
	}
}

// Lock acquires the key unless a live lease already holds it. Expired
// leases are treated as released.
func (m *MemoryLocker) Lock(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.leases[key]; ok && m.now().Before(l.expiresAt) {
		return false, nil
	}
	m.leases[key] = lease{token: token, expiresAt: m.now().Add(ttl)}
	return true, nil
}

// Unlock releases the key only when the live lease carries the caller's
// token.
func (m *MemoryLocker) Unlock(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.leases[key]; ok && l.token == token {
		delete(m.leases, key)
	}
	return nil
}
