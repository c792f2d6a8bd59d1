package revocation

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store for local mode and tests.
type MemoryStore struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{expires: make(map[string]time.Time), now: time.Now}
}

// WithClock replaces the time source.
func (s *MemoryStore) WithClock(fn func() time.Time) *MemoryStore {
	s.mu.Lock()
	s.now = fn
	s.mu.Unlock()
	return s
}

func (s *MemoryStore) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	s.mu.Lock()
	s.expires[key(jti)] = s.now().Add(ttl)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(jti)
	exp, ok := s.expires[k]
	if !ok {
		return false, nil
	}
	if !s.now().Before(exp) {
		delete(s.expires, k)
		return false, nil
	}
	return true, nil
}

// Purge drops expired entries and returns how many were removed.
func (s *MemoryStore) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for k, exp := range s.expires {
		if !now.Before(exp) {
			delete(s.expires, k)
			n++
		}
	}
	return n
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expires)
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
