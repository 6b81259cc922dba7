package cache

import (
	"chat-relay/errors"
	"context"
	"sync"
	"time"
)

// ExpiryStore is an in-process Store that never evicts a live entry. When
// every slot holds a live entry, writes fail with errors.ErrCacheFull, so a
// nonce ledger built on it fails closed instead of forgetting nonces.
type ExpiryStore struct {
	mu       sync.Mutex
	entries  map[string]memoryEntry
	capacity int
	now      func() time.Time
}

func NewExpiryStore(capacity int) *ExpiryStore {
	if capacity <= 0 {
		capacity = 100_000
	}
	return &ExpiryStore{entries: make(map[string]memoryEntry), capacity: capacity, now: time.Now}
}

// WithClock replaces the time source, for tests.
func (s *ExpiryStore) WithClock(now func() time.Time) *ExpiryStore {
	s.now = now
	return s
}

func (s *ExpiryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, errors.ErrCacheMiss
	}
	if e.expired(s.now()) {
		delete(s.entries, key)
		return nil, errors.ErrCacheMiss
	}
	return e.value, nil
}

func (s *ExpiryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; !ok {
		if err := s.reserve(); err != nil {
			return err
		}
	}
	s.entries[key] = s.entry(value, ttl)
	return nil
}

func (s *ExpiryStore) SetIfAbsent(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if ok && !e.expired(s.now()) {
		return false, nil
	}
	if !ok {
		if err := s.reserve(); err != nil {
			return false, err
		}
	}
	s.entries[key] = s.entry(value, ttl)
	return true, nil
}

func (s *ExpiryStore) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *ExpiryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// reserve makes room for one more key by purging expired entries.
func (s *ExpiryStore) reserve() error {
	if len(s.entries) < s.capacity {
		return nil
	}
	now := s.now()
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
		}
	}
	if len(s.entries) >= s.capacity {
		return errors.ErrCacheFull
	}
	return nil
}

func (s *ExpiryStore) entry(value []byte, ttl time.Duration) memoryEntry {
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	return e
}
