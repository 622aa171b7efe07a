package memory

import (
	"context"
	"sync"
	"time"

	"github.com/EcoEarn/ecoearn-interface-sub000/pkg/kv"
)

// Store is an in-memory implementation of the kv.Store interface
type Store struct {
	mu          sync.RWMutex
	values      map[string][]byte
	expirations map[string]time.Time
	now         func() time.Time

	janitorInterval time.Duration
	janitorStop     chan struct{}
	janitorDone     chan struct{}
	closeOnce       sync.Once
}

// New creates a new in-memory store with optional janitor for TTL cleanup
func New(janitorInterval time.Duration) *Store {
	s := &Store{
		values:          make(map[string][]byte),
		expirations:     make(map[string]time.Time),
		now:             time.Now,
		janitorInterval: janitorInterval,
		janitorStop:     make(chan struct{}),
		janitorDone:     make(chan struct{}),
	}

	if janitorInterval > 0 {
		go s.janitor()
	} else {
		close(s.janitorDone)
	}

	return s
}

func (s *Store) janitor() {
	defer close(s.janitorDone)
	ticker := time.NewTicker(s.janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictExpired()
		case <-s.janitorStop:
			return
		}
	}
}

func (s *Store) evictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, expiry := range s.expirations {
		if now.After(expiry) {
			delete(s.values, key)
			delete(s.expirations, key)
		}
	}
}

// live reports whether key holds an unexpired value (must hold read lock)
func (s *Store) live(key string) bool {
	if _, ok := s.values[key]; !ok {
		return false
	}
	if expiry, ok := s.expirations[key]; ok && s.now().After(expiry) {
		return false
	}
	return true
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl ...time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, len(value))
	copy(buf, value)
	s.values[key] = buf

	if len(ttl) > 0 && ttl[0] > 0 {
		s.expirations[key] = s.now().Add(ttl[0])
	} else {
		delete(s.expirations, key)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.live(key) {
		return nil, kv.ErrNotFound
	}
	value := s.values[key]
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *Store) Del(ctx context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for _, key := range keys {
		if s.live(key) {
			deleted++
		}
		delete(s.values, key)
		delete(s.expirations, key)
	}
	return deleted, nil
}

func (s *Store) Exists(ctx context.Context, keys ...string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, key := range keys {
		if s.live(key) {
			n++
		}
	}
	return n, nil
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.live(key) {
		delete(s.values, key)
		delete(s.expirations, key)
		return false, nil
	}
	if ttl <= 0 {
		delete(s.values, key)
		delete(s.expirations, key)
		return true, nil
	}
	s.expirations[key] = s.now().Add(ttl)
	return true, nil
}

// TTL mirrors Redis: -1 for a key without expiry, ErrNotFound for a missing key.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.live(key) {
		return 0, kv.ErrNotFound
	}
	expiry, ok := s.expirations[key]
	if !ok {
		return -1, nil
	}
	return expiry.Sub(s.now()), nil
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close stops the janitor. The store stays readable.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.janitorStop)
		<-s.janitorDone
	})
	return nil
}
