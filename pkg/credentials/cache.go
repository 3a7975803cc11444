package credentials

import (
	"context"
	"sync"
	"time"
)

// CachedStore wraps a Store with a TTL cache of successful lookups, keeping
// repeat authentications off the database. Misses and errors are never
// cached, so a freshly provisioned key works on its next request. A key
// deactivated in the database may be honored for up to one TTL.
type CachedStore struct {
	inner Store
	ttl   time.Duration
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	cred      Credential
	expiresAt time.Time
}

// NewCachedStore wraps inner with a cache holding entries for ttl.
func NewCachedStore(inner Store, ttl time.Duration) *CachedStore {
	return &CachedStore{
		inner:   inner,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Lookup serves from cache when possible, falling through to the inner
// store otherwise.
func (s *CachedStore) Lookup(ctx context.Context, keyHash string) (*Credential, error) {
	s.mu.Lock()
	entry, ok := s.entries[keyHash]
	if ok && s.now().Before(entry.expiresAt) {
		cred := entry.cred
		s.mu.Unlock()
		return &cred, nil
	}
	if ok {
		delete(s.entries, keyHash)
	}
	s.mu.Unlock()

	cred, err := s.inner.Lookup(ctx, keyHash)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.entries[keyHash] = cacheEntry{cred: *cred, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return cred, nil
}

// Invalidate drops one cached entry, forcing the next lookup through to the
// inner store.
func (s *CachedStore) Invalidate(keyHash string) {
	s.mu.Lock()
	delete(s.entries, keyHash)
	s.mu.Unlock()
}
