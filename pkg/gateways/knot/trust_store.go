package knot

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cesar-iot/knot-gateway/pkg/entities"
)

// Handle is an opaque connection identifier. The core never interprets
// it beyond using it as a map key.
type Handle int64

// TrustStore maps connection handles to per-device session state. A
// trust exists in the store iff its connection is authenticated
// (registered or signed in). Safe for concurrent use across
// connections; a single connection's own traffic is still expected to
// be processed serially by its caller.
type TrustStore struct {
	mu      sync.Mutex
	entries map[Handle]*entities.Trust
}

// NewTrustStore returns an empty store.
func NewTrustStore() *TrustStore {
	return &TrustStore{entries: make(map[Handle]*entities.Trust)}
}

// Insert binds h to t. It fails if h is already present.
func (s *TrustStore) Insert(h Handle, t *entities.Trust) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[h]; exists {
		return fmt.Errorf("knot: trust store: handle %d already bound", h)
	}
	t.Refs = 1
	s.entries[h] = t
	return nil
}

// Lookup returns a borrowed trust for h, or nil. The returned pointer
// must not be retained across a suspending cloud call; use Acquire for
// that instead.
func (s *TrustStore) Lookup(h Handle) *entities.Trust {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[h]
}

// Acquire returns a refcounted borrow of the trust for h, to hold across
// a suspending cloud call. Every Acquire must be matched by a Release.
// Remove and DestroyAll do not consult the count: a trust removed while
// borrowed stays valid for its holder because it is garbage collected.
func (s *TrustStore) Acquire(h Handle) *entities.Trust {
	s.mu.Lock()
	t, ok := s.entries[h]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	atomic.AddInt32(&t.Refs, 1)
	return t
}

// Release balances a prior Acquire.
func (s *TrustStore) Release(h Handle) {
	s.mu.Lock()
	t, ok := s.entries[h]
	s.mu.Unlock()
	if !ok {
		return
	}
	atomic.AddInt32(&t.Refs, -1)
}

// Remove unbinds h and returns the owned trust, or nil if absent. The
// caller is responsible for any cloud-side release (e.g. rollback).
func (s *TrustStore) Remove(h Handle) *entities.Trust {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.entries[h]
	if !ok {
		return nil
	}
	delete(s.entries, h)
	return t
}

// DestroyAll tears the store down: every entry is removed and handed
// to release, which must perform any cloud-side cleanup (honoring
// rollback) before returning. Used on transport shutdown.
func (s *TrustStore) DestroyAll(release func(Handle, *entities.Trust)) {
	s.mu.Lock()
	entries := s.entries
	s.entries = make(map[Handle]*entities.Trust)
	s.mu.Unlock()

	for h, t := range entries {
		release(h, t)
	}
}
