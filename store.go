// ABOUTME: Opt-in single-use in-memory store for pending ceremony bundles
// ABOUTME: Take removes atomically so a bundle can be consumed at most once

package u2f

import (
	"sync"
	"time"
)

// pendingEntry holds one stored bundle. Exactly one of register or sign
// is non-nil.
type pendingEntry struct {
	register  *RegisterRequestData
	sign      *SignRequestData
	expiresAt time.Time
}

// PendingStore is an in-memory, TTL-bounded store for pending ceremony
// bundles, keyed by RequestID. Take* removes the bundle while returning
// it, which makes single consumption structural: a replayed finish
// attempt finds nothing. Use is optional — callers with their own
// session layer can store bundles there instead, as long as they delete
// after first use. Safe for concurrent use. Not suitable for
// multi-process deployments; back the bundles into shared session
// storage for those.
type PendingStore struct {
	mu      sync.Mutex
	entries map[string]*pendingEntry
	ttl     time.Duration
	done    chan struct{}
	closed  bool
}

// NewPendingStore creates a store whose bundles expire after ttl. A
// background goroutine sweeps expired entries; call Close when done
// with the store.
func NewPendingStore(ttl time.Duration) *PendingStore {
	s := &PendingStore{
		entries: make(map[string]*pendingEntry),
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	go s.sweep()
	return s
}

// PutRegistration files the bundle and returns its RequestID.
func (s *PendingStore) PutRegistration(data *RegisterRequestData) string {
	id := data.RequestID()
	s.put(id, &pendingEntry{register: data, expiresAt: time.Now().Add(s.ttl)})
	return id
}

// TakeRegistration returns and removes the bundle filed under id.
// It returns false if the id is unknown, expired, or already taken.
func (s *PendingStore) TakeRegistration(id string) (*RegisterRequestData, bool) {
	entry, ok := s.take(id)
	if !ok || entry.register == nil {
		return nil, false
	}
	return entry.register, true
}

// PutAuthentication files the bundle and returns its RequestID.
func (s *PendingStore) PutAuthentication(data *SignRequestData) string {
	id := data.RequestID()
	s.put(id, &pendingEntry{sign: data, expiresAt: time.Now().Add(s.ttl)})
	return id
}

// TakeAuthentication returns and removes the bundle filed under id.
// It returns false if the id is unknown, expired, or already taken.
func (s *PendingStore) TakeAuthentication(id string) (*SignRequestData, bool) {
	entry, ok := s.take(id)
	if !ok || entry.sign == nil {
		return nil, false
	}
	return entry.sign, true
}

// Close stops the sweep goroutine. The store remains usable; entries
// simply stop being reclaimed in the background.
func (s *PendingStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
}

func (s *PendingStore) put(id string, entry *pendingEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = entry
}

func (s *PendingStore) take(id string) (*pendingEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	delete(s.entries, id)
	if time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry, true
}

func (s *PendingStore) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			now := time.Now()
			for id, entry := range s.entries {
				if now.After(entry.expiresAt) {
					delete(s.entries, id)
				}
			}
			s.mu.Unlock()
		}
	}
}
