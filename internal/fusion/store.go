package fusion

import (
	"context"
	"sync"
	"time"

	"github.com/couchcryptid/peril-risk-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

// Store keeps the latest assessment per property for the reuse window.
// Writes are last-writer-wins; no read-modify-write is ever performed.
type Store interface {
	Get(ctx context.Context, propertyID string) (domain.RiskAssessment, bool, error)
	Put(ctx context.Context, a domain.RiskAssessment) error
	Ping(ctx context.Context) error
}

// MemoryStore is a thread-safe in-process LRU store whose entries expire
// after ttl.
type MemoryStore struct {
	maxEntries int
	ttl        time.Duration
	clock      clockwork.Clock

	mu      sync.Mutex
	entries map[string]*entry
	head    *entry // most recently used
	tail    *entry // least recently used
}

type entry struct {
	key      string
	value    domain.RiskAssessment
	storedAt time.Time
	prev     *entry
	next     *entry
}

// NewMemoryStore creates a store holding at most maxEntries properties.
func NewMemoryStore(maxEntries int, ttl time.Duration, clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		maxEntries: maxEntries,
		ttl:        ttl,
		clock:      clock,
		entries:    make(map[string]*entry),
	}
}

func (s *MemoryStore) Get(_ context.Context, propertyID string) (domain.RiskAssessment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[propertyID]
	if !ok {
		return domain.RiskAssessment{}, false, nil
	}
	if s.clock.Since(e.storedAt) >= s.ttl {
		delete(s.entries, e.key)
		s.remove(e)
		return domain.RiskAssessment{}, false, nil
	}
	s.moveToFront(e)
	return e.value, true, nil
}

func (s *MemoryStore) Put(_ context.Context, a domain.RiskAssessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if e, ok := s.entries[a.PropertyID]; ok {
		e.value = a
		e.storedAt = now
		s.moveToFront(e)
		return nil
	}

	e := &entry{key: a.PropertyID, value: a, storedAt: now}
	s.entries[a.PropertyID] = e
	s.addToFront(e)

	if len(s.entries) > s.maxEntries {
		s.evictTail()
	}
	return nil
}

// Ping always succeeds; the store has no backend.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Len returns the number of entries, including expired ones not yet evicted.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) moveToFront(e *entry) {
	if e == s.head {
		return
	}
	s.remove(e)
	s.addToFront(e)
}

func (s *MemoryStore) addToFront(e *entry) {
	e.next = s.head
	e.prev = nil
	if s.head != nil {
		s.head.prev = e
	}
	s.head = e
	if s.tail == nil {
		s.tail = e
	}
}

func (s *MemoryStore) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		s.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		s.tail = e.prev
	}
	e.prev, e.next = nil, nil
}

func (s *MemoryStore) evictTail() {
	if s.tail == nil {
		return
	}
	delete(s.entries, s.tail.key)
	s.remove(s.tail)
}
