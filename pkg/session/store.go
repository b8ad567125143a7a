// Package session keeps short-lived typed state on the server: pending
// registrations handed over by draft ID, admin sessions and consumed
// verification codes. Stores live in memory or in Redis.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goliatone/go-rentreport/pkg/clock"
)

// ErrNotFound is returned for missing or expired keys.
var ErrNotFound = errors.New("session: not found")

// Store keeps values of one type under string keys with a TTL. A zero TTL
// keeps the value until deleted.
type Store[T any] interface {
	Put(ctx context.Context, key string, value T, ttl time.Duration) error
	Get(ctx context.Context, key string) (T, error)
	Delete(ctx context.Context, key string) error
}

type memoryEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// MemoryStore is a mutex-guarded Store. Expired entries are dropped on read.
type MemoryStore[T any] struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string]memoryEntry[T]
}

// NewMemoryStore creates a MemoryStore using c, or the wall clock.
func NewMemoryStore[T any](c clock.Clock) *MemoryStore[T] {
	return &MemoryStore[T]{
		clock:   clock.OrSystem(c),
		entries: make(map[string]memoryEntry[T]),
	}
}

func (s *MemoryStore[T]) Put(_ context.Context, key string, value T, ttl time.Duration) error {
	entry := memoryEntry[T]{value: value}
	if ttl > 0 {
		entry.expiresAt = s.clock.Now().Add(ttl)
	}
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore[T]) Get(_ context.Context, key string) (T, error) {
	var zero T
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return zero, ErrNotFound
	}
	if !entry.expiresAt.IsZero() && !s.clock.Now().Before(entry.expiresAt) {
		delete(s.entries, key)
		return zero, ErrNotFound
	}
	return entry.value, nil
}

func (s *MemoryStore[T]) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Len counts stored entries, expired ones included until they are read.
func (s *MemoryStore[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
