// Package memory disponibiliza um storage em memória para um único processo.
// Não é compartilhado entre instâncias; serve para desenvolvimento e testes.
package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/dalf/botdetection/internal/core/ports"
)

type item struct {
	value     string
	expiresAt time.Time
}

func (i item) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && !now.Before(i.expiresAt)
}

type Storage struct {
	mu    sync.Mutex
	items map[string]item
	now   func() time.Time
}

var _ ports.Storage = (*Storage)(nil)

func New() *Storage {
	return NewWithClock(time.Now)
}

// NewWithClock lets tests drive expiry without sleeping.
func NewWithClock(now func() time.Time) *Storage {
	return &Storage{items: make(map[string]item), now: now}
}

// Len returns the number of live keys.
func (s *Storage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for key, it := range s.items {
		if it.expired(now) {
			delete(s.items, key)
			continue
		}
		n++
	}
	return n
}

func (s *Storage) IncrWithExpiry(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.incr(key, window), nil
}

func (s *Storage) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = item{value: value, expiresAt: s.deadline(ttl)}
	return nil
}

func (s *Storage) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lookup(key); ok {
		return false, nil
	}
	s.items[key] = item{value: value, expiresAt: s.deadline(ttl)}
	return true, nil
}

func (s *Storage) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.lookup(key)
	return it.value, ok, nil
}

func (s *Storage) IncrIfEquals(_ context.Context, guardKey, expected, counterKey string, ttl time.Duration) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	guard, ok := s.lookup(guardKey)
	if !ok || guard.value != expected {
		return 0, false, nil
	}
	return s.incr(counterKey, ttl), true, nil
}

func (s *Storage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, key)
	return nil
}

// lookup must be called with mu held.
func (s *Storage) lookup(key string) (item, bool) {
	it, ok := s.items[key]
	if !ok {
		return item{}, false
	}
	if it.expired(s.now()) {
		delete(s.items, key)
		return item{}, false
	}
	return it, true
}

// incr must be called with mu held.
func (s *Storage) incr(key string, ttl time.Duration) int64 {
	it, ok := s.lookup(key)
	if !ok {
		s.items[key] = item{value: "1", expiresAt: s.deadline(ttl)}
		return 1
	}
	count, err := strconv.ParseInt(it.value, 10, 64)
	if err != nil {
		count = 0
	}
	count++
	it.value = strconv.FormatInt(count, 10)
	s.items[key] = it
	return count
}

func (s *Storage) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}
