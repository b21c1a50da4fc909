// Package legacy serves the anonymous shortener that keeps codes only in
// process memory. Entries expire, the table is bounded, and nothing survives
// a restart or is shared between instances.
package legacy

import (
	"errors"
	"sync"
	"time"

	"github.com/mikepea/linkpage/pkg/linkpage/shortid"
	"github.com/patrickmn/go-cache"
)

// MaxAttempts bounds code generation per entry.
const MaxAttempts = 5

var (
	ErrFull      = errors.New("short url table is full")
	ErrCodeSpace = errors.New("could not find a free short code")
)

// Store is a bounded, expiring code to URL table.
type Store struct {
	mu         sync.Mutex // serializes the size check with the insert
	entries    *cache.Cache
	maxEntries int
	newCode    func() (string, error)
}

// NewStore creates a table whose entries live for ttl. A non-positive
// maxEntries means unbounded.
func NewStore(ttl time.Duration, maxEntries int) *Store {
	cleanup := ttl / 2
	if cleanup < time.Minute {
		cleanup = time.Minute
	}
	return &Store{
		entries:    cache.New(ttl, cleanup),
		maxEntries: maxEntries,
		newCode:    shortid.New,
	}
}

// Put stores url under a fresh code.
func (s *Store) Put(url string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.full() {
		s.entries.DeleteExpired()
		if s.full() {
			return "", ErrFull
		}
	}

	for attempt := 0; attempt < MaxAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return "", err
		}
		// Add refuses to overwrite a live entry.
		if err := s.entries.Add(code, url, cache.DefaultExpiration); err == nil {
			return code, nil
		}
	}
	return "", ErrCodeSpace
}

// Get returns the URL stored under code.
func (s *Store) Get(code string) (string, bool) {
	v, ok := s.entries.Get(code)
	if !ok {
		return "", false
	}
	url, ok := v.(string)
	return url, ok
}

// Len reports the number of entries, including expired ones not yet swept.
func (s *Store) Len() int {
	return s.entries.ItemCount()
}

func (s *Store) full() bool {
	return s.maxEntries > 0 && s.entries.ItemCount() >= s.maxEntries
}
