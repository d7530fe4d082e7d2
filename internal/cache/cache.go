// Package cache keeps partial pipeline artifacts keyed by canonical source
// identity, so a re-submitted source resumes from whatever stages already
// finished instead of repeating them.
package cache

import (
	"strings"
	"sync"
	"time"

	"podcast-scribe-go/internal/types"
)

// DefaultTTL is how long an entry stays usable after its last update.
const DefaultTTL = 7 * 24 * time.Hour

// Entry is a partial-or-complete artifact set. Each field is independently
// nullable and independently upsertable.
type Entry struct {
	Metadata   *types.Metadata
	Transcript *string
	Script     *string
	Report     *string
	UpdatedAt  time.Time
}

// Complete reports whether every pipeline artifact is present.
func (e *Entry) Complete() bool {
	return e != nil && e.Metadata != nil && e.Transcript != nil && e.Script != nil && e.Report != nil
}

// Store is an in-memory TTL cache safe for concurrent use across stages and
// across concurrently running tasks.
type Store struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*Entry
	now     func() time.Time
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		ttl:     ttl,
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
}

// Key canonicalizes a source URL into a cache key.
func Key(sourceURL string) string {
	k := strings.TrimSpace(sourceURL)
	k = strings.TrimRight(k, "/")
	return strings.ToLower(k)
}

// Get returns a copy of the entry for key, or nil if absent. An entry older
// than the TTL is purged and reported as absent.
func (s *Store) Get(key string) *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if s.now().Sub(e.UpdatedAt) > s.ttl {
		delete(s.entries, key)
		return nil
	}
	cp := *e
	return &cp
}

// Upsert merges only the non-nil fields into the entry for key, creating it
// if needed. Fields the caller did not supply are never overwritten, which
// lets independent stages write concurrently without clobbering each other.
func (s *Store) Upsert(key string, fields Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &Entry{}
		s.entries[key] = e
	}
	if fields.Metadata != nil {
		e.Metadata = fields.Metadata
	}
	if fields.Transcript != nil {
		e.Transcript = fields.Transcript
	}
	if fields.Script != nil {
		e.Script = fields.Script
	}
	if fields.Report != nil {
		e.Report = fields.Report
	}
	e.UpdatedAt = s.now()
}

// Len reports the number of live entries. Stale entries still count until a
// Get touches them.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// String returns a pointer to s, the shape Upsert expects for text fields.
func String(s string) *string { return &s }
