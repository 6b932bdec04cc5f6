// Package handoff passes a result context from the submission request to the result page request.
//
// Entries live in memory only, expire after a TTL and can be taken only once.
package handoff

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/ubuntu/ubuntu-moderation/internal/moderation"
)

// DefaultTTL is how long an untaken result stays available.
const DefaultTTL = 10 * time.Minute

// Store holds result contexts between two navigations.
type Store struct {
	c *cache.Cache
	// mu makes Take atomic, go-cache has no get-and-delete.
	mu sync.Mutex
}

// New returns a store whose entries expire after ttl. A non positive ttl uses DefaultTTL.
func New(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{c: cache.New(ttl, 2*ttl)}
}

// Put stores rc and returns the identifier to retrieve it with.
func (s *Store) Put(rc *moderation.ResultContext) string {
	id := uuid.NewString()
	s.c.SetDefault(id, rc)
	slog.Debug("Result context stored", "id", id)
	return id
}

// Take returns the result context stored under id and removes it.
func (s *Store) Take(id string) (*moderation.ResultContext, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.c.Get(id)
	if !ok {
		return nil, false
	}
	s.c.Delete(id)
	rc, ok := v.(*moderation.ResultContext)
	return rc, ok
}

// Len returns the number of entries, including expired ones not yet evicted.
func (s *Store) Len() int {
	return s.c.ItemCount()
}
