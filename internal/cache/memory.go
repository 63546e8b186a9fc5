package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/ppiankov/zsr/internal/model"
)

// MemoryStore keeps verdicts for the lifetime of the process only.
// Nothing is read at start and Persist writes nothing.
type MemoryStore struct {
	cache *gocache.Cache
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cache: gocache.New(gocache.NoExpiration, 0),
		now:   time.Now,
	}
}

// Get retrieves a verdict from the store
func (s *MemoryStore) Get(key string) (model.Verdict, bool) {
	if val, found := s.cache.Get(key); found {
		return val.(Entry).Verdict(), true
	}
	return model.Verdict{}, false
}

// Set stores a verdict in the store
func (s *MemoryStore) Set(key string, verdict model.Verdict) {
	s.cache.Set(key, newEntry(verdict, s.now()), gocache.NoExpiration)
}

// Len returns the number of stored verdicts
func (s *MemoryStore) Len() int {
	return s.cache.ItemCount()
}

// Entries returns every stored entry
func (s *MemoryStore) Entries() map[string]Entry {
	items := s.cache.Items()
	out := make(map[string]Entry, len(items))
	for k, item := range items {
		out[k] = item.Object.(Entry)
	}
	return out
}

// Persist is a no-op
func (s *MemoryStore) Persist() error {
	return nil
}

// Close removes all stored verdicts
func (s *MemoryStore) Close() error {
	s.cache.Flush()
	return nil
}
