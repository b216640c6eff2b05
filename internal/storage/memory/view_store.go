package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/matomo-bridge/internal/views"
)

// ViewStore keeps view counts in memory.
type ViewStore struct {
	mu     sync.RWMutex
	counts map[string]views.Counts
}

// NewViewStore constructs an empty ViewStore.
func NewViewStore() *ViewStore {
	return &ViewStore{counts: make(map[string]views.Counts)}
}

// Get returns the counts for url or views.ErrNotFound.
func (s *ViewStore) Get(_ context.Context, url string) (views.Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.counts[url]
	if !ok {
		return views.Counts{}, views.ErrNotFound
	}
	return c, nil
}

// Put stores counts, replacing any previous tally for the same URL.
func (s *ViewStore) Put(_ context.Context, counts views.Counts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[counts.URL] = counts
	return nil
}
