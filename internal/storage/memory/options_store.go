// Package memory provides in-process stores for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/matomo-bridge/internal/options"
)

// OptionsStore keeps the saved settings in memory.
type OptionsStore struct {
	mu    sync.RWMutex
	saved options.Raw
}

// NewOptionsStore constructs an empty OptionsStore.
func NewOptionsStore() *OptionsStore {
	return &OptionsStore{}
}

// Load returns a copy of the saved settings or options.ErrNotFound.
func (s *OptionsStore) Load(_ context.Context) (options.Raw, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.saved == nil {
		return nil, options.ErrNotFound
	}
	return s.saved.Clone(), nil
}

// Save replaces the saved settings.
func (s *OptionsStore) Save(_ context.Context, opts options.Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = opts.Raw()
	return nil
}
