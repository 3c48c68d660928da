// Package memory keeps a catalog in process memory for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/clew-freshness/internal/catalog"
)

// Store holds a catalog snapshot guarded by a mutex.
type Store struct {
	mu      sync.RWMutex
	current *catalog.Catalog
	saves   int
}

// New creates a store seeded with c, which may be nil.
func New(c *catalog.Catalog) *Store {
	return &Store{current: c.Clone()}
}

// Load returns a copy of the current catalog.
func (s *Store) Load(_ context.Context) (*catalog.Catalog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, catalog.ErrNotFound
	}
	return s.current.Clone(), nil
}

// Save replaces the current catalog with a copy of c.
func (s *Store) Save(_ context.Context, c *catalog.Catalog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = c.Clone()
	s.saves++
	return nil
}

// Saves reports how many times Save was called.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
