package store

import (
	"sync/atomic"
	"time"

	"github.com/jusunglee/wmata-go/internal/models"
)

// Store holds the current snapshot. Readers never block and always see either
// the previous or the next snapshot in full.
type Store struct {
	current atomic.Pointer[models.Snapshot]
}

// NewStore creates a store holding an empty, never-built snapshot
func NewStore() *Store {
	s := &Store{}
	s.current.Store(models.NewSnapshot(time.Time{}, nil, nil, nil, models.BuildStats{}))
	return s
}

// Get returns the current snapshot. The result must be treated as read-only.
func (s *Store) Get() *models.Snapshot {
	return s.current.Load()
}

// Set replaces the current snapshot
func (s *Store) Set(snapshot *models.Snapshot) {
	if snapshot == nil {
		return
	}
	s.current.Store(snapshot)
}

// GetLastUpdate returns the build time of the current snapshot
func (s *Store) GetLastUpdate() time.Time {
	return s.current.Load().BuiltAt
}
