package telemetry

import "sync"

// Store holds the most recently published snapshot. Snapshots are replaced
// wholesale, so a reader never observes a partially built one.
type Store struct {
	mu      sync.RWMutex
	current Snapshot
}

func NewStore() *Store {
	return &Store{}
}

// Publish replaces the held snapshot.
func (s *Store) Publish(snapshot Snapshot) {
	s.mu.Lock()
	s.current = snapshot
	s.mu.Unlock()
}

// Read returns the last published snapshot, or the zero Snapshot if nothing
// has been published.
func (s *Store) Read() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}
