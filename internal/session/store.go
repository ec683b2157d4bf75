// Package session keeps per-session usage stats in memory.
//
// The store is intended for single-process deployments. Multi-process
// deployments need an externally consistent store behind the same interface.
package session

import (
	"sort"
	"sync"

	"github.com/datasmith-ai/datasmith/internal/stats"
)

// Store maps opaque session ids to their usage stats. Entries are created
// lazily on first access and live until Reset or process teardown.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*stats.TokenStats
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*stats.TokenStats)}
}

// GetOrCreate returns the stats for the given session, creating them priced
// against model on first access.
func (s *Store) GetOrCreate(sessionID, model string) *stats.TokenStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.sessions[sessionID]
	if !ok {
		ts = stats.New(model)
		s.sessions[sessionID] = ts
	}
	return ts
}

// Reset drops the session's stats. Returns whether the session existed.
func (s *Store) Reset(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	return ok
}

// IDs returns all known session ids in sorted order.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
