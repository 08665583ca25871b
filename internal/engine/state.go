package engine

import (
	"sync"
	"time"

	"github.com/NarenCandy/wild-animal-detection/internal/geometry"
)

// ClassState is the last emitted alert for one class label.
type ClassState struct {
	LastAlertTime time.Time    `json:"last_alert_time"`
	LastBBox      geometry.Box `json:"last_bbox"`
}

// StateStore holds the last emitted alert per class label. It lives for the
// lifetime of the process and starts empty, so cooldowns restart after a
// restart. Only the Engine writes to it.
type StateStore struct {
	classes map[string]ClassState
	mu      sync.RWMutex
}

// NewStateStore creates an empty state store
func NewStateStore() *StateStore {
	return &StateStore{
		classes: make(map[string]ClassState),
	}
}

// Get returns the state for a label
func (s *StateStore) Get(label string) (ClassState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.classes[label]
	return st, ok
}

// Set records an emitted alert for a label, replacing any previous entry
func (s *StateStore) Set(label string, at time.Time, bbox geometry.Box) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classes[label] = ClassState{LastAlertTime: at, LastBBox: bbox}
}

// Commit applies a batch of updates under a single lock
func (s *StateStore) Commit(updates map[string]ClassState) {
	if len(updates) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for label, st := range updates {
		s.classes[label] = st
	}
}

// Snapshot returns a copy of every tracked class
func (s *StateStore) Snapshot() map[string]ClassState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]ClassState, len(s.classes))
	for label, st := range s.classes {
		out[label] = st
	}
	return out
}

// Len returns the number of tracked classes
func (s *StateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.classes)
}
