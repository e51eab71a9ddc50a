package checkpoint

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps checkpoints in a map for the life of the value. The load
// handler builds one per invocation when no checkpoint location is
// configured, so nothing carries over between events.
type MemoryStore struct {
	states map[string]State
	mu     sync.RWMutex
}

// NewMemoryStore creates a new MemoryStore instance
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State)}
}

// Load retrieves the checkpoint of object from memory
func (s *MemoryStore) Load(ctx context.Context, object string) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[object], nil
}

// Save stores the checkpoint state in memory
func (s *MemoryStore) Save(ctx context.Context, state State) error {
	if state.Object == "" {
		return fmt.Errorf("checkpoint has no object")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.Object] = state
	return nil
}
