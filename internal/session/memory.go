package session

import (
	"context"
	"sync"
)

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]State
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State)}
}

func (s *MemoryStore) Load(_ context.Context, identity string) (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[identity]
	if !ok {
		return nil, nil
	}
	state.Blob = append([]byte(nil), state.Blob...)
	return &state, nil
}

func (s *MemoryStore) Save(_ context.Context, identity string, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state.Blob = append([]byte(nil), state.Blob...)
	s.states[identity] = state
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, identity)
	return nil
}
