package ledger

import (
	"context"
	"sync"
)

type inMemoryStorage struct {
	mu    sync.RWMutex
	dates map[string]Entries
}

// NewInMemory creates a concurrency-safe in-memory storage useful for unit tests.
func NewInMemory() Storage {
	return &inMemoryStorage{dates: make(map[string]Entries)}
}

func (s *inMemoryStorage) Read(_ context.Context, targetDate string) (Entries, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneEntries(s.dates[targetDate]), nil
}

func (s *inMemoryStorage) Write(_ context.Context, targetDate string, entries Entries) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dates[targetDate] = cloneEntries(entries)
	return nil
}

func cloneEntries(in Entries) Entries {
	out := make(Entries, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
