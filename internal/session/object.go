package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/akatsuki-labs/akatsuki/internal/objectstore"
)

// ObjectStore keeps sessions as JSON objects.
type ObjectStore struct {
	store objectstore.Store
}

// NewObjectStore wraps an object store.
func NewObjectStore(store objectstore.Store) *ObjectStore {
	return &ObjectStore{store: store}
}

func (s *ObjectStore) Load(ctx context.Context, identity string) (*State, error) {
	raw, err := s.store.Get(ctx, objectstore.SessionKey(identity))
	if errors.Is(err, objectstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	// an emptied object is how Clear is expressed on stores without delete
	if len(raw) == 0 {
		return nil, nil
	}
	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &state, nil
}

func (s *ObjectStore) Save(ctx context.Context, identity string, state State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.store.Put(ctx, objectstore.SessionKey(identity), payload, objectstore.ContentTypeJSON)
}

func (s *ObjectStore) Clear(ctx context.Context, identity string) error {
	return s.store.Put(ctx, objectstore.SessionKey(identity), nil, objectstore.ContentTypeJSON)
}
