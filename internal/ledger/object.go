package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/akatsuki-labs/akatsuki/internal/objectstore"
)

// ObjectStorage keeps one JSON document per target date in an object store.
type ObjectStorage struct {
	store objectstore.Store
	now   func() time.Time
}

// NewObjectStorage wraps store.
func NewObjectStorage(store objectstore.Store) *ObjectStorage {
	return &ObjectStorage{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Read loads the document of targetDate. A missing document is an empty ledger.
func (s *ObjectStorage) Read(ctx context.Context, targetDate string) (Entries, error) {
	data, err := s.store.Get(ctx, objectstore.LedgerKey(targetDate))
	if errors.Is(err, objectstore.ErrNotFound) {
		return Entries{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeDocument(targetDate, data)
}

// Write replaces the document of targetDate.
func (s *ObjectStorage) Write(ctx context.Context, targetDate string, entries Entries) error {
	data, err := encodeDocument(targetDate, entries, s.now())
	if err != nil {
		return err
	}
	return s.store.Put(ctx, objectstore.LedgerKey(targetDate), data, objectstore.ContentTypeJSON)
}
