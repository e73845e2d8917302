package session

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/akatsuki-labs/akatsuki/internal/objectstore"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	got, err := store.Load(ctx, "default")
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil state, got %+v", got)
	}

	issued := time.Date(2025, 1, 5, 8, 0, 0, 0, time.UTC)
	if err := store.Save(ctx, "default", State{Blob: []byte(`[{"name":"sid"}]`), IssuedAt: issued}); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err = store.Load(ctx, "default")
	if err != nil || got == nil {
		t.Fatalf("load saved: %v %v", got, err)
	}
	if string(got.Blob) != `[{"name":"sid"}]` || !got.IssuedAt.Equal(issued) {
		t.Fatalf("unexpected state %+v", got)
	}

	if other, _ := store.Load(ctx, "other"); other != nil {
		t.Fatal("identities must not share sessions")
	}

	if err := store.Clear(ctx, "default"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got, _ := store.Load(ctx, "default"); got != nil {
		t.Fatalf("expected cleared session, got %+v", got)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestObjectStore(t *testing.T) {
	exerciseStore(t, NewObjectStore(objectstore.NewMemory()))
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	store := NewRedisStore(cache)
	if err := store.Save(context.Background(), "ttl-check", State{Blob: []byte("x")}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if ttl := mr.TTL(redisPrefix + "ttl-check"); ttl != 0 {
		t.Fatalf("sessions must not expire, ttl=%s", ttl)
	}

	exerciseStore(t, store)
}
