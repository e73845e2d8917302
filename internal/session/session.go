package session

import (
	"context"
	"time"
)

// State is an opaque authenticated-session blob captured from the portal.
// It carries no expiry: validity is only ever decided by probing the portal.
type State struct {
	Blob     []byte    `json:"blob"`
	IssuedAt time.Time `json:"issued_at"`
}

// Store persists at most one State per execution identity.
type Store interface {
	// Load returns nil when nothing is stored.
	Load(ctx context.Context, identity string) (*State, error)
	Save(ctx context.Context, identity string, state State) error
	Clear(ctx context.Context, identity string) error
}
