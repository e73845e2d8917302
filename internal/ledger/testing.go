package ledger

import (
	"context"

	"github.com/akatsuki-labs/akatsuki/internal/bet"
)

// Seed is a test helper that stores records directly, bypassing the terminal-status rule.
func Seed(s Storage, id bet.Identity, rec Record) error {
	ctx := context.Background()
	entries, err := s.Read(ctx, id.TargetDate)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = Entries{}
	}
	entries[id.Key()] = rec
	return s.Write(ctx, id.TargetDate, entries)
}
