package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/akatsuki-labs/akatsuki/internal/bet"
)

var (
	// ErrRecordTerminal is returned when a write would replace a PURCHASED record.
	ErrRecordTerminal = errors.New("ledger record already purchased")
)

// Status is the recorded state of a bet.
type Status string

const (
	// StatusPurchased is terminal: the purchase was confirmed on the portal.
	StatusPurchased Status = "PURCHASED"
	// StatusUnverified means a submission may have gone through but was not confirmed.
	StatusUnverified Status = "UNVERIFIED"
	// StatusFailed means the submission did not go through.
	StatusFailed Status = "FAILED"
)

// Record is the persisted state of one bet identity.
type Record struct {
	VenueCode       string    `json:"venue_code"`
	VenueName       string    `json:"venue_name"`
	RaceNumber      int       `json:"race_number"`
	SelectionNumber int       `json:"selection_number"`
	BetType         string    `json:"bet_type"`
	Amount          int64     `json:"amount"`
	Status          Status    `json:"status"`
	PurchasedAt     time.Time `json:"purchased_at,omitzero"`
	UpdatedAt       time.Time `json:"updated_at"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	Note            string    `json:"note,omitempty"`
}

// Identity rebuilds the bet identity the record belongs to.
func (r Record) Identity(targetDate string) bet.Identity {
	return bet.Identity{
		TargetDate:      targetDate,
		VenueCode:       r.VenueCode,
		RaceNumber:      r.RaceNumber,
		SelectionNumber: r.SelectionNumber,
		BetType:         r.BetType,
	}
}

// NewRecord starts a record for id.
func NewRecord(id bet.Identity, amount int64, status Status) Record {
	return Record{
		VenueCode:       id.VenueCode,
		VenueName:       bet.VenueName(id.VenueCode),
		RaceNumber:      id.RaceNumber,
		SelectionNumber: id.SelectionNumber,
		BetType:         id.BetType,
		Amount:          amount,
		Status:          status,
	}
}

// Entries maps identity keys to records for a single target date.
type Entries map[string]Record

// Storage persists the entries of a target date as one unit.
type Storage interface {
	Read(ctx context.Context, targetDate string) (Entries, error)
	Write(ctx context.Context, targetDate string, entries Entries) error
}

// Decision is what the orchestrator must do with a bet given its record.
type Decision int

const (
	// DecisionAttempt means no record exists: purchase.
	DecisionAttempt Decision = iota
	// DecisionSkip means the bet is already purchased.
	DecisionSkip
	// DecisionReconcile means an earlier attempt left an UNVERIFIED or FAILED
	// record that must be checked against the portal before purchasing again.
	DecisionReconcile
)

// Decide maps an optional record to a Decision. Only PURCHASED skips.
func Decide(rec Record, found bool) Decision {
	switch {
	case !found:
		return DecisionAttempt
	case rec.Status == StatusPurchased:
		return DecisionSkip
	default:
		return DecisionReconcile
	}
}

// Ledger is the per-date idempotency ledger. Writes are read-modify-write
// against Storage and are serialized within the process.
type Ledger struct {
	storage Storage
	logger  *slog.Logger
	now     func() time.Time
	mu      sync.Mutex
}

// New wraps storage.
func New(storage Storage, logger *slog.Logger) *Ledger {
	return &Ledger{storage: storage, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the clock used to stamp records.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Get returns all records of targetDate. A date without records yields an empty map.
func (l *Ledger) Get(ctx context.Context, targetDate string) (Entries, error) {
	entries, err := l.storage.Read(ctx, targetDate)
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", targetDate, err)
	}
	if entries == nil {
		entries = Entries{}
	}
	return entries, nil
}

// Lookup returns the record of id, if any.
func (l *Ledger) Lookup(ctx context.Context, id bet.Identity) (Record, bool, error) {
	entries, err := l.Get(ctx, id.TargetDate)
	if err != nil {
		return Record{}, false, err
	}
	rec, ok := entries[id.Key()]
	return rec, ok, nil
}

// Record stores rec under id. PURCHASED records are never replaced.
func (l *Ledger) Record(ctx context.Context, id bet.Identity, rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.Get(ctx, id.TargetDate)
	if err != nil {
		return err
	}
	key := id.Key()
	if prev, ok := entries[key]; ok && prev.Status == StatusPurchased {
		return fmt.Errorf("%w: %s", ErrRecordTerminal, key)
	}

	now := l.now()
	rec.UpdatedAt = now
	// attempt time, stamped on every status
	if rec.PurchasedAt.IsZero() {
		rec.PurchasedAt = now
	}
	if rec.VenueName == "" {
		rec.VenueName = bet.VenueName(rec.VenueCode)
	}
	entries[key] = rec

	if err := l.storage.Write(ctx, id.TargetDate, entries); err != nil {
		return fmt.Errorf("write ledger %s: %w", id.TargetDate, err)
	}
	l.logger.Debug("ledger record written",
		slog.String("target_date", id.TargetDate),
		slog.String("bet", key),
		slog.String("status", string(rec.Status)))
	return nil
}

// Counts tallies entries by status.
func Counts(entries Entries) map[Status]int {
	out := map[Status]int{}
	for _, rec := range entries {
		out[rec.Status]++
	}
	return out
}

// Sorted returns the records ordered by their key.
func Sorted(entries Entries) []Record {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Record, 0, len(keys))
	for _, k := range keys {
		out = append(out, entries[k])
	}
	return out
}
