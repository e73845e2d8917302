package stake

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/akatsuki-labs/akatsuki/internal/bet"
	"github.com/akatsuki-labs/akatsuki/internal/objectstore"
)

// Period assigns a daily budget to an inclusive date range.
type Period struct {
	Start  string
	End    string
	Amount int64
}

// Schedule is an ordered list of budget periods. Later rows win on overlap.
type Schedule []Period

// BudgetFor returns the budget of the last period covering date.
func (s Schedule) BudgetFor(date string) (int64, bool) {
	var (
		amount int64
		found  bool
	)
	for _, p := range s {
		if p.Start <= date && date <= p.End {
			amount, found = p.Amount, true
		}
	}
	return amount, found
}

// ParseSchedule reads start_date,end_date,amount rows.
func ParseSchedule(r io.Reader) (Schedule, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read schedule: %w", err)
	}

	var out Schedule
	for i, row := range rows {
		if i == 0 && len(row) > 0 && strings.Contains(strings.ToLower(row[0]), "start") {
			continue
		}
		if len(row) < 3 {
			return nil, fmt.Errorf("schedule row %d: expected 3 columns", i+1)
		}
		start, ok := scheduleDate(row[0])
		if !ok {
			return nil, fmt.Errorf("schedule row %d: bad start date %q", i+1, row[0])
		}
		end, ok := scheduleDate(row[1])
		if !ok {
			return nil, fmt.Errorf("schedule row %d: bad end date %q", i+1, row[1])
		}
		amount, err := strconv.ParseInt(strings.TrimSpace(row[2]), 10, 64)
		if err != nil || amount < 0 {
			return nil, fmt.Errorf("schedule row %d: bad amount %q", i+1, row[2])
		}
		out = append(out, Period{Start: start, End: end, Amount: amount})
	}
	return out, nil
}

func scheduleDate(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, bet.AutoDate) {
		return "", false
	}
	date, err := bet.NormalizeDate(raw, time.Time{})
	return date, err == nil
}

// Budgeter resolves the total budget of a target date.
type Budgeter struct {
	store    objectstore.Store
	key      string
	fallback int64
	logger   *slog.Logger
}

// NewBudgeter reads the schedule at key from store. A nil store disables the
// schedule and always yields fallback.
func NewBudgeter(store objectstore.Store, key string, fallback int64, logger *slog.Logger) *Budgeter {
	return &Budgeter{store: store, key: key, fallback: fallback, logger: logger}
}

// Budget returns the scheduled budget for date, or the fallback when no
// schedule or period applies. An unreadable schedule is an error.
func (b *Budgeter) Budget(ctx context.Context, date string) (int64, error) {
	if b.store == nil || b.key == "" {
		return b.fallback, nil
	}
	data, err := b.store.Get(ctx, b.key)
	if errors.Is(err, objectstore.ErrNotFound) {
		return b.fallback, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load budget schedule: %w", err)
	}
	schedule, err := ParseSchedule(bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	if amount, ok := schedule.BudgetFor(date); ok {
		b.logger.Info("budget from schedule", slog.String("target_date", date), slog.Int64("amount", amount))
		return amount, nil
	}
	return b.fallback, nil
}
