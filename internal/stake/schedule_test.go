package stake

import (
	"context"
	"strings"
	"testing"

	"github.com/akatsuki-labs/akatsuki/internal/logging"
	"github.com/akatsuki-labs/akatsuki/internal/objectstore"
)

const scheduleCSV = `start_date,end_date,amount
2025-01-01,2025-01-31,3000
2025-01-05,2025-01-05,8000
20250201,20250228,4000
`

func TestParseScheduleLastMatchWins(t *testing.T) {
	s, err := ParseSchedule(strings.NewReader(scheduleCSV))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if amount, ok := s.BudgetFor("20250105"); !ok || amount != 8000 {
		t.Fatalf("expected 8000, got %d (%v)", amount, ok)
	}
	if amount, ok := s.BudgetFor("20250106"); !ok || amount != 3000 {
		t.Fatalf("expected 3000, got %d", amount)
	}
	if _, ok := s.BudgetFor("20250301"); ok {
		t.Fatal("expected no period for march")
	}
}

func TestParseScheduleRejectsBadRows(t *testing.T) {
	if _, err := ParseSchedule(strings.NewReader("auto,2025-01-31,3000\n")); err == nil {
		t.Fatal("expected error for non-literal date")
	}
	if _, err := ParseSchedule(strings.NewReader("2025-01-01,2025-01-31,-5\n")); err == nil {
		t.Fatal("expected error for negative amount")
	}
}

func TestBudgeterFallsBack(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()
	b := NewBudgeter(store, "config/bet_amount_schedule.csv", 5000, logging.Discard())

	got, err := b.Budget(ctx, "20250105")
	if err != nil || got != 5000 {
		t.Fatalf("expected fallback 5000 without schedule, got %d (%v)", got, err)
	}

	if err := store.Put(ctx, "config/bet_amount_schedule.csv", []byte(scheduleCSV), objectstore.ContentTypeCSV); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err = b.Budget(ctx, "20250105")
	if err != nil || got != 8000 {
		t.Fatalf("expected scheduled 8000, got %d (%v)", got, err)
	}
	got, err = b.Budget(ctx, "20250401")
	if err != nil || got != 5000 {
		t.Fatalf("expected fallback outside schedule, got %d (%v)", got, err)
	}
}
