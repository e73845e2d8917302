package evaluation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/akatsuki-labs/akatsuki/internal/bet"
	"github.com/akatsuki-labs/akatsuki/internal/ledger"
	"github.com/akatsuki-labs/akatsuki/internal/notification"
	"github.com/akatsuki-labs/akatsuki/internal/objectstore"
)

// Report statuses.
const (
	StatusEvaluated   = "success"
	StatusNoPurchases = "no_purchases"
	StatusNoResults   = "no_results"
	StatusNoMatches   = "no_matches"
)

// Detail is the settled outcome of one purchased bet.
type Detail struct {
	TargetDate      string  `json:"target_date"`
	VenueCode       string  `json:"venue_code"`
	VenueName       string  `json:"venue_name"`
	RaceNumber      int     `json:"race_number"`
	SelectionNumber int     `json:"selection_number"`
	BetType         string  `json:"bet_type"`
	Amount          int64   `json:"amount"`
	Hit             bool    `json:"is_hit"`
	Payout          int64   `json:"payout"`
	Odds            float64 `json:"odds"`
}

// Summary aggregates details. ROI is the profit as a percentage of the
// investment.
type Summary struct {
	TotalBets  int     `json:"total_bets"`
	Hits       int     `json:"hits"`
	HitRate    float64 `json:"hit_rate"`
	Investment int64   `json:"total_investment"`
	Payout     int64   `json:"total_payout"`
	ROI        float64 `json:"roi"`
	Profit     int64   `json:"profit"`
}

// Cumulative aggregates every evaluated day up to and including the report's.
// CurrentStreak is positive for consecutive hits and negative for misses.
type Cumulative struct {
	Summary
	Days          int   `json:"days"`
	CurrentStreak int   `json:"current_streak"`
	MaxDrawdown   int64 `json:"max_drawdown"`
}

// Report is the evaluation of one target date.
type Report struct {
	TargetDate  string      `json:"date"`
	Status      string      `json:"status"`
	Summary     Summary     `json:"summary"`
	Details     []Detail    `json:"details"`
	Cumulative  *Cumulative `json:"cumulative,omitempty"`
	Location    string      `json:"location,omitempty"`
	EvaluatedAt time.Time   `json:"evaluated_at"`
}

// Notifier receives the evaluation events.
type Notifier interface {
	Notify(kind string, payload map[string]any)
}

// Evaluator settles a day's purchases against the official race results.
type Evaluator struct {
	ledger   *ledger.Ledger
	store    objectstore.Store
	notifier Notifier
	loc      *time.Location
	logger   *slog.Logger
	now      func() time.Time
}

func NewEvaluator(l *ledger.Ledger, store objectstore.Store, notifier Notifier, loc *time.Location, logger *slog.Logger) *Evaluator {
	if loc == nil {
		loc = time.UTC
	}
	return &Evaluator{ledger: l, store: store, notifier: notifier, loc: loc, logger: logger, now: time.Now}
}

// Evaluate settles the PURCHASED ledger records of targetDate, stores the
// report with its cumulative view and returns it. Missing purchases, results
// or matches yield a report without a stored result.
func (e *Evaluator) Evaluate(ctx context.Context, targetDate string) (Report, error) {
	now := e.now()
	date, err := bet.NormalizeDate(targetDate, now.In(e.loc))
	if err != nil {
		return Report{}, err
	}
	report := Report{TargetDate: date, Details: []Detail{}, EvaluatedAt: now.UTC()}
	logger := e.logger.With(slog.String("target_date", date))

	entries, err := e.ledger.Get(ctx, date)
	if err != nil {
		return Report{}, err
	}
	var purchased []ledger.Record
	for _, rec := range ledger.Sorted(entries) {
		if rec.Status == ledger.StatusPurchased {
			purchased = append(purchased, rec)
		}
	}
	if len(purchased) == 0 {
		return e.noData(report, StatusNoPurchases, logger), nil
	}

	raw, err := e.store.Get(ctx, objectstore.RaceResultKey(date))
	if errors.Is(err, objectstore.ErrNotFound) {
		return e.noData(report, StatusNoResults, logger), nil
	}
	if err != nil {
		return Report{}, fmt.Errorf("read race results: %w", err)
	}
	results, err := ParseResults(bytes.NewReader(raw))
	if err != nil {
		return Report{}, err
	}

	for _, rec := range purchased {
		d, ok := settle(date, rec, results)
		if !ok {
			logger.Warn("no settled result for bet", slog.String("bet", rec.Identity(date).Key()))
			continue
		}
		report.Details = append(report.Details, d)
	}
	if len(report.Details) == 0 {
		return e.noData(report, StatusNoMatches, logger), nil
	}

	report.Status = StatusEvaluated
	report.Summary = Summarize(report.Details)
	history, err := e.history(ctx, date)
	if err != nil {
		return Report{}, err
	}
	cumulative := Accumulate(append(history, report.Details...))
	cumulative.Days = countDays(history) + 1
	report.Cumulative = &cumulative

	if err := e.save(ctx, &report); err != nil {
		return Report{}, err
	}
	logger.Info("evaluation stored",
		slog.Int("bets", report.Summary.TotalBets),
		slog.Int("hits", report.Summary.Hits),
		slog.Float64("roi", report.Summary.ROI),
		slog.String("location", report.Location))
	e.notify(notification.KindEvaluationCompleted, map[string]any{
		"target_date":       date,
		"hits":              report.Summary.Hits,
		"total_bets":        report.Summary.TotalBets,
		"roi":               report.Summary.ROI,
		"profit":            report.Summary.Profit,
		"cumulative_roi":    cumulative.ROI,
		"cumulative_profit": cumulative.Profit,
		"current_streak":    cumulative.CurrentStreak,
	})
	return report, nil
}

func settle(date string, rec ledger.Record, results Results) (Detail, bool) {
	race, ok := results.Lookup(rec.VenueCode, rec.RaceNumber)
	if !ok {
		return Detail{}, false
	}
	per100, ok := race.payout(rec.BetType, rec.SelectionNumber)
	if !ok {
		return Detail{}, false
	}
	d := Detail{
		TargetDate:      date,
		VenueCode:       rec.VenueCode,
		VenueName:       bet.VenueName(rec.VenueCode),
		RaceNumber:      rec.RaceNumber,
		SelectionNumber: rec.SelectionNumber,
		BetType:         rec.BetType,
		Amount:          rec.Amount,
	}
	if per100 > 0 {
		d.Hit = true
		d.Payout = per100 * (rec.Amount / 100)
		d.Odds = float64(per100) / 100
	}
	return d, true
}

// history loads the details of every stored evaluation before date, oldest
// first. Stores that cannot list keys have no history.
func (e *Evaluator) history(ctx context.Context, date string) ([]Detail, error) {
	lister, ok := e.store.(objectstore.Lister)
	if !ok {
		return nil, nil
	}
	keys, err := lister.List(ctx, objectstore.EvaluationPrefix)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	current := objectstore.EvaluationKey(date)
	var out []Detail
	for _, key := range keys {
		if key >= current {
			break
		}
		data, err := e.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read evaluation %s: %w", key, err)
		}
		var past Report
		if err := json.Unmarshal(data, &past); err != nil {
			e.logger.Warn("skip unreadable evaluation", slog.String("key", key), slog.Any("error", err))
			continue
		}
		for _, d := range past.Details {
			if d.TargetDate == "" {
				d.TargetDate = past.TargetDate
			}
			out = append(out, d)
		}
	}
	return out, nil
}

func (e *Evaluator) save(ctx context.Context, report *Report) error {
	key := objectstore.EvaluationKey(report.TargetDate)
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	if err := e.store.Put(ctx, key, data, objectstore.ContentTypeJSON); err != nil {
		return fmt.Errorf("store evaluation: %w", err)
	}
	report.Location = key
	if l, ok := e.store.(objectstore.Locator); ok {
		report.Location = l.Location(key)
	}
	return nil
}

func (e *Evaluator) noData(report Report, status string, logger *slog.Logger) Report {
	report.Status = status
	logger.Info("nothing to evaluate", slog.String("status", status))
	e.notify(notification.KindEvaluationNoData, map[string]any{"target_date": report.TargetDate, "reason": status})
	return report
}

func (e *Evaluator) notify(kind string, payload map[string]any) {
	if e.notifier != nil {
		e.notifier.Notify(kind, payload)
	}
}

// Summarize totals details.
func Summarize(details []Detail) Summary {
	var s Summary
	for _, d := range details {
		s.TotalBets++
		if d.Hit {
			s.Hits++
		}
		s.Investment += d.Amount
		s.Payout += d.Payout
	}
	s.Profit = s.Payout - s.Investment
	if s.TotalBets > 0 {
		s.HitRate = round(float64(s.Hits)/float64(s.TotalBets), 4)
	}
	if s.Investment > 0 {
		s.ROI = round(float64(s.Profit)/float64(s.Investment)*100, 2)
	}
	return s
}

// Accumulate totals details given oldest first and derives the streak at the
// end of the sequence and the largest peak-to-trough loss along it.
func Accumulate(details []Detail) Cumulative {
	c := Cumulative{Summary: Summarize(details)}

	var balance, peak int64
	for _, d := range details {
		balance += d.Payout - d.Amount
		peak = max(peak, balance)
		c.MaxDrawdown = max(c.MaxDrawdown, peak-balance)
	}

	for i := len(details) - 1; i >= 0; i-- {
		hit := details[i].Hit
		switch {
		case hit && c.CurrentStreak >= 0:
			c.CurrentStreak++
		case !hit && c.CurrentStreak <= 0:
			c.CurrentStreak--
		default:
			return c
		}
	}
	return c
}

func countDays(details []Detail) int {
	days := map[string]struct{}{}
	for _, d := range details {
		days[d.TargetDate] = struct{}{}
	}
	return len(days)
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
