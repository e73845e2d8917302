package purchase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/akatsuki-labs/akatsuki/internal/auth"
	"github.com/akatsuki-labs/akatsuki/internal/bet"
	"github.com/akatsuki-labs/akatsuki/internal/config"
	"github.com/akatsuki-labs/akatsuki/internal/credentials"
	"github.com/akatsuki-labs/akatsuki/internal/funding"
	"github.com/akatsuki-labs/akatsuki/internal/ledger"
	"github.com/akatsuki-labs/akatsuki/internal/logging"
	"github.com/akatsuki-labs/akatsuki/internal/notification"
	"github.com/akatsuki-labs/akatsuki/internal/objectstore"
	"github.com/akatsuki-labs/akatsuki/internal/portal"
	"github.com/akatsuki-labs/akatsuki/internal/portal/portaltest"
	"github.com/akatsuki-labs/akatsuki/internal/session"
	"github.com/akatsuki-labs/akatsuki/internal/stake"
)

const testDate = "20250105"

type staticProvider struct {
	bundle credentials.Bundle
	err    error
}

func (p staticProvider) Get(context.Context, string) (credentials.Bundle, error) {
	return p.bundle, p.err
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Notify(kind string, _ map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind)
}

func (r *recorder) count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == kind {
			n++
		}
	}
	return n
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return nil
}

type harness struct {
	portal    *portaltest.Portal
	storage   ledger.Storage
	ledger    *ledger.Ledger
	sessions  *session.MemoryStore
	tally     *funding.MemoryTally
	notes     *recorder
	artifacts *objectstore.Memory
	clock     *fakeClock
	provider  staticProvider
	orch      *Orchestrator
}

func newHarness(t *testing.T, balance int64, configure func(*Options, *funding.Policy)) *harness {
	t.Helper()
	logger := logging.Discard()
	h := &harness{
		portal:    portaltest.New(balance),
		storage:   ledger.NewInMemory(),
		sessions:  session.NewMemoryStore(),
		tally:     funding.NewMemoryTally(),
		notes:     &recorder{},
		artifacts: objectstore.NewMemory(),
		clock:     &fakeClock{now: time.Date(2025, 1, 5, 9, 0, 0, 0, time.UTC)},
		provider:  staticProvider{bundle: credentials.Bundle{Identifier: "AB12CD34", AccountNumber: "12345678", PIN: "1234", SecondaryCode: "5678"}},
	}
	h.ledger = ledger.New(h.storage, logger)

	opts := Options{
		Allocator:                 stake.Allocator{Unit: 100, Floor: 100},
		SettleDelay:               5 * time.Second,
		StepTimeout:               30 * time.Second,
		InsufficientPolicy:        config.PolicyReduce,
		UnverifiedCountsAsFailure: true,
	}
	policy := funding.Policy{DefaultDeposit: 10000, MaxPerDay: 50000}
	if configure != nil {
		configure(&opts, &policy)
	}
	h.build(opts, policy)
	return h
}

func (h *harness) build(opts Options, policy funding.Policy) {
	logger := logging.Discard()
	authSvc := auth.NewService(h.portal, h.provider, h.sessions, "secret", "default", logger)
	h.orch = New(Deps{
		Ledger:    h.ledger,
		Portal:    h.portal,
		Auth:      authSvc,
		Funding:   funding.NewService(h.portal, h.tally, policy, logger),
		Budget:    stake.NewBudgeter(nil, "", 1000, logger),
		Notifier:  h.notes,
		Artifacts: h.artifacts,
	}, opts, logger)
	h.orch.now = h.clock.Now
	h.orch.sleep = h.clock.Sleep
	h.orch.newID = func() string { return "run-1" }
}

func budget(v int64) *int64 { return &v }

func oneBet(race int) bet.Instruction {
	return bet.Instruction{VenueCode: "06", RaceNumber: race, SelectionNumber: 3}
}

func identity(race int) bet.Identity {
	return oneBet(race).Identity(testDate)
}

func ticket(race int, amount int64) portal.Ticket {
	return portal.Ticket{Identity: identity(race), VenueName: bet.VenueName("06"), Amount: amount}
}

func (h *harness) record(t *testing.T, race int) (ledger.Record, bool) {
	t.Helper()
	rec, ok, err := h.ledger.Lookup(context.Background(), identity(race))
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	return rec, ok
}

func TestRunSingleBetConfirmed(t *testing.T) {
	h := newHarness(t, 10000, nil)

	sum, err := h.orch.Run(context.Background(), Request{TargetDate: testDate, Bets: []bet.Instruction{oneBet(1)}, TotalBudget: budget(1000)})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !sum.Success || sum.TotalAmount != 1000 || sum.PurchasedAmount != 1000 || sum.Counts[OutcomeSuccess] != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	rec, ok := h.record(t, 1)
	if !ok || rec.Status != ledger.StatusPurchased || rec.Amount != 1000 || rec.PurchasedAt.IsZero() {
		t.Fatalf("unexpected ledger record %+v", rec)
	}
	if h.notes.count(notification.KindBetPurchased) != 1 || h.notes.count(notification.KindRunCompleted) != 1 {
		t.Fatalf("missing notifications: %v", h.notes.events)
	}
	if keys := h.artifacts.Keys("artifacts/" + testDate + "/"); len(keys) != 1 {
		t.Fatalf("expected inquiry artifact, got %v", keys)
	}
}

func TestRunNeverRepurchasesPurchasedBet(t *testing.T) {
	h := newHarness(t, 10000, nil)
	req := Request{TargetDate: testDate, Bets: []bet.Instruction{oneBet(1)}, TotalBudget: budget(1000)}

	if _, err := h.orch.Run(context.Background(), req); err != nil {
		t.Fatalf("first run: %v", err)
	}
	sum, err := h.orch.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if h.portal.PurchaseCount() != 1 {
		t.Fatalf("expected a single purchase action, got %d", h.portal.PurchaseCount())
	}
	if h.portal.Logins != 1 {
		t.Fatalf("nothing to purchase must not log in again, got %d logins", h.portal.Logins)
	}
	res := sum.Results[0]
	if res.Outcome != OutcomeSuccess || !res.PreExisting || sum.TotalAmount != 1000 || sum.PurchasedAmount != 0 {
		t.Fatalf("expected pre-existing success, got %+v / %+v", res, sum)
	}
}

func TestRunUnverifiedWhenInquiryMisses(t *testing.T) {
	for _, countsAsFailure := range []bool{true, false} {
		h := newHarness(t, 10000, func(o *Options, _ *funding.Policy) { o.UnverifiedCountsAsFailure = countsAsFailure })
		h.portal.Behaviors[identity(1).Key()] = portaltest.PurchaseBehavior{Hidden: true}

		sum, err := h.orch.Run(context.Background(), Request{TargetDate: testDate, Bets: []bet.Instruction{oneBet(1)}, TotalBudget: budget(1000)})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if sum.Results[0].Outcome != OutcomeUnverified || sum.TotalAmount != 0 {
			t.Fatalf("expected unverified outcome, got %+v", sum.Results[0])
		}
		if sum.Success == countsAsFailure {
			t.Fatalf("success=%v with unverified counting as failure=%v", sum.Success, countsAsFailure)
		}
		rec, _ := h.record(t, 1)
		if rec.Status != ledger.StatusUnverified {
			t.Fatalf("expected UNVERIFIED record, got %s", rec.Status)
		}
		if h.notes.count(notification.KindPurchaseUnverified) != 1 {
			t.Fatalf("expected unverified notification, got %v", h.notes.events)
		}
	}
}

func TestRunAmountMismatchIsUnverified(t *testing.T) {
	h := newHarness(t, 10000, nil)
	h.portal.Behaviors[identity(1).Key()] = portaltest.PurchaseBehavior{RegisteredAmount: 2000}

	sum, err := h.orch.Run(context.Background(), Request{TargetDate: testDate, Bets: []bet.Instruction{oneBet(1)}, TotalBudget: budget(1000)})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Results[0].Outcome != OutcomeUnverified || sum.Results[0].Error != "inquiry amount mismatch" {
		t.Fatalf("expected amount mismatch, got %+v", sum.Results[0])
	}
}

func TestRunSubmissionFailureDoesNotStopBatch(t *testing.T) {
	h := newHarness(t, 10000, nil)
	h.portal.Behaviors[identity(2).Key()] = portaltest.PurchaseBehavior{NoIndicator: true}

	sum, err := h.orch.Run(context.Background(), Request{
		TargetDate:  testDate,
		Bets:        []bet.Instruction{oneBet(1), oneBet(2), oneBet(3)},
		TotalBudget: budget(3000),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []Outcome{OutcomeSuccess, OutcomeFailed, OutcomeSuccess}
	for i, w := range want {
		if sum.Results[i].Outcome != w {
			t.Fatalf("bet %d: expected %s got %s", i+1, w, sum.Results[i].Outcome)
		}
	}
	if h.portal.PurchaseCount() != 3 {
		t.Fatalf("expected 3 purchase actions, got %d", h.portal.PurchaseCount())
	}
	if rec, _ := h.record(t, 2); rec.Status != ledger.StatusFailed || rec.ErrorMessage == "" {
		t.Fatalf("expected FAILED record with message, got %+v", rec)
	}
	if rec, _ := h.record(t, 3); rec.Status != ledger.StatusPurchased {
		t.Fatalf("bet 3 must be purchased, got %s", rec.Status)
	}
	if sum.Success || h.notes.count(notification.KindPurchaseFailed) != 1 {
		t.Fatalf("failed bet must fail the run and notify")
	}
}

func TestRunSubmissionErrorRecordsFailed(t *testing.T) {
	h := newHarness(t, 10000, nil)
	h.portal.Behaviors[identity(1).Key()] = portaltest.PurchaseBehavior{Err: errors.New("race button missing")}

	sum, err := h.orch.Run(context.Background(), Request{TargetDate: testDate, Bets: []bet.Instruction{oneBet(1)}, TotalBudget: budget(1000)})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Results[0].Outcome != OutcomeFailed || sum.Results[0].Error != "race button missing" {
		t.Fatalf("unexpected result %+v", sum.Results[0])
	}
	if h.portal.Inquiries != 0 {
		t.Fatalf("failed submissions must not be verified")
	}
}

type observingPortal struct {
	*portaltest.Portal
	ledger *ledger.Ledger
	seen   ledger.Status
}

func (p *observingPortal) SubmitPurchase(ctx context.Context, tk portal.Ticket) (bool, error) {
	rec, _, _ := p.ledger.Lookup(ctx, tk.Identity)
	p.seen = rec.Status
	return p.Portal.SubmitPurchase(ctx, tk)
}

func TestRunWritesAheadBeforeSubmitting(t *testing.T) {
	h := newHarness(t, 10000, nil)
	obs := &observingPortal{Portal: h.portal, ledger: h.ledger}
	h.orch.deps.Portal = obs

	if _, err := h.orch.Run(context.Background(), Request{TargetDate: testDate, Bets: []bet.Instruction{oneBet(1)}, TotalBudget: budget(1000)}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if obs.seen != ledger.StatusUnverified {
		t.Fatalf("expected UNVERIFIED write-ahead during submission, saw %q", obs.seen)
	}
}

func TestRunFundingFailureMakesNoPurchases(t *testing.T) {
	h := newHarness(t, 0, nil)
	h.portal.DepositErr = portal.ErrDepositDeclined

	sum, err := h.orch.Run(context.Background(), Request{TargetDate: testDate, Bets: []bet.Instruction{oneBet(1), oneBet(2)}, TotalBudget: budget(2000)})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Failure == nil || sum.Failure.Kind != FailureFunding || sum.Success {
		t.Fatalf("expected funding failure, got %+v", sum)
	}
	for _, res := range sum.Results {
		if res.Outcome != OutcomeSkipped || res.Reason != ReasonFundingFailed {
			t.Fatalf("expected skipped funding_failed, got %+v", res)
		}
	}
	entries, _ := h.ledger.Get(context.Background(), testDate)
	if len(entries) != 0 || h.portal.PurchaseCount() != 0 {
		t.Fatalf("funding failure must leave no ledger records, got %v", entries)
	}
	if h.notes.count(notification.KindFundingFailed) != 1 {
		t.Fatalf("expected funding_failed notification")
	}
}

func TestRunInsufficientFundsReducesBetSet(t *testing.T) {
	h := newHarness(t, 0, func(_ *Options, p *funding.Policy) {
		p.DefaultDeposit = 1000
		p.MaxPerDay = 2000
	})

	sum, err := h.orch.Run(context.Background(), Request{
		TargetDate:  testDate,
		Bets:        []bet.Instruction{oneBet(1), oneBet(2), oneBet(3)},
		TotalBudget: budget(3000),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Funding == nil || sum.Funding.Outcome != funding.OutcomeInsufficient || sum.Funding.Deposited != 2000 {
		t.Fatalf("expected capped deposit, got %+v", sum.Funding)
	}
	if sum.Counts[OutcomeSuccess] != 2 || sum.Results[2].Reason != ReasonInsufficientFunds {
		t.Fatalf("expected two purchases and one skip, got %+v", sum.Results)
	}
	if sum.Success {
		t.Fatalf("insufficient funding must not report success")
	}
	if h.notes.count(notification.KindFundingInsufficient) != 1 || h.notes.count(notification.KindDepositCompleted) != 1 {
		t.Fatalf("missing funding notifications: %v", h.notes.events)
	}
}

func TestRunInsufficientFundsFailPolicy(t *testing.T) {
	h := newHarness(t, 0, func(o *Options, p *funding.Policy) {
		o.InsufficientPolicy = config.PolicyFail
		p.MaxPerDay = 500
	})

	sum, err := h.orch.Run(context.Background(), Request{TargetDate: testDate, Bets: []bet.Instruction{oneBet(1)}, TotalBudget: budget(1000)})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Failure == nil || sum.Results[0].Reason != ReasonInsufficientFunds || h.portal.PurchaseCount() != 0 {
		t.Fatalf("expected explicit failure without purchases, got %+v", sum)
	}
}

func TestRunRelogsInOnceWhenSessionExpired(t *testing.T) {
	h := newHarness(t, 10000, nil)
	_ = h.sessions.Save(context.Background(), "default", session.State{Blob: []byte("expired")})

	sum, err := h.orch.Run(context.Background(), Request{TargetDate: testDate, Bets: []bet.Instruction{oneBet(1)}, TotalBudget: budget(1000)})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if h.portal.Restores != 1 || h.portal.Logins != 1 {
		t.Fatalf("expected one session check and one login, got restores=%d logins=%d", h.portal.Restores, h.portal.Logins)
	}
	if !sum.Success {
		t.Fatalf("expected success after relogin, got %+v", sum)
	}
	stored, _ := h.sessions.Load(context.Background(), "default")
	if stored == nil || string(stored.Blob) != "valid-session" {
		t.Fatalf("new session not stored")
	}
}

func TestRunAuthenticationFailureIsReported(t *testing.T) {
	h := newHarness(t, 10000, nil)
	h.portal.AcceptLogin = false

	sum, err := h.orch.Run(context.Background(), Request{TargetDate: testDate, Bets: []bet.Instruction{oneBet(1)}, TotalBudget: budget(1000)})
	if err != nil {
		t.Fatalf("authentication failure must produce a summary, got %v", err)
	}
	if sum.Failure == nil || sum.Failure.Kind != FailureAuthentication || sum.Results[0].Reason != ReasonAuthenticationFailed {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if h.portal.Logins != 1 || h.notes.count(notification.KindAuthFailed) != 1 {
		t.Fatalf("expected one login attempt and a notification")
	}
}

func TestRunCredentialFailureIsConfigurationError(t *testing.T) {
	h := newHarness(t, 10000, nil)
	h.provider = staticProvider{err: errors.New("secret not found")}
	h.build(h.orch.opts, funding.Policy{DefaultDeposit: 10000, MaxPerDay: 50000})

	_, err := h.orch.Run(context.Background(), Request{TargetDate: testDate, Bets: []bet.Instruction{oneBet(1)}, TotalBudget: budget(1000)})
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if h.portal.Logins != 0 || h.notes.count(notification.KindRunError) != 1 {
		t.Fatalf("portal must be untouched and error notified")
	}
}

func TestRunRejectsMalformedRequests(t *testing.T) {
	cases := map[string]Request{
		"race out of range": {TargetDate: testDate, Bets: []bet.Instruction{oneBet(13)}},
		"duplicate bets":    {TargetDate: testDate, Bets: []bet.Instruction{oneBet(1), oneBet(1)}},
		"bad date":          {TargetDate: "05/01/2025", Bets: []bet.Instruction{oneBet(1)}},
		"negative budget":   {TargetDate: testDate, Bets: []bet.Instruction{oneBet(1)}, TotalBudget: budget(-100)},
		"odd amount":        {TargetDate: testDate, Bets: []bet.Instruction{{VenueCode: "06", RaceNumber: 1, SelectionNumber: 3, Amount: budget(150)}}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, 10000, nil)
			if _, err := h.orch.Run(context.Background(), req); !errors.Is(err, ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			if h.portal.Logins != 0 || h.portal.PurchaseCount() != 0 {
				t.Fatalf("no side effects expected")
			}
		})
	}
}

func TestRunWithoutBetsIsNoop(t *testing.T) {
	h := newHarness(t, 10000, nil)

	sum, err := h.orch.Run(context.Background(), Request{TargetDate: testDate})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !sum.Success || len(sum.Results) != 0 || h.portal.Logins != 0 {
		t.Fatalf("expected successful no-op, got %+v", sum)
	}
	if h.notes.count(notification.KindNoBets) != 1 {
		t.Fatalf("expected no_bets notification")
	}
}

func TestRunDryRunSimulates(t *testing.T) {
	h := newHarness(t, 0, nil)

	sum, err := h.orch.Run(context.Background(), Request{TargetDate: testDate, Bets: []bet.Instruction{oneBet(1)}, TotalBudget: budget(1000), DryRun: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Results[0].Outcome != OutcomeSimulated || !sum.DryRun {
		t.Fatalf("expected simulated outcome, got %+v", sum.Results[0])
	}
	if h.portal.Logins != 1 || sum.Funding == nil {
		t.Fatalf("dry run must still authenticate and fund")
	}
	entries, _ := h.ledger.Get(context.Background(), testDate)
	if len(entries) != 0 || h.portal.PurchaseCount() != 0 {
		t.Fatalf("dry run must not purchase or write the ledger")
	}
}

func TestRunReconcilesEarlierUnverifiedAttempt(t *testing.T) {
	h := newHarness(t, 10000, nil)
	if err := ledger.Seed(h.storage, identity(1), ledger.NewRecord(identity(1), 1000, ledger.StatusUnverified)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	h.portal.Register(ticket(1, 1000))

	sum, err := h.orch.Run(context.Background(), Request{TargetDate: testDate, Bets: []bet.Instruction{oneBet(1)}, TotalBudget: budget(1000)})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if h.portal.PurchaseCount() != 0 {
		t.Fatalf("reconciled bet must not be purchased again")
	}
	res := sum.Results[0]
	if res.Outcome != OutcomeSuccess || !res.Reconciled || sum.PurchasedAmount != 0 || sum.TotalAmount != 1000 {
		t.Fatalf("unexpected reconciliation result %+v / %+v", res, sum)
	}
	if rec, _ := h.record(t, 1); rec.Status != ledger.StatusPurchased {
		t.Fatalf("expected PURCHASED after reconciliation, got %s", rec.Status)
	}
}

func TestRunRetriesFailedAttemptNotOnPortal(t *testing.T) {
	h := newHarness(t, 10000, nil)
	if err := ledger.Seed(h.storage, identity(1), ledger.NewRecord(identity(1), 1000, ledger.StatusFailed)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	sum, err := h.orch.Run(context.Background(), Request{TargetDate: testDate, Bets: []bet.Instruction{oneBet(1)}, TotalBudget: budget(1000)})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if h.portal.PurchaseCount() != 1 || sum.Results[0].Outcome != OutcomeSuccess || sum.Results[0].Reconciled {
		t.Fatalf("expected a fresh purchase, got %+v", sum.Results[0])
	}
}

func TestRunStopsWhenTimeBudgetRunsOut(t *testing.T) {
	h := newHarness(t, 10000, func(o *Options, _ *funding.Policy) {
		o.RunBudget = 8 * time.Second
		o.StepTimeout = time.Second
		o.SettleDelay = 2 * time.Second
	})

	sum, err := h.orch.Run(context.Background(), Request{
		TargetDate:  testDate,
		Bets:        []bet.Instruction{oneBet(1), oneBet(2), oneBet(3)},
		TotalBudget: budget(3000),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !sum.Incomplete || sum.Counts[OutcomeSuccess] != 2 || sum.Results[2].Reason != ReasonTimeBudget {
		t.Fatalf("expected two bets then a time_budget skip, got %+v", sum)
	}
	if !sum.Success || sum.Status() != "incomplete" {
		t.Fatalf("incomplete run keeps its success flag, got success=%v status=%s", sum.Success, sum.Status())
	}
	if h.notes.count(notification.KindRunIncomplete) != 1 {
		t.Fatalf("expected run_incomplete notification")
	}
	if _, ok := h.record(t, 3); ok {
		t.Fatalf("skipped bet must not be recorded")
	}
}

func TestRunSkipsLoginWhenNoCycleFits(t *testing.T) {
	h := newHarness(t, 0, func(o *Options, _ *funding.Policy) {
		o.RunBudget = time.Second
		o.StepTimeout = 30 * time.Second
	})

	sum, err := h.orch.Run(context.Background(), Request{TargetDate: testDate, Bets: []bet.Instruction{oneBet(1)}, TotalBudget: budget(1000)})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !sum.Incomplete || sum.Results[0].Outcome != OutcomeSkipped || sum.Results[0].Reason != ReasonTimeBudget {
		t.Fatalf("expected time_budget skip, got %+v", sum)
	}
	if h.portal.Logins != 0 || len(h.portal.Deposits) != 0 || sum.Funding != nil {
		t.Fatalf("no login or deposit expected, got logins=%d deposits=%v", h.portal.Logins, h.portal.Deposits)
	}
}

type cancelingAuth struct {
	cancel context.CancelFunc
}

func (a cancelingAuth) Begin(ctx context.Context) (auth.Session, error) {
	a.cancel()
	return auth.Session{}, ctx.Err()
}

type cancelingFunder struct {
	cancel context.CancelFunc
}

func (f cancelingFunder) EnsureFunded(ctx context.Context, _ auth.Session, _ string, target int64) (funding.Result, error) {
	f.cancel()
	err := fmt.Errorf("%w: read balance: %w", funding.ErrFundingFailed, ctx.Err())
	return funding.Result{Target: target, Outcome: funding.OutcomeFailed, Error: err.Error()}, err
}

func TestRunDeadlineDuringLoginIsIncomplete(t *testing.T) {
	h := newHarness(t, 10000, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.orch.deps.Auth = cancelingAuth{cancel: cancel}

	sum, err := h.orch.Run(ctx, Request{TargetDate: testDate, Bets: []bet.Instruction{oneBet(1)}, TotalBudget: budget(1000)})
	if err != nil {
		t.Fatalf("expected a partial summary, got %v", err)
	}
	if !sum.Incomplete || sum.Failure != nil || sum.Results[0].Reason != ReasonTimeBudget {
		t.Fatalf("expected incomplete run, got %+v", sum)
	}
	if h.notes.count(notification.KindAuthFailed) != 0 || h.notes.count(notification.KindRunError) != 0 {
		t.Fatalf("no failure alerts expected: %v", h.notes.events)
	}
}

func TestRunDeadlineDuringFundingIsIncomplete(t *testing.T) {
	h := newHarness(t, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.orch.deps.Funding = cancelingFunder{cancel: cancel}

	sum, err := h.orch.Run(ctx, Request{TargetDate: testDate, Bets: []bet.Instruction{oneBet(1), oneBet(2)}, TotalBudget: budget(2000)})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !sum.Incomplete || sum.Failure != nil || sum.Status() != "incomplete" {
		t.Fatalf("expected incomplete run without failure, got %+v", sum)
	}
	for _, res := range sum.Results {
		if res.Outcome != OutcomeSkipped || res.Reason != ReasonTimeBudget {
			t.Fatalf("expected time_budget skip, got %+v", res)
		}
	}
	if h.notes.count(notification.KindFundingFailed) != 0 || h.portal.PurchaseCount() != 0 {
		t.Fatalf("no funding alert or purchase expected: %v", h.notes.events)
	}
}

type failingStorage struct{}

func (failingStorage) Read(context.Context, string) (ledger.Entries, error) {
	return nil, errors.New("bucket unreachable")
}

func (failingStorage) Write(context.Context, string, ledger.Entries) error {
	return errors.New("bucket unreachable")
}

func TestRunLedgerOutageIsInfrastructureError(t *testing.T) {
	h := newHarness(t, 10000, nil)
	h.ledger = ledger.New(failingStorage{}, logging.Discard())
	h.build(h.orch.opts, funding.Policy{DefaultDeposit: 10000, MaxPerDay: 50000})

	_, err := h.orch.Run(context.Background(), Request{TargetDate: testDate, Bets: []bet.Instruction{oneBet(1)}, TotalBudget: budget(1000)})
	if !errors.Is(err, ErrInfrastructure) {
		t.Fatalf("expected infrastructure error, got %v", err)
	}
	if h.portal.PurchaseCount() != 0 {
		t.Fatalf("no purchase without a readable ledger")
	}
}

func TestRunUsesScheduledBudget(t *testing.T) {
	h := newHarness(t, 10000, nil)

	sum, err := h.orch.Run(context.Background(), Request{TargetDate: testDate, Bets: []bet.Instruction{oneBet(1), oneBet(2)}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, res := range sum.Results {
		if res.Amount != 500 {
			t.Fatalf("expected fallback budget split to 500, got %d", res.Amount)
		}
	}
}
