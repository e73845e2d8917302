package purchase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/akatsuki-labs/akatsuki/internal/auth"
	"github.com/akatsuki-labs/akatsuki/internal/bet"
	"github.com/akatsuki-labs/akatsuki/internal/config"
	"github.com/akatsuki-labs/akatsuki/internal/funding"
	"github.com/akatsuki-labs/akatsuki/internal/ledger"
	"github.com/akatsuki-labs/akatsuki/internal/notification"
	"github.com/akatsuki-labs/akatsuki/internal/objectstore"
	"github.com/akatsuki-labs/akatsuki/internal/portal"
	"github.com/akatsuki-labs/akatsuki/internal/stake"
)

// Authenticator yields the session every portal interaction runs under.
type Authenticator interface {
	Begin(ctx context.Context) (auth.Session, error)
}

// Funder makes sure the balance covers the planned stakes.
type Funder interface {
	EnsureFunded(ctx context.Context, sess auth.Session, day string, target int64) (funding.Result, error)
}

// Budgeter resolves the total budget of a target date.
type Budgeter interface {
	Budget(ctx context.Context, date string) (int64, error)
}

// Notifier receives lifecycle events. It must not block.
type Notifier interface {
	Notify(kind string, payload map[string]any)
}

// Metrics records run and bet outcomes.
type Metrics interface {
	ObserveBet(outcome string)
	ObserveDeposit(amount int64)
	ObserveRun(status string, elapsed time.Duration)
}

// Deps are the collaborators of an Orchestrator. Artifacts, Notifier and
// Metrics may be nil.
type Deps struct {
	Ledger    *ledger.Ledger
	Portal    portal.Portal
	Auth      Authenticator
	Funding   Funder
	Budget    Budgeter
	Notifier  Notifier
	Metrics   Metrics
	Artifacts objectstore.Store
}

// Options tune the orchestration policy.
type Options struct {
	Allocator   stake.Allocator
	SettleDelay time.Duration
	StepTimeout time.Duration
	// RunBudget bounds the run's wall-clock time; zero leaves only the
	// context deadline.
	RunBudget                 time.Duration
	InsufficientPolicy        string
	UnverifiedCountsAsFailure bool
}

// Orchestrator sequences authentication, funding and the per-bet
// purchase-then-verify cycle. One Orchestrator serves one run at a time.
type Orchestrator struct {
	deps   Deps
	opts   Options
	logger *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	newID func() string
}

func New(deps Deps, opts Options, logger *slog.Logger) *Orchestrator {
	if deps.Notifier == nil {
		deps.Notifier = discardNotifier{}
	}
	if deps.Metrics == nil {
		deps.Metrics = discardMetrics{}
	}
	return &Orchestrator{
		deps:   deps,
		opts:   opts,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		sleep:  sleepContext,
		newID:  uuid.NewString,
	}
}

type plannedBet struct {
	inst   bet.Instruction
	id     bet.Identity
	amount int64
	index  int
}

type run struct {
	summary  Summary
	deadline time.Time
}

// Run executes one invocation. Configuration and infrastructure problems
// return an error and no summary; every other failure is reported in the
// summary.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Summary, error) {
	start := o.now()
	r := &run{summary: Summary{
		RunID:     o.newID(),
		DryRun:    req.DryRun,
		StartedAt: start,
		Counts:    map[Outcome]int{},
		Results:   []Result{},
	}}
	r.deadline = o.deadline(ctx, start)

	date, bets, err := o.validate(req, start)
	if err != nil {
		return Summary{}, o.abort(r, err)
	}
	r.summary.TargetDate = date
	logger := o.logger.With(slog.String("run_id", r.summary.RunID), slog.String("target_date", date))
	logger.Info("run started", slog.Int("bets", len(bets)), slog.Bool("dry_run", req.DryRun))
	o.deps.Notifier.Notify(notification.KindRunStarted, map[string]any{
		"run_id": r.summary.RunID, "target_date": date, "bets": len(bets), "dry_run": req.DryRun,
	})

	if len(bets) == 0 {
		o.deps.Notifier.Notify(notification.KindNoBets, map[string]any{"target_date": date})
		return o.finish(r, logger), nil
	}

	entries, err := o.deps.Ledger.Get(ctx, date)
	if err != nil {
		return Summary{}, o.abort(r, fmt.Errorf("%w: %w", ErrInfrastructure, err))
	}
	plan, err := o.plan(ctx, date, bets, req.TotalBudget)
	if err != nil {
		return Summary{}, o.abort(r, err)
	}

	r.summary.Results = make([]Result, len(plan))
	var pending []plannedBet
	for i, p := range plan {
		rec, found := entries[p.id.Key()]
		if ledger.Decide(rec, found) == ledger.DecisionSkip {
			r.summary.Results[i] = preExisting(p.id, rec)
			logger.Info("bet already purchased", slog.String("bet", p.id.Key()))
			continue
		}
		r.summary.Results[i] = newResult(p, OutcomeSkipped)
		pending = append(pending, p)
	}
	if len(pending) == 0 {
		return o.finish(r, logger), nil
	}

	// login and deposit only when at least one purchase cycle still fits
	if !o.hasTimeFor(r) || ctx.Err() != nil {
		o.outOfTime(r, pending, logger)
		return o.finish(r, logger), nil
	}

	sess, err := o.deps.Auth.Begin(ctx)
	if err != nil {
		if errors.Is(err, auth.ErrCredentialsUnavailable) {
			return Summary{}, o.abort(r, fmt.Errorf("%w: %w", ErrConfiguration, err))
		}
		if ctx.Err() != nil {
			o.outOfTime(r, pending, logger)
			return o.finish(r, logger), nil
		}
		logger.Error("authentication failed", slog.Any("error", err))
		o.deps.Notifier.Notify(notification.KindAuthFailed, map[string]any{"target_date": date, "error": err.Error()})
		r.summary.Failure = &Failure{Kind: FailureAuthentication, Message: err.Error()}
		skipAll(r, pending, ReasonAuthenticationFailed)
		return o.finish(r, logger), nil
	}

	attempt, ok := o.fund(ctx, r, sess, date, pending, logger)
	if !ok {
		return o.finish(r, logger), nil
	}

	for i, p := range attempt {
		if !o.hasTimeFor(r) || ctx.Err() != nil {
			o.outOfTime(r, attempt[i:], logger)
			break
		}
		res := o.process(ctx, sess, p, req.DryRun, logger)
		r.summary.Results[p.index] = res
		if res.Outcome == OutcomeSuccess && !res.PreExisting && !res.Reconciled {
			r.summary.PurchasedAmount += res.Amount
		}
	}
	return o.finish(r, logger), nil
}

func (o *Orchestrator) validate(req Request, now time.Time) (string, []bet.Instruction, error) {
	date, err := bet.NormalizeDate(req.TargetDate, now)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if req.TotalBudget != nil && *req.TotalBudget < 0 {
		return "", nil, fmt.Errorf("%w: %w", ErrConfiguration, stake.ErrNegativeBudget)
	}
	bets, err := bet.Prepare(date, req.Bets)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return date, bets, nil
}

// plan computes stakes over the whole request so reruns size each bet the
// same way regardless of what the ledger already holds.
func (o *Orchestrator) plan(ctx context.Context, date string, bets []bet.Instruction, override *int64) ([]plannedBet, error) {
	var total int64
	if override != nil {
		total = *override
	} else {
		budget, err := o.deps.Budget.Budget(ctx, date)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInfrastructure, err)
		}
		total = budget
	}
	amounts, err := o.opts.Allocator.Plan(bets, total)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	out := make([]plannedBet, len(bets))
	for i, inst := range bets {
		out[i] = plannedBet{inst: inst, id: inst.Identity(date), amount: amounts[i], index: i}
	}
	return out, nil
}

// fund runs the funding controller for the pending bets and returns those
// that may be attempted. ok is false when the run must stop.
func (o *Orchestrator) fund(ctx context.Context, r *run, sess auth.Session, date string, pending []plannedBet, logger *slog.Logger) ([]plannedBet, bool) {
	var target int64
	for _, p := range pending {
		target += p.amount
	}
	res, err := o.deps.Funding.EnsureFunded(ctx, sess, date, target)
	r.summary.Funding = &res
	if res.Deposited > 0 {
		o.deps.Metrics.ObserveDeposit(res.Deposited)
		o.deps.Notifier.Notify(notification.KindDepositCompleted, map[string]any{
			"target_date": date, "amount": res.Deposited, "balance": res.Balance,
		})
	}

	switch res.Outcome {
	case funding.OutcomeOK:
		return pending, true
	case funding.OutcomeInsufficient:
		o.deps.Notifier.Notify(notification.KindFundingInsufficient, map[string]any{
			"target_date": date, "target": target, "balance": res.Balance, "policy": o.opts.InsufficientPolicy,
		})
		if o.opts.InsufficientPolicy == config.PolicyFail {
			r.summary.Failure = &Failure{Kind: FailureFunding, Message: fmt.Sprintf("balance %d below planned stakes %d", res.Balance, target)}
			skipAll(r, pending, ReasonInsufficientFunds)
			return nil, false
		}
		var kept []plannedBet
		var used int64
		for i, p := range pending {
			if used+p.amount > res.Balance {
				skipAll(r, pending[i:], ReasonInsufficientFunds)
				break
			}
			used += p.amount
			kept = append(kept, p)
		}
		logger.Warn("bet set reduced to fit balance",
			slog.Int("kept", len(kept)),
			slog.Int("skipped", len(pending)-len(kept)),
			slog.Int64("balance", res.Balance))
		return kept, true
	default:
		if err != nil && ctx.Err() != nil {
			o.outOfTime(r, pending, logger)
			return nil, false
		}
		msg := res.Error
		if err != nil {
			msg = err.Error()
		}
		o.deps.Notifier.Notify(notification.KindFundingFailed, map[string]any{"target_date": date, "target": target, "error": msg})
		r.summary.Failure = &Failure{Kind: FailureFunding, Message: msg}
		skipAll(r, pending, ReasonFundingFailed)
		return nil, false
	}
}

// process runs the ledger-gated purchase-then-verify cycle of one bet.
func (o *Orchestrator) process(ctx context.Context, sess auth.Session, p plannedBet, dryRun bool, logger *slog.Logger) Result {
	res := newResult(p, OutcomeFailed)
	logger = logger.With(slog.String("bet", p.id.Key()), slog.Int64("amount", p.amount))
	tk := portal.Ticket{Identity: p.id, VenueName: res.VenueName, Amount: p.amount}

	if dryRun {
		res.Outcome = OutcomeSimulated
		logger.Info("dry run, purchase skipped")
		return res
	}

	rec, found, err := o.deps.Ledger.Lookup(ctx, p.id)
	if err != nil {
		res.Error = err.Error()
		logger.Error("ledger unavailable, bet not attempted", slog.Any("error", err))
		return res
	}
	switch ledger.Decide(rec, found) {
	case ledger.DecisionSkip:
		return preExisting(p.id, rec)
	case ledger.DecisionReconcile:
		if done, ok := o.reconcile(ctx, p, rec, logger); ok {
			return done
		}
	}

	ahead := ledger.NewRecord(p.id, p.amount, ledger.StatusUnverified)
	ahead.Note = "submission in progress"
	if err := o.deps.Ledger.Record(ctx, p.id, ahead); err != nil {
		if errors.Is(err, ledger.ErrRecordTerminal) {
			done := preExisting(p.id, rec)
			if done.Amount == 0 {
				done.Amount = p.amount
			}
			return done
		}
		res.Error = err.Error()
		logger.Error("write-ahead record failed, bet not attempted", slog.Any("error", err))
		return res
	}

	shown, err := o.deps.Portal.SubmitPurchase(ctx, tk)
	if err != nil || !shown {
		msg := "success indicator not shown"
		if err != nil {
			msg = err.Error()
		}
		failed := ledger.NewRecord(p.id, p.amount, ledger.StatusFailed)
		failed.ErrorMessage = msg
		o.write(ctx, p.id, failed, logger)
		res.Error = msg
		logger.Warn("purchase submission failed", slog.String("error", msg))
		o.deps.Notifier.Notify(notification.KindPurchaseFailed, eventPayload(p, msg))
		return res
	}

	final, outcome := o.verify(ctx, p, tk, logger)
	o.write(ctx, p.id, final, logger)
	res.Outcome = outcome
	if outcome == OutcomeSuccess {
		logger.Info("purchase confirmed")
		o.deps.Notifier.Notify(notification.KindBetPurchased, eventPayload(p, ""))
		return res
	}
	res.Error = final.Note
	logger.Warn("purchase unverified", slog.String("note", final.Note))
	o.deps.Notifier.Notify(notification.KindPurchaseUnverified, eventPayload(p, final.Note))
	return res
}

// reconcile checks an earlier unconfirmed attempt against the inquiry view.
// ok reports that the bet was found and needs no new purchase.
func (o *Orchestrator) reconcile(ctx context.Context, p plannedBet, rec ledger.Record, logger *slog.Logger) (Result, bool) {
	inq, err := o.deps.Portal.Inquiry(ctx)
	if err != nil {
		logger.Warn("reconciliation inquiry failed, attempting purchase", slog.Any("error", err))
		return Result{}, false
	}
	o.archive(ctx, p.id, inq, logger)
	tk := portal.Ticket{Identity: p.id, VenueName: bet.VenueName(p.id.VenueCode), Amount: rec.Amount}
	if inq.Match(tk) != portal.MatchFound {
		logger.Info("earlier attempt not found, purchasing", slog.String("previous_status", string(rec.Status)))
		return Result{}, false
	}

	confirmed := ledger.NewRecord(p.id, rec.Amount, ledger.StatusPurchased)
	confirmed.Note = "reconciled from " + strings.ToLower(string(rec.Status))
	o.write(ctx, p.id, confirmed, logger)
	logger.Info("earlier attempt reconciled as purchased", slog.String("previous_status", string(rec.Status)))

	res := newResult(p, OutcomeSuccess)
	res.Amount = rec.Amount
	res.Reconciled = true
	return res, true
}

func (o *Orchestrator) verify(ctx context.Context, p plannedBet, tk portal.Ticket, logger *slog.Logger) (ledger.Record, Outcome) {
	unverified := func(note string) (ledger.Record, Outcome) {
		rec := ledger.NewRecord(p.id, p.amount, ledger.StatusUnverified)
		rec.Note = note
		return rec, OutcomeUnverified
	}

	if err := o.sleep(ctx, o.opts.SettleDelay); err != nil {
		return unverified("verification interrupted: " + err.Error())
	}
	inq, err := o.deps.Portal.Inquiry(ctx)
	if err != nil {
		return unverified("inquiry failed: " + err.Error())
	}
	o.archive(ctx, p.id, inq, logger)

	switch inq.Match(tk) {
	case portal.MatchFound:
		return ledger.NewRecord(p.id, p.amount, ledger.StatusPurchased), OutcomeSuccess
	case portal.MatchAmountMismatch:
		return unverified("inquiry amount mismatch")
	default:
		return unverified("not found in inquiry")
	}
}

// write persists a record; failures are logged because the write-ahead
// record already guards the bet against repurchase.
func (o *Orchestrator) write(ctx context.Context, id bet.Identity, rec ledger.Record, logger *slog.Logger) {
	if err := o.deps.Ledger.Record(ctx, id, rec); err != nil {
		logger.Error("ledger write failed", slog.String("status", string(rec.Status)), slog.Any("error", err))
	}
}

func (o *Orchestrator) archive(ctx context.Context, id bet.Identity, inq portal.Inquiry, logger *slog.Logger) {
	if o.deps.Artifacts == nil || len(inq.Raw) == 0 {
		return
	}
	ext := "txt"
	if inq.ContentType == objectstore.ContentTypeCSV {
		ext = "csv"
	}
	name := fmt.Sprintf("inquiry_%s_%s.%s", strings.ReplaceAll(id.Key(), ":", "-"), o.now().Format("150405"), ext)
	key := objectstore.ArtifactKey(id.TargetDate, name)
	if err := o.deps.Artifacts.Put(ctx, key, inq.Raw, inq.ContentType); err != nil {
		logger.Warn("archive inquiry failed", slog.String("key", key), slog.Any("error", err))
	}
}

func (o *Orchestrator) deadline(ctx context.Context, start time.Time) time.Time {
	var deadline time.Time
	if o.opts.RunBudget > 0 {
		deadline = start.Add(o.opts.RunBudget)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	return deadline
}

// hasTimeFor reports whether a full submit, settle and verify cycle still fits.
func (o *Orchestrator) hasTimeFor(r *run) bool {
	if r.deadline.IsZero() {
		return true
	}
	cycle := o.opts.SettleDelay + 3*o.opts.StepTimeout
	return r.deadline.Sub(o.now()) >= cycle
}

// outOfTime marks the run incomplete and skips the remaining bets.
func (o *Orchestrator) outOfTime(r *run, remaining []plannedBet, logger *slog.Logger) {
	r.summary.Incomplete = true
	skipAll(r, remaining, ReasonTimeBudget)
	logger.Warn("run budget exhausted, stopping", slog.Int("remaining_bets", len(remaining)))
}

func (o *Orchestrator) finish(r *run, logger *slog.Logger) Summary {
	s := &r.summary
	s.FinishedAt = o.now()
	for _, res := range s.Results {
		s.Counts[res.Outcome]++
		o.deps.Metrics.ObserveBet(string(res.Outcome))
		if res.Outcome == OutcomeSuccess {
			s.TotalAmount += res.Amount
		}
	}
	fundingOK := s.Funding == nil || s.Funding.Outcome == funding.OutcomeOK
	unverifiedOK := !o.opts.UnverifiedCountsAsFailure || s.Counts[OutcomeUnverified] == 0
	s.Success = s.Failure == nil && s.Counts[OutcomeFailed] == 0 && fundingOK && unverifiedOK

	kind := notification.KindRunCompleted
	if s.Incomplete {
		kind = notification.KindRunIncomplete
	}
	o.deps.Notifier.Notify(kind, map[string]any{
		"run_id":       s.RunID,
		"target_date":  s.TargetDate,
		"status":       s.Status(),
		"total_amount": s.TotalAmount,
		"counts":       s.Counts,
	})
	o.deps.Metrics.ObserveRun(s.Status(), s.FinishedAt.Sub(s.StartedAt))
	logger.Info("run finished",
		slog.String("status", s.Status()),
		slog.Int64("total_amount", s.TotalAmount),
		slog.Int64("purchased_amount", s.PurchasedAmount),
		slog.Bool("incomplete", s.Incomplete))
	return *s
}

func (o *Orchestrator) abort(r *run, err error) error {
	o.logger.Error("run aborted", slog.String("run_id", r.summary.RunID), slog.Any("error", err))
	o.deps.Notifier.Notify(notification.KindRunError, map[string]any{"run_id": r.summary.RunID, "error": err.Error()})
	o.deps.Metrics.ObserveRun("error", o.now().Sub(r.summary.StartedAt))
	return err
}

func newResult(p plannedBet, outcome Outcome) Result {
	return Result{Identity: p.id, VenueName: bet.VenueName(p.id.VenueCode), Amount: p.amount, Outcome: outcome}
}

func preExisting(id bet.Identity, rec ledger.Record) Result {
	return Result{
		Identity:    id,
		VenueName:   bet.VenueName(id.VenueCode),
		Amount:      rec.Amount,
		Outcome:     OutcomeSuccess,
		PreExisting: true,
	}
}

func skipAll(r *run, bets []plannedBet, reason string) {
	for _, p := range bets {
		res := newResult(p, OutcomeSkipped)
		res.Reason = reason
		r.summary.Results[p.index] = res
	}
}

func eventPayload(p plannedBet, detail string) map[string]any {
	payload := map[string]any{
		"bet":       p.id.String(),
		"key":       p.id.Key(),
		"amount":    p.amount,
		"selection": p.inst.SelectionName,
	}
	if detail != "" {
		payload["detail"] = detail
	}
	return payload
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type discardNotifier struct{}

func (discardNotifier) Notify(string, map[string]any) {}

type discardMetrics struct{}

func (discardMetrics) ObserveBet(string) {}

func (discardMetrics) ObserveDeposit(int64) {}

func (discardMetrics) ObserveRun(string, time.Duration) {}
