package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/akatsuki-labs/akatsuki/internal/auth"
	"github.com/akatsuki-labs/akatsuki/internal/bet"
	"github.com/akatsuki-labs/akatsuki/internal/browser"
	"github.com/akatsuki-labs/akatsuki/internal/config"
	"github.com/akatsuki-labs/akatsuki/internal/credentials"
	"github.com/akatsuki-labs/akatsuki/internal/funding"
	"github.com/akatsuki-labs/akatsuki/internal/ledger"
	"github.com/akatsuki-labs/akatsuki/internal/objectstore"
	"github.com/akatsuki-labs/akatsuki/internal/portal"
	"github.com/akatsuki-labs/akatsuki/internal/purchase"
	"github.com/akatsuki-labs/akatsuki/internal/session"
	"github.com/akatsuki-labs/akatsuki/internal/stake"
)

// ErrRunInProgress is returned when Invoke is called while another run holds the Runner.
var ErrRunInProgress = errors.New("run already in progress")

// PortalFactory opens a portal for one run. The returned func releases it.
type PortalFactory func(ctx context.Context) (portal.Portal, func() error, error)

// ChromePortal launches (or attaches to) a browser per run and drives the
// configured portal through it.
func ChromePortal(cfg config.Config, logger *slog.Logger) PortalFactory {
	return func(ctx context.Context) (portal.Portal, func() error, error) {
		surface, err := browser.NewChrome(browser.Options{
			RemoteURL:   cfg.Portal.RemoteURL,
			Headless:    cfg.Portal.Headless,
			StepTimeout: cfg.Portal.StepTimeout,
			DownloadDir: cfg.Portal.DownloadDir,
			Logger:      logger,
		})
		if err != nil {
			return nil, nil, err
		}
		var limiter *rate.Limiter
		if cfg.Portal.ActionInterval > 0 {
			limiter = rate.NewLimiter(rate.Every(cfg.Portal.ActionInterval), 1)
		}
		site := portal.NewSite(surface, portal.DefaultLayout(cfg.Portal.URL), limiter, logger)
		return site, surface.Close, nil
	}
}

// RunnerDeps are the long-lived collaborators shared by every run.
type RunnerDeps struct {
	Config      config.Config
	Ledger      *ledger.Ledger
	Sessions    session.Store
	Credentials credentials.Provider
	Tally       funding.Tally
	Budget      purchase.Budgeter
	Notifier    purchase.Notifier
	Metrics     purchase.Metrics
	Store       objectstore.Store
	OpenPortal  PortalFactory
}

// Runner executes one purchase run at a time and archives its summary.
type Runner struct {
	deps   RunnerDeps
	logger *slog.Logger
	now    func() time.Time
	mu     sync.Mutex
}

func NewRunner(deps RunnerDeps, logger *slog.Logger) *Runner {
	return &Runner{deps: deps, logger: logger, now: time.Now}
}

// Invoke resolves the target date in the configured timezone, loads the
// day's prediction export when the request names no bets, runs the
// orchestrator under the run budget and archives the summary.
func (r *Runner) Invoke(ctx context.Context, req purchase.Request) (purchase.Summary, error) {
	if !r.mu.TryLock() {
		return purchase.Summary{}, ErrRunInProgress
	}
	defer r.mu.Unlock()

	cfg := r.deps.Config
	loc := cfg.Location()
	date, err := bet.NormalizeDate(req.TargetDate, r.now().In(loc))
	if err != nil {
		return purchase.Summary{}, fmt.Errorf("%w: %w", purchase.ErrConfiguration, err)
	}
	req.TargetDate = date
	if len(req.Bets) == 0 {
		if req.Bets, err = r.loadBets(ctx, date); err != nil {
			return purchase.Summary{}, err
		}
	}

	if cfg.Run.Budget > 0 {
		// hard stop one step after the run budget
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Run.Budget+cfg.Portal.StepTimeout)
		defer cancel()
	}

	site, release, err := r.deps.OpenPortal(ctx)
	if err != nil {
		return purchase.Summary{}, fmt.Errorf("%w: open portal: %w", purchase.ErrInfrastructure, err)
	}
	defer func() {
		if err := release(); err != nil {
			r.logger.Warn("close portal", slog.Any("error", err))
		}
	}()

	orch := r.orchestrator(site)
	summary, err := orch.Run(ctx, req)
	if err != nil {
		return purchase.Summary{}, err
	}
	r.archive(ctx, &summary, loc)
	return summary, nil
}

func (r *Runner) orchestrator(site portal.Portal) *purchase.Orchestrator {
	cfg := r.deps.Config
	authSvc := auth.NewService(site, r.deps.Credentials, r.deps.Sessions, cfg.Secrets.Name, cfg.Run.ExecutionIdentity, r.logger)
	fundSvc := funding.NewService(site, r.deps.Tally, funding.Policy{
		DefaultDeposit: cfg.Funding.DefaultDeposit,
		MaxPerDay:      cfg.Funding.MaxPerDay,
	}, r.logger)

	return purchase.New(purchase.Deps{
		Ledger:    r.deps.Ledger,
		Portal:    site,
		Auth:      authSvc,
		Funding:   fundSvc,
		Budget:    r.deps.Budget,
		Notifier:  r.deps.Notifier,
		Metrics:   r.deps.Metrics,
		Artifacts: r.deps.Store,
	}, purchase.Options{
		Allocator:                 stake.Allocator{Unit: cfg.Stake.RoundingUnit, Floor: cfg.Stake.Floor},
		SettleDelay:               cfg.Portal.SettleDelay,
		StepTimeout:               cfg.Portal.StepTimeout,
		RunBudget:                 cfg.Run.Budget,
		InsufficientPolicy:        cfg.Funding.InsufficientPolicy,
		UnverifiedCountsAsFailure: cfg.Run.UnverifiedCountsAsFailure,
	}, r.logger)
}

// loadBets reads the prediction export of date. A missing export yields no
// bets and the run ends as a no-op.
func (r *Runner) loadBets(ctx context.Context, date string) ([]bet.Instruction, error) {
	if r.deps.Store == nil {
		return nil, nil
	}
	key := objectstore.PredictionKey(date)
	data, err := r.deps.Store.Get(ctx, key)
	if errors.Is(err, objectstore.ErrNotFound) {
		r.logger.Warn("prediction export not found", slog.String("key", key))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", purchase.ErrInfrastructure, key, err)
	}
	bets, err := bet.ParseCSV(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", purchase.ErrConfiguration, key, err)
	}
	r.logger.Info("bets loaded from prediction export", slog.String("key", key), slog.Int("bets", len(bets)))
	return bets, nil
}

// archive stores the summary as JSON. A failed archive is logged and leaves
// Location empty; the run outcome is unaffected.
func (r *Runner) archive(ctx context.Context, summary *purchase.Summary, loc *time.Location) {
	if r.deps.Store == nil {
		return
	}
	key := objectstore.ResultKey(summary.TargetDate, r.now().In(loc))
	location := key
	if l, ok := r.deps.Store.(objectstore.Locator); ok {
		location = l.Location(key)
	}
	summary.Location = location

	data, err := json.MarshalIndent(summary, "", "  ")
	if err == nil {
		err = r.deps.Store.Put(context.WithoutCancel(ctx), key, data, objectstore.ContentTypeJSON)
	}
	if err != nil {
		summary.Location = ""
		r.logger.Warn("archive run summary",
			slog.String("run_id", summary.RunID),
			slog.String("key", key),
			slog.Any("error", err))
		return
	}
	r.logger.Info("run summary archived", slog.String("run_id", summary.RunID), slog.String("location", location))
}

// WithPortal replaces how runs open the portal.
func (r *Runner) WithPortal(open PortalFactory) *Runner {
	r.deps.OpenPortal = open
	return r
}
