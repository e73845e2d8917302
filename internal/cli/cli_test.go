package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/akatsuki-labs/akatsuki/internal/app"
	"github.com/akatsuki-labs/akatsuki/internal/bet"
	"github.com/akatsuki-labs/akatsuki/internal/config"
	"github.com/akatsuki-labs/akatsuki/internal/ledger"
	"github.com/akatsuki-labs/akatsuki/internal/objectstore"
	"github.com/akatsuki-labs/akatsuki/internal/portal"
	"github.com/akatsuki-labs/akatsuki/internal/portal/portaltest"
	"github.com/akatsuki-labs/akatsuki/internal/session"
)

func testConfig() config.Config {
	return config.Config{
		AppEnv:         "development",
		LedgerBackend:  config.BackendMemory,
		SessionBackend: config.BackendMemory,
		Portal:         config.PortalConfig{StepTimeout: time.Second},
		Secrets:        config.SecretsConfig{Provider: "env", Name: "secret", EnvPrefix: "AKATSUKI_TEST"},
		Stake:          config.StakeConfig{RoundingUnit: 100, Floor: 100, DefaultBudget: 1000},
		Funding:        config.FundingConfig{DefaultDeposit: 10000, MaxPerDay: 50000, InsufficientPolicy: config.PolicyReduce},
		Run: config.RunConfig{
			UnverifiedCountsAsFailure: true,
			ExecutionIdentity:         "default",
			Timezone:                  "Asia/Tokyo",
		},
		Notify: config.NotifyConfig{Backend: "log", MaxAttempts: 1, RetryDelay: time.Millisecond},
	}
}

type harness struct {
	root    *cobra.Command
	out     *bytes.Buffer
	runtime *app.App
	fake    *portaltest.Portal
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("AKATSUKI_TEST_IDENTIFIER", "AB12CD34")
	t.Setenv("AKATSUKI_TEST_ACCOUNT_NUMBER", "12345678")
	t.Setenv("AKATSUKI_TEST_PIN", "1234")
	t.Setenv("AKATSUKI_TEST_SECONDARY_CODE", "5678")

	h := &harness{out: &bytes.Buffer{}, fake: portaltest.New(5000)}
	opts := &RootOptions{
		LoadConfig: func() (config.Config, error) { return testConfig(), nil },
		Build: func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app.App, error) {
			// reuse one runtime so state survives across commands of a test
			if h.runtime == nil {
				rt, err := app.Build(ctx, cfg, logger)
				if err != nil {
					return nil, err
				}
				rt.Runner.WithPortal(func(context.Context) (portal.Portal, func() error, error) {
					return h.fake, func() error { return nil }, nil
				})
				h.runtime = rt
			}
			return h.runtime, nil
		},
	}
	h.root = newRootCommand(opts)
	h.root.SetOut(h.out)
	h.root.SetErr(&bytes.Buffer{})
	return h
}

func (h *harness) exec(args ...string) error {
	h.out.Reset()
	h.root.SetArgs(args)
	return h.root.ExecuteContext(context.Background())
}

func writeBets(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bets.csv")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write bets: %v", err)
	}
	return path
}

func TestCommandPresence(t *testing.T) {
	root := NewRootCommand()
	for _, path := range [][]string{{"run"}, {"evaluate"}, {"ledger", "show"}, {"session", "clear"}} {
		sub, _, err := root.Find(path)
		if err != nil || sub.Name() != path[len(path)-1] {
			t.Fatalf("command %v missing: %v", path, err)
		}
	}
}

func TestRunPurchasesAndPrintsSummary(t *testing.T) {
	h := newHarness(t)
	path := writeBets(t, "venue_code,race_number,selection_number\n06,11,7\n")

	if err := h.exec("run", "--date", "20250105", "--bets", path); err != nil {
		t.Fatalf("run: %v", err)
	}
	out := h.out.String()
	if !strings.Contains(out, "status=success") || !strings.Contains(out, "20250105:06:11:07:WIN") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	if err := h.exec("ledger", "show", "--date", "20250105", "--format", "json"); err != nil {
		t.Fatalf("ledger show: %v", err)
	}
	var view struct {
		Tickets []ledger.Record `json:"tickets"`
	}
	if err := json.Unmarshal(h.out.Bytes(), &view); err != nil {
		t.Fatalf("decode ledger view: %v\n%s", err, h.out.String())
	}
	if len(view.Tickets) != 1 || view.Tickets[0].Status != ledger.StatusPurchased {
		t.Fatalf("unexpected ledger %+v", view.Tickets)
	}

	if err := h.exec("run", "--date", "20250105", "--bets", path); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if got := h.fake.PurchaseCount(); got != 1 {
		t.Fatalf("expected one purchase action across reruns, got %d", got)
	}
}

func TestRunFailureSetsExitCode(t *testing.T) {
	h := newHarness(t)
	h.fake.AcceptLogin = false
	path := writeBets(t, "venue_code,race_number,selection_number\n06,11,7\n")

	err := h.exec("run", "--date", "20250105", "--bets", path)
	if GetExitCode(err) != ExitFailure {
		t.Fatalf("expected exit %d, got %v", ExitFailure, err)
	}
	if !strings.Contains(h.out.String(), "failure: authentication") {
		t.Fatalf("expected authentication failure in output:\n%s", h.out.String())
	}
}

func TestRunDryRunStillFunds(t *testing.T) {
	h := newHarness(t)
	h.fake = portaltest.New(0)
	path := writeBets(t, "venue_code,race_number,selection_number\n06,11,7\n")

	if err := h.exec("run", "--date", "20250105", "--bets", path, "--dry-run"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(h.fake.Deposits) != 1 || h.fake.PurchaseCount() != 0 {
		t.Fatalf("expected one deposit and no purchase, got deposits=%v purchases=%d", h.fake.Deposits, h.fake.PurchaseCount())
	}
	if !strings.Contains(h.out.String(), "simulated") {
		t.Fatalf("expected simulated outcome:\n%s", h.out.String())
	}
	run, _, _ := h.root.Find([]string{"run"})
	if usage := run.Flags().Lookup("dry-run").Usage; !strings.Contains(usage, "fund") {
		t.Fatalf("dry-run help must mention funding, got %q", usage)
	}
}

func TestEvaluateSettlesPurchasedBets(t *testing.T) {
	h := newHarness(t)
	if err := h.exec("evaluate", "--date", "20250105"); err != nil {
		t.Fatalf("evaluate without purchases: %v", err)
	}
	if !strings.Contains(h.out.String(), "status=no_purchases") {
		t.Fatalf("unexpected output %q", h.out.String())
	}

	id := bet.Identity{TargetDate: "20250105", VenueCode: "06", RaceNumber: 11, SelectionNumber: 7, BetType: bet.TypeWin}
	if err := h.runtime.Ledger.Record(context.Background(), id, ledger.NewRecord(id, 1000, ledger.StatusPurchased)); err != nil {
		t.Fatalf("record: %v", err)
	}
	results := "PlaceCode,RaceNumber,Win_HorseNumber1,Win_Payout1\n6,11,7,350\n"
	if err := h.runtime.Store.Put(context.Background(), objectstore.RaceResultKey("20250105"), []byte(results), objectstore.ContentTypeCSV); err != nil {
		t.Fatalf("put results: %v", err)
	}
	if err := h.exec("evaluate", "--date", "20250105", "--format", "json"); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	var report struct {
		Status  string `json:"status"`
		Summary struct {
			Profit int64 `json:"profit"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(h.out.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v (%q)", err, h.out.String())
	}
	if report.Status != "success" || report.Summary.Profit != 2500 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestEvaluateRejectsInvalidDate(t *testing.T) {
	h := newHarness(t)
	err := h.exec("evaluate", "--date", "soon")
	if GetExitCode(err) != ExitCommandError || !errors.Is(err, bet.ErrInvalidInstruction) {
		t.Fatalf("expected invalid date error, got %v", err)
	}
}

func TestRunRejectsMissingBetFile(t *testing.T) {
	h := newHarness(t)
	err := h.exec("run", "--bets", filepath.Join(t.TempDir(), "absent.csv"))
	if GetExitCode(err) != ExitCommandError {
		t.Fatalf("expected exit %d, got %v", ExitCommandError, err)
	}
}

func TestRunRejectsInvalidDate(t *testing.T) {
	h := newHarness(t)
	err := h.exec("run", "--date", "yesterday")
	if GetExitCode(err) != ExitCommandError || !errors.Is(err, bet.ErrInvalidInstruction) {
		t.Fatalf("expected invalid date error, got %v", err)
	}
}

func TestSessionClear(t *testing.T) {
	h := newHarness(t)
	if err := h.exec("ledger", "show", "--date", "20250105"); err != nil {
		t.Fatalf("ledger show: %v", err)
	}
	if !strings.Contains(h.out.String(), "no records for 20250105") {
		t.Fatalf("unexpected output %q", h.out.String())
	}

	if err := h.runtime.Sessions.Save(context.Background(), "default", session.State{Blob: []byte("x")}); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	if err := h.exec("session", "clear"); err != nil {
		t.Fatalf("session clear: %v", err)
	}
	if state, err := h.runtime.Sessions.Load(context.Background(), "default"); err != nil || state != nil {
		t.Fatalf("expected session cleared, got %+v err=%v", state, err)
	}
}

func TestInvalidFormat(t *testing.T) {
	h := newHarness(t)
	if err := h.exec("ledger", "show", "--format", "xml"); err == nil {
		t.Fatalf("expected format error")
	}
}
