package funding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/akatsuki-labs/akatsuki/internal/auth"
	"github.com/akatsuki-labs/akatsuki/internal/credentials"
	"github.com/akatsuki-labs/akatsuki/internal/logging"
	"github.com/akatsuki-labs/akatsuki/internal/portal"
	"github.com/akatsuki-labs/akatsuki/internal/portal/portaltest"
)

var testSession = auth.Session{Identity: "default", Credentials: credentials.Bundle{PIN: "1234"}}

func newTestService(p portal.Portal, tally Tally, policy Policy) *Service {
	return NewService(p, tally, policy, logging.Discard())
}

func TestEnsureFundedNoDepositWhenCovered(t *testing.T) {
	p := portaltest.New(5000)
	svc := newTestService(p, NewMemoryTally(), Policy{DefaultDeposit: 10000, MaxPerDay: 50000})

	res, err := svc.EnsureFunded(context.Background(), testSession, "20250105", 3000)
	if err != nil {
		t.Fatalf("ensure funded: %v", err)
	}
	if res.Outcome != OutcomeOK || len(p.Deposits) != 0 {
		t.Fatalf("expected ok without deposit, got %+v deposits=%v", res, p.Deposits)
	}
}

func TestEnsureFundedDepositsDefaultAmount(t *testing.T) {
	p := portaltest.New(1000)
	tally := NewMemoryTally()
	svc := newTestService(p, tally, Policy{DefaultDeposit: 10000, MaxPerDay: 50000})

	res, err := svc.EnsureFunded(context.Background(), testSession, "20250105", 3000)
	if err != nil {
		t.Fatalf("ensure funded: %v", err)
	}
	if res.Outcome != OutcomeOK || res.Deposited != 10000 || res.Balance != 11000 {
		t.Fatalf("unexpected result %+v", res)
	}
	if got, _ := tally.Deposited(context.Background(), "20250105"); got != 10000 {
		t.Fatalf("tally not updated: %d", got)
	}
}

func TestEnsureFundedDepositsShortfallAboveDefault(t *testing.T) {
	p := portaltest.New(0)
	svc := newTestService(p, NewMemoryTally(), Policy{DefaultDeposit: 1000, MaxPerDay: 50000})

	res, err := svc.EnsureFunded(context.Background(), testSession, "20250105", 7000)
	if err != nil || res.Deposited != 7000 || res.Outcome != OutcomeOK {
		t.Fatalf("expected shortfall deposit, got %+v (%v)", res, err)
	}
}

func TestEnsureFundedCappedDepositIsInsufficient(t *testing.T) {
	p := portaltest.New(0)
	tally := NewMemoryTally()
	_, _ = tally.Add(context.Background(), "20250105", 48000)
	svc := newTestService(p, tally, Policy{DefaultDeposit: 10000, MaxPerDay: 50000})

	res, err := svc.EnsureFunded(context.Background(), testSession, "20250105", 5000)
	if err != nil {
		t.Fatalf("ensure funded: %v", err)
	}
	if res.Outcome != OutcomeInsufficient || res.Deposited != 2000 || res.Balance != 2000 {
		t.Fatalf("expected capped insufficient, got %+v", res)
	}

	res, _ = svc.EnsureFunded(context.Background(), testSession, "20250105", 5000)
	if res.Outcome != OutcomeInsufficient || res.Deposited != 0 {
		t.Fatalf("exhausted cap must not deposit, got %+v", res)
	}
}

func TestEnsureFundedFailures(t *testing.T) {
	cases := map[string]func(*portaltest.Portal){
		"declined":   func(p *portaltest.Portal) { p.DepositErr = portal.ErrDepositDeclined },
		"no balance": func(p *portaltest.Portal) { p.BalanceErr = portal.ErrBalanceUnreadable },
	}
	for name, configure := range cases {
		t.Run(name, func(t *testing.T) {
			p := portaltest.New(0)
			configure(p)
			svc := newTestService(p, NewMemoryTally(), Policy{DefaultDeposit: 10000, MaxPerDay: 50000})
			res, err := svc.EnsureFunded(context.Background(), testSession, "20250105", 1000)
			if !errors.Is(err, ErrFundingFailed) || res.Outcome != OutcomeFailed || res.Error == "" {
				t.Fatalf("expected failed outcome, got %+v (%v)", res, err)
			}
		})
	}
}

func TestRedisTally(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	tally := NewRedisTally(client)
	ctx := context.Background()

	if got, err := tally.Deposited(ctx, "20250105"); err != nil || got != 0 {
		t.Fatalf("expected empty tally, got %d (%v)", got, err)
	}
	if _, err := tally.Add(ctx, "20250105", 10000); err != nil {
		t.Fatalf("add: %v", err)
	}
	total, err := tally.Add(ctx, "20250105", 5000)
	if err != nil || total != 15000 {
		t.Fatalf("expected 15000, got %d (%v)", total, err)
	}
	if ttl := mr.TTL(tallyKey("20250105")); ttl != tallyTTL {
		t.Fatalf("expected ttl %v, got %v", tallyTTL, ttl)
	}
}

func TestHandlerAllowance(t *testing.T) {
	tally := NewMemoryTally()
	_, _ = tally.Add(context.Background(), "20250105", 20000)
	svc := newTestService(portaltest.New(0), tally, Policy{DefaultDeposit: 10000, MaxPerDay: 50000})
	h := NewHandler(svc, func() time.Time { return time.Date(2025, 1, 5, 8, 0, 0, 0, time.UTC) })

	app := fiber.New()
	app.Get("/funding/:date", h.Allowance)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/funding/auto", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("allowance: %v %v", resp, err)
	}
	var body Allowance
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Day != "20250105" || body.Remaining != 30000 {
		t.Fatalf("unexpected allowance %+v", body)
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/funding/yesterday", nil))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", resp.StatusCode)
	}
}
