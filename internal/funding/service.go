package funding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/akatsuki-labs/akatsuki/internal/auth"
	"github.com/akatsuki-labs/akatsuki/internal/portal"
)

// ErrFundingFailed wraps every cause of an OutcomeFailed result.
var ErrFundingFailed = errors.New("funding failed")

// Policy bounds automatic deposits. MaxPerDay <= 0 means no daily cap.
type Policy struct {
	DefaultDeposit int64
	MaxPerDay      int64
}

// Service makes sure the portal balance covers the planned stakes.
type Service struct {
	portal portal.Portal
	tally  Tally
	policy Policy
	logger *slog.Logger
}

func NewService(p portal.Portal, tally Tally, policy Policy, logger *slog.Logger) *Service {
	return &Service{portal: p, tally: tally, policy: policy, logger: logger}
}

// EnsureFunded reads the balance and deposits when it is below target. The
// error is non-nil exactly when the outcome is OutcomeFailed.
func (s *Service) EnsureFunded(ctx context.Context, sess auth.Session, day string, target int64) (Result, error) {
	res := Result{Target: target}
	fail := func(err error) (Result, error) {
		err = fmt.Errorf("%w: %w", ErrFundingFailed, err)
		res.Outcome = OutcomeFailed
		res.Error = err.Error()
		s.logger.Error("funding failed", slog.String("day", day), slog.Int64("target", target), slog.Any("error", err))
		return res, err
	}

	balance, err := s.portal.Balance(ctx)
	if err != nil {
		return fail(fmt.Errorf("read balance: %w", err))
	}
	res.BalanceBefore, res.Balance = balance, balance
	if balance >= target {
		res.Outcome = OutcomeOK
		return res, nil
	}

	allowance, err := s.Allowance(ctx, day)
	if err != nil {
		return fail(err)
	}
	amount := max(target-balance, s.policy.DefaultDeposit)
	if s.policy.MaxPerDay > 0 {
		amount = min(amount, allowance.Remaining)
	}
	if amount <= 0 {
		s.logger.Warn("daily deposit cap reached", slog.String("day", day), slog.Int64("deposited", allowance.Deposited))
		res.Outcome = OutcomeInsufficient
		return res, nil
	}

	if err := s.portal.Deposit(ctx, amount, sess.Credentials.PIN); err != nil {
		return fail(fmt.Errorf("deposit %d: %w", amount, err))
	}
	if _, err := s.tally.Add(ctx, day, amount); err != nil {
		s.logger.Warn("record deposit tally failed", slog.String("day", day), slog.Int64("amount", amount), slog.Any("error", err))
	}
	res.Deposited = amount
	res.Balance = balance + amount
	s.logger.Info("deposit completed",
		slog.String("day", day),
		slog.Int64("amount", amount),
		slog.Int64("balance", res.Balance))

	if res.Balance < target {
		res.Outcome = OutcomeInsufficient
		return res, nil
	}
	res.Outcome = OutcomeOK
	return res, nil
}

// Allowance reports how much may still be deposited on day.
func (s *Service) Allowance(ctx context.Context, day string) (Allowance, error) {
	deposited, err := s.tally.Deposited(ctx, day)
	if err != nil {
		return Allowance{}, fmt.Errorf("read deposit tally: %w", err)
	}
	a := Allowance{Day: day, Deposited: deposited, MaxPerDay: s.policy.MaxPerDay}
	if s.policy.MaxPerDay > 0 {
		a.Remaining = max(s.policy.MaxPerDay-deposited, 0)
	}
	return a, nil
}
