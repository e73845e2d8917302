package stake

import (
	"errors"
	"fmt"

	"github.com/akatsuki-labs/akatsuki/internal/bet"
)

var (
	// ErrNegativeBudget is a programming error: budgets are validated before allocation.
	ErrNegativeBudget = errors.New("negative total budget")
	// ErrInvalidAmount flags an explicit per-bet amount the portal would refuse.
	ErrInvalidAmount = errors.New("invalid bet amount")
	// ErrInvalidUnit is returned by an Allocator without a positive Unit.
	ErrInvalidUnit = errors.New("rounding unit must be positive")
)

// Allocator splits a total budget evenly across bets.
type Allocator struct {
	Unit  int64
	Floor int64
}

// Allocate returns max(Floor, round_down(total/count, Unit)). A zero count
// yields zero.
func (a Allocator) Allocate(total int64, count int) (int64, error) {
	if a.Unit <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidUnit, a.Unit)
	}
	if total < 0 {
		return 0, fmt.Errorf("%w: %d", ErrNegativeBudget, total)
	}
	if count <= 0 {
		return 0, nil
	}
	per := total / int64(count)
	per -= per % a.Unit
	if per < a.Floor {
		return a.Floor, nil
	}
	return per, nil
}

// CheckAmount validates an explicit per-bet amount.
func (a Allocator) CheckAmount(amount int64) error {
	if a.Unit <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidUnit, a.Unit)
	}
	if amount < a.Floor {
		return fmt.Errorf("%w: %d is below the minimum %d", ErrInvalidAmount, amount, a.Floor)
	}
	if amount%a.Unit != 0 {
		return fmt.Errorf("%w: %d is not a multiple of %d", ErrInvalidAmount, amount, a.Unit)
	}
	return nil
}

// Plan returns the stake of every bet in order. Explicit amounts are kept;
// the budget left after them is allocated evenly across the remaining bets.
// Plans depend only on the request, so re-runs compute identical stakes.
func (a Allocator) Plan(bets []bet.Instruction, total int64) ([]int64, error) {
	if a.Unit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidUnit, a.Unit)
	}
	if total < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeBudget, total)
	}
	remaining := total
	open := 0
	for _, b := range bets {
		if b.Amount == nil {
			open++
			continue
		}
		if err := a.CheckAmount(*b.Amount); err != nil {
			return nil, err
		}
		remaining -= *b.Amount
	}
	if remaining < 0 {
		remaining = 0
	}

	per, err := a.Allocate(remaining, open)
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(bets))
	for i, b := range bets {
		if b.Amount != nil {
			out[i] = *b.Amount
		} else {
			out[i] = per
		}
	}
	return out, nil
}
