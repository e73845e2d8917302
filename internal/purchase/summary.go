package purchase

import (
	"time"

	"github.com/akatsuki-labs/akatsuki/internal/bet"
	"github.com/akatsuki-labs/akatsuki/internal/funding"
)

// Request is one invocation of the orchestrator.
type Request struct {
	TargetDate string            `json:"target_date"`
	Bets       []bet.Instruction `json:"bets"`
	DryRun     bool              `json:"dry_run"`
	// TotalBudget overrides the scheduled daily budget.
	TotalBudget *int64 `json:"total_budget,omitempty"`
}

// Outcome is the per-bet result class.
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeUnverified Outcome = "unverified"
	OutcomeFailed     Outcome = "failed"
	OutcomeSimulated  Outcome = "simulated"
	OutcomeSkipped    Outcome = "skipped"
)

// Reasons a bet was skipped.
const (
	ReasonInsufficientFunds    = "insufficient_funds"
	ReasonTimeBudget           = "time_budget"
	ReasonFundingFailed        = "funding_failed"
	ReasonAuthenticationFailed = "authentication_failed"
)

// Result is the outcome of one bet.
type Result struct {
	Identity  bet.Identity `json:"identity"`
	VenueName string       `json:"venue_name"`
	Amount    int64        `json:"amount"`
	Outcome   Outcome      `json:"outcome"`
	Reason    string       `json:"reason,omitempty"`
	// PreExisting marks a bet the ledger already held as purchased.
	PreExisting bool `json:"pre_existing,omitempty"`
	// Reconciled marks an earlier unconfirmed attempt found on the portal.
	Reconciled bool   `json:"reconciled,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Summary is returned once per run.
type Summary struct {
	RunID      string `json:"run_id"`
	TargetDate string `json:"target_date"`
	DryRun     bool   `json:"dry_run"`
	// TotalAmount sums the bets confirmed purchased, including earlier runs.
	TotalAmount int64 `json:"total_amount"`
	// PurchasedAmount sums the purchases confirmed by this run.
	PurchasedAmount int64           `json:"purchased_amount"`
	Counts          map[Outcome]int `json:"counts"`
	Results         []Result        `json:"results"`
	Funding         *funding.Result `json:"funding,omitempty"`
	Failure         *Failure        `json:"failure,omitempty"`
	Incomplete      bool            `json:"incomplete"`
	Success         bool            `json:"success"`
	Location        string          `json:"location,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at"`
}

// Status condenses a summary into one label for logs and metrics.
func (s Summary) Status() string {
	switch {
	case s.Failure != nil:
		return "failed"
	case s.Incomplete:
		return "incomplete"
	case s.Success:
		return "success"
	default:
		return "partial"
	}
}
