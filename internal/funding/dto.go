package funding

// Outcome is the result class of a funding check.
type Outcome string

const (
	OutcomeOK           Outcome = "ok"
	OutcomeInsufficient Outcome = "insufficient"
	OutcomeFailed       Outcome = "failed"
)

// Result describes what the controller found and did.
type Result struct {
	Outcome       Outcome `json:"outcome"`
	Target        int64   `json:"target"`
	BalanceBefore int64   `json:"balance_before"`
	Balance       int64   `json:"balance"`
	Deposited     int64   `json:"deposited"`
	Error         string  `json:"error,omitempty"`
}

// Allowance is the deposit headroom left for a day.
type Allowance struct {
	Day       string `json:"day"`
	Deposited int64  `json:"deposited"`
	MaxPerDay int64  `json:"max_per_day"`
	Remaining int64  `json:"remaining"`
}
