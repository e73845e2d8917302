package portal

import (
	"context"
	"errors"

	"github.com/akatsuki-labs/akatsuki/internal/bet"
)

var (
	// ErrDepositDeclined is returned when the portal refuses a deposit instruction.
	ErrDepositDeclined = errors.New("deposit declined by portal")
	// ErrBalanceUnreadable is returned when no balance figure can be found on the page.
	ErrBalanceUnreadable = errors.New("balance not found on page")
)

// Ticket is one purchase as the portal needs it.
type Ticket struct {
	Identity  bet.Identity
	VenueName string
	Amount    int64
}

// Transaction is one row of the portal's recent-transactions inquiry.
type Transaction struct {
	VenueName       string `json:"venue_name"`
	RaceNumber      int    `json:"race_number"`
	BetType         string `json:"bet_type"`
	SelectionNumber int    `json:"selection_number"`
	Amount          int64  `json:"amount"`
}

// Inquiry is the parsed inquiry view plus the raw artifact it came from.
type Inquiry struct {
	Transactions []Transaction
	Raw          []byte
	ContentType  string
}

// MatchResult classifies how an inquiry relates to a ticket.
type MatchResult int

const (
	// MatchNone means no transaction carries the ticket's identity.
	MatchNone MatchResult = iota
	// MatchAmountMismatch means the identity was found with a different amount.
	MatchAmountMismatch
	// MatchFound means identity and amount both match.
	MatchFound
)

// Match looks for tk among the inquiry's transactions.
func (q Inquiry) Match(tk Ticket) MatchResult {
	result := MatchNone
	for _, tx := range q.Transactions {
		if !tx.sameBet(tk) {
			continue
		}
		if tx.Amount == tk.Amount {
			return MatchFound
		}
		result = MatchAmountMismatch
	}
	return result
}

func (tx Transaction) sameBet(tk Ticket) bool {
	id := tk.Identity
	if tx.RaceNumber != id.RaceNumber || tx.SelectionNumber != id.SelectionNumber {
		return false
	}
	if tx.VenueName != tk.VenueName {
		return false
	}
	return tx.BetType == id.BetType || tx.BetType == bet.TypeLabel(id.BetType)
}

// Portal is the site-specific capability the authenticator, funding
// controller and orchestrator drive. Implementations hold one browser session
// and are not safe for concurrent use.
type Portal interface {
	OpenHome(ctx context.Context) error
	// IsAuthenticatedView reports whether the current page shows no login form.
	IsAuthenticatedView(ctx context.Context) (bool, error)
	HasErrorMarker(ctx context.Context) (bool, error)
	SubmitIdentifier(ctx context.Context, identifier string) error
	SubmitAccount(ctx context.Context, accountNumber, pin, secondaryCode string) error
	ExportSession(ctx context.Context) ([]byte, error)
	RestoreSession(ctx context.Context, blob []byte) error
	Balance(ctx context.Context) (int64, error)
	Deposit(ctx context.Context, amount int64, pin string) error
	// SubmitPurchase reports whether the screen-level success indicator appeared.
	SubmitPurchase(ctx context.Context, tk Ticket) (bool, error)
	Inquiry(ctx context.Context) (Inquiry, error)
}
