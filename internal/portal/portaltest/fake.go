// Package portaltest provides an in-memory Portal for tests.
package portaltest

import (
	"bytes"
	"context"
	"sync"

	"github.com/akatsuki-labs/akatsuki/internal/portal"
)

// PurchaseBehavior scripts how the fake portal reacts to one ticket.
type PurchaseBehavior struct {
	// Hidden makes the indicator appear without the transaction registering.
	Hidden bool
	// NoIndicator suppresses the screen-level success indicator.
	NoIndicator bool
	// RegisteredAmount overrides the amount the inquiry view reports.
	RegisteredAmount int64
	Err              error
}

// Portal is a scripted, in-memory portal.Portal.
type Portal struct {
	mu sync.Mutex

	// ValidSession is the session blob the fake accepts on restore.
	ValidSession  []byte
	AcceptLogin   bool
	ErrorOnLogin  bool
	BalanceAmount int64
	BalanceErr    error
	DepositErr    error
	InquiryErr    error
	Behaviors     map[string]PurchaseBehavior

	authenticated bool
	loginStage    int
	transactions  []portal.Transaction

	Logins    int
	Restores  int
	Deposits  []int64
	Purchases []portal.Ticket
	Inquiries int
}

var _ portal.Portal = (*Portal)(nil)

// New returns a fake that accepts logins and holds balance.
func New(balance int64) *Portal {
	return &Portal{
		ValidSession:  []byte("valid-session"),
		AcceptLogin:   true,
		BalanceAmount: balance,
		Behaviors:     map[string]PurchaseBehavior{},
	}
}

// Register adds a transaction to the inquiry view, as if purchased earlier.
func (p *Portal) Register(tk portal.Ticket) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transactions = append(p.transactions, transactionFor(tk, tk.Amount))
}

// Authenticated reports the fake's current login state.
func (p *Portal) Authenticated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.authenticated
}

// PurchaseCount returns how many purchase actions were submitted.
func (p *Portal) PurchaseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Purchases)
}

func (p *Portal) OpenHome(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loginStage = 0
	return nil
}

func (p *Portal) IsAuthenticatedView(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.authenticated, nil
}

func (p *Portal) HasErrorMarker(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ErrorOnLogin && p.loginStage == 2, nil
}

func (p *Portal) SubmitIdentifier(context.Context, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loginStage = 1
	return nil
}

func (p *Portal) SubmitAccount(context.Context, string, string, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Logins++
	p.loginStage = 2
	p.authenticated = p.AcceptLogin && !p.ErrorOnLogin
	return nil
}

func (p *Portal) ExportSession(context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.ValidSession...), nil
}

func (p *Portal) RestoreSession(_ context.Context, blob []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Restores++
	p.authenticated = bytes.Equal(blob, p.ValidSession)
	return nil
}

func (p *Portal) Balance(context.Context) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.BalanceErr != nil {
		return 0, p.BalanceErr
	}
	return p.BalanceAmount, nil
}

func (p *Portal) Deposit(_ context.Context, amount int64, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.DepositErr != nil {
		return p.DepositErr
	}
	p.Deposits = append(p.Deposits, amount)
	p.BalanceAmount += amount
	return nil
}

func (p *Portal) SubmitPurchase(_ context.Context, tk portal.Ticket) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Purchases = append(p.Purchases, tk)
	b := p.Behaviors[tk.Identity.Key()]
	if b.Err != nil {
		return false, b.Err
	}
	if b.NoIndicator {
		return false, nil
	}
	p.BalanceAmount -= tk.Amount
	if !b.Hidden {
		amount := tk.Amount
		if b.RegisteredAmount != 0 {
			amount = b.RegisteredAmount
		}
		p.transactions = append(p.transactions, transactionFor(tk, amount))
	}
	return true, nil
}

func (p *Portal) Inquiry(context.Context) (portal.Inquiry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Inquiries++
	if p.InquiryErr != nil {
		return portal.Inquiry{}, p.InquiryErr
	}
	txs := append([]portal.Transaction(nil), p.transactions...)
	return portal.Inquiry{Transactions: txs, Raw: []byte("inquiry"), ContentType: "text/plain"}, nil
}

func transactionFor(tk portal.Ticket, amount int64) portal.Transaction {
	return portal.Transaction{
		VenueName:       tk.VenueName,
		RaceNumber:      tk.Identity.RaceNumber,
		BetType:         tk.Identity.BetType,
		SelectionNumber: tk.Identity.SelectionNumber,
		Amount:          amount,
	}
}
