package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/akatsuki-labs/akatsuki/internal/bet"
	"github.com/akatsuki-labs/akatsuki/internal/browser"
)

// Site implements Portal over a browser Surface.
type Site struct {
	surface browser.Surface
	layout  Layout
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ Portal = (*Site)(nil)

// NewSite binds the flows to surface. A nil limiter disables pacing.
func NewSite(surface browser.Surface, layout Layout, limiter *rate.Limiter, logger *slog.Logger) *Site {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Site{surface: surface, layout: layout, limiter: limiter, logger: logger}
}

func (s *Site) pace(ctx context.Context) error {
	return s.limiter.Wait(ctx)
}

func (s *Site) click(ctx context.Context, surface browser.Surface, t Target) error {
	if err := s.pace(ctx); err != nil {
		return err
	}
	return surface.ClickText(ctx, t.Tag, t.Text, t.Match)
}

func (s *Site) fill(ctx context.Context, surface browser.Surface, selector, value string) error {
	if err := s.pace(ctx); err != nil {
		return err
	}
	return surface.Fill(ctx, selector, value)
}

func (s *Site) OpenHome(ctx context.Context) error {
	if err := s.pace(ctx); err != nil {
		return err
	}
	return s.surface.Navigate(ctx, s.layout.URL)
}

// toTop returns to the portal's top menu, reloading the home page when the
// menu button is not available.
func (s *Site) toTop(ctx context.Context) error {
	if err := s.click(ctx, s.surface, s.layout.Top); err == nil {
		return nil
	} else if ctx.Err() != nil {
		return ctx.Err()
	}
	return s.OpenHome(ctx)
}

// IsAuthenticatedView is true when no login-form marker is shown and, if
// configured, at least one authenticated-menu marker is.
func (s *Site) IsAuthenticatedView(ctx context.Context) (bool, error) {
	login, err := anyText(ctx, s.surface, s.layout.LoginMarkers)
	if err != nil || login {
		return false, err
	}
	if len(s.layout.AuthenticatedMarkers) == 0 {
		return true, nil
	}
	return anyText(ctx, s.surface, s.layout.AuthenticatedMarkers)
}

func (s *Site) HasErrorMarker(ctx context.Context) (bool, error) {
	return anyText(ctx, s.surface, s.layout.ErrorMarkers)
}

func (s *Site) SubmitIdentifier(ctx context.Context, identifier string) error {
	if err := s.fill(ctx, s.surface, s.layout.IdentifierInput, identifier); err != nil {
		return fmt.Errorf("identifier: %w", err)
	}
	if err := s.pace(ctx); err != nil {
		return err
	}
	return s.surface.Click(ctx, s.layout.IdentifierSubmit)
}

func (s *Site) SubmitAccount(ctx context.Context, accountNumber, pin, secondaryCode string) error {
	fields := []struct{ name, selector, value string }{
		{"account number", s.layout.AccountInput, accountNumber},
		{"pin", s.layout.PINInput, pin},
		{"secondary code", s.layout.CodeInput, secondaryCode},
	}
	for _, f := range fields {
		if err := s.fill(ctx, s.surface, f.selector, f.value); err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
	}
	if err := s.pace(ctx); err != nil {
		return err
	}
	return s.surface.Click(ctx, s.layout.AccountSubmit)
}

func (s *Site) ExportSession(ctx context.Context) ([]byte, error) {
	return s.surface.ExportCookies(ctx)
}

func (s *Site) RestoreSession(ctx context.Context, blob []byte) error {
	return s.surface.ImportCookies(ctx, blob)
}

func (s *Site) Balance(ctx context.Context) (int64, error) {
	if err := s.toTop(ctx); err != nil {
		return 0, err
	}
	text, err := s.surface.Text(ctx, "body")
	if err != nil {
		return 0, err
	}
	return parseBalance(text)
}

// Deposit runs the deposit instruction in the funds window the portal opens.
func (s *Site) Deposit(ctx context.Context, amount int64, pin string) error {
	if err := s.toTop(ctx); err != nil {
		return err
	}
	if err := s.pace(ctx); err != nil {
		return err
	}
	t := s.layout.FundsMenu
	win, err := s.surface.OpenWindow(ctx, t.Tag, t.Text, t.Match)
	if err != nil {
		return fmt.Errorf("open funds window: %w", err)
	}
	defer func() {
		if cerr := win.Close(); cerr != nil {
			s.logger.Warn("close funds window failed", slog.Any("error", cerr))
		}
	}()

	steps := []func() error{
		func() error { return s.click(ctx, win, s.layout.DepositLink) },
		func() error { return s.fill(ctx, win, s.layout.DepositAmount, strconv.FormatInt(amount, 10)) },
		func() error { return s.click(ctx, win, s.layout.DepositNext) },
		func() error { return s.fill(ctx, win, s.layout.DepositPIN, pin) },
		func() error { return s.click(ctx, win, s.layout.DepositSubmit) },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			return fmt.Errorf("deposit step %d: %w", i+1, err)
		}
	}

	declined, err := anyText(ctx, win, s.layout.ErrorMarkers)
	if err != nil {
		return err
	}
	if declined {
		return ErrDepositDeclined
	}
	return nil
}

// SubmitPurchase enters one ticket on the voting screen. It returns false
// with a nil error when every step ran but the success indicator never showed.
func (s *Site) SubmitPurchase(ctx context.Context, tk Ticket) (bool, error) {
	id := tk.Identity
	unit := s.layout.TicketUnit
	if unit <= 0 {
		unit = 100
	}
	if tk.Amount <= 0 || tk.Amount%unit != 0 {
		return false, fmt.Errorf("amount %d is not a positive multiple of %d", tk.Amount, unit)
	}
	if err := s.toTop(ctx); err != nil {
		return false, err
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"menu", func() error { return s.click(ctx, s.surface, s.layout.PurchaseMenu) }},
		{"venue", func() error {
			return s.click(ctx, s.surface, Target{Tag: "button", Text: tk.VenueName, Match: browser.Contains})
		}},
		{"race", func() error {
			return s.click(ctx, s.surface, Target{Tag: "button", Text: fmt.Sprintf("%dR", id.RaceNumber), Match: browser.Prefix})
		}},
		{"bet type", func() error {
			if id.BetType == bet.TypeWin {
				return nil
			}
			if err := s.pace(ctx); err != nil {
				return err
			}
			return s.surface.Choose(ctx, s.layout.BetTypeSelect, bet.TypeLabel(id.BetType))
		}},
		{"selection", func() error {
			if err := s.pace(ctx); err != nil {
				return err
			}
			return s.surface.ClickNth(ctx, "label", id.SelectionNumber+s.layout.SelectionLabelOffset)
		}},
		{"set", func() error { return s.click(ctx, s.surface, s.layout.SetButton) }},
		{"finish", func() error { return s.click(ctx, s.surface, s.layout.FinishButton) }},
		{"amount", func() error {
			units := strconv.FormatInt(tk.Amount/unit, 10)
			for _, idx := range s.layout.UnitInputs {
				if err := s.surface.FillNth(ctx, "input", idx, units); err != nil {
					return err
				}
			}
			return s.surface.FillNth(ctx, "input", s.layout.TotalInput, strconv.FormatInt(tk.Amount, 10))
		}},
		{"confirm", func() error { return s.click(ctx, s.surface, s.layout.ConfirmButton) }},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return false, fmt.Errorf("purchase %s: %s: %w", id.Key(), step.name, err)
		}
	}

	if err := s.click(ctx, s.surface, s.layout.SuccessIndicator); err != nil {
		if errors.Is(err, browser.ErrStepTimeout) || errors.Is(err, browser.ErrElementMissing) {
			s.logger.Warn("purchase success indicator missing", slog.String("bet", id.Key()))
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Inquiry opens the recent-transactions view and parses it.
func (s *Site) Inquiry(ctx context.Context) (Inquiry, error) {
	if err := s.toTop(ctx); err != nil {
		return Inquiry{}, err
	}
	if err := s.click(ctx, s.surface, s.layout.InquiryMenu); err != nil {
		return Inquiry{}, fmt.Errorf("inquiry menu: %w", err)
	}
	if err := s.pace(ctx); err != nil {
		return Inquiry{}, err
	}

	if s.layout.InquiryExport != "" {
		raw, err := s.surface.Download(ctx, s.layout.InquiryExport)
		if err != nil {
			return Inquiry{}, fmt.Errorf("inquiry download: %w", err)
		}
		txs, err := parseInquiryCSV(raw, s.layout.InquiryColumns)
		if err != nil {
			return Inquiry{}, err
		}
		return Inquiry{Transactions: txs, Raw: raw, ContentType: "text/csv"}, nil
	}

	text, err := s.surface.Text(ctx, s.layout.InquiryTable)
	if err != nil {
		return Inquiry{}, fmt.Errorf("inquiry table: %w", err)
	}
	return Inquiry{
		Transactions: parseInquiryText(text, s.layout.InquiryColumns),
		Raw:          []byte(text),
		ContentType:  "text/plain",
	}, nil
}

func anyText(ctx context.Context, surface browser.Surface, markers []string) (bool, error) {
	for _, m := range markers {
		ok, err := surface.HasText(ctx, "", m, browser.Contains)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
