package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrMissingField flags a credential bundle that cannot be used to log in.
var ErrMissingField = errors.New("credential field missing or malformed")

// Bundle holds the portal login secrets.
type Bundle struct {
	Identifier    string
	AccountNumber string
	PIN           string
	SecondaryCode string
}

// Validate checks that every field is present and that the numeric ones are digits.
func (b Bundle) Validate() error {
	fields := []struct {
		name    string
		value   string
		numeric bool
	}{
		{"identifier", b.Identifier, false},
		{"account_number", b.AccountNumber, true},
		{"pin", b.PIN, true},
		{"secondary_code", b.SecondaryCode, true},
	}
	for _, f := range fields {
		v := strings.TrimSpace(f.value)
		if v == "" {
			return fmt.Errorf("%w: %s", ErrMissingField, f.name)
		}
		if f.numeric && !isDigits(v) {
			return fmt.Errorf("%w: %s must be numeric", ErrMissingField, f.name)
		}
	}
	return nil
}

// Redacted returns a log-safe description.
func (b Bundle) Redacted() string {
	return fmt.Sprintf("identifier=%s*** account_digits=%d", prefix(b.Identifier, 2), len(b.AccountNumber))
}

// Provider fetches a credential bundle by secret name.
type Provider interface {
	Get(ctx context.Context, name string) (Bundle, error)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return ""
	}
	return s[:n]
}
