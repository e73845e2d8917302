package credentials

import (
	"context"
	"os"
	"strings"
)

// EnvProvider reads credentials from <PREFIX>_IDENTIFIER, <PREFIX>_ACCOUNT_NUMBER,
// <PREFIX>_PIN and <PREFIX>_SECONDARY_CODE. The secret name is ignored.
type EnvProvider struct {
	prefix string
	lookup func(string) string
}

// NewEnvProvider reads variables with the given prefix.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{prefix: strings.TrimSuffix(strings.ToUpper(prefix), "_"), lookup: os.Getenv}
}

func (p *EnvProvider) Get(_ context.Context, _ string) (Bundle, error) {
	bundle := Bundle{
		Identifier:    p.lookup(p.prefix + "_IDENTIFIER"),
		AccountNumber: p.lookup(p.prefix + "_ACCOUNT_NUMBER"),
		PIN:           p.lookup(p.prefix + "_PIN"),
		SecondaryCode: p.lookup(p.prefix + "_SECONDARY_CODE"),
	}
	if err := bundle.Validate(); err != nil {
		return Bundle{}, err
	}
	return bundle, nil
}
