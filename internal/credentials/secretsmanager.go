package credentials

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsAPI is the subset of the Secrets Manager client used here.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// FieldNames maps bundle fields to keys of the JSON secret.
type FieldNames struct {
	Identifier    string
	AccountNumber string
	PIN           string
	SecondaryCode string
}

// DefaultFieldNames matches the layout of the existing portal secret.
var DefaultFieldNames = FieldNames{
	Identifier:    "jra_inet_id",
	AccountNumber: "jra_user_id",
	PIN:           "jra_password",
	SecondaryCode: "jra_pars",
}

// SecretsManagerProvider reads a JSON secret from AWS Secrets Manager.
type SecretsManagerProvider struct {
	client SecretsAPI
	fields FieldNames
}

// NewSecretsManagerProvider wraps client using DefaultFieldNames.
func NewSecretsManagerProvider(client SecretsAPI) *SecretsManagerProvider {
	return &SecretsManagerProvider{client: client, fields: DefaultFieldNames}
}

// WithFieldNames overrides the JSON keys read from the secret.
func (p *SecretsManagerProvider) WithFieldNames(fields FieldNames) *SecretsManagerProvider {
	p.fields = fields
	return p
}

// Get fetches and validates the bundle stored under name.
func (p *SecretsManagerProvider) Get(ctx context.Context, name string) (Bundle, error) {
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(name)})
	if err != nil {
		return Bundle{}, fmt.Errorf("get secret %s: %w", name, err)
	}
	if out.SecretString == nil {
		return Bundle{}, fmt.Errorf("%w: secret %s has no string value", ErrMissingField, name)
	}

	var values map[string]any
	if err := json.Unmarshal([]byte(aws.ToString(out.SecretString)), &values); err != nil {
		return Bundle{}, fmt.Errorf("%w: secret %s is not a JSON object", ErrMissingField, name)
	}

	bundle := Bundle{
		Identifier:    stringField(values, p.fields.Identifier),
		AccountNumber: stringField(values, p.fields.AccountNumber),
		PIN:           stringField(values, p.fields.PIN),
		SecondaryCode: stringField(values, p.fields.SecondaryCode),
	}
	if err := bundle.Validate(); err != nil {
		return Bundle{}, err
	}
	return bundle, nil
}

// stringField tolerates numeric JSON values for numeric credentials.
func stringField(values map[string]any, key string) string {
	switch v := values[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}
