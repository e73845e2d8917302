package purchase

import "errors"

// Error kinds that abort a run without a summary are returned wrapped in one
// of these; check with errors.Is.
var (
	ErrConfiguration  = errors.New("configuration error")
	ErrInfrastructure = errors.New("infrastructure error")
)

// Failure kinds reported inside a Summary. Authentication and funding
// failures are business outcomes, not Go errors.
const (
	FailureAuthentication = "authentication"
	FailureFunding        = "funding"
)

// Failure explains why a run stopped before purchasing.
type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
