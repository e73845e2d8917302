package objectstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get when no object exists under the key.
var ErrNotFound = errors.New("object not found")

// Store is a minimal key/value blob store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Lister is implemented by stores that can enumerate keys under a prefix.
// Keys come back in lexical order.
type Lister interface {
	List(ctx context.Context, prefix string) ([]string, error)
}

// Locator is implemented by stores that can name where a key lives.
type Locator interface {
	Location(key string) string
}

// Content types used by callers.
const (
	ContentTypeJSON = "application/json"
	ContentTypeCSV  = "text/csv"
)

// LedgerKey is where the purchase history of a target date lives.
func LedgerKey(targetDate string) string {
	return fmt.Sprintf("purchase-history/%s/tickets.json", targetDate)
}

// PredictionKey is where the day's bet export from the prediction pipeline lands.
func PredictionKey(targetDate string) string {
	return fmt.Sprintf("inference-results/%s/%s/%s/phase58_bets_%s.csv",
		targetDate[:4], targetDate[4:6], targetDate[6:8], targetDate)
}

// ResultKey is where a run summary is archived.
func ResultKey(targetDate string, at time.Time) string {
	return fmt.Sprintf("purchase-results/%s/purchase_result_%s_%s.json",
		at.Format("2006/01/02"), targetDate, at.Format("150405"))
}

// RaceResultKey is where the official race results of a date are dropped.
func RaceResultKey(targetDate string) string {
	return fmt.Sprintf("csv/%s/%s/%s/HJC/HJC_%s.csv",
		targetDate[:4], targetDate[4:6], targetDate[6:8], targetDate[2:])
}

// EvaluationPrefix holds every stored daily evaluation.
const EvaluationPrefix = "evaluation-results/"

// EvaluationKey is where the evaluation of a target date is stored.
func EvaluationKey(targetDate string) string {
	return fmt.Sprintf("%s%s/%s/%s/daily_%s.json",
		EvaluationPrefix, targetDate[:4], targetDate[4:6], targetDate[6:8], targetDate)
}

// ArtifactKey is where a downloaded portal artifact is kept.
func ArtifactKey(targetDate, name string) string {
	return fmt.Sprintf("artifacts/%s/%s", targetDate, name)
}

// SessionKey is where the session blob for an execution identity is kept.
func SessionKey(identity string) string {
	return fmt.Sprintf("sessions/%s.json", identity)
}
