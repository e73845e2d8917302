package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Event kinds emitted over a run and its evaluation.
const (
	KindRunStarted          = "run_started"
	KindNoBets              = "no_bets"
	KindAuthFailed          = "auth_failed"
	KindFundingFailed       = "funding_failed"
	KindFundingInsufficient = "funding_insufficient"
	KindDepositCompleted    = "deposit_completed"
	KindBetPurchased        = "bet_purchased"
	KindPurchaseFailed      = "purchase_failed"
	KindPurchaseUnverified  = "purchase_unverified"
	KindRunCompleted        = "run_completed"
	KindRunIncomplete       = "run_incomplete"
	KindRunError            = "run_error"
	KindEvaluationCompleted = "evaluation_completed"
	KindEvaluationNoData    = "evaluation_no_data"
)

// Message describes a notification payload.
type Message struct {
	Kind        string         `json:"kind"`
	Destination string         `json:"destination"`
	Body        string         `json:"body"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// Routes maps event classes to destination channels.
type Routes struct {
	Ops    string
	Alerts string
	Bets   string
}

// Destination picks the channel for kind.
func (r Routes) Destination(kind string) string {
	switch kind {
	case KindAuthFailed, KindFundingFailed, KindPurchaseUnverified, KindPurchaseFailed, KindRunError:
		return r.Alerts
	case KindBetPurchased:
		return r.Bets
	default:
		return r.Ops
	}
}

// NewMessage builds a message with a readable body rendered from payload.
func NewMessage(kind, destination string, payload map[string]any) Message {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys)+1)
	parts = append(parts, kind)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, payload[k]))
	}
	return Message{Kind: kind, Destination: destination, Body: strings.Join(parts, " "), Payload: payload}
}

// LoggerNotifier writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
	return nil
}
