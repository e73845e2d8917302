package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the notifier needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaNotifier publishes notifications as JSON keyed by kind.
type KafkaNotifier struct {
	writer MessageWriter
	now    func() time.Time
}

func NewKafkaNotifier(writer MessageWriter) *KafkaNotifier {
	return &KafkaNotifier{writer: writer, now: time.Now}
}

type kafkaEnvelope struct {
	Message
	SentAt time.Time `json:"sent_at"`
}

func (n *KafkaNotifier) Send(ctx context.Context, message Message) error {
	value, err := json.Marshal(kafkaEnvelope{Message: message, SentAt: n.now().UTC()})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(message.Kind),
		Value: value,
		Headers: []kafka.Header{
			{Key: "destination", Value: []byte(message.Destination)},
		},
	})
}
