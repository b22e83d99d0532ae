package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"example.com/emailevents/internal/domain"
)

const kafkaWriteTimeout = 10 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes one message per alert, keyed by rule name so a
// rule's alerts stay on one partition.
type KafkaNotifier struct {
	writer messageWriter
	topic  string
	log    *zap.Logger
}

func NewKafkaNotifier(brokers []string, topic string, log *zap.Logger) (*KafkaNotifier, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("brokers cannot be empty")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		WriteTimeout:           kafkaWriteTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newKafkaNotifier(w, topic, log), nil
}

func newKafkaNotifier(w messageWriter, topic string, log *zap.Logger) *KafkaNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaNotifier{
		writer: w,
		topic:  topic,
		log:    log.With(zap.String("component", "kafka-notifier"), zap.String("topic", topic)),
	}
}

func (k *KafkaNotifier) Type() string { return "kafka" }

func (k *KafkaNotifier) Send(ctx context.Context, alerts []domain.AlertEvent) error {
	msgs := make([]kafka.Message, 0, len(alerts))
	for _, a := range alerts {
		value, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("marshal alert %q: %w", a.Rule, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(a.Rule),
			Value: value,
			Time:  a.TriggeredAt,
			Headers: []kafka.Header{
				{Key: "severity", Value: []byte(a.Severity)},
			},
		})
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write alerts to %s: %w", k.topic, err)
	}
	k.log.Info("alerts published", zap.Int("count", len(msgs)))
	return nil
}

func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}
