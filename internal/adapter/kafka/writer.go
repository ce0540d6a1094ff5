package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/cadet-location-service/internal/config"
	"github.com/couchcryptid/cadet-location-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// writeTimeout caps a single publish when the caller's context has no
// earlier deadline.
const writeTimeout = 5 * time.Second

// NotificationWriter publishes user-visible notifications to a Kafka topic
// so dashboards on other consoles can show the same toasts.
// It implements domain.Notifier.
type NotificationWriter struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewNotificationWriter creates a Kafka producer for the configured notify topic.
func NewNotificationWriter(cfg *config.Config, logger *slog.Logger) *NotificationWriter {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaNotifyTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: writeTimeout,
	}
	return &NotificationWriter{writer: w, logger: logger}
}

// Notify serializes and publishes a single notification.
func (w *NotificationWriter) Notify(ctx context.Context, n domain.Notification) error {
	msg, err := serializeToMessage(n)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

func (w *NotificationWriter) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a Notification into a Kafka message keyed by
// operation so each operation's notifications stay ordered.
func serializeToMessage(n domain.Notification) (kafkago.Message, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize notification: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(n.Operation),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "id", Value: []byte(n.ID)},
			{Key: "level", Value: []byte(n.Level)},
			{Key: "emitted_at", Value: []byte(n.EmittedAt.Format(time.RFC3339))},
		},
	}, nil
}
