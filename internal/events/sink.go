package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/sakif/botnet/internal/model"
)

// KafkaSink writes each outbox row as one Kafka message.
//
// The message key is the target profile id, so all events about one profile
// land on one partition in order. The event type travels in the
// "event-type" header as well as inside the JSON payload.
type KafkaSink struct {
	w *kafka.Writer
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (s *KafkaSink) Publish(ctx context.Context, entry model.OutboxEntry) error {
	err := s.w.WriteMessages(ctx, kafkaMessage(entry))
	if err != nil {
		return fmt.Errorf("kafka: writing event %s: %w", entry.ID, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (s *KafkaSink) Close() error { return s.w.Close() }

func kafkaMessage(entry model.OutboxEntry) kafka.Message {
	return kafka.Message{
		Key:   []byte(entry.Key),
		Value: entry.Payload,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(entry.Topic)},
			{Key: "event-id", Value: []byte(entry.ID)},
		},
	}
}

// LogSink logs events instead of shipping them. It is used when no broker
// is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(ctx context.Context, entry model.OutboxEntry) error {
	s.logger.InfoContext(ctx, "edge event",
		slog.String("eventID", entry.ID),
		slog.String("type", entry.Topic),
		slog.String("targetID", entry.Key),
		slog.String("payload", string(entry.Payload)),
	)
	return nil
}

func (s *LogSink) Close() error { return nil }
