package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/atmx/nft-marketplace/internal/metrics"
	"github.com/atmx/nft-marketplace/internal/model"
)

// KafkaSink publishes one message per event, keyed by batch ID so a batch
// lands on a single partition in order.
type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (s *KafkaSink) Publish(ctx context.Context, batchID string, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs, err := messages(batchID, events, time.Now().UTC())
	if err != nil {
		return err
	}
	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish batch %s: %w", batchID, err)
	}
	for _, ev := range events {
		metrics.EventsPublished.WithLabelValues(ev.Type).Inc()
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

func messages(batchID string, events []model.Event, now time.Time) ([]kafka.Message, error) {
	key := []byte(batchID)
	msgs := make([]kafka.Message, 0, len(events))
	for _, env := range envelopes(batchID, events, now) {
		value, err := json.Marshal(env)
		if err != nil {
			return nil, fmt.Errorf("encode %s event: %w", env.Type, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:     key,
			Value:   value,
			Headers: []kafka.Header{{Key: "event-type", Value: []byte(env.Type)}},
		})
	}
	return msgs, nil
}
