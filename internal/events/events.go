// Package events publishes the observability events of applied batches.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/atmx/nft-marketplace/internal/metrics"
	"github.com/atmx/nft-marketplace/internal/model"
)

// Sink receives the events of one applied batch, in batch order.
type Sink interface {
	Publish(ctx context.Context, batchID string, events []model.Event) error
	Close() error
}

// Envelope is the wire form of one published event.
type Envelope struct {
	BatchID     string            `json:"batch_id"`
	Seq         int               `json:"seq"`
	Type        string            `json:"type"`
	Attributes  []model.Attribute `json:"attributes"`
	PublishedAt time.Time         `json:"published_at"`
}

func envelopes(batchID string, events []model.Event, now time.Time) []Envelope {
	out := make([]Envelope, len(events))
	for i, ev := range events {
		out[i] = Envelope{
			BatchID:     batchID,
			Seq:         i,
			Type:        ev.Type,
			Attributes:  ev.Attributes,
			PublishedAt: now,
		}
	}
	return out
}

// LogSink writes each event as a structured log line. It is the sink used
// when no broker is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With(slog.String("component", "events"))}
}

func (s *LogSink) Publish(ctx context.Context, batchID string, events []model.Event) error {
	for _, env := range envelopes(batchID, events, time.Now().UTC()) {
		attrs := make([]any, 0, 2*len(env.Attributes)+4)
		attrs = append(attrs, "batch_id", env.BatchID, "type", env.Type)
		for _, a := range env.Attributes {
			attrs = append(attrs, a.Key, a.Value)
		}
		s.logger.InfoContext(ctx, "event", attrs...)
		metrics.EventsPublished.WithLabelValues(env.Type).Inc()
	}
	return nil
}

func (s *LogSink) Close() error { return nil }
