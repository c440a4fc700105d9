// Package notify delivers provenance notifications to external observers.
// Delivery is fire-and-forget: the registry's correctness never depends on
// how a sink forwards events downstream.
package notify

import (
	"context"
	"encoding/json"

	"provchain/internal/domain"

	"go.uber.org/zap"
)

// Sink receives one event per accepted mutating registry call, in commit
// order.
type Sink interface {
	Publish(ctx context.Context, event domain.Event) error
}

// envelope is the wire shape shared by the Redis and Kafka sinks.
type envelope struct {
	Kind  string       `json:"kind"`
	Event domain.Event `json:"event"`
}

func encode(event domain.Event) ([]byte, error) {
	return json.Marshal(envelope{Kind: event.EventKind(), Event: event})
}

// LogSink writes notifications to the structured log. It is the default sink
// for development environments.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink backed by the given logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(_ context.Context, event domain.Event) error {
	s.logger.Info("Provenance notification",
		zap.String("kind", event.EventKind()),
		zap.Int64("product_id", event.ProductKey()),
		zap.Any("event", event),
	)
	return nil
}
