package notify

import (
	"context"
	"fmt"
	"strconv"

	"provchain/internal/domain"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaSink produces notifications to a Kafka topic. Records are keyed by
// product id so per-product ordering survives partitioning.
type KafkaSink struct {
	client *kgo.Client
}

// NewKafkaSink connects a producer to the given brokers and topic.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	return &KafkaSink{client: client}, nil
}

func (s *KafkaSink) Publish(ctx context.Context, event domain.Event) error {
	payload, err := encode(event)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	record := &kgo.Record{
		Key:   []byte(strconv.FormatInt(event.ProductKey(), 10)),
		Value: payload,
	}

	// Synchronous produce keeps notification order aligned with commit order.
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce notification: %w", err)
	}

	return nil
}

// Close flushes buffered records and releases the producer.
func (s *KafkaSink) Close() {
	s.client.Close()
}
