package notify

import (
	"context"
	"fmt"

	"provchain/internal/domain"

	"github.com/redis/go-redis/v9"
)

// RedisSink publishes notifications to a Redis pub/sub channel. Subscribers
// receive events in commit order because the registry serializes mutations.
type RedisSink struct {
	client  *redis.Client
	channel string
}

// NewRedisSink creates a sink publishing to the given channel.
func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Publish(ctx context.Context, event domain.Event) error {
	payload, err := encode(event)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	return nil
}
