// Package messaging delivers outbox events to Redis Streams.
package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pestctl/internal/infrastructure/storage/postgres"
)

// DefaultMaxLen caps a stream approximately; consumers are expected to keep up.
const DefaultMaxLen = 100_000

// NewRedisClient creates a Redis client and checks the connection.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// StreamPublisher appends outbox messages to a Redis Stream.
// The outbox message id travels with the entry so consumers can drop the
// duplicates produced by redelivery.
type StreamPublisher struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

var _ postgres.OutboxHandler = (*StreamPublisher)(nil)

// NewStreamPublisher creates a publisher writing to stream.
func NewStreamPublisher(client redis.Cmdable, stream string) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream, maxLen: DefaultMaxLen}
}

// WithMaxLen overrides the approximate stream length cap. Zero disables trimming.
func (p *StreamPublisher) WithMaxLen(n int64) *StreamPublisher {
	p.maxLen = n
	return p
}

// Handle implements postgres.OutboxHandler.
func (p *StreamPublisher) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"message_id":     msg.ID.String(),
			"aggregate_type": msg.AggregateType,
			"aggregate_id":   msg.AggregateID.String(),
			"event_type":     msg.EventType,
			"payload":        string(msg.Payload),
			"created_at":     msg.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}
