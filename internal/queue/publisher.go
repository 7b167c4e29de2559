package queue

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Publisher defines the interface for publishing events to a stream.
type Publisher interface {
	// Publish adds an event to the specified stream.
	// Returns the message ID assigned by Redis.
	Publish(ctx context.Context, stream string, event InteractionEvent) (messageID string, err error)
}

// RedisPublisher implements Publisher using Redis Streams.
type RedisPublisher struct {
	client *redis.Client
}

// NewPublisher creates a new Publisher backed by Redis Streams.
func NewPublisher(client *redis.Client) Publisher {
	return &RedisPublisher{client: client}
}

// Publish adds an event to the stream using XADD.
// Uses "*" so Redis auto-generates the message ID (timestamp-sequence).
func (p *RedisPublisher) Publish(ctx context.Context, stream string, event InteractionEvent) (string, error) {
	startTime := time.Now()

	values, err := event.ToMap()
	if err != nil {
		log.Printf("[Publisher] Publish FAILED: stream=%s type=%s err=%v", stream, event.Type, err)
		return "", fmt.Errorf("serialize event: %w", err)
	}

	messageID, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Result()

	if err != nil {
		log.Printf("[Publisher] Publish FAILED: stream=%s type=%s err=%v", stream, event.Type, err)
		return "", fmt.Errorf("xadd to stream: %w", err)
	}

	log.Printf("[Publisher] Publish OK: stream=%s type=%s subject=%s msgID=%s duration=%v",
		stream, event.Type, event.SubjectID, messageID, time.Since(startTime))

	return messageID, nil
}
