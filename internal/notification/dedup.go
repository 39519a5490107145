package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupKeyPrefix = "event:idempotency:"

// Deduplicator claims event ids so a redelivered event is handled once.
type Deduplicator interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// RedisDedup stores claimed event ids in redis with a TTL.
type RedisDedup struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisDedup creates a deduplicator on an existing client
func NewRedisDedup(client redis.Cmdable, ttl time.Duration) *RedisDedup {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDedup{client: client, ttl: ttl}
}

// Claim returns true when the event id was not seen before.
func (d *RedisDedup) Claim(ctx context.Context, eventID string) (bool, error) {
	ok, err := d.client.SetNX(ctx, dedupKeyPrefix+eventID, "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim event %s: %w", eventID, err)
	}
	return ok, nil
}

// Release forgets a claim so the next delivery is handled again.
func (d *RedisDedup) Release(ctx context.Context, eventID string) error {
	if err := d.client.Del(ctx, dedupKeyPrefix+eventID).Err(); err != nil {
		return fmt.Errorf("failed to release event %s: %w", eventID, err)
	}
	return nil
}
