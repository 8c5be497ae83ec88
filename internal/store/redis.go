package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"whale-watch/internal/core"
)

// processedTTL keeps dedup entries well past the longest lookback window so a
// restart cannot re-alert on a deposit it already announced.
const processedTTL = 24 * time.Hour

const processedKeyPrefix = "whale:seen:"

// Redis is the cross-restart processed-transaction set. It satisfies the
// detector's ProcessedSet; when Redis is not configured the in-memory set
// from core is used instead.
type Redis struct {
	client *redis.Client
}

var _ core.ProcessedSet = (*Redis)(nil)

// OpenRedis connects and verifies the dedup store.
func OpenRedis(ctx context.Context, addr string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{client: client}, nil
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Seen reports whether a transaction hash was marked before.
func (r *Redis) Seen(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, processedKeyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Mark records a transaction hash with the dedup TTL.
func (r *Redis) Mark(ctx context.Context, key string) error {
	if err := r.client.SetNX(ctx, processedKeyPrefix+key, 1, processedTTL).Err(); err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	return nil
}
