package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Idempotency remembers which order a create request key produced.
type Idempotency struct {
	RDB redis.Cmdable
}

func (i Idempotency) Lookup(ctx context.Context, key string) (string, bool, error) {
	id, ok, err := getString(ctx, i.RDB, fmt.Sprintf(KeyIdemOrderCreate, key))
	if err != nil {
		return "", false, fmt.Errorf("idempotency lookup: %w", err)
	}
	return id, ok, nil
}

func (i Idempotency) Remember(ctx context.Context, key, orderID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = TTLIdempotency
	}
	if err := i.RDB.Set(ctx, fmt.Sprintf(KeyIdemOrderCreate, key), orderID, ttl).Err(); err != nil {
		return fmt.Errorf("idempotency remember: %w", err)
	}
	return nil
}

// StatusCache keeps the last order status the notifier processed so stale
// redeliveries of an earlier step can be spotted.
type StatusCache struct {
	RDB redis.Cmdable
}

func (c StatusCache) Get(ctx context.Context, orderID string) (string, bool, error) {
	return getString(ctx, c.RDB, fmt.Sprintf(KeyOrderStatus, orderID))
}

func (c StatusCache) Set(ctx context.Context, orderID, status string) error {
	return c.RDB.Set(ctx, fmt.Sprintf(KeyOrderStatus, orderID), status, TTLStatusCache).Err()
}

// Dedup records processed event ids per consumer.
type Dedup struct {
	RDB      redis.Cmdable
	Consumer string
}

// First reports whether eventID is seen here for the first time.
func (d Dedup) First(ctx context.Context, eventID string) (bool, error) {
	return MarkOnce(ctx, d.RDB, fmt.Sprintf(KeyDedup, d.Consumer, eventID), TTLDedup)
}
