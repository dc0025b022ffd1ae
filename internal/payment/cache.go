package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// StatusCache keeps terminal transaction statuses in Redis so repeat polls
// for a finished payment skip Postgres entirely. Strictly best-effort: any
// cache failure falls through to the repository.
type StatusCache interface {
	Get(ctx context.Context, checkoutRequestID string) (*CachedStatus, error)
	Set(ctx context.Context, checkoutRequestID string, entry CachedStatus) error
}

type CachedStatus struct {
	Status        Status  `json:"status"`
	ReceiptNumber string  `json:"receipt_number,omitempty"`
	OrderID       string  `json:"order_id"`
	Amount        float64 `json:"amount"`
}

type redisStatusCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStatusCache(rdb *redis.Client, ttl time.Duration) StatusCache {
	return &redisStatusCache{rdb: rdb, ttl: ttl}
}

func cacheKey(checkoutRequestID string) string {
	return "payment-status:" + checkoutRequestID
}

func (c *redisStatusCache) Get(ctx context.Context, checkoutRequestID string) (*CachedStatus, error) {
	val, err := c.rdb.Get(ctx, cacheKey(checkoutRequestID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache: failed to get status for %s: %w", checkoutRequestID, err)
	}

	var entry CachedStatus
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return nil, fmt.Errorf("cache: corrupt entry for %s: %w", checkoutRequestID, err)
	}

	return &entry, nil
}

func (c *redisStatusCache) Set(ctx context.Context, checkoutRequestID string, entry CachedStatus) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache: failed to marshal entry for %s: %w", checkoutRequestID, err)
	}

	if err := c.rdb.Set(ctx, cacheKey(checkoutRequestID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: failed to set status for %s: %w", checkoutRequestID, err)
	}

	return nil
}
