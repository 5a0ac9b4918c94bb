// Package dedup filters webhook redeliveries by platform message id using a
// short-lived Redis key. The database's unique external-id index remains the
// hard guarantee; this layer just spares it the write attempt.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "dedup:msg:"

// Deduper reports whether an external message id was seen recently.
type Deduper interface {
	// Seen marks the id and reports whether it was already marked.
	Seen(ctx context.Context, externalID string) (bool, error)
}

// RedisDeduper implements Deduper on a Redis SET NX with TTL.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisDeduper creates a Redis-backed deduper.
func NewRedisDeduper(client *redis.Client, ttl time.Duration, log *slog.Logger) *RedisDeduper {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisDeduper{
		client: client,
		ttl:    ttl,
		logger: log.With(slog.String("service", "dedup")),
	}
}

// Seen implements Deduper. Ids without a value are never deduplicated.
func (d *RedisDeduper) Seen(ctx context.Context, externalID string) (bool, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return false, nil
	}
	stored, err := d.client.SetNX(ctx, keyPrefix+externalID, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup check: %w", err)
	}
	return !stored, nil
}

// Noop is a Deduper that never reports duplicates. Used when Redis is not
// configured; the database unique index still catches redeliveries.
type Noop struct{}

// Seen implements Deduper.
func (Noop) Seen(context.Context, string) (bool, error) {
	return false, nil
}
