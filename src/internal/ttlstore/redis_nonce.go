package ttlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisNonceLedger implements NonceLedger using Redis SET NX, so the ledger
// is shared across every replica of a service instead of being per-process.
type RedisNonceLedger struct {
	client *redis.Client
	prefix string
}

// NewRedisNonceLedger creates a Redis-backed nonce ledger under the given
// key prefix (so multiple ledgers can share one Redis instance).
func NewRedisNonceLedger(client *redis.Client, prefix string) *RedisNonceLedger {
	return &RedisNonceLedger{client: client, prefix: prefix}
}

func (l *RedisNonceLedger) CheckAndRecord(ctx context.Context, scope, nonce string, ttl time.Duration) (bool, error) {
	key := l.prefix + scope + ":" + nonce
	ok, err := l.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis nonce check: %w", err)
	}
	return ok, nil
}
