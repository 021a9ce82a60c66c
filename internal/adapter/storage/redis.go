package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nvargas87/toolcrib/internal/port"
)

const idempotencyKeyTTL = 24 * time.Hour

var _ port.CacheRepository = (*RedisAdapter)(nil)

// RedisAdapter backs request idempotency. Keys expire after a day;
// retries beyond that window are treated as new requests.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

// SetIdempotency claims key atomically. It returns false when the key
// was already claimed by an earlier request.
func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}
