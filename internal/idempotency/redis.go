package idempotency

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "tranche:idempotency:"

// RedisGuard claims keys with SET NX so concurrent replays across instances
// race on a single atomic write.
type RedisGuard struct {
	client redis.Cmdable
}

func NewRedisGuard(client redis.Cmdable) *RedisGuard {
	return &RedisGuard{client: client}
}

func (g *RedisGuard) Claim(ctx context.Context, key string, retention time.Duration) (bool, error) {
	return g.client.SetNX(ctx, keyPrefix+key, 1, retention).Result()
}

func (g *RedisGuard) Release(ctx context.Context, key string) error {
	return g.client.Del(ctx, keyPrefix+key).Err()
}
