package rangecache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisCacheKey = "asnlog:rangecache:v1"

// RedisBackend keeps the cache document under a Redis key so several
// analysis hosts can share one resolution cache instead of each warming its
// own against the authority.
type RedisBackend struct {
	client *redis.Client
}

func NewRedisBackend(ctx context.Context, redisURL string) (*RedisBackend, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL %q: %w", redisURL, err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisBackend{client: client}, nil
}

func (b *RedisBackend) Load(ctx context.Context) ([]byte, bool, error) {
	data, err := b.client.Get(ctx, redisCacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (b *RedisBackend) Store(ctx context.Context, data []byte) error {
	return b.client.Set(ctx, redisCacheKey, data, 0).Err()
}

func (b *RedisBackend) Description() string {
	return "redis key " + redisCacheKey
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
