package stats

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisBackend struct {
	client *redis.Client
	ttl    time.Duration
}

func (b *redisBackend) key(userID string) string {
	return keyPrefix + userID
}

func (b *redisBackend) Load(ctx context.Context, userID string) ([]byte, bool, error) {
	key := b.key(userID)
	val, err := b.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if b.ttl > 0 {
		// 读时续期
		_ = b.client.Expire(ctx, key, b.ttl).Err()
	}
	return val, true, nil
}

func (b *redisBackend) Save(ctx context.Context, userID string, doc []byte) error {
	return b.client.Set(ctx, b.key(userID), doc, b.ttl).Err()
}

func (b *redisBackend) Close() error {
	return b.client.Close()
}
