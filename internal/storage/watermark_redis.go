package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "newswatch"

// RedisWatermarkStore 水位线保存在 <prefix>:watermark:<id>，不设置过期时间
type RedisWatermarkStore struct {
	client *redis.Client
	prefix string
}

func NewRedisWatermarkStore(client *redis.Client, prefix string) *RedisWatermarkStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisWatermarkStore{client: client, prefix: prefix}
}

func (r *RedisWatermarkStore) key(sourceID string) string {
	return r.prefix + ":watermark:" + sourceID
}

func (r *RedisWatermarkStore) Read(ctx context.Context, sourceID string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.key(sourceID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get watermark %s: %w", sourceID, err)
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false, nil
	}
	return v, true, nil
}

func (r *RedisWatermarkStore) Write(ctx context.Context, sourceID, value string) error {
	if err := r.client.Set(ctx, r.key(sourceID), strings.TrimSpace(value), 0).Err(); err != nil {
		return fmt.Errorf("redis set watermark %s: %w", sourceID, err)
	}
	return nil
}
