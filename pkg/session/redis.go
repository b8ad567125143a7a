package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect builds a Redis client from a redis:// URL or a host:port address.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("session: parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("session: ping redis: %w", err)
	}
	return client, nil
}

// RedisStore keeps JSON encoded values under prefix+key.
type RedisStore[T any] struct {
	client redis.Cmdable
	prefix string
}

// NewRedisStore creates a RedisStore. prefix namespaces the keys, for
// example "rentreport:pending:".
func NewRedisStore[T any](client redis.Cmdable, prefix string) *RedisStore[T] {
	return &RedisStore[T]{client: client, prefix: prefix}
}

// Key returns the Redis key used for key.
func (s *RedisStore[T]) Key(key string) string { return s.prefix + key }

func (s *RedisStore[T]) Put(ctx context.Context, key string, value T, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", key, err)
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.Key(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("session: put %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore[T]) Get(ctx context.Context, key string) (T, error) {
	var out T
	raw, err := s.client.Get(ctx, s.Key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return out, ErrNotFound
		}
		return out, fmt.Errorf("session: get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("session: decode %s: %w", key, err)
	}
	return out, nil
}

func (s *RedisStore[T]) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.Key(key)).Err(); err != nil {
		return fmt.Errorf("session: delete %s: %w", key, err)
	}
	return nil
}
