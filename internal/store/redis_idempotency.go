package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix namespaces idempotency keys in a shared Redis instance.
const DefaultRedisKeyPrefix = "memberflow:idem:"

// RedisIdempotencyStore keeps idempotency keys in Redis, relying on Redis TTLs for expiry.
// It lets several MemberFlow replicas share one deduplication window.
type RedisIdempotencyStore struct {
	rdb    *goredis.Client
	prefix string
}

var _ IdempotencyStore = (*RedisIdempotencyStore)(nil)

// NewRedisIdempotencyStore connects to addr and verifies the connection.
func NewRedisIdempotencyStore(ctx context.Context, addr string) (*RedisIdempotencyStore, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address not set")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	slog.Debug("RedisIdempotencyStore: connected", "addr", addr)
	return &RedisIdempotencyStore{rdb: rdb, prefix: DefaultRedisKeyPrefix}, nil
}

func (s *RedisIdempotencyStore) LookupKey(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return v, true, nil
}

func (s *RedisIdempotencyStore) RememberKey(ctx context.Context, key, value string, ttl time.Duration) (string, error) {
	ok, err := s.rdb.SetNX(ctx, s.prefix+key, value, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("redis setnx: %w", err)
	}
	if ok {
		return value, nil
	}
	current, found, err := s.LookupKey(ctx, key)
	if err != nil {
		return "", err
	}
	if !found {
		// The winning entry expired between SETNX and GET; claim the key again.
		return s.RememberKey(ctx, key, value, ttl)
	}
	return current, nil
}

func (s *RedisIdempotencyStore) PutKey(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// DeleteExpiredKeys is a no-op; Redis evicts expired keys itself.
func (s *RedisIdempotencyStore) DeleteExpiredKeys(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

// Close closes the Redis client.
func (s *RedisIdempotencyStore) Close() error {
	return s.rdb.Close()
}
