package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis keys and channels. Every process of one installation must agree on
// them.
const (
	RedisKeyPrefix = "hookrelay:"

	RedisSaltKey             = RedisKeyPrefix + "api_key_salt"
	RedisInvalidationChannel = RedisKeyPrefix + "subscriptions:changed"
	RedisLockPrefix          = RedisKeyPrefix + "lock:"
)

// RedisStore is the optional Redis connection behind sweep leases,
// registry invalidation and the shared API key salt.
type RedisStore struct {
	client *redis.Client
}

// NewRedis connects and pings once, so a bad REDIS_URL fails at startup
// rather than on the first sweep.
func NewRedis(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	s := &RedisStore{client: redis.NewClient(opts)}
	if err := s.Ping(ctx); err != nil {
		s.client.Close()
		return nil, err
	}
	return s, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
