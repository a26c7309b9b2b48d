package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every transport error returned by the Redis store.
var ErrRedisUnavailable = errors.New("tokenstore: redis unavailable")

// RedisConfig describes a Redis backend. It can be populated from the environment with
// LoadRedisConfig.
type RedisConfig struct {
	URL    string        `env:"STOREFRONT_REDIS_URL" envDefault:"redis://localhost:6379/0"`
	Prefix string        `env:"STOREFRONT_REDIS_PREFIX" envDefault:"sf:session"`
	TTL    time.Duration `env:"STOREFRONT_REDIS_TTL" envDefault:"0s"`
}

// LoadRedisConfig reads RedisConfig from environment variables.
func LoadRedisConfig() (RedisConfig, error) {
	cfg, err := env.ParseAs[RedisConfig]()
	if err != nil {
		return RedisConfig{}, fmt.Errorf("tokenstore: parse redis env: %w", err)
	}
	return cfg, nil
}

// Redis stores keys as plain strings under prefix.
type Redis struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedis wraps an existing client. A ttl of zero stores keys without expiry.
func NewRedis(client redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	return &Redis{
		redis:  client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// NewRedisFromConfig dials nothing; go-redis connects lazily on first command.
func NewRedisFromConfig(cfg RedisConfig) (*Redis, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("tokenstore: parse redis url: %w", err)
	}
	return NewRedis(redis.NewClient(opts), cfg.Prefix, cfg.TTL), nil
}

// NewRedisFromURL is NewRedisFromConfig with only a URL.
func NewRedisFromURL(url, prefix string, ttl time.Duration) (*Redis, error) {
	return NewRedisFromConfig(RedisConfig{URL: url, Prefix: prefix, TTL: ttl})
}

func (s *Redis) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

func (s *Redis) Get(ctx context.Context, key string) (string, error) {
	v, err := s.redis.Get(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return v, nil
}

func (s *Redis) Set(ctx context.Context, key, value string) error {
	if err := s.redis.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *Redis) Remove(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Redis) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

// Close releases the underlying client.
func (s *Redis) Close() error {
	return s.redis.Close()
}
