package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"course-ledger/internal/config"
)

// RedisClient is the subset of go-redis the service uses. Tests substitute an
// in-memory implementation.
type RedisClient interface {
	Ping(ctx context.Context) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
	// DelIfEquals deletes key only while it still holds value.
	DelIfEquals(ctx context.Context, key, value string) (bool, error)
	Close() error
}

var _ RedisClient = (*redClient)(nil)

type redClient struct {
	cli *redis.Client
}

func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redClient, error) {
	opts := &redis.Options{
		Addr:     cfg.URL,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return &redClient{cli: c}, nil
}

func (c *redClient) Ping(ctx context.Context) error { return c.cli.Ping(ctx).Err() }

func (c *redClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.cli.Set(ctx, key, value, expiration).Err()
}

func (c *redClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return c.cli.SetNX(ctx, key, value, expiration).Result()
}

func (c *redClient) Get(ctx context.Context, key string) (string, error) {
	return c.cli.Get(ctx, key).Result()
}

func (c *redClient) Incr(ctx context.Context, key string) (int64, error) {
	return c.cli.Incr(ctx, key).Result()
}

func (c *redClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return c.cli.Expire(ctx, key, expiration).Err()
}

func (c *redClient) Del(ctx context.Context, keys ...string) error {
	return c.cli.Del(ctx, keys...).Err()
}

var luaDelIfEquals = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

func (c *redClient) DelIfEquals(ctx context.Context, key, value string) (bool, error) {
	n, err := luaDelIfEquals.Run(ctx, c.cli, []string{key}, value).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *redClient) Close() error { return c.cli.Close() }
