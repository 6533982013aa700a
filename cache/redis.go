package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/courier/clog"
	"github.com/ceyewan/courier/connector"
	"github.com/ceyewan/courier/xerrors"
)

type redisCache struct {
	client *redis.Client
	prefix string
	logger clog.Logger
}

func newRedis(conn connector.RedisConnector, cfg *Config, logger clog.Logger) (*redisCache, error) {
	client := conn.GetClient()
	if client == nil {
		return nil, xerrors.Wrap(ErrConfig, "redis connector has no client")
	}
	logger.Debug("redis cache created", clog.String("connector", conn.Name()), clog.String("prefix", cfg.Prefix))
	return &redisCache{
		client: client,
		prefix: cfg.Prefix,
		logger: logger,
	}, nil
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, xerrors.Wrap(err, "cache: redis get")
	}
	return data, nil
}

func (c *redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	// go-redis 中负数 TTL 表示 KEEPTTL，这里统一为永不过期
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return xerrors.Wrap(err, "cache: redis set")
	}
	return nil
}

func (c *redisCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return c.Delete(ctx, key)
	}
	if err := c.client.Expire(ctx, c.prefix+key, ttl).Err(); err != nil {
		return xerrors.Wrap(err, "cache: redis expire")
	}
	return nil
}

func (c *redisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return xerrors.Wrap(err, "cache: redis del")
	}
	return nil
}

// Close 不关闭连接器，连接器由创建者负责释放
func (c *redisCache) Close() error {
	return nil
}
