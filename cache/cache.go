// Package cache 提供响应缓存端口：统一的 Get/Set/Expire/Delete 语义，底层可切换为
// 进程内存（otter）或 Redis。
//
// 值一律为字节串，序列化由调用方（dispatch）决定。过期语义在两种后端上一致：
//   - ttl <= 0 的 Set 表示永不过期
//   - 过期或不存在的 key 读取时返回 ErrMiss
//   - Expire 的 ttl <= 0 表示立即过期
//
// 基本使用：
//
//	store, _ := cache.New(&cache.Config{Driver: cache.DriverMemory, Capacity: 10000})
//	key, _ := cache.Fingerprint("https://api.example.com/users/1", map[string]any{"lang": "en"})
//	_ = store.Set(ctx, key, body, time.Minute)
//	data, err := store.Get(ctx, key)
//	if cache.IsMiss(err) {
//	    // 回源
//	}
package cache

import (
	"context"
	"time"

	"github.com/ceyewan/courier/clog"
	"github.com/ceyewan/courier/xerrors"
)

// Cache 缓存端口，所有实现必须并发安全
type Cache interface {
	// Get 读取 key，不存在或已过期时返回 ErrMiss
	Get(ctx context.Context, key string) ([]byte, error)
	// Set 无条件覆盖写入，ttl <= 0 表示永不过期
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Expire 重设 key 的剩余存活时间，ttl <= 0 立即过期；key 不存在时不做任何事
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Close 释放后端资源；redis 后端不会关闭借用的连接器
	Close() error
}

// New 根据配置创建缓存实例
//
// Driver 为 "memory" 时创建本地内存缓存；为 "redis" 时需要通过 WithRedisConnector 注入连接器。
func New(cfg *Config, opts ...Option) (Cache, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "config is nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opt := options{logger: clog.Discard()}
	for _, o := range opts {
		o(&opt)
	}

	switch cfg.Driver {
	case DriverMemory:
		return newMemory(cfg, opt.logger)
	case DriverRedis:
		if opt.redisConn == nil {
			return nil, ErrConnectorRequired
		}
		return newRedis(opt.redisConn, cfg, opt.logger)
	default:
		return nil, xerrors.Wrapf(ErrConfig, "unknown driver %q", cfg.Driver)
	}
}

// IsMiss 判断错误是否为缓存未命中
func IsMiss(err error) bool {
	return xerrors.Is(err, ErrMiss)
}
