package cache

import (
	"context"
	"time"

	"github.com/maypok86/otter/v2"
	"github.com/maypok86/otter/v2/stats"

	"github.com/ceyewan/courier/clog"
	"github.com/ceyewan/courier/xerrors"
)

// noExpiry 未指定 TTL 时交给 otter 的淘汰时间（100 年，视为永久）
const noExpiry = 24 * 365 * 100 * time.Hour

// entry 内存后端的存储单元，ExpiresAt 为零值表示永不过期
type entry struct {
	value     []byte
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

type memoryCache struct {
	cache   *otter.Cache[string, entry]
	counter *stats.Counter
	prefix  string
	logger  clog.Logger
	now     func() time.Time
}

func newMemory(cfg *Config, logger clog.Logger) (*memoryCache, error) {
	counter := stats.NewCounter()
	c, err := otter.New(&otter.Options[string, entry]{
		MaximumSize:   cfg.Capacity,
		StatsRecorder: counter,
		// 写入即计时，读取不续期，与 Redis TTL 一致；具体 TTL 在 Set 时覆盖
		ExpiryCalculator: otter.ExpiryWriting[string, entry](noExpiry),
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "cache: build otter cache")
	}

	logger.Debug("memory cache created", clog.Int("capacity", cfg.Capacity))
	return &memoryCache{
		cache:   c,
		counter: counter,
		prefix:  cfg.Prefix,
		logger:  logger,
		now:     time.Now,
	}, nil
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	k := c.prefix + key
	e, ok := c.cache.GetIfPresent(k)
	if !ok {
		return nil, ErrMiss
	}
	// otter 的淘汰是异步的，读时再确认一次
	if e.expired(c.now()) {
		c.cache.Invalidate(k)
		return nil, ErrMiss
	}
	return e.value, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	k := c.prefix + key
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.cache.Set(k, e)
	if ttl > 0 {
		c.cache.SetExpiresAfter(k, ttl)
	}
	return nil
}

func (c *memoryCache) Expire(_ context.Context, key string, ttl time.Duration) error {
	k := c.prefix + key
	if ttl <= 0 {
		c.cache.Invalidate(k)
		return nil
	}
	e, ok := c.cache.GetIfPresent(k)
	if !ok || e.expired(c.now()) {
		return nil
	}
	e.expiresAt = c.now().Add(ttl)
	c.cache.Set(k, e)
	c.cache.SetExpiresAfter(k, ttl)
	return nil
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.cache.Invalidate(c.prefix + key)
	return nil
}

// Stats 返回命中统计快照
func (c *memoryCache) Stats() stats.Stats {
	return c.counter.Snapshot()
}

func (c *memoryCache) Close() error {
	c.cache.StopAllGoroutines()
	return nil
}
