package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ceyewan/courier/clog"
)

// bucket 令牌桶及最后访问时间
type bucket struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nano
}

func (b *bucket) touch() {
	b.lastSeen.Store(time.Now().UnixNano())
}

type standaloneLimiter struct {
	cfg     *Config
	logger  clog.Logger
	metrics *limiterMetrics
	buckets sync.Map // map[string]*bucket
	stopCh  chan struct{}
	once    sync.Once
}

func newStandalone(cfg *Config, logger clog.Logger, m *limiterMetrics) *standaloneLimiter {
	l := &standaloneLimiter{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		stopCh:  make(chan struct{}),
	}
	go l.cleanup(cfg.CleanupInterval, cfg.IdleTimeout)
	return l
}

// Allow 尝试获取 1 个令牌
func (l *standaloneLimiter) Allow(ctx context.Context, key string, limit Limit) (bool, error) {
	b, err := l.bucketFor(key, limit)
	if err != nil {
		return false, err
	}
	allowed := b.limiter.Allow()
	l.metrics.observe(ctx, allowed)
	return allowed, nil
}

// Wait 阻塞直到获取 1 个令牌
func (l *standaloneLimiter) Wait(ctx context.Context, key string, limit Limit) error {
	b, err := l.bucketFor(key, limit)
	if err != nil {
		return err
	}
	start := time.Now()
	if err := b.limiter.Wait(ctx); err != nil {
		l.metrics.observe(ctx, false)
		return err
	}
	waited := time.Since(start)
	l.metrics.observe(ctx, true)
	l.metrics.waited.Record(ctx, waited.Seconds())
	if waited > time.Millisecond {
		l.logger.DebugContext(ctx, "rate limit wait", clog.String("key", key), clog.Duration("waited", waited))
	}
	return nil
}

// bucketFor 获取或创建 key 对应的令牌桶，规则不同的同名 key 互不影响
func (l *standaloneLimiter) bucketFor(key string, limit Limit) (*bucket, error) {
	if key == "" {
		return nil, ErrKeyEmpty
	}
	if err := limit.validate(); err != nil {
		return nil, err
	}

	id := key + ":" + strconv.FormatFloat(limit.Rate, 'g', -1, 64) + ":" + strconv.Itoa(limit.Burst)
	if v, ok := l.buckets.Load(id); ok {
		b := v.(*bucket)
		b.touch()
		return b, nil
	}

	b := &bucket{limiter: rate.NewLimiter(rate.Limit(limit.Rate), limit.Burst)}
	b.touch()
	actual, _ := l.buckets.LoadOrStore(id, b)
	return actual.(*bucket), nil
}

// cleanup 定期回收空闲的令牌桶
func (l *standaloneLimiter) cleanup(interval, idleTimeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep(time.Now(), idleTimeout)
		case <-l.stopCh:
			return
		}
	}
}

func (l *standaloneLimiter) sweep(now time.Time, idleTimeout time.Duration) int {
	count := 0
	l.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		if now.Sub(time.Unix(0, b.lastSeen.Load())) > idleTimeout {
			l.buckets.Delete(key)
			count++
		}
		return true
	})
	if count > 0 {
		l.logger.Debug("idle buckets removed", clog.Int("count", count))
	}
	return count
}

// Close 停止后台回收
func (l *standaloneLimiter) Close() error {
	l.once.Do(func() { close(l.stopCh) })
	return nil
}
