// Package ratelimit 为出站调用提供进程内的令牌桶限速，基于 golang.org/x/time/rate。
//
// 每个 key 维护独立的令牌桶，空闲桶定期回收。dispatch 在每次尝试前调用 Wait，
// 令牌不足时阻塞直到可用或 ctx 结束。配额只在当前进程内生效。
//
// 基本使用：
//
//	limiter, _ := ratelimit.New(nil, ratelimit.WithLogger(logger))
//	defer limiter.Close()
//
//	if err := limiter.Wait(ctx, "GET api.example.com", ratelimit.Limit{Rate: 10, Burst: 20}); err != nil {
//		return err
//	}
package ratelimit

import (
	"context"
	"time"

	"github.com/ceyewan/courier/clog"
	"github.com/ceyewan/courier/metrics"
	"github.com/ceyewan/courier/xerrors"
)

// Limit 令牌桶规则
type Limit struct {
	Rate  float64 // 每秒生成的令牌数
	Burst int     // 桶容量，即允许的突发请求数
}

func (l Limit) validate() error {
	if l.Rate <= 0 || l.Burst < 1 {
		return xerrors.Wrapf(ErrInvalidLimit, "rate=%v burst=%d", l.Rate, l.Burst)
	}
	return nil
}

// Limiter 限速器，所有实现必须并发安全
type Limiter interface {
	// Allow 尝试获取 1 个令牌，不阻塞
	Allow(ctx context.Context, key string, limit Limit) (bool, error)

	// Wait 阻塞直到获取 1 个令牌；ctx 结束时返回 ctx 的错误
	Wait(ctx context.Context, key string, limit Limit) error

	// Close 停止后台回收
	Close() error
}

// Config 限速器配置
type Config struct {
	// CleanupInterval 回收空闲令牌桶的间隔 (默认 1m)
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval" mapstructure:"cleanup_interval"`

	// IdleTimeout 令牌桶空闲多久后回收 (默认 5m)
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

func (c *Config) setDefaults() {
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Minute
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
}

// New 创建限速器，cfg 为 nil 时使用默认配置
func New(cfg *Config, opts ...Option) (Limiter, error) {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	c.setDefaults()
	if c.IdleTimeout < c.CleanupInterval {
		return nil, xerrors.Wrapf(ErrConfig, "idle_timeout (%s) must not be shorter than cleanup_interval (%s)",
			c.IdleTimeout, c.CleanupInterval)
	}

	opt := options{logger: clog.Discard(), meter: metrics.Discard()}
	for _, o := range opts {
		o(&opt)
	}
	m, err := newLimiterMetrics(opt.meter)
	if err != nil {
		return nil, err
	}
	return newStandalone(&c, opt.logger, m), nil
}
