package dispatch

import (
	"github.com/ceyewan/courier/breaker"
	"github.com/ceyewan/courier/cache"
	"github.com/ceyewan/courier/cache/serializer"
	"github.com/ceyewan/courier/clog"
	"github.com/ceyewan/courier/executor"
	"github.com/ceyewan/courier/metrics"
	"github.com/ceyewan/courier/ratelimit"
)

// Option 客户端选项
type Option func(*options)

type options struct {
	logger     clog.Logger
	meter      metrics.Meter
	cache      cache.Cache
	executor   executor.Executor
	breakers   *breaker.Registry
	serializer serializer.Serializer
	runner     *Runner
	limiter    ratelimit.Limiter
}

// WithLogger 注入日志记录器，客户端使用 Namespace "dispatch"，默认执行器使用 "executor"
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMeter 注入指标 Meter
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		if m != nil {
			o.meter = m
		}
	}
}

// WithCacheStore 使用外部缓存（例如 redis 后端），客户端不负责关闭它
func WithCacheStore(c cache.Cache) Option {
	return func(o *options) {
		o.cache = c
	}
}

// WithExecutor 替换请求执行器
func WithExecutor(e executor.Executor) Option {
	return func(o *options) {
		o.executor = e
	}
}

// WithBreakerRegistry 为没有显式熔断器的调用点按 host 分配熔断器
func WithBreakerRegistry(r *breaker.Registry) Option {
	return func(o *options) {
		o.breakers = r
	}
}

// WithSerializer 缓存中 JSON 响应的存储格式（默认 json）
func WithSerializer(s serializer.Serializer) Option {
	return func(o *options) {
		if s != nil {
			o.serializer = s
		}
	}
}

// WithLimiter 使用外部限速器（例如 redis 后端，多进程共享配额），客户端不负责关闭它
func WithLimiter(l ratelimit.Limiter) Option {
	return func(o *options) {
		o.limiter = l
	}
}

// WithRunner 异步调用使用独立的 Runner，而不是进程级共享的 Runner
func WithRunner(r *Runner) Option {
	return func(o *options) {
		o.runner = r
	}
}
