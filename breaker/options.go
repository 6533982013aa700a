package breaker

import (
	"github.com/ceyewan/courier/clog"
	"github.com/ceyewan/courier/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

type options struct {
	logger   clog.Logger
	meter    metrics.Meter
	fallback FallbackFunc
}

// WithLogger 设置 Logger，传入 nil 时使用 clog.Discard()
// 内部会自动添加 namespace: "breaker"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = clog.Discard()
		} else {
			o.logger = logger.WithNamespace("breaker")
		}
	}
}

// WithMeter 设置指标 Meter，用于记录状态变更
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		if meter != nil {
			o.meter = meter
		}
	}
}

// WithFallback 设置熔断器级别的降级函数
//
// dispatch 在调用被拒绝时优先使用调用点自己的降级函数，其次才是这里的：
//
//	brk, _ := breaker.New(cfg,
//		breaker.WithFallback(func(ctx context.Context, name string, args any) (any, error) {
//			return map[string]any{"status": "degraded"}, nil
//		}),
//	)
func WithFallback(fallback FallbackFunc) Option {
	return func(o *options) {
		o.fallback = fallback
	}
}
