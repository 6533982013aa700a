package connector

import (
	"github.com/ceyewan/courier/clog"
)

type options struct {
	logger      clog.Logger
	tracing     bool
	instruments bool
}

// Option 配置连接器的选项
type Option func(*options)

// WithLogger 设置日志记录器
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("connector")
		}
	}
}

// WithTracing 为 Redis 命令开启 OpenTelemetry Span，使用全局 TracerProvider
func WithTracing() Option {
	return func(o *options) {
		o.tracing = true
	}
}

// WithMetrics 为 Redis 连接池开启 OpenTelemetry 指标，使用全局 MeterProvider
func WithMetrics() Option {
	return func(o *options) {
		o.instruments = true
	}
}

func (o *options) applyDefaults() {
	if o.logger == nil {
		o.logger = clog.Discard()
	}
}
