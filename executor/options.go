package executor

import (
	"net/http"

	"github.com/ceyewan/courier/clog"
)

// Option 执行器选项
type Option func(*options)

type options struct {
	logger clog.Logger
	client *http.Client
}

// WithLogger 注入日志记录器，内部追加 Namespace "executor"
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("executor")
		}
	}
}

// WithHTTPClient 使用自定义的 http.Client，其 Timeout 与单次超时同时生效
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.client = c
	}
}
