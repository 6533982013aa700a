package clog

import "bytes"

// ContextField 定义从 Context 中提取字段的规则
type ContextField struct {
	Key       any    // Context 中存储的键
	FieldName string // 日志中的字段名
}

// Option 函数式选项，用于配置 Logger 实例
type Option func(*options)

type options struct {
	namespaceParts        []string
	contextFields         []ContextField
	enableTraceExtraction bool
	buffer                *bytes.Buffer // Output 为 "buffer" 时使用，测试专用
}

// WithNamespace 设置日志命名空间
func WithNamespace(parts ...string) Option {
	return func(o *options) {
		o.namespaceParts = append(o.namespaceParts, parts...)
	}
}

// WithContextField 添加自定义的 Context 字段提取规则
//
//	clog.WithContextField(tenantKey{}, "tenant")
func WithContextField(key any, fieldName string) Option {
	return func(o *options) {
		o.contextFields = append(o.contextFields, ContextField{Key: key, FieldName: fieldName})
	}
}

// WithStandardContext 提取 courier 约定的上下文字段：call_id、request_id、trace_id
//
// call_id 由 dispatch 在每次调用时写入 Context（见 ContextWithCallID）。
func WithStandardContext() Option {
	return func(o *options) {
		o.contextFields = append(o.contextFields,
			ContextField{Key: callIDKey{}, FieldName: "call_id"},
			ContextField{Key: "request_id", FieldName: "request_id"},
			ContextField{Key: "trace_id", FieldName: "trace_id"},
		)
	}
}

// WithTraceContext 开启 OpenTelemetry trace_id/span_id 自动提取
func WithTraceContext() Option {
	return func(o *options) {
		o.enableTraceExtraction = true
	}
}

// WithBuffer 将日志写入指定缓冲区，需配合 Config.Output = "buffer"
func WithBuffer(buf *bytes.Buffer) Option {
	return func(o *options) {
		o.buffer = buf
	}
}

func applyOptions(opts ...Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
