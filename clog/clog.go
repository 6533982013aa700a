// Package clog 为 courier 提供基于 slog 的结构化日志组件。
//
// 特性：
//   - 抽象接口，不暴露底层实现（slog）
//   - 层级命名空间：组件通过 WithNamespace 追加自己的名字，例如 "courier.dispatch"
//   - Context 字段提取：call_id、request_id、OpenTelemetry trace_id/span_id
//   - 运行时动态调整日志级别
//
// 基本使用：
//
//	logger, _ := clog.New(&clog.Config{
//	    Level:  "info",
//	    Format: "console",
//	    Output: "stdout",
//	}, clog.WithNamespace("courier"), clog.WithStandardContext())
//	logger.Info("client ready", clog.String("cache", "memory"))
package clog

import "github.com/ceyewan/courier/xerrors"

// New 创建一个新的 Logger 实例
//
// config 为 nil 时使用开发环境默认配置。
func New(config *Config, opts ...Option) (Logger, error) {
	if config == nil {
		config = NewDevDefaultConfig("")
	}

	if err := config.validate(); err != nil {
		return nil, xerrors.Wrap(err, "invalid config")
	}

	return newLogger(config, applyOptions(opts...))
}

// Must 类似 New，出错时 panic，仅用于初始化阶段
func Must(config *Config, opts ...Option) Logger {
	return xerrors.Must(New(config, opts...))
}
