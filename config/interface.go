// Package config 为 courier 提供配置加载能力，基于 Viper 实现。
//
// 配置来源按优先级从高到低：
//   - 环境变量：前缀默认 COURIER，key 中的 "." 替换为 "_"，如 COURIER_CACHE_DRIVER
//   - .env 文件：工作目录与各搜索路径下的 .env
//   - 环境特定配置：COURIER_ENV=dev 时合并 config.dev.yaml
//   - 基础配置：config.yaml
//
// 配置文件变化通过 fsnotify 监听，Watch 返回指定 key 的变更事件。
//
// 基本使用：
//
//	settings, err := config.LoadSettings(ctx,
//		config.WithConfigPaths("./config"),
//		config.WithLogger(logger),
//	)
//	if err != nil {
//		return err
//	}
//	client, err := dispatch.New(&settings.Client)
//
// 自定义结构：
//
//	loader := config.MustLoad(config.WithConfigName("app"))
//	var cfg AppConfig
//	if err := loader.Unmarshal(&cfg); err != nil {
//		panic(err)
//	}
package config

import (
	"context"
	"time"
)

// Loader 配置加载器
type Loader interface {
	// Load 从全部来源加载配置，并开始监听配置文件
	Load(ctx context.Context) error

	// Get 获取原始配置值
	Get(key string) any

	// Unmarshal 将整个配置反序列化到结构体
	Unmarshal(v any) error

	// UnmarshalKey 将指定 Key 的配置反序列化到结构体
	UnmarshalKey(key string, v any) error

	// Watch 监听 key 的变化，ctx 结束时关闭返回的通道
	Watch(ctx context.Context, key string) (<-chan Event, error)

	// Validate 验证当前配置的有效性
	Validate() error
}

// Event 配置变更事件
type Event struct {
	Key       string
	Value     any
	OldValue  any
	Source    string // "file"
	Timestamp time.Time
}
