// Package connector 管理 courier 使用的外部连接，目前只有 Redis。
//
// 连接器只负责连接的生命周期：NewRedis 创建客户端但不建立连接，Connect 时才 Ping。
// 组件（如 cache 的 redis 驱动）只借用连接器，不应调用 Close。
//
//	conn, err := connector.NewRedis(&connector.RedisConfig{Addr: "127.0.0.1:6379"},
//		connector.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//	if err := conn.Connect(ctx); err != nil {
//		return err
//	}
//	store, err := cache.New(&cache.Config{Driver: cache.DriverRedis}, cache.WithRedisConnector(conn))
package connector

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Connector 所有连接器的通用行为，方法均为并发安全
type Connector interface {
	// Connect 建立连接，可重复调用
	Connect(ctx context.Context) error
	// Close 关闭连接并释放资源，可重复调用
	Close() error
	// HealthCheck 主动检查连接，并刷新 IsHealthy 的缓存结果
	HealthCheck(ctx context.Context) error
	IsHealthy() bool
	Name() string
}

// TypedConnector 提供类型安全的客户端访问
type TypedConnector[T any] interface {
	Connector
	GetClient() T
}

// RedisConnector Redis 连接器
type RedisConnector interface {
	TypedConnector[*redis.Client]
}
