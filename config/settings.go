package config

import (
	"context"
	"time"

	"github.com/ceyewan/courier/cache"
	"github.com/ceyewan/courier/clog"
	"github.com/ceyewan/courier/connector"
	"github.com/ceyewan/courier/dispatch"
	"github.com/ceyewan/courier/metrics"
	"github.com/ceyewan/courier/ratelimit"
	"github.com/ceyewan/courier/trace"
)

// ========================================
// Settings
// ========================================

// Settings 进程启动时读取一次的全局配置
//
//	log:
//	  level: info
//	cache:
//	  driver: redis
//	redis:
//	  addr: 127.0.0.1:6379
//	client:
//	  base_url: https://api.example.com
//	  retries: 3
type Settings struct {
	Log       clog.Config           `mapstructure:"log"`
	Cache     cache.Config          `mapstructure:"cache"`
	RateLimit ratelimit.Config      `mapstructure:"ratelimit"`
	Redis     connector.RedisConfig `mapstructure:"redis"`
	Metrics   metrics.Config        `mapstructure:"metrics"`
	Trace     trace.Config          `mapstructure:"trace"`
	Client    dispatch.Config       `mapstructure:"client"`
}

// DefaultValues 返回 Settings 全部 key 的默认值
func DefaultValues() map[string]any {
	return map[string]any{
		"log.level":       "info",
		"log.format":      "console",
		"log.output":      "stdout",
		"log.add_source":  false,
		"log.source_root": "",

		"cache.driver":     cache.DriverMemory,
		"cache.prefix":     "courier:",
		"cache.serializer": "json",
		"cache.capacity":   10000,

		"ratelimit.cleanup_interval": time.Minute,
		"ratelimit.idle_timeout":     5 * time.Minute,

		"redis.name":           "default",
		"redis.addr":           "127.0.0.1:6379",
		"redis.password":       "",
		"redis.db":             0,
		"redis.tls":            false,
		"redis.pool_size":      10,
		"redis.min_idle_conns": 0,
		"redis.dial_timeout":   5 * time.Second,
		"redis.read_timeout":   3 * time.Second,
		"redis.write_timeout":  3 * time.Second,

		"metrics.enabled":      false,
		"metrics.service_name": "courier",
		"metrics.version":      "",
		"metrics.port":         0,
		"metrics.path":         "/metrics",

		"trace.enabled":      false,
		"trace.service_name": "courier",
		"trace.endpoint":     "localhost:4317",
		"trace.sampler":      1.0,
		"trace.batcher":      "batch",
		"trace.insecure":     true,

		"client.base_url":                         "",
		"client.timeout":                          30 * time.Second,
		"client.retries":                          1,
		"client.retry_delay":                      2 * time.Second,
		"client.api_key_header":                   "x-api-key",
		"client.executor.timeout":                 30 * time.Second,
		"client.executor.max_body_bytes":          int64(10 << 20),
		"client.executor.max_idle_conns_per_host": 16,
		"client.executor.user_agent":              "courier",
		"client.breaker.enabled":                  false,
		"client.breaker.failure_threshold":        5,
		"client.breaker.recovery_timeout":         60 * time.Second,
	}
}

// LoadSettings 加载配置文件与环境变量并解析为 Settings
//
// 没有配置文件时返回默认值，环境变量仍然生效，如 COURIER_CACHE_DRIVER=redis。
func LoadSettings(ctx context.Context, opts ...Option) (*Settings, error) {
	opts = append([]Option{WithDefaults(DefaultValues())}, opts...)
	l, err := Load(ctx, opts...)
	if err != nil {
		return nil, err
	}
	var s Settings
	if err := l.Unmarshal(&s); err != nil {
		return nil, err
	}
	return &s, nil
}
