// Package breaker 提供三态熔断器，保护 courier 的出站 HTTP 调用。
//
// 熔断器基于 sony/gobreaker 的两阶段（TwoStep）模式：先 Allow 取得许可，调用结束后通过 done
// 回报结果。这让 dispatch 能够把整段重试循环作为"一次调用"计入熔断统计：
//
//   - Closed：放行所有请求；连续失败达到 FailureThreshold 后转为 Open
//   - Open：拒绝所有请求，直到距最后一次失败超过 RecoveryTimeout
//   - HalfOpen：只放行一个探测请求；成功则回到 Closed，失败则重新 Open 并刷新计时
//
// ## 基本使用
//
//	brk, _ := breaker.New(&breaker.Config{
//		Name:             "users-api",
//		FailureThreshold: 3,
//		RecoveryTimeout:  30 * time.Second,
//	}, breaker.WithLogger(logger))
//
//	done, err := brk.Allow()
//	if err != nil {
//		// 熔断中，走降级或直接返回
//	}
//	resp, err := doRequest()
//	done(err == nil)
//
// ## 按上游隔离
//
//	reg := breaker.NewRegistry(cfg, breaker.WithLogger(logger))
//	brk := reg.Get("api.example.com")
package breaker

import (
	"context"
	"time"

	"github.com/ceyewan/courier/clog"
	"github.com/ceyewan/courier/metrics"
)

// ========================================
// 接口定义 (Interface Definitions)
// ========================================

// Breaker 熔断器核心接口，所有方法并发安全
type Breaker interface {
	// Allow 申请一次调用许可。成功时返回 done，调用方必须且只能调用一次 done 回报结果；
	// 熔断中返回 ErrOpenState，半开状态已有探测在途时返回 ErrTooManyRequests。
	Allow() (done func(success bool), err error)

	// RecordSuccess 记录一次独立的成功（不经过 Allow）
	RecordSuccess()

	// RecordFailure 记录一次独立的失败；熔断中调用无效果
	RecordFailure()

	State() State
	Counts() Counts
	Name() string

	// Fallback 返回熔断器级别的降级函数，未配置时为 nil
	Fallback() FallbackFunc
}

// FallbackFunc 熔断时的降级函数，name 为熔断器名称，args 为原始调用参数
type FallbackFunc func(ctx context.Context, name string, args any) (any, error)

// State 熔断器状态
type State int

const (
	// StateClosed 闭合状态（正常）
	StateClosed State = iota
	// StateHalfOpen 半开状态（探测恢复）
	StateHalfOpen
	// StateOpen 打开状态（熔断中）
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Counts 当前统计周期内的计数
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// ========================================
// 配置定义 (Configuration)
// ========================================

// Config 熔断器配置
type Config struct {
	// Name 熔断器名称，出现在日志与 CircuitOpenError 中（默认："default"）
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// FailureThreshold 连续失败多少次后熔断（默认：5）
	FailureThreshold uint32 `json:"failure_threshold" yaml:"failure_threshold" mapstructure:"failure_threshold"`

	// RecoveryTimeout 打开状态持续时间，超时后放行一个探测请求（默认：60s）
	RecoveryTimeout time.Duration `json:"recovery_timeout" yaml:"recovery_timeout" mapstructure:"recovery_timeout"`
}

func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 60 * time.Second
	}
}

// ========================================
// 工厂函数 (Factory Functions)
// ========================================

// New 创建熔断器实例
func New(cfg *Config, opts ...Option) (Breaker, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	c := *cfg
	c.setDefaults()

	opt := options{logger: clog.Discard(), meter: metrics.Discard()}
	for _, o := range opts {
		o(&opt)
	}

	return newBreaker(&c, &opt)
}
