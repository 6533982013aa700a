package dispatch

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/ceyewan/courier/breaker"
	"github.com/ceyewan/courier/ratelimit"
	"github.com/ceyewan/courier/retry"
)

// Payload 响应体的解释方式
type Payload int

const (
	PayloadJSON Payload = iota
	PayloadXML
	PayloadText
)

func (p Payload) String() string {
	switch p {
	case PayloadJSON:
		return "json"
	case PayloadXML:
		return "xml"
	case PayloadText:
		return "text"
	default:
		return "unknown"
	}
}

// ============================================================================
// Value：静态值或每次调用时求值的提供者
// ============================================================================

// Value 静态值或零参数提供者，每次调用解析一次
type Value[V any] struct {
	static V
	fn     func() V
	set    bool
}

// Static 固定值
func Static[V any](v V) Value[V] {
	return Value[V]{static: v, set: true}
}

// Provider 每次调用都重新求值，适合会过期的 token
func Provider[V any](fn func() V) Value[V] {
	return Value[V]{fn: fn, set: fn != nil}
}

// Resolve 返回本次调用使用的值
func (v Value[V]) Resolve() V {
	if v.fn != nil {
		return v.fn()
	}
	return v.static
}

// IsSet 是否配置过
func (v Value[V]) IsSet() bool { return v.set }

// ============================================================================
// CallSpec
// ============================================================================

// CallSpec 调用点的不可变描述，声明时构建
type CallSpec struct {
	Name         string
	Method       string
	URL          string // 模板，占位符形如 {id}
	Timeout      time.Duration
	Retries      int
	RetryDelay   retry.Delay
	Payload      Payload
	Target       reflect.Type // 映射目标，nil 表示直接返回解码结果
	Cache        bool
	CacheTTL     time.Duration // 0 表示不过期
	Headers      Value[map[string]string]
	AuthToken    Value[string]
	APIKey       Value[string]
	APIKeyHeader string
	Breaker      breaker.Breaker

	rateLimit    *ratelimit.Limit
	rateLimitKey string
	fallback     any // func(context.Context, A) (T, error)
	callback     any // func(T, error)
}

// CallOption 调用点选项
type CallOption func(*CallSpec)

// WithName 调用点名称，用于日志、指标与 Span（默认 "METHOD url"）
func WithName(name string) CallOption {
	return func(s *CallSpec) { s.Name = name }
}

// WithTimeout 单次尝试的超时
func WithTimeout(d time.Duration) CallOption {
	return func(s *CallSpec) { s.Timeout = d }
}

// WithRetries 最多尝试次数，1 表示不重试
func WithRetries(n int) CallOption {
	return func(s *CallSpec) { s.Retries = n }
}

// WithRetryDelay 重试间隔策略
func WithRetryDelay(d retry.Delay) CallOption {
	return func(s *CallSpec) { s.RetryDelay = d }
}

// WithPayload 响应体格式
func WithPayload(p Payload) CallOption {
	return func(s *CallSpec) { s.Payload = p }
}

// WithCache 开启响应缓存，仅对 GET 有效；ttl 为 0 表示不过期
func WithCache(ttl time.Duration) CallOption {
	return func(s *CallSpec) {
		s.Cache = true
		s.CacheTTL = ttl
	}
}

// WithHeaders 附加请求头
func WithHeaders(h Value[map[string]string]) CallOption {
	return func(s *CallSpec) { s.Headers = h }
}

// WithAuthToken Bearer token，解析结果非空时写入 Authorization
func WithAuthToken(token Value[string]) CallOption {
	return func(s *CallSpec) { s.AuthToken = token }
}

// WithAPIKey API key，解析结果非空时写入 APIKeyHeader（默认 x-api-key）
func WithAPIKey(key Value[string]) CallOption {
	return func(s *CallSpec) { s.APIKey = key }
}

// WithAPIKeyHeader 修改 API key 使用的请求头
func WithAPIKeyHeader(name string) CallOption {
	return func(s *CallSpec) { s.APIKeyHeader = name }
}

// WithBreaker 绑定熔断器，可在多个调用点之间共享
func WithBreaker(b breaker.Breaker) CallOption {
	return func(s *CallSpec) { s.Breaker = b }
}

// WithFallback 熔断器拒绝调用时的降级函数，优先于熔断器自身的降级
func WithFallback[A, T any](fn func(ctx context.Context, args A) (T, error)) CallOption {
	return func(s *CallSpec) { s.fallback = fn }
}

// WithCallback 异步调用 (Endpoint.Go) 完成时回调，降级结果同样会送达
func WithCallback[T any](fn func(result T, err error)) CallOption {
	return func(s *CallSpec) { s.callback = fn }
}

// WithRateLimit 客户端限速，每次尝试前等待令牌；perSecond 为每秒令牌数
func WithRateLimit(perSecond float64, burst int) CallOption {
	return func(s *CallSpec) { s.rateLimit = &ratelimit.Limit{Rate: perSecond, Burst: burst} }
}

// WithRateLimitKey 令牌桶的 key（默认为调用点名称），相同 key 的调用点共享配额
func WithRateLimitKey(key string) CallOption {
	return func(s *CallSpec) { s.rateLimitKey = key }
}

// HasFallback 是否配置了调用点降级
func (s *CallSpec) HasFallback() bool { return s.fallback != nil }

// HasCallback 是否配置了异步回调
func (s *CallSpec) HasCallback() bool { return s.callback != nil }

func (s *CallSpec) validate() error {
	if s.Method == "" {
		return configError("method is empty")
	}
	if s.Retries < 1 {
		return configError("retries must be at least 1, got %d", s.Retries)
	}
	if s.RetryDelay == nil {
		return configError("retry delay is nil")
	}
	if s.Cache && s.Method != http.MethodGet {
		return configError("cache is only supported for GET requests, got %s", s.Method)
	}
	if s.CacheTTL < 0 {
		return configError("cache ttl must not be negative")
	}
	if s.rateLimit != nil && (s.rateLimit.Rate <= 0 || s.rateLimit.Burst < 1) {
		return configError("rate limit must have positive rate and burst, got rate=%v burst=%d",
			s.rateLimit.Rate, s.rateLimit.Burst)
	}
	if strings.TrimSpace(s.APIKeyHeader) == "" {
		return configError("api key header is empty")
	}
	return nil
}
