package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/ceyewan/courier/xerrors"
)

const (
	MetricClientRequestsTotal   = "courier_client_requests_total"
	MetricClientAttemptsTotal   = "courier_client_attempts_total"
	MetricClientDurationSeconds = "courier_client_request_duration_seconds"
	MetricClientCacheLookups    = "courier_client_cache_lookups_total"
	MetricBreakerRejectsTotal   = "courier_breaker_rejects_total"
)

const (
	LabelEndpoint    = "endpoint"
	LabelMethod      = "method"
	LabelOutcome     = "outcome"
	LabelStatusClass = "status_class"
	LabelResult      = "result"
	LabelBreaker     = "breaker"
)

// 一次调用的最终结果
const (
	OutcomeSuccess   = "success"
	OutcomeCacheHit  = "cache_hit"
	OutcomeFallback  = "fallback"
	OutcomeBlocked   = "blocked"
	OutcomeExhausted = "exhausted"
	OutcomeError     = "error"
)

var defaultClientDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// HTTPStatusClass 返回 1xx/2xx/3xx/4xx/5xx，无状态码（连接失败、超时）时返回 "none"
func HTTPStatusClass(status int) string {
	if status < 100 || status > 599 {
		return "none"
	}
	return strconv.Itoa(status/100) + "xx"
}

// ClientMetrics 出站调用的 RED 指标集
type ClientMetrics struct {
	requests     Counter
	attempts     Counter
	duration     Histogram
	cacheLookups Counter
	rejects      Counter
}

// NewClientMetrics 在 Meter 上注册出站调用指标
func NewClientMetrics(m Meter) (*ClientMetrics, error) {
	if m == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "metrics: meter is nil")
	}

	var (
		cm   ClientMetrics
		err  error
		errs xerrors.Collector
	)
	cm.requests, err = m.Counter(MetricClientRequestsTotal, "Outbound calls by final outcome.")
	errs.Collect(err)
	cm.attempts, err = m.Counter(MetricClientAttemptsTotal, "Outbound HTTP attempts, including retries.")
	errs.Collect(err)
	cm.duration, err = m.Histogram(MetricClientDurationSeconds, "End-to-end outbound call duration.",
		WithUnit("s"), WithBuckets(defaultClientDurationBuckets))
	errs.Collect(err)
	cm.cacheLookups, err = m.Counter(MetricClientCacheLookups, "Response cache lookups by result.")
	errs.Collect(err)
	cm.rejects, err = m.Counter(MetricBreakerRejectsTotal, "Calls rejected by an open circuit breaker.")
	errs.Collect(err)

	if err := errs.Err(); err != nil {
		return nil, err
	}
	return &cm, nil
}

// ObserveCall 记录一次调用的最终结果与耗时
func (m *ClientMetrics) ObserveCall(ctx context.Context, endpoint, method, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	labels := []Label{L(LabelEndpoint, endpoint), L(LabelMethod, method), L(LabelOutcome, outcome)}
	m.requests.Inc(ctx, labels...)
	m.duration.Record(ctx, d.Seconds(), labels...)
}

// ObserveAttempt 记录单次 HTTP 尝试，status 为 0 表示没有拿到响应
func (m *ClientMetrics) ObserveAttempt(ctx context.Context, endpoint string, status int, ok bool) {
	if m == nil {
		return
	}
	result := OutcomeSuccess
	if !ok {
		result = OutcomeError
	}
	m.attempts.Inc(ctx, L(LabelEndpoint, endpoint), L(LabelStatusClass, HTTPStatusClass(status)), L(LabelResult, result))
}

// ObserveCacheLookup 记录一次缓存查询
func (m *ClientMetrics) ObserveCacheLookup(ctx context.Context, endpoint string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Inc(ctx, L(LabelEndpoint, endpoint), L(LabelResult, result))
}

// ObserveReject 记录一次被熔断器拒绝的调用
func (m *ClientMetrics) ObserveReject(ctx context.Context, endpoint, breaker string) {
	if m == nil {
		return
	}
	m.rejects.Inc(ctx, L(LabelEndpoint, endpoint), L(LabelBreaker, breaker))
}
