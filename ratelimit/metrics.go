package ratelimit

import (
	"context"

	"github.com/ceyewan/courier/metrics"
)

const (
	MetricAllowed = "courier_ratelimit_allowed_total"
	MetricDenied  = "courier_ratelimit_denied_total"
	MetricWaited  = "courier_ratelimit_wait_seconds"
)

type limiterMetrics struct {
	allowed metrics.Counter
	denied  metrics.Counter
	waited  metrics.Histogram
}

func newLimiterMetrics(m metrics.Meter) (*limiterMetrics, error) {
	allowed, err := m.Counter(MetricAllowed, "Tokens granted by the rate limiter")
	if err != nil {
		return nil, err
	}
	denied, err := m.Counter(MetricDenied, "Token requests rejected by the rate limiter")
	if err != nil {
		return nil, err
	}
	waited, err := m.Histogram(MetricWaited, "Time spent waiting for a token", metrics.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &limiterMetrics{allowed: allowed, denied: denied, waited: waited}, nil
}

func (m *limiterMetrics) observe(ctx context.Context, allowed bool) {
	if allowed {
		m.allowed.Inc(ctx)
		return
	}
	m.denied.Inc(ctx)
}
