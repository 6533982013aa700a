package breaker

import (
	"context"

	"github.com/sony/gobreaker/v2"

	"github.com/ceyewan/courier/clog"
	"github.com/ceyewan/courier/metrics"
)

type circuitBreaker struct {
	cb       *gobreaker.TwoStepCircuitBreaker[any]
	cfg      *Config
	logger   clog.Logger
	changes  metrics.Counter
	fallback FallbackFunc
}

func newBreaker(cfg *Config, opt *options) (*circuitBreaker, error) {
	changes, err := opt.meter.Counter(MetricStateChanges, "Circuit breaker state transitions.")
	if err != nil {
		return nil, err
	}

	b := &circuitBreaker{
		cfg:      cfg,
		logger:   opt.logger.With(clog.String("breaker", cfg.Name)),
		changes:  changes,
		fallback: opt.fallback,
	}

	threshold := cfg.FailureThreshold
	b.cb = gobreaker.NewTwoStepCircuitBreaker[any](gobreaker.Settings{
		Name: cfg.Name,
		// 半开状态只放行一个探测请求，一次成功即恢复
		MaxRequests: 1,
		// Interval 为 0：闭合状态不周期性清零，只有成功会打断连续失败
		Interval: 0,
		Timeout:  cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: b.onStateChange,
	})

	b.logger.Debug("circuit breaker created",
		clog.Int("failure_threshold", int(cfg.FailureThreshold)),
		clog.Duration("recovery_timeout", cfg.RecoveryTimeout))
	return b, nil
}

func (b *circuitBreaker) Allow() (func(success bool), error) {
	done, err := b.cb.Allow()
	if err != nil {
		return nil, translateError(err)
	}
	return done, nil
}

func (b *circuitBreaker) RecordSuccess() {
	if done, err := b.cb.Allow(); err == nil {
		done(true)
	}
}

func (b *circuitBreaker) RecordFailure() {
	if done, err := b.cb.Allow(); err == nil {
		done(false)
	}
}

func (b *circuitBreaker) State() State {
	return fromGobreaker(b.cb.State())
}

func (b *circuitBreaker) Counts() Counts {
	c := b.cb.Counts()
	return Counts{
		Requests:             c.Requests,
		TotalSuccesses:       c.TotalSuccesses,
		TotalFailures:        c.TotalFailures,
		ConsecutiveSuccesses: c.ConsecutiveSuccesses,
		ConsecutiveFailures:  c.ConsecutiveFailures,
	}
}

func (b *circuitBreaker) Name() string {
	return b.cb.Name()
}

func (b *circuitBreaker) Fallback() FallbackFunc {
	return b.fallback
}

func (b *circuitBreaker) onStateChange(name string, from, to gobreaker.State) {
	f, t := fromGobreaker(from), fromGobreaker(to)
	b.logger.Info("circuit breaker state changed",
		clog.String("from", f.String()),
		clog.String("to", t.String()))
	b.changes.Inc(context.Background(),
		metrics.L(LabelBreaker, name),
		metrics.L(LabelFromState, f.String()),
		metrics.L(LabelToState, t.String()))
}

func translateError(err error) error {
	switch err {
	case gobreaker.ErrOpenState:
		return ErrOpenState
	case gobreaker.ErrTooManyRequests:
		return ErrTooManyRequests
	default:
		return err
	}
}

func fromGobreaker(state gobreaker.State) State {
	switch state {
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}
