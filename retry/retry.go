// Package retry 定义重试间隔策略。
//
// Delay 是调用点上声明的不可变策略，每次调用通过 Schedule 取得本次调用使用的间隔序列：
//
//	retry.Fixed(2 * time.Second)                // 每次都等待 2s
//	retry.Values(100*time.Millisecond, time.Second) // 惰性序列，跨调用共享，耗尽即报错
//	retry.Exponential(retry.ExponentialConfig{}) // 每次调用独立的指数退避
//
// 序列耗尽早于重试次数耗尽时，Next 返回 ErrDelaySequenceExhausted，调用方应将其视为配置错误。
package retry

import (
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ceyewan/courier/xerrors"
)

// ErrDelaySequenceExhausted 间隔序列先于重试次数耗尽
var ErrDelaySequenceExhausted = xerrors.WithCode(
	xerrors.New("retry: delay sequence exhausted before retries"), "RETRY_DELAY_EXHAUSTED")

// Delay 重试间隔策略
type Delay interface {
	// Schedule 返回一次调用使用的间隔序列
	Schedule() Schedule
}

// Schedule 一次调用内的间隔序列，每次重试前调用一次 Next，调用结束后调用 Stop
type Schedule interface {
	Next() (time.Duration, error)

	// Stop 释放本次调用持有的资源，可重复调用
	Stop()
}

// ============================================================================
// Fixed
// ============================================================================

type fixed time.Duration

// Fixed 每次重试都等待 d
func Fixed(d time.Duration) Delay {
	if d < 0 {
		d = 0
	}
	return fixed(d)
}

func (f fixed) Schedule() Schedule { return f }

func (f fixed) Next() (time.Duration, error) { return time.Duration(f), nil }

func (f fixed) Stop() {}

// ============================================================================
// Sequence
// ============================================================================

// sequence 惰性序列；Sequence 的所有调用共享同一个游标，PerCall 每次调用独占一个
type sequence struct {
	mu   sync.Mutex
	seq  iter.Seq[time.Duration]
	next func() (time.Duration, bool)
	stop func()
	done bool
}

// Sequence 惰性间隔序列：值在需要时才从 seq 中拉取，且在该调用点的所有调用之间共享。
// 序列一旦耗尽，之后所有需要重试间隔的调用都会得到 ErrDelaySequenceExhausted。
func Sequence(seq iter.Seq[time.Duration]) Delay {
	return &sequence{seq: seq}
}

// Values 由固定值构成的共享序列
func Values(d ...time.Duration) Delay {
	return Sequence(slices.Values(slices.Clone(d)))
}

func (s *sequence) Schedule() Schedule { return shared{s} }

// shared 共享游标在调用结束后继续保留
type shared struct {
	*sequence
}

func (shared) Stop() {}

func (s *sequence) Next() (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return 0, ErrDelaySequenceExhausted
	}
	if s.next == nil {
		s.next, s.stop = iter.Pull(s.seq)
	}
	d, ok := s.next()
	if !ok {
		s.done = true
		s.stop()
		return 0, ErrDelaySequenceExhausted
	}
	if d < 0 {
		d = 0
	}
	return d, nil
}

// Stop 结束独占序列背后的迭代器；共享序列由 shared 包装，不会走到这里
func (s *sequence) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.done = true
	if s.stop != nil {
		s.stop()
	}
}

// PerCall 每次调用重新开始的序列，fn 在每次调用第一次需要间隔时执行
func PerCall(fn func() iter.Seq[time.Duration]) Delay {
	return perCall(fn)
}

type perCall func() iter.Seq[time.Duration]

func (p perCall) Schedule() Schedule {
	return &sequence{seq: p()}
}

// ============================================================================
// Exponential
// ============================================================================

// ExponentialConfig 指数退避参数
type ExponentialConfig struct {
	Initial    time.Duration `mapstructure:"initial"`    // 首次间隔 (默认 500ms)
	Max        time.Duration `mapstructure:"max"`        // 间隔上限 (默认 30s)
	Multiplier float64       `mapstructure:"multiplier"` // 增长倍数 (默认 2)
	Jitter     float64       `mapstructure:"jitter"`     // 随机因子 [0,1] (默认 0，无抖动)
}

type exponential struct {
	cfg ExponentialConfig
}

// Exponential 指数退避，每次调用从 Initial 重新开始
func Exponential(cfg ExponentialConfig) Delay {
	if cfg.Initial <= 0 {
		cfg.Initial = 500 * time.Millisecond
	}
	if cfg.Max <= 0 {
		cfg.Max = 30 * time.Second
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 2
	}
	cfg.Jitter = min(max(cfg.Jitter, 0), 1)
	return exponential{cfg: cfg}
}

func (e exponential) Schedule() Schedule {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.Initial
	b.MaxInterval = e.cfg.Max
	b.Multiplier = e.cfg.Multiplier
	b.RandomizationFactor = e.cfg.Jitter
	b.Reset()
	return backoffSchedule{b: b}
}

type backoffSchedule struct {
	b backoff.BackOff
}

func (s backoffSchedule) Stop() {}

func (s backoffSchedule) Next() (time.Duration, error) {
	d := s.b.NextBackOff()
	if d == backoff.Stop {
		return 0, ErrDelaySequenceExhausted
	}
	return d, nil
}
