package dispatch

import (
	"fmt"

	"github.com/ceyewan/courier/xerrors"
)

var (
	// ErrConfiguration 调用点声明或调用参数非法，在任何网络请求之前返回，从不重试
	ErrConfiguration = xerrors.New("dispatch: invalid configuration")

	// ErrInvalidParameter 参数值无法渲染到 URL、查询串或表单中，属于 ErrConfiguration
	ErrInvalidParameter = xerrors.New("dispatch: invalid parameter value")

	// ErrCircuitOpen 熔断器拒绝了调用且没有配置降级
	ErrCircuitOpen = xerrors.New("dispatch: circuit breaker is open")

	// ErrRetriesExhausted 所有尝试都以传输错误结束
	ErrRetriesExhausted = xerrors.New("dispatch: retries exhausted")
)

func configError(format string, args ...any) error {
	return xerrors.Wrapf(ErrConfiguration, format, args...)
}

// asConfigError 把 err 归类为 ErrConfiguration，同时保留原错误链
func asConfigError(err error) error {
	return fmt.Errorf("%w: %w", ErrConfiguration, err)
}

// ParameterError 某个参数值无法渲染
type ParameterError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("dispatch: parameter %q (%T): %s", e.Field, e.Value, e.Reason)
}

func (e *ParameterError) Unwrap() []error {
	return []error{ErrInvalidParameter, ErrConfiguration}
}

func (e *ParameterError) ErrorCode() string { return "INVALID_PARAMETER" }

// CircuitOpenError 熔断器阻断了对 Target 的调用
type CircuitOpenError struct {
	Target  string
	Breaker string
	Err     error // breaker.ErrOpenState 或 breaker.ErrTooManyRequests
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("dispatch: circuit breaker %q is open, requests to %s are blocked", e.Breaker, e.Target)
}

func (e *CircuitOpenError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrCircuitOpen, e.Err}
	}
	return []error{ErrCircuitOpen}
}

func (e *CircuitOpenError) ErrorCode() string { return "CIRCUIT_OPEN" }

// RetriesExhaustedError 重试耗尽，Last 为最后一次尝试的错误
type RetriesExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("dispatch: failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetriesExhaustedError) Unwrap() []error {
	return []error{ErrRetriesExhausted, e.Last}
}

func (e *RetriesExhaustedError) ErrorCode() string { return "RETRIES_EXHAUSTED" }
