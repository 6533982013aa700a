package breaker

import "github.com/ceyewan/courier/xerrors"

var (
	ErrConfigNil = xerrors.New("breaker: config is nil")
	ErrKeyEmpty  = xerrors.New("breaker: key is empty")

	// ErrOpenState 熔断器处于打开状态
	ErrOpenState = xerrors.New("breaker: circuit breaker is open")

	// ErrTooManyRequests 半开状态下已有探测请求在途
	ErrTooManyRequests = xerrors.New("breaker: probe already in flight")
)

// IsRejected 判断错误是否表示熔断器拒绝了调用
func IsRejected(err error) bool {
	return xerrors.Is(err, ErrOpenState) || xerrors.Is(err, ErrTooManyRequests)
}
