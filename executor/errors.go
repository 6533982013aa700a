package executor

import (
	"fmt"
	"net/http"

	"github.com/ceyewan/courier/xerrors"
)

var (
	// ErrTransport 网络错误、超时或非 2xx 状态
	ErrTransport = xerrors.New("executor: transport failure")
	// ErrInvalidRequest 请求本身无法构造，重试没有意义
	ErrInvalidRequest = xerrors.New("executor: invalid request")
	// ErrBodyTooLarge 2xx 响应体超过 MaxBodyBytes，作为传输失败返回
	ErrBodyTooLarge = xerrors.New("executor: response body too large")
)

// TransportError 单次尝试的传输失败。StatusCode 为 0 表示没有拿到响应。
type TransportError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte // 非 2xx 响应体的前 512 字节
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 && e.Err == nil {
		return fmt.Sprintf("%s %s: status %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrTransport, e.Err}
	}
	return []error{ErrTransport}
}

func (e *TransportError) ErrorCode() string { return "TRANSPORT" }

// StatusCode 从错误链中提取 HTTP 状态码，没有则返回 0
func StatusCode(err error) int {
	var te *TransportError
	if xerrors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}
