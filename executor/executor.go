// Package executor 执行单次 HTTP 交换：编码请求体、施加单次超时、读取响应，并把非 2xx 状态统一视为
// TransportError。重试、熔断与缓存都不在这里，由 dispatch 负责编排。
//
//	exec, _ := executor.New(&executor.Config{Timeout: 10 * time.Second}, executor.WithLogger(logger))
//	resp, err := exec.Execute(ctx, &executor.Request{
//		Method: http.MethodGet,
//		URL:    "https://api.example.com/users/1",
//		Query:  url.Values{"lang": {"en"}},
//	})
package executor

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ceyewan/courier/clog"
	"github.com/ceyewan/courier/xerrors"
)

// Executor 执行一次 HTTP 请求，实现必须并发安全
type Executor interface {
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// Request 一次 HTTP 请求。Form 与 JSON 互斥，都为空时不发送请求体。
type Request struct {
	Method  string
	URL     string
	Header  http.Header
	Query   url.Values
	Form    url.Values // application/x-www-form-urlencoded
	JSON    any        // application/json
	Timeout time.Duration
}

// Response 2xx 响应
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Config 执行器配置
type Config struct {
	// Timeout 请求未指定超时时使用的单次超时 (默认 30s)
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxBodyBytes 响应体读取上限 (默认 10MB)
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
	// MaxIdleConnsPerHost 每个 host 保留的空闲连接数 (默认 16)
	MaxIdleConnsPerHost int `mapstructure:"max_idle_conns_per_host"`
	// UserAgent 默认 User-Agent (默认 "courier")
	UserAgent string `mapstructure:"user_agent"`
}

func (c *Config) setDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 10 << 20
	}
	if c.MaxIdleConnsPerHost <= 0 {
		c.MaxIdleConnsPerHost = 16
	}
	if c.UserAgent == "" {
		c.UserAgent = "courier"
	}
}

type httpExecutor struct {
	cfg    Config
	client *http.Client
	logger clog.Logger
}

// New 创建基于 net/http 的执行器，传输层经 otelhttp 包装，为每次尝试生成客户端 Span
func New(cfg *Config, opts ...Option) (Executor, error) {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	c.setDefaults()

	o := options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	client := o.client
	if client == nil {
		base := http.DefaultTransport.(*http.Transport).Clone()
		base.MaxIdleConnsPerHost = c.MaxIdleConnsPerHost
		client = &http.Client{
			Transport: otelhttp.NewTransport(base,
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
					return "HTTP " + r.Method
				}),
			),
		}
	}

	return &httpExecutor{cfg: c, client: client, logger: o.logger}, nil
}

func (e *httpExecutor) Execute(ctx context.Context, req *Request) (*Response, error) {
	if req.Form != nil && req.JSON != nil {
		return nil, xerrors.Wrap(ErrInvalidRequest, "form and json bodies are mutually exclusive")
	}
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	target, err := buildURL(req.URL, req.Query)
	if err != nil {
		return nil, xerrors.Wrapf(ErrInvalidRequest, "url %q: %v", req.URL, err)
	}

	body, contentType, err := encodeBody(req)
	if err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, xerrors.Wrapf(ErrInvalidRequest, "build request: %v", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", e.cfg.UserAgent)
	}

	e.logger.DebugContext(ctx, "sending request", clog.String("method", method), clog.String("url", target))

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Method: method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	// 多读 1 字节用于判断是否超限
	data, err := io.ReadAll(io.LimitReader(resp.Body, e.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, &TransportError{Method: method, URL: target, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{Method: method, URL: target, StatusCode: resp.StatusCode, Body: truncate(data, 512)}
	}
	if int64(len(data)) > e.cfg.MaxBodyBytes {
		e.logger.WarnContext(ctx, "response body exceeds limit",
			clog.String("url", target), clog.Int64("max_body_bytes", e.cfg.MaxBodyBytes))
		return nil, &TransportError{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Err:        xerrors.Wrapf(ErrBodyTooLarge, "limit %d bytes", e.cfg.MaxBodyBytes),
		}
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// buildURL 合并 URL 自带的查询参数与 query
func buildURL(raw string, query url.Values) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", xerrors.New("absolute url required")
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func encodeBody(req *Request) (io.Reader, string, error) {
	switch {
	case req.Form != nil:
		return strings.NewReader(req.Form.Encode()), "application/x-www-form-urlencoded", nil
	case req.JSON != nil:
		data, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, "", xerrors.Wrapf(ErrInvalidRequest, "encode json body: %v", err)
		}
		return bytes.NewReader(data), "application/json", nil
	default:
		return nil, "", nil
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
