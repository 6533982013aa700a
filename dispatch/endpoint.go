package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/courier/breaker"
	"github.com/ceyewan/courier/cache"
	"github.com/ceyewan/courier/clog"
	"github.com/ceyewan/courier/executor"
	"github.com/ceyewan/courier/mapper"
	"github.com/ceyewan/courier/metrics"
	"github.com/ceyewan/courier/retry"
	"github.com/ceyewan/courier/trace"
	"github.com/ceyewan/courier/xerrors"
)

// resultKind 由结果类型 T 决定的返回方式
type resultKind int

const (
	resultRaw    resultKind = iota // T 为 any：JSON 返回解码值，XML 返回 *mapper.Node，Text 返回 string
	resultText                     // T 为 string 或 []byte：原样返回响应体
	resultMapped                   // 其余类型：经 mapper 映射
)

func kindOf(t reflect.Type) resultKind {
	switch {
	case t.Kind() == reflect.Interface && t.NumMethod() == 0:
		return resultRaw
	case t.Kind() == reflect.String,
		t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8:
		return resultText
	default:
		return resultMapped
	}
}

// Endpoint 一个已声明的调用点，A 为参数类型，T 为结果类型；并发安全
type Endpoint[A, T any] struct {
	client   *Client
	spec     *CallSpec
	kind     resultKind
	build    func(ctx context.Context, args A) (*request, error)
	fallback func(ctx context.Context, args A) (T, error)
	callback func(T, error)
	logger   clog.Logger
}

// ============================================================================
// 声明
// ============================================================================

// Declare 以 URL 模板和带标签的参数结构体声明调用点
//
// 模板中的每个占位符 {name} 都必须对应 A 中的 `path:"name"` 字段，否则返回 ErrConfiguration。
func Declare[A, T any](c *Client, method, urlTemplate string, opts ...CallOption) (*Endpoint[A, T], error) {
	spec, err := c.newSpec(method, urlTemplate, opts)
	if err != nil {
		return nil, err
	}
	b, err := newBinding(reflect.TypeFor[A](), urlTemplate)
	if err != nil {
		return nil, err
	}
	build := func(_ context.Context, args A) (*request, error) {
		return b.bind(urlTemplate, args)
	}
	return newEndpoint[A, T](c, spec, build)
}

// DeclareFunc 以函数声明调用点，fn 每次调用返回 URL 与参数
func DeclareFunc[A, T any](c *Client, method string, fn func(ctx context.Context, args A) (Call, error), opts ...CallOption) (*Endpoint[A, T], error) {
	if fn == nil {
		return nil, configError("call function is nil")
	}
	spec, err := c.newSpec(method, "", opts)
	if err != nil {
		return nil, err
	}
	build := func(ctx context.Context, args A) (*request, error) {
		call, err := fn(ctx, args)
		if err != nil {
			return nil, err
		}
		return call.request()
	}
	return newEndpoint[A, T](c, spec, build)
}

func newEndpoint[A, T any](c *Client, spec *CallSpec, build func(context.Context, A) (*request, error)) (*Endpoint[A, T], error) {
	e := &Endpoint[A, T]{
		client: c,
		spec:   spec,
		kind:   kindOf(reflect.TypeFor[T]()),
		build:  build,
		logger: c.logger.With(clog.String("endpoint", spec.Name)),
	}

	if e.kind == resultMapped {
		spec.Target = reflect.TypeFor[T]()
		if spec.Payload == PayloadText {
			return nil, configError("text payload cannot be mapped into %s", spec.Target)
		}
		if err := mapper.Register[T](); err != nil {
			return nil, asConfigError(err)
		}
	}

	if spec.fallback != nil {
		fn, ok := spec.fallback.(func(context.Context, A) (T, error))
		if !ok {
			return nil, configError("fallback is %T, want func(context.Context, %s) (%s, error)",
				spec.fallback, reflect.TypeFor[A](), reflect.TypeFor[T]())
		}
		e.fallback = fn
	}
	if spec.callback != nil {
		fn, ok := spec.callback.(func(T, error))
		if !ok {
			return nil, configError("callback is %T, want func(%s, error)", spec.callback, reflect.TypeFor[T]())
		}
		e.callback = fn
	}
	if spec.rateLimit != nil && spec.rateLimitKey == "" {
		spec.rateLimitKey = spec.Name
	}
	return e, nil
}

// Spec 返回调用点描述的副本
func (e *Endpoint[A, T]) Spec() CallSpec {
	return *e.spec
}

// ============================================================================
// 调用
// ============================================================================

// Call 同步调用
func (e *Endpoint[A, T]) Call(ctx context.Context, args A) (T, error) {
	return e.invoke(ctx, args)
}

// Go 在 Runner 上异步调用，结果同时送达回调（如果配置了）与返回的 Future
//
// 调用在 ctx 取消时中止；不希望随调用方取消的任务可以传入 context.WithoutCancel(ctx)。
func (e *Endpoint[A, T]) Go(ctx context.Context, args A) *Future[T] {
	f := newFuture[T]()
	e.client.runner.Submit(func() {
		var (
			res T
			err error
		)
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("dispatch: panic in async call: %v", r)
			}
			defer f.resolve(res, err)
			e.deliver(ctx, res, err)
		}()
		res, err = e.invoke(ctx, args)
	})
	return f
}

// deliver 调用回调；回调 panic 只记录日志，不影响 Future
func (e *Endpoint[A, T]) deliver(ctx context.Context, res T, err error) {
	if e.callback == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "async callback panicked", clog.Any("panic", r))
		}
	}()
	e.callback(res, err)
}

// invocation 一次调用的上下文
type invocation struct {
	ctx     context.Context
	req     *executor.Request
	key     string
	logger  clog.Logger
	outcome string
}

func (e *Endpoint[A, T]) invoke(ctx context.Context, args A) (result T, err error) {
	start := time.Now()
	callID := uuid.NewString()
	ctx = clog.ContextWithCallID(ctx, callID)
	ctx, span := trace.Tracer().Start(ctx, "courier.call "+e.spec.Name,
		oteltrace.WithSpanKind(oteltrace.SpanKindInternal),
		oteltrace.WithAttributes(
			attribute.String("courier.endpoint", e.spec.Name),
			attribute.String("http.request.method", e.spec.Method),
		))

	inv := &invocation{ctx: ctx, logger: e.logger, outcome: metrics.OutcomeError}
	defer func() {
		span.SetAttributes(attribute.String("courier.outcome", inv.outcome))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		e.client.metrics.ObserveCall(ctx, e.spec.Name, e.spec.Method, inv.outcome, time.Since(start))
	}()

	// 1. 渲染请求并合并请求头
	if inv.req, err = e.prepare(ctx, args, callID); err != nil {
		return result, err
	}
	span.SetAttributes(attribute.String("url.full", inv.req.URL))

	// 2. 缓存
	if e.spec.Cache {
		inv.key, err = cache.Fingerprint(inv.req.URL, fingerprintParams(inv.req.Query))
		if err != nil {
			return result, asConfigError(err)
		}
		if res, ok := e.lookup(inv); ok {
			inv.outcome = metrics.OutcomeCacheHit
			return res, nil
		}
	}

	// 3. 熔断
	host := ""
	if u, perr := url.Parse(inv.req.URL); perr == nil {
		host = u.Host
	}
	b, err := e.client.breakerFor(e.spec, host)
	if err != nil {
		return result, asConfigError(err)
	}
	done := func(bool) {}
	if b != nil {
		permit, aerr := b.Allow()
		if aerr != nil {
			return e.blocked(inv, b, args, aerr)
		}
		done = permit
	}

	// 4. 重试循环
	resp, err := e.attempt(inv)
	if err != nil {
		done(false)
		return result, err
	}
	done(true)

	// 5. 解码、写回缓存、映射
	result, err = e.complete(inv, resp.Body)
	if err != nil {
		return result, err
	}
	inv.outcome = metrics.OutcomeSuccess
	return result, nil
}

// prepare 渲染参数并解析请求头提供者
func (e *Endpoint[A, T]) prepare(ctx context.Context, args A, callID string) (*executor.Request, error) {
	r, err := e.build(ctx, args)
	if err != nil {
		return nil, err
	}

	target := e.client.resolveURL(r.url)
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, configError("url %q is not absolute", target)
	}

	header := http.Header{}
	switch e.spec.Payload {
	case PayloadJSON:
		header.Set("Accept", "application/json")
	case PayloadXML:
		header.Set("Accept", "application/xml, text/xml")
	}
	if e.spec.Headers.IsSet() {
		for k, v := range e.spec.Headers.Resolve() {
			header.Set(k, v)
		}
	}
	if token := e.spec.AuthToken.Resolve(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	if key := e.spec.APIKey.Resolve(); key != "" {
		header.Set(e.spec.APIKeyHeader, key)
	}
	if header.Get("X-Request-ID") == "" {
		header.Set("X-Request-ID", callID)
	}

	return &executor.Request{
		Method:  e.spec.Method,
		URL:     target,
		Header:  header,
		Query:   r.query,
		Form:    r.form,
		JSON:    r.json,
		Timeout: e.spec.Timeout,
	}, nil
}

// lookup 查询缓存；读取失败或缓存内容无法解码都按未命中处理
func (e *Endpoint[A, T]) lookup(inv *invocation) (T, bool) {
	var zero T
	data, err := e.client.cache.Get(inv.ctx, inv.key)
	if err != nil {
		if !cache.IsMiss(err) {
			inv.logger.WarnContext(inv.ctx, "cache lookup failed", clog.Error(err))
		}
		e.client.metrics.ObserveCacheLookup(inv.ctx, e.spec.Name, false)
		inv.logger.DebugContext(inv.ctx, "cache miss", clog.String("key", inv.key))
		return zero, false
	}

	res, err := e.fromCache(data)
	if err != nil {
		inv.logger.WarnContext(inv.ctx, "cached response is unreadable, refetching", clog.String("key", inv.key), clog.Error(err))
		e.client.metrics.ObserveCacheLookup(inv.ctx, e.spec.Name, false)
		return zero, false
	}
	e.client.metrics.ObserveCacheLookup(inv.ctx, e.spec.Name, true)
	inv.logger.DebugContext(inv.ctx, "cache hit", clog.String("key", inv.key))
	return res, true
}

// blocked 熔断器拒绝：调用点降级优先，其次是熔断器降级，都没有时返回 CircuitOpenError
func (e *Endpoint[A, T]) blocked(inv *invocation, b breaker.Breaker, args A, cause error) (T, error) {
	var zero T
	e.client.metrics.ObserveReject(inv.ctx, e.spec.Name, b.Name())
	inv.logger.WarnContext(inv.ctx, "circuit breaker blocking request",
		clog.String("breaker", b.Name()), clog.String("url", inv.req.URL))

	if e.fallback != nil {
		inv.outcome = metrics.OutcomeFallback
		return e.fallback(inv.ctx, args)
	}
	if fb := b.Fallback(); fb != nil {
		inv.outcome = metrics.OutcomeFallback
		v, err := fb(inv.ctx, b.Name(), args)
		if err != nil {
			return zero, err
		}
		if v == nil {
			return zero, nil
		}
		res, ok := v.(T)
		if !ok {
			return zero, configError("breaker %q fallback returned %T, want %s", b.Name(), v, reflect.TypeFor[T]())
		}
		return res, nil
	}

	inv.outcome = metrics.OutcomeBlocked
	return zero, &CircuitOpenError{Target: inv.req.URL, Breaker: b.Name(), Err: cause}
}

// attempt 执行重试循环，返回第一个成功的响应
func (e *Endpoint[A, T]) attempt(inv *invocation) (*executor.Response, error) {
	var schedule retry.Schedule
	defer func() {
		if schedule != nil {
			schedule.Stop()
		}
	}()
	for n := 1; ; n++ {
		if e.spec.rateLimit != nil {
			if err := e.client.limiter.Wait(inv.ctx, e.spec.rateLimitKey, *e.spec.rateLimit); err != nil {
				return nil, xerrors.Wrap(err, "dispatch: rate limit wait")
			}
		}

		resp, err := e.client.exec.Execute(inv.ctx, inv.req)
		e.client.metrics.ObserveAttempt(inv.ctx, e.spec.Name, statusOf(resp, err), err == nil)
		if err == nil {
			return resp, nil
		}
		if xerrors.Is(err, executor.ErrInvalidRequest) {
			return nil, asConfigError(err)
		}
		if cerr := inv.ctx.Err(); cerr != nil {
			return nil, err
		}

		if n >= e.spec.Retries {
			inv.outcome = metrics.OutcomeExhausted
			inv.logger.ErrorContext(inv.ctx, "request failed, retries exhausted",
				clog.Int("attempts", n), clog.Error(err))
			return nil, &RetriesExhaustedError{Attempts: n, Last: err}
		}

		if schedule == nil {
			schedule = e.spec.RetryDelay.Schedule()
		}
		delay, derr := schedule.Next()
		if derr != nil {
			return nil, asConfigError(derr)
		}
		inv.logger.WarnContext(inv.ctx, "request failed, retrying",
			clog.Int("attempt", n),
			clog.Int("max", e.spec.Retries),
			clog.Duration("delay", delay),
			clog.Error(err))

		if err := sleep(inv.ctx, delay); err != nil {
			return nil, err
		}
	}
}

func statusOf(resp *executor.Response, err error) int {
	if resp != nil {
		return resp.StatusCode
	}
	return executor.StatusCode(err)
}

// sleep 只挂起当前调用
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
