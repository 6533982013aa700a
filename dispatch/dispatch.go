// Package dispatch 提供声明式 HTTP 调用：调用点在声明时描述 URL 模板、参数、缓存、重试与熔断，
// 每次调用按固定顺序执行
//
//	缓存查询 → 熔断检查 → 重试循环（执行请求）→ 写回缓存 → 对象映射
//
// 缓存命中时不经过熔断器，也不发起网络请求。重试耗尽只向熔断器记录一次失败。
//
// 基本使用：
//
//	type GetUser struct {
//		ID   int64  `path:"id"`
//		Lang string `query:"lang,omitempty"`
//	}
//	type User struct {
//		ID   int64  `json:"id"`
//		Name string `json:"name"`
//	}
//
//	client, _ := dispatch.New(&dispatch.Config{BaseURL: "https://api.example.com"},
//		dispatch.WithLogger(logger))
//	getUser, _ := dispatch.Declare[GetUser, User](client, http.MethodGet, "/users/{id}",
//		dispatch.WithCache(time.Minute),
//		dispatch.WithRetries(3),
//		dispatch.WithAuthToken(dispatch.Provider(tokens.Current)))
//
//	user, err := getUser.Call(ctx, GetUser{ID: 1})
//
// 并发的相同请求在缓存未命中时都会访问上游，缓存不做 single-flight 合并。
package dispatch

import (
	"strings"
	"time"

	"github.com/ceyewan/courier/breaker"
	"github.com/ceyewan/courier/cache"
	"github.com/ceyewan/courier/cache/serializer"
	"github.com/ceyewan/courier/clog"
	"github.com/ceyewan/courier/executor"
	"github.com/ceyewan/courier/metrics"
	"github.com/ceyewan/courier/ratelimit"
	"github.com/ceyewan/courier/retry"
	"github.com/ceyewan/courier/xerrors"
)

// ========================================
// 配置定义 (Configuration)
// ========================================

// Config 客户端配置，调用点未显式指定时使用这里的默认值
type Config struct {
	// BaseURL 相对 URL 模板的前缀（可选）
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// Timeout 单次尝试超时（默认：30s）
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// Retries 最多尝试次数（默认：1）
	Retries int `json:"retries" yaml:"retries" mapstructure:"retries"`

	// RetryDelay 固定重试间隔（默认：2s）
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay" mapstructure:"retry_delay"`

	// APIKeyHeader API key 请求头（默认："x-api-key"）
	APIKeyHeader string `json:"api_key_header" yaml:"api_key_header" mapstructure:"api_key_header"`

	// Executor 默认执行器配置
	Executor executor.Config `json:"executor" yaml:"executor" mapstructure:"executor"`

	// Breaker 按 host 分配的熔断器
	Breaker BreakerConfig `json:"breaker" yaml:"breaker" mapstructure:"breaker"`
}

// BreakerConfig 客户端级熔断配置
type BreakerConfig struct {
	Enabled          bool          `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	FailureThreshold uint32        `json:"failure_threshold" yaml:"failure_threshold" mapstructure:"failure_threshold"`
	RecoveryTimeout  time.Duration `json:"recovery_timeout" yaml:"recovery_timeout" mapstructure:"recovery_timeout"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Retries <= 0 {
		c.Retries = 1
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	} else if c.RetryDelay == 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.APIKeyHeader == "" {
		c.APIKeyHeader = "x-api-key"
	}
}

// ========================================
// Client
// ========================================

// Client 持有调用点共享的执行器、缓存与熔断器，并发安全
type Client struct {
	cfg        Config
	logger     clog.Logger
	exec       executor.Executor
	cache      cache.Cache
	ownCache   bool
	serializer serializer.Serializer
	breakers   *breaker.Registry
	metrics    *metrics.ClientMetrics
	runner     *Runner
	limiter    ratelimit.Limiter
	ownLimiter bool
}

// New 创建客户端
//
// 未通过 WithCacheStore 注入缓存时使用内存缓存，由 Close 释放。
func New(cfg *Config, opts ...Option) (*Client, error) {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	c.setDefaults()
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")

	o := options{
		logger:     clog.Discard(),
		meter:      metrics.Discard(),
		serializer: serializer.JSONSerializer{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	client := &Client{
		cfg:        c,
		logger:     o.logger.WithNamespace("dispatch"),
		exec:       o.executor,
		cache:      o.cache,
		serializer: o.serializer,
		breakers:   o.breakers,
		runner:     o.runner,
		limiter:    o.limiter,
	}

	var err error
	if client.exec == nil {
		client.exec, err = executor.New(&c.Executor, executor.WithLogger(o.logger))
		if err != nil {
			return nil, xerrors.Wrap(err, "dispatch: create executor")
		}
	}
	if client.cache == nil {
		client.cache, err = cache.New(cache.DefaultConfig(), cache.WithLogger(o.logger))
		if err != nil {
			return nil, xerrors.Wrap(err, "dispatch: create cache")
		}
		client.ownCache = true
	}
	if client.breakers == nil && c.Breaker.Enabled {
		client.breakers = breaker.NewRegistry(&breaker.Config{
			FailureThreshold: c.Breaker.FailureThreshold,
			RecoveryTimeout:  c.Breaker.RecoveryTimeout,
		}, breaker.WithLogger(o.logger), breaker.WithMeter(o.meter))
	}
	if client.runner == nil {
		client.runner = DefaultRunner()
	}
	if client.limiter == nil {
		client.limiter, err = ratelimit.New(nil, ratelimit.WithLogger(o.logger), ratelimit.WithMeter(o.meter))
		if err != nil {
			return nil, xerrors.Wrap(err, "dispatch: create limiter")
		}
		client.ownLimiter = true
	}
	client.metrics, err = metrics.NewClientMetrics(o.meter)
	if err != nil {
		return nil, xerrors.Wrap(err, "dispatch: register metrics")
	}

	return client, nil
}

// Close 释放客户端自己创建的缓存与限速器
func (c *Client) Close() error {
	var errs xerrors.Collector
	if c.ownCache {
		errs.Collect(c.cache.Close())
	}
	if c.ownLimiter {
		errs.Collect(c.limiter.Close())
	}
	return errs.Err()
}

// newSpec 以客户端默认值构建 CallSpec 并应用调用点选项
func (c *Client) newSpec(method, url string, opts []CallOption) (*CallSpec, error) {
	s := &CallSpec{
		Method:       strings.ToUpper(strings.TrimSpace(method)),
		URL:          url,
		Timeout:      c.cfg.Timeout,
		Retries:      c.cfg.Retries,
		RetryDelay:   retry.Fixed(c.cfg.RetryDelay),
		Payload:      PayloadJSON,
		APIKeyHeader: c.cfg.APIKeyHeader,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Name == "" {
		s.Name = strings.TrimSpace(s.Method + " " + url)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// resolveURL 补全相对 URL
func (c *Client) resolveURL(u string) string {
	if c.cfg.BaseURL != "" && !strings.Contains(u, "://") {
		return c.cfg.BaseURL + "/" + strings.TrimLeft(u, "/")
	}
	return u
}

// breakerFor 调用点未绑定熔断器时按 host 从注册表中获取
func (c *Client) breakerFor(spec *CallSpec, host string) (breaker.Breaker, error) {
	if spec.Breaker != nil {
		return spec.Breaker, nil
	}
	if c.breakers == nil {
		return nil, nil
	}
	return c.breakers.Get(host)
}
