package breaker

import (
	"sync"
)

// Registry 按 key（通常是上游 host）维护独立的熔断器，一个上游的故障不会影响其他上游
type Registry struct {
	cfg  Config
	opts []Option

	breakers sync.Map // map[string]Breaker
	mu       sync.Mutex
}

// NewRegistry 创建熔断器注册表，每个 key 的熔断器都使用 cfg 与 opts 创建，名称为 key
func NewRegistry(cfg *Config, opts ...Option) *Registry {
	r := &Registry{opts: opts}
	if cfg != nil {
		r.cfg = *cfg
	}
	return r
}

// Get 获取或创建指定 key 的熔断器
func (r *Registry) Get(key string) (Breaker, error) {
	if key == "" {
		return nil, ErrKeyEmpty
	}
	if b, ok := r.breakers.Load(key); ok {
		return b.(Breaker), nil
	}

	// 加锁保证每个 key 只创建一个实例
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers.Load(key); ok {
		return b.(Breaker), nil
	}

	cfg := r.cfg
	cfg.Name = key
	b, err := New(&cfg, r.opts...)
	if err != nil {
		return nil, err
	}
	r.breakers.Store(key, b)
	return b, nil
}

// Range 遍历已创建的熔断器
func (r *Registry) Range(fn func(key string, b Breaker) bool) {
	r.breakers.Range(func(k, v any) bool {
		return fn(k.(string), v.(Breaker))
	})
}
