package dispatch

import (
	"context"
	"runtime"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// ============================================================================
// Runner
// ============================================================================

// Runner 异步调用的执行器，限制同时运行的调用数；已满时 Submit 阻塞直到有空位
type Runner struct {
	pool *pool.Pool
}

// NewRunner 创建最多同时运行 maxGoroutines 个任务的 Runner，maxGoroutines <= 0 时不限制
func NewRunner(maxGoroutines int) *Runner {
	p := pool.New()
	if maxGoroutines > 0 {
		p = p.WithMaxGoroutines(maxGoroutines)
	}
	return &Runner{pool: p}
}

// Submit 提交任务
func (r *Runner) Submit(fn func()) {
	r.pool.Go(fn)
}

// Wait 等待已提交的任务全部完成，之后 Runner 不能再使用
func (r *Runner) Wait() {
	r.pool.Wait()
}

var (
	defaultRunner     *Runner
	defaultRunnerOnce sync.Once
)

// DefaultRunner 进程级共享的 Runner，首次使用时创建，存活到进程结束
func DefaultRunner() *Runner {
	defaultRunnerOnce.Do(func() {
		defaultRunner = NewRunner(runtime.GOMAXPROCS(0) * 64)
	})
	return defaultRunner
}

// ============================================================================
// Future
// ============================================================================

// Future 异步调用的结果
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) resolve(v T, err error) {
	f.val, f.err = v, err
	close(f.done)
}

// Done 调用完成时关闭
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await 等待结果；ctx 先结束时返回 ctx.Err()，调用本身继续运行
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
