package xmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/omeyang/xsink/pkg/observability/xlog"
)

// Factory 根据 key 与不可变的 factory data 构造 Manager
type Factory[M Resource, D any] func(name string, data D) (M, error)

// entry 一个 key 对应的注册项
//
// ready 在构造结束（成功或失败）后关闭；done 在 Stop 结束后关闭。
// refs、stopping 受 Registry.mu 保护；mgr、data、err 在 ready 关闭后只读。
type entry[M Resource, D any] struct {
	ready    chan struct{}
	done     chan struct{}
	mgr      M
	data     D
	err      error
	refs     int
	stopping bool
}

func (e *entry[M, D]) isReady() bool {
	select {
	case <-e.ready:
		return true
	default:
		return false
	}
}

// Registry 引用计数的 Manager 注册表
//
// 所有方法并发安全。
type Registry[M Resource, D any] struct {
	factory Factory[M, D]
	opts    options[D]

	mu      sync.Mutex
	entries map[string]*entry[M, D]
	closed  bool
}

// NewRegistry 创建注册表，factory 不能为空
func NewRegistry[M Resource, D any](factory Factory[M, D], opts ...Option[D]) (*Registry[M, D], error) {
	if factory == nil {
		return nil, ErrNilFactory
	}
	o := defaultOptions[D]()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return &Registry[M, D]{
		factory: factory,
		opts:    o,
		entries: make(map[string]*entry[M, D]),
	}, nil
}

func (r *Registry[M, D]) logger() xlog.Logger {
	return xlog.OrDefault(r.opts.logger)
}

// Acquire 获取 key 对应的 Manager，不存在时调用 Factory 创建
//
// 同一 key 并发调用时只有一个调用者执行 Factory，其余等待并共享结果。
// key 对应的 Manager 正在 Stop 时，等待其结束后重新创建。
// ctx 只约束等待过程，不会传给 Factory。
func (r *Registry[M, D]) Acquire(ctx context.Context, key string, data D) (*Handle[M], error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, ErrRegistryClosed
		}
		e, ok := r.entries[key]
		if !ok {
			e = &entry[M, D]{
				ready: make(chan struct{}),
				done:  make(chan struct{}),
				data:  data,
				refs:  1,
			}
			r.entries[key] = e
			r.mu.Unlock()
			return r.create(key, e)
		}

		if e.stopping {
			done := e.done
			r.mu.Unlock()
			if err := wait(ctx, done); err != nil {
				return nil, err
			}
			continue
		}

		if !e.isReady() {
			r.mu.Unlock()
			if err := wait(ctx, e.ready); err != nil {
				return nil, err
			}
			if e.err != nil {
				return nil, e.err
			}
			continue
		}

		e.refs++
		r.mu.Unlock()
		if !r.opts.dataEqual(e.data, data) {
			r.logger().Warn(context.Background(), "factory data ignored for existing manager",
				xlog.Manager(key))
		}
		return newHandle(key, e.mgr, func(ctx context.Context) error { return r.release(ctx, key, e) }), nil
	}
}

func (r *Registry[M, D]) create(key string, e *entry[M, D]) (*Handle[M], error) {
	mgr, err := r.invoke(key, e.data)

	r.mu.Lock()
	if err != nil {
		delete(r.entries, key)
		e.err = err
		close(e.ready)
		close(e.done)
		r.mu.Unlock()
		r.logger().Error(context.Background(), "create manager failed", xlog.Manager(key), xlog.Err(err))
		return nil, err
	}
	e.mgr = mgr
	close(e.ready)
	r.mu.Unlock()

	r.logger().Debug(context.Background(), "manager created", xlog.Manager(key))
	return newHandle(key, mgr, func(ctx context.Context) error { return r.release(ctx, key, e) }), nil
}

func (r *Registry[M, D]) invoke(key string, data D) (mgr M, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrFactoryPanic, p)
		}
	}()
	return r.factory(key, data)
}

func (r *Registry[M, D]) release(ctx context.Context, key string, e *entry[M, D]) error {
	r.mu.Lock()
	e.refs--
	if e.refs > 0 || e.stopping {
		r.mu.Unlock()
		return nil
	}
	e.stopping = true
	r.mu.Unlock()

	return r.stop(ctx, key, e)
}

// stop 执行 Stop 并移除注册项；调用方已将 e.stopping 置为 true。
func (r *Registry[M, D]) stop(ctx context.Context, key string, e *entry[M, D]) error {
	err := stopSafely(ctx, e.mgr)

	r.mu.Lock()
	if r.entries[key] == e {
		delete(r.entries, key)
	}
	close(e.done)
	r.mu.Unlock()

	if err != nil {
		r.logger().Error(ctx, "stop manager failed", xlog.Manager(key), xlog.Err(err))
		return err
	}
	r.logger().Debug(ctx, "manager stopped", xlog.Manager(key))
	return nil
}

func stopSafely[M Resource](ctx context.Context, m M) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("xmanager: stop panicked: %v", p)
		}
	}()
	return m.Stop(ctx)
}

// Use 作用域式获取：fn 返回后（包括 panic）总会释放
func (r *Registry[M, D]) Use(ctx context.Context, key string, data D, fn func(M) error) (err error) {
	h, err := r.Acquire(ctx, key, data)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, h.Release(ctx))
	}()
	return fn(h.Manager())
}

// RefCount 返回 key 当前的引用计数，不存在时返回 0
func (r *Registry[M, D]) RefCount(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		return e.refs
	}
	return 0
}

// Len 返回注册项数量
func (r *Registry[M, D]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Keys 返回当前所有 key（排序后）
func (r *Registry[M, D]) Keys() []string {
	r.mu.Lock()
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	r.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// Shutdown 关闭注册表并并发停止所有剩余的 Manager，不论引用计数
//
// 之后的 Acquire 返回 ErrRegistryClosed；仍持有的 Handle 可以安全 Release。
func (r *Registry[M, D]) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	pending := make(map[string]*entry[M, D], len(r.entries))
	for k, e := range r.entries {
		pending[k] = e
	}
	r.mu.Unlock()

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for key, e := range pending {
		g.Go(func() error {
			if err := r.shutdownEntry(ctx, key, e); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // 错误已汇总到 errs
	if len(errs) > 0 {
		r.logger().Error(ctx, "registry shutdown finished with errors", xlog.Count(len(errs)))
	}
	return errors.Join(errs...)
}

func (r *Registry[M, D]) shutdownEntry(ctx context.Context, key string, e *entry[M, D]) error {
	if err := wait(ctx, e.ready); err != nil {
		return err
	}
	if e.err != nil {
		return nil
	}
	r.mu.Lock()
	if e.stopping {
		done := e.done
		r.mu.Unlock()
		return wait(ctx, done)
	}
	e.stopping = true
	r.mu.Unlock()
	return r.stop(ctx, key, e)
}

func wait(ctx context.Context, ch <-chan struct{}) error {
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle 一次成功的 Acquire
//
// Release 幂等：第一次调用递减引用计数并返回 Stop 的结果，之后返回 ErrReleased。
type Handle[M Resource] struct {
	key      string
	mgr      M
	release  func(ctx context.Context) error
	released atomic.Bool
}

func newHandle[M Resource](key string, mgr M, release func(ctx context.Context) error) *Handle[M] {
	return &Handle[M]{key: key, mgr: mgr, release: release}
}

// Key 返回 ManagerKey
func (h *Handle[M]) Key() string { return h.key }

// Manager 返回共享的 Manager
func (h *Handle[M]) Manager() M { return h.mgr }

// Release 释放引用
func (h *Handle[M]) Release(ctx context.Context) error {
	if !h.released.CompareAndSwap(false, true) {
		return ErrReleased
	}
	return h.release(ctx)
}

// LogValue 实现 slog.LogValuer
func (h *Handle[M]) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("key", h.key),
		slog.Bool("released", h.released.Load()),
	)
}
