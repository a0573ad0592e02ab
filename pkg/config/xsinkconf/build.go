package xsinkconf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/omeyang/xsink/pkg/appender/xappender"
	"github.com/omeyang/xsink/pkg/appender/xrecord"
	"github.com/omeyang/xsink/pkg/observability/xlog"
)

// BuildOption Build 选项
type BuildOption func(*buildOptions)

type buildOptions struct {
	logger  xlog.Logger
	onError func(appender string, err error)
}

// WithStatusLogger 覆盖文档中的 status 段
func WithStatusLogger(l xlog.Logger) BuildOption {
	return func(o *buildOptions) { o.logger = l }
}

// WithOnError 任一 Appender 写入失败时回调
func WithOnError(fn func(appender string, err error)) BuildOption {
	return func(o *buildOptions) { o.onError = fn }
}

// Set 由一个文档构造出的 Appender 集合
type Set struct {
	order     []string
	appenders map[string]*xappender.Appender
	status    xlog.Logger
	cleanup   func() error
}

// Build 按文档顺序创建 Appender；任一失败时关闭已创建的并返回错误
func Build(ctx context.Context, doc Document, opts ...BuildOption) (*Set, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	var o buildOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	s := &Set{appenders: make(map[string]*xappender.Appender, len(doc.Appenders))}
	if o.logger != nil {
		s.status = o.logger
	} else {
		l, cleanup, err := doc.Status.build()
		if err != nil {
			return nil, err
		}
		s.status, s.cleanup = l, cleanup
	}

	for _, ac := range doc.Appenders {
		a, err := buildAppender(ctx, ac, s.status, o.onError)
		if err != nil {
			return nil, errors.Join(err, s.Close(ctx))
		}
		s.order = append(s.order, ac.Name)
		s.appenders[ac.Name] = a
	}
	return s, nil
}

func buildAppender(ctx context.Context, ac AppenderConfig, status xlog.Logger, onError func(string, error)) (*xappender.Appender, error) {
	level, err := ac.level()
	if err != nil {
		return nil, err
	}
	layout, err := xrecord.NewSlogLayout(ac.Layout)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, ac.Name, err)
	}
	opts := []xappender.Option{
		xappender.WithLayout(layout),
		xappender.WithLevel(level),
		xappender.WithHeaders(ac.Headers),
		xappender.WithStatusLogger(status),
	}
	if onError != nil {
		name := ac.Name
		opts = append(opts, xappender.WithOnError(func(err error) { onError(name, err) }))
	}

	switch strings.ToLower(ac.Type) {
	case TypeRolling:
		data, err := ac.RollingData()
		if err != nil {
			return nil, err
		}
		return xappender.NewRolling(ctx, ac.Name, data, opts...)
	case TypeQueue:
		data, err := ac.QueueData()
		if err != nil {
			return nil, err
		}
		return xappender.NewQueue(ctx, ac.Name, data, opts...)
	default:
		return nil, fmt.Errorf("%w: %s: unknown type %q", ErrInvalidConfig, ac.Name, ac.Type)
	}
}

func (s StatusConfig) build() (xlog.LoggerWithLevel, func() error, error) {
	if s == (StatusConfig{}) {
		return xlog.Default(), nil, nil
	}
	b := xlog.New().SetLevelString(s.Level).SetFormat(s.Format)
	if s.File != "" {
		var ro []xlog.RotationOption
		if s.MaxSizeMB > 0 {
			ro = append(ro, xlog.WithMaxSize(s.MaxSizeMB))
		}
		if s.MaxBackups > 0 {
			ro = append(ro, xlog.WithMaxBackups(s.MaxBackups))
		}
		b.SetRotation(s.File, ro...)
	}
	l, cleanup, err := b.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: status: %w", ErrInvalidConfig, err)
	}
	return l, cleanup, nil
}

// Appender 按名称查找
func (s *Set) Appender(name string) (*xappender.Appender, bool) {
	a, ok := s.appenders[name]
	return a, ok
}

// Names 文档中的 Appender 名称，保持声明顺序
func (s *Set) Names() []string { return append([]string(nil), s.order...) }

// Logger 返回写入指定 Appender 的 slog.Logger；名称不存在时返回 nil
func (s *Set) Logger(name string) *slog.Logger {
	a, ok := s.appenders[name]
	if !ok {
		return nil
	}
	return slog.New(a.Handler())
}

// Flush 刷新全部 Appender
func (s *Set) Flush() error {
	var errs []error
	for _, name := range s.order {
		if err := s.appenders[name].Flush(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Close 逆序关闭全部 Appender，然后关闭状态日志文件
func (s *Set) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.order) - 1; i >= 0; i-- {
		name := s.order[i]
		if err := s.appenders[name].Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if s.cleanup != nil {
		errs = append(errs, s.cleanup())
	}
	return errors.Join(errs...)
}

// Runtime 持有当前生效的 Set，Apply 时整体替换
//
// Runtime.Logger 返回的 Logger 每条记录都解析到当前 Set，
// 因此替换后无需重新获取。
type Runtime struct {
	opts []BuildOption

	mu  sync.RWMutex
	set *Set
}

// NewRuntime 按文档构造首个 Set
func NewRuntime(ctx context.Context, doc Document, opts ...BuildOption) (*Runtime, error) {
	set, err := Build(ctx, doc, opts...)
	if err != nil {
		return nil, err
	}
	return &Runtime{opts: opts, set: set}, nil
}

// Apply 先构造新 Set 再关闭旧 Set；构造失败时保持原状
func (r *Runtime) Apply(ctx context.Context, doc Document) error {
	next, err := Build(ctx, doc, r.opts...)
	if err != nil {
		return err
	}
	r.mu.Lock()
	prev := r.set
	r.set = next
	r.mu.Unlock()

	if prev == nil {
		return nil
	}
	next.status.Info(ctx, "xsinkconf: configuration applied", xlog.Count(len(next.order)))
	return prev.Close(ctx)
}

// Current 当前 Set
func (r *Runtime) Current() *Set {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.set
}

func (r *Runtime) statusLogger() xlog.Logger {
	if set := r.Current(); set != nil {
		return set.status
	}
	return xlog.Default()
}

// Logger 返回始终写入当前 Set 中指定 Appender 的 Logger
func (r *Runtime) Logger(name string) *slog.Logger {
	return slog.New(&liveHandler{r: r, name: name})
}

// Close 关闭当前 Set；之后 Logger 的记录被丢弃
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	set := r.set
	r.set = nil
	r.mu.Unlock()
	if set == nil {
		return nil
	}
	return set.Close(ctx)
}

// liveHandler 每次调用时解析当前 Appender，并重放 WithAttrs/WithGroup
type liveHandler struct {
	r    *Runtime
	name string
	ops  []func(slog.Handler) slog.Handler
}

func (h *liveHandler) current() slog.Handler {
	set := h.r.Current()
	if set == nil {
		return nil
	}
	a, ok := set.Appender(h.name)
	if !ok {
		return nil
	}
	var out slog.Handler = a.Handler()
	for _, op := range h.ops {
		out = op(out)
	}
	return out
}

func (h *liveHandler) Enabled(ctx context.Context, level slog.Level) bool {
	cur := h.current()
	return cur != nil && cur.Enabled(ctx, level)
}

func (h *liveHandler) Handle(ctx context.Context, r slog.Record) error {
	if cur := h.current(); cur != nil {
		return cur.Handle(ctx, r)
	}
	return nil
}

func (h *liveHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.with(func(in slog.Handler) slog.Handler { return in.WithAttrs(attrs) })
}

func (h *liveHandler) WithGroup(name string) slog.Handler {
	return h.with(func(in slog.Handler) slog.Handler { return in.WithGroup(name) })
}

func (h *liveHandler) with(op func(slog.Handler) slog.Handler) slog.Handler {
	ops := make([]func(slog.Handler) slog.Handler, len(h.ops), len(h.ops)+1)
	copy(ops, h.ops)
	return &liveHandler{r: h.r, name: h.name, ops: append(ops, op)}
}
