package xappender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/omeyang/xsink/pkg/appender/xmanager"
	"github.com/omeyang/xsink/pkg/appender/xqueue"
	"github.com/omeyang/xsink/pkg/appender/xrecord"
	"github.com/omeyang/xsink/pkg/appender/xrolling"
	"github.com/omeyang/xsink/pkg/observability/xlog"
)

// ErrClosed Appender 已关闭
var ErrClosed = errors.New("xappender: closed")

// Sink Appender 可写入的 Manager
type Sink interface {
	xmanager.Manager
	WriteRecord(rec xrecord.Record) error
}

// Appender 一个具名的写入端
type Appender struct {
	name    string
	sink    Sink
	release func(ctx context.Context) error
	opts    options
	logger  xlog.Logger

	closed   atomic.Bool
	appended atomic.Uint64
	failed   atomic.Uint64
}

// Stats 写入计数
type Stats struct {
	Appended uint64
	Failed   uint64
}

// New 在 Handle 上创建 Appender；Close 时释放 Handle
func New[M Sink](name string, h *xmanager.Handle[M], opts ...Option) (*Appender, error) {
	if h == nil {
		return nil, fmt.Errorf("%w: nil handle", xmanager.ErrInvalidConfig)
	}
	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Appender{
		name:    name,
		sink:    h.Manager(),
		release: h.Release,
		opts:    o,
		logger:  o.logger.With(slog.String("appender", name), xlog.Manager(h.Key())),
	}, nil
}

// NewRolling 从滚动文件注册表获取 Manager 并创建 Appender
func NewRolling(ctx context.Context, name string, data xrolling.FactoryData, opts ...Option) (*Appender, error) {
	h, err := xrolling.Acquire(ctx, data)
	if err != nil {
		return nil, err
	}
	a, err := New(name, h, opts...)
	if err != nil {
		_ = h.Release(ctx)
		return nil, err
	}
	return a, nil
}

// NewQueue 从持久队列注册表获取 Manager 并创建 Appender
func NewQueue(ctx context.Context, name string, data xqueue.FactoryData, opts ...Option) (*Appender, error) {
	h, err := xqueue.Acquire(ctx, data)
	if err != nil {
		return nil, err
	}
	a, err := New(name, h, opts...)
	if err != nil {
		_ = h.Release(ctx)
		return nil, err
	}
	return a, nil
}

// Name 返回名称
func (a *Appender) Name() string { return a.name }

// Manager 返回底层 Manager
func (a *Appender) Manager() Sink { return a.sink }

// Append 写入一条已编码的记录，从不返回错误
func (a *Appender) Append(ctx context.Context, rec xrecord.Record) {
	if a.closed.Load() {
		a.fail(ctx, ErrClosed)
		return
	}
	if rec.Logger == "" {
		rec.Logger = a.name
	}
	if len(a.opts.headers) > 0 {
		h := make(map[string]string, len(a.opts.headers)+len(rec.Headers))
		for k, v := range a.opts.headers {
			h[k] = v
		}
		for k, v := range rec.Headers {
			h[k] = v
		}
		rec.Headers = h
	}
	if err := a.write(rec); err != nil {
		a.fail(ctx, err)
		return
	}
	a.appended.Add(1)
}

func (a *Appender) write(rec xrecord.Record) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("xappender: manager panicked: %v", p)
		}
	}()
	return a.sink.WriteRecord(rec)
}

func (a *Appender) fail(ctx context.Context, err error) {
	if a.failed.Add(1) == 1 {
		a.logger.Warn(ctx, "append failed", xlog.Err(err))
	}
	if a.opts.onError == nil {
		return
	}
	defer func() { _ = recover() }()
	a.opts.onError(err)
}

// Flush 刷新底层 Manager
func (a *Appender) Flush() error {
	return a.sink.Flush()
}

// Stats 返回写入计数
func (a *Appender) Stats() Stats {
	return Stats{Appended: a.appended.Load(), Failed: a.failed.Load()}
}

// Close 释放 Manager 引用；最后一个引用释放时 Manager 停止。幂等
func (a *Appender) Close(ctx context.Context) error {
	if a.closed.Swap(true) {
		return nil
	}
	return a.release(ctx)
}
