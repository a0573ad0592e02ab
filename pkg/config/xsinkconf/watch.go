package xsinkconf

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/omeyang/xsink/pkg/observability/xlog"
)

// DefaultDebounce 连续变更合并为一次重载的时间窗口
const DefaultDebounce = 100 * time.Millisecond

// WatchCallback 重载完成后调用；err 非 nil 时 cfg 仍为旧文档
type WatchCallback func(cfg *Config, err error)

// WatchOption Watcher 选项
type WatchOption func(*watchOptions)

type watchOptions struct {
	debounce time.Duration
}

// WithDebounce 设置防抖时间，默认 DefaultDebounce
func WithDebounce(d time.Duration) WatchOption {
	return func(o *watchOptions) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// Watcher 监视配置文件并在变更后重载
type Watcher struct {
	cfg      *Config
	watcher  *fsnotify.Watcher
	callback WatchCallback
	debounce time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}

	mu      sync.Mutex
	running bool
	timer   *time.Timer
}

// Watch 创建 Watcher，需调用 Start 开始监视
//
// 监视的是文件所在目录，编辑器"写临时文件再改名"的保存方式也能被捕获。
func Watch(cfg *Config, callback WatchCallback, opts ...WatchOption) (*Watcher, error) {
	if cfg == nil || cfg.path == "" {
		return nil, ErrNotReloadable
	}
	o := watchOptions{debounce: DefaultDebounce}
	for _, opt := range opts {
		opt(&o)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("xsinkconf: create watcher: %w", err)
	}
	dir := filepath.Dir(cfg.path)
	if err := fw.Add(dir); err != nil {
		return nil, errors.Join(fmt.Errorf("xsinkconf: watch directory %s: %w", dir, err), fw.Close())
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		cfg:      cfg,
		watcher:  fw,
		callback: callback,
		debounce: o.debounce,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}, nil
}

// Start 在后台 goroutine 中监视，重复调用无效
func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running || w.ctx.Err() != nil {
		return
	}
	w.running = true
	go w.run()
}

// Stop 停止监视并等待后台 goroutine 退出；幂等
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.ctx.Err() != nil {
		w.mu.Unlock()
		return nil
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.cancel()
	running := w.running
	w.mu.Unlock()

	err := w.watcher.Close()
	if running {
		<-w.done
	}
	return err
}

func (w *Watcher) run() {
	defer close(w.done)
	filename := filepath.Base(w.cfg.path)
	for {
		select {
		case <-w.ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) == filename &&
				(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)) {
				w.schedule()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.notify(fmt.Errorf("xsinkconf: watch error: %w", err))
		}
	}
}

// schedule 重置防抖定时器
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ctx.Err() != nil {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if w.ctx.Err() != nil {
			return
		}
		w.notify(w.cfg.Reload())
	})
}

func (w *Watcher) notify(err error) {
	if w.callback != nil {
		w.callback(w.cfg, err)
	}
}

// Watch 监视 cfg，重载成功后 Apply 新文档；失败只记录状态日志
func (r *Runtime) Watch(cfg *Config, opts ...WatchOption) (*Watcher, error) {
	return Watch(cfg, func(c *Config, err error) {
		ctx := context.Background()
		status := r.statusLogger()
		if err != nil {
			status.Error(ctx, "xsinkconf: reload failed, keeping previous configuration",
				xlog.Path(c.Path()), xlog.Err(err))
			return
		}
		if err := r.Apply(ctx, c.Document()); err != nil {
			status.Error(ctx, "xsinkconf: apply failed", xlog.Path(c.Path()), xlog.Err(err))
		}
	}, opts...)
}
