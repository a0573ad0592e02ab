package xjournal

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/omeyang/xsink/pkg/appender/xmanager"
)

// Registry 按目录共享 Env 的注册表
type Registry = xmanager.Registry[*Env, Options]

// Handle 共享 Env 的引用
type Handle = xmanager.Handle[*Env]

func factory(_ string, opts Options) (*Env, error) {
	return Open(opts)
}

func sameOptions(a, b Options) bool {
	return Key(a.Dir) == Key(b.Dir) && a.Fsync == b.Fsync
}

// NewRegistry 创建独立的注册表
func NewRegistry() *Registry {
	r, _ := xmanager.NewRegistry(factory, xmanager.WithDataEqual(sameOptions)) //nolint:errcheck // factory 非 nil
	return r
}

var defaultRegistry = sync.OnceValue(NewRegistry)

// DefaultRegistry 返回进程级注册表
func DefaultRegistry() *Registry {
	return defaultRegistry()
}

// Key 返回目录对应的注册键（绝对路径）
func Key(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return filepath.Clean(dir)
}

// Acquire 在 DefaultRegistry 中获取 opts.Dir 上的共享 Env
//
// 同一进程内多个队列指向同一目录时共用一个 Pebble 实例，最后一个引用释放时关闭。
func Acquire(ctx context.Context, opts Options) (*Handle, error) {
	if opts.Dir == "" {
		return nil, ErrEmptyDir
	}
	return DefaultRegistry().Acquire(ctx, Key(opts.Dir), opts)
}
