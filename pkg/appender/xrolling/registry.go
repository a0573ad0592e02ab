package xrolling

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/omeyang/xsink/pkg/appender/xmanager"
)

// Registry 滚动文件 Manager 的注册表类型
type Registry = xmanager.Registry[*Manager, FactoryData]

// Handle 滚动文件 Manager 的引用
type Handle = xmanager.Handle[*Manager]

// Factory 返回注入了运行时协作者的构造函数
func Factory(opts ...Option) xmanager.Factory[*Manager, FactoryData] {
	return func(name string, data FactoryData) (*Manager, error) {
		return NewManager(name, data, opts...)
	}
}

// NewRegistry 创建独立的注册表（通常只在测试中使用）
func NewRegistry(opts ...Option) *Registry {
	r, _ := xmanager.NewRegistry(Factory(opts...)) //nolint:errcheck // Factory 非 nil
	return r
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	return NewRegistry()
})

// DefaultRegistry 返回进程级注册表，首次使用时创建
func DefaultRegistry() *Registry {
	return defaultRegistry()
}

// Key 返回 FileName 对应的 ManagerKey（绝对路径）
func Key(fileName string) string {
	if abs, err := filepath.Abs(fileName); err == nil {
		return abs
	}
	return filepath.Clean(fileName)
}

// Acquire 在 DefaultRegistry 中按 FileName 获取共享的 Manager
func Acquire(ctx context.Context, data FactoryData) (*Handle, error) {
	return DefaultRegistry().Acquire(ctx, Key(data.FileName), data)
}
