package xqueue

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/omeyang/xsink/pkg/appender/xmanager"
	"github.com/omeyang/xsink/pkg/storage/xjournal"
)

// Registry 持久队列 Manager 的注册表类型
type Registry = xmanager.Registry[*Manager, FactoryData]

// Handle 持久队列 Manager 的引用
type Handle = xmanager.Handle[*Manager]

// Factory 返回注入了运行时协作者的构造函数
func Factory(opts ...Option) xmanager.Factory[*Manager, FactoryData] {
	return func(name string, data FactoryData) (*Manager, error) {
		return NewManager(name, data, opts...)
	}
}

// NewRegistry 创建独立的注册表
func NewRegistry(opts ...Option) *Registry {
	r, _ := xmanager.NewRegistry(Factory(opts...)) //nolint:errcheck // Factory 非 nil
	return r
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	return NewRegistry()
})

// DefaultRegistry 返回进程级注册表
func DefaultRegistry() *Registry {
	return defaultRegistry()
}

// Key 返回 ManagerKey：DurableQueue[agent1,agent2] dataDir
func Key(data FactoryData) string {
	data = data.withDefaults()
	return fmt.Sprintf("DurableQueue[%s] %s", agentList(data), xjournal.Key(data.DataDir))
}

// Acquire 在 DefaultRegistry 中获取共享的 Manager
func Acquire(ctx context.Context, data FactoryData) (*Handle, error) {
	return DefaultRegistry().Acquire(ctx, Key(data), data)
}

func agentList(data FactoryData) string {
	names := make([]string, 0, len(data.Agents))
	for _, s := range data.Agents {
		names = append(names, s.DisplayName())
	}
	return strings.Join(names, ",")
}

// JournalName 返回队列在 WAL 中的日志名
//
// 未设置 Name 时由 Agent 列表的哈希派生，同一配置重启后找回同一日志。
func JournalName(data FactoryData) string {
	if data.Name != "" {
		return data.Name
	}
	return fmt.Sprintf("q-%016x", xxhash.Sum64String(agentList(data)))
}
