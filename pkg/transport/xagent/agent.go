package xagent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/omeyang/xsink/pkg/appender/xrecord"
)

//go:generate mockgen -source=agent.go -destination=xagentmock/agent.go -package=xagentmock Agent

// Agent 远端投递目标
type Agent interface {
	// Name 用于日志与 ManagerKey
	Name() string

	// Send 按顺序投递 batch，返回已确认的前缀长度
	//
	// err 为 nil 时必须确认全部条目。
	Send(ctx context.Context, batch []xrecord.Entry) (int, error)

	// Close 释放连接
	Close() error
}

// Spec Agent 的构造参数
type Spec struct {
	// Name 可选，默认 type://address/target
	Name string `koanf:"name" json:"name,omitempty"`
	// Type redis | kafka | pulsar，或通过 Register 注册的类型
	Type string `koanf:"type" json:"type"`
	// Address 连接地址
	Address string `koanf:"address" json:"address"`
	// Target stream / topic
	Target string `koanf:"target" json:"target,omitempty"`
	// Retries 单次投递失败后在本 Agent 上的重试次数
	Retries uint `koanf:"retries" json:"retries,omitempty"`
	// RetryDelay 重试间隔，默认 DefaultRetryDelay
	RetryDelay time.Duration `koanf:"retry_delay" json:"retry_delay,omitempty"`
	// Options 传输相关参数（kafka ConfigMap 键、redis password/db 等）
	Options map[string]string `koanf:"options" json:"options,omitempty"`
}

// DefaultRetryDelay Spec.RetryDelay 的默认值
const DefaultRetryDelay = 200 * time.Millisecond

// DisplayName 返回 Name，未设置时由类型、地址与目标组成
func (s Spec) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	name := strings.ToLower(s.Type) + "://" + s.Address
	if s.Target != "" {
		name += "/" + s.Target
	}
	return name
}

// Validate 检查必填字段
func (s Spec) Validate() error {
	if s.Type == "" {
		return fmt.Errorf("%w: missing type", ErrInvalidSpec)
	}
	if s.Address == "" {
		return fmt.Errorf("%w: %s: missing address", ErrInvalidSpec, s.Type)
	}
	return nil
}

// Constructor 按 Spec 构造 Agent
type Constructor func(spec Spec, opts ...Option) (Agent, error)

var (
	ctorMu sync.RWMutex
	ctors  = map[string]Constructor{
		"redis":  newRedisFromSpec,
		"kafka":  newKafkaFromSpec,
		"pulsar": newPulsarFromSpec,
	}
)

// Register 注册 Agent 类型，类型名大小写不敏感；重复注册会覆盖
func Register(typ string, ctor Constructor) {
	ctorMu.Lock()
	defer ctorMu.Unlock()
	ctors[strings.ToLower(typ)] = ctor
}

// Types 返回已注册的类型
func Types() []string {
	ctorMu.RLock()
	defer ctorMu.RUnlock()
	out := make([]string, 0, len(ctors))
	for t := range ctors {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// New 按 Spec 构造单个 Agent
//
// 构造不要求远端可达：连接在首次 Send 时建立，失败按投递失败处理。
func New(spec Spec, opts ...Option) (Agent, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	ctorMu.RLock()
	ctor, ok := ctors[strings.ToLower(spec.Type)]
	ctorMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, spec.Type)
	}
	return ctor(spec, opts...)
}

// safeSend 调用 Agent.Send 并把 panic 转为错误，修正越界的确认数
func safeSend(ctx context.Context, a Agent, batch []xrecord.Entry) (n int, err error) {
	defer func() {
		if p := recover(); p != nil {
			n, err = 0, fmt.Errorf("%w: %s panicked: %v", ErrSendFailed, a.Name(), p)
		}
	}()
	n, err = a.Send(ctx, batch)
	n = max(0, min(n, len(batch)))
	if err == nil && n < len(batch) {
		err = fmt.Errorf("%w: %s acknowledged %d of %d", ErrShortAck, a.Name(), n, len(batch))
	}
	return n, err
}
