package xmanager

import (
	"context"
	"sync/atomic"
)

// State Manager 生命周期状态
type State int32

const (
	StateStarting State = iota
	StateStarted
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateStarted:
		return "started"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Resource 可由 Registry 共享的资源：只要求能被停止
//
// Manager 是 Resource；WAL 环境（xjournal.Env）这类没有写入语义的底层句柄也是。
type Resource interface {
	Stop(ctx context.Context) error
}

// Manager 物理日志汇的所有者
//
// Write 不会 panic；失败会被记录到状态日志后返回，调用方（Appender 层）负责吞掉错误。
// Stop 幂等：触发最终 flush/close，持久队列还会通知并等待后台写线程退出。
type Manager interface {
	Resource
	Name() string
	Write(p []byte) error
	Flush() error
	IsConnected() bool
	State() State
}

// Lifecycle 可嵌入的状态机
type Lifecycle struct {
	state atomic.Int32
}

// State 返回当前状态
func (l *Lifecycle) State() State {
	return State(l.state.Load())
}

// MarkStarted Starting → Started
func (l *Lifecycle) MarkStarted() {
	l.state.CompareAndSwap(int32(StateStarting), int32(StateStarted))
}

// BeginStop 进入 Stopping，只有第一个调用者返回 true
func (l *Lifecycle) BeginStop() bool {
	for {
		cur := l.state.Load()
		if cur >= int32(StateStopping) {
			return false
		}
		if l.state.CompareAndSwap(cur, int32(StateStopping)) {
			return true
		}
	}
}

// MarkStopped 进入 Stopped
func (l *Lifecycle) MarkStopped() {
	l.state.Store(int32(StateStopped))
}

// IsStarted 仅在 Started 状态返回 true
func (l *Lifecycle) IsStarted() bool {
	return l.State() == StateStarted
}
