package xmanager

import "errors"

var (
	// ErrNotConnected Manager 已停止，写入被拒绝
	ErrNotConnected = errors.New("xmanager: manager not connected")

	// ErrReleased Handle 已被释放
	ErrReleased = errors.New("xmanager: handle already released")

	// ErrRegistryClosed Registry 已 Shutdown
	ErrRegistryClosed = errors.New("xmanager: registry closed")

	// ErrEmptyKey ManagerKey 为空
	ErrEmptyKey = errors.New("xmanager: empty manager key")

	// ErrNilFactory 未提供 Factory
	ErrNilFactory = errors.New("xmanager: nil factory")

	// ErrInvalidConfig 构造参数非法（由各 Factory 包装返回）
	ErrInvalidConfig = errors.New("xmanager: invalid config")

	// ErrFactoryPanic Factory 发生 panic
	ErrFactoryPanic = errors.New("xmanager: factory panicked")
)
