package xrolling

import "errors"

var (
	// ErrEmptyPath 未提供活动文件路径
	ErrEmptyPath = errors.New("xrolling: empty file name")

	// ErrInvalidPattern file pattern 非法
	ErrInvalidPattern = errors.New("xrolling: invalid file pattern")

	// ErrInvalidPolicy 触发策略缺失或参数非法
	ErrInvalidPolicy = errors.New("xrolling: invalid triggering policy")

	// ErrInvalidStrategy 轮转策略参数非法
	ErrInvalidStrategy = errors.New("xrolling: invalid rollover strategy")

	// ErrInvalidBufferSize 缓冲区大小非法
	ErrInvalidBufferSize = errors.New("xrolling: invalid buffer size")

	// ErrWriteFailed 写盘失败
	ErrWriteFailed = errors.New("xrolling: write failed")

	// ErrRolloverFailed 轮转失败，Manager 继续写原文件
	ErrRolloverFailed = errors.New("xrolling: rollover failed")

	// ErrDirtyBuffer 在缓冲区非空或文件未关闭时执行轮转
	ErrDirtyBuffer = errors.New("xrolling: rollover with unflushed buffer or open file")
)
