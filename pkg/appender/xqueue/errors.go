package xqueue

import "errors"

var (
	// ErrNoAgents 没有配置 Agent
	ErrNoAgents = errors.New("xqueue: no agents configured")

	// ErrShuttingDown Manager 正在关闭，拒绝新的条目
	ErrShuttingDown = errors.New("xqueue: rejected, shutting down")

	// ErrCorruptedEntry 条目记录无法解码
	ErrCorruptedEntry = errors.New("xqueue: corrupted entry")

	// ErrHeaderTooLong header 键或值超过 65535 字节
	ErrHeaderTooLong = errors.New("xqueue: header too long")

	// ErrCipher 加解密失败
	ErrCipher = errors.New("xqueue: cipher error")

	// ErrKeyProvider 密钥提供者不存在或取密钥失败
	ErrKeyProvider = errors.New("xqueue: key provider error")
)
