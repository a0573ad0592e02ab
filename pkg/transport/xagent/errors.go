package xagent

import "errors"

var (
	// ErrSendFailed 投递失败，未确认的条目需要重试
	ErrSendFailed = errors.New("xagent: send failed")

	// ErrShortAck Agent 返回 nil 错误但确认数少于批次长度
	ErrShortAck = errors.New("xagent: short acknowledgement")

	// ErrInvalidSpec Agent 配置非法
	ErrInvalidSpec = errors.New("xagent: invalid agent spec")

	// ErrUnknownType 未注册的 Agent 类型
	ErrUnknownType = errors.New("xagent: unknown agent type")

	// ErrNoAgents 没有可用的 Agent
	ErrNoAgents = errors.New("xagent: no agents")

	// ErrClosed Agent 已关闭
	ErrClosed = errors.New("xagent: closed")
)
