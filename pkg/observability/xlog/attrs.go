package xlog

import (
	"log/slog"
	"time"
)

// 状态日志的标准字段名
const (
	KeyError    = "error"
	KeyManager  = "manager"
	KeyKey      = "key"
	KeyPath     = "path"
	KeyAgent    = "agent"
	KeyCount    = "count"
	KeyBytes    = "bytes"
	KeyDuration = "duration"
)

// Err 错误属性，err 为 nil 时返回空属性（被 slog 忽略）
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Manager Manager 名称（ManagerKey）
func Manager(name string) slog.Attr { return slog.String(KeyManager, name) }

// Key 日志条目键（通常是 GUID）
func Key(k string) slog.Attr { return slog.String(KeyKey, k) }

// Path 文件或目录路径
func Path(p string) slog.Attr { return slog.String(KeyPath, p) }

// Agent 远端 agent 名称
func Agent(name string) slog.Attr { return slog.String(KeyAgent, name) }

// Count 计数
func Count(n int) slog.Attr { return slog.Int(KeyCount, n) }

// Bytes 字节数
func Bytes(n int64) slog.Attr { return slog.Int64(KeyBytes, n) }

// Duration 人类可读的耗时（如 "1m30s"）
func Duration(d time.Duration) slog.Attr { return slog.String(KeyDuration, d.String()) }
