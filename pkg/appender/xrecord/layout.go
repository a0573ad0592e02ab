package xrecord

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Layout 把 slog.Record 编码为字节
//
// 格式化语言不属于 xsink；这里只提供基于 slog 内置 handler 的两种编码。
type Layout interface {
	Encode(ctx context.Context, r slog.Record, attrs []slog.Attr) ([]byte, error)
}

// SlogLayout 以 slog 的 text 或 json handler 编码单条记录
type SlogLayout struct {
	json bool
	opts *slog.HandlerOptions
	pool sync.Pool
}

// NewSlogLayout 创建 layout，format 为 "text"（默认）或 "json"
func NewSlogLayout(format string) (*SlogLayout, error) {
	l := &SlogLayout{opts: &slog.HandlerOptions{Level: slog.LevelDebug - 4}}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
	case "json":
		l.json = true
	default:
		return nil, fmt.Errorf("xrecord: unknown layout format %q", format)
	}
	l.pool.New = func() any { return new(bytes.Buffer) }
	return l, nil
}

// Encode 编码记录，结果以换行结尾
func (l *SlogLayout) Encode(ctx context.Context, r slog.Record, attrs []slog.Attr) ([]byte, error) {
	buf, _ := l.pool.Get().(*bytes.Buffer) //nolint:errcheck
	buf.Reset()
	defer l.pool.Put(buf)

	var h slog.Handler
	if l.json {
		h = slog.NewJSONHandler(buf, l.opts)
	} else {
		h = slog.NewTextHandler(buf, l.opts)
	}
	if len(attrs) > 0 {
		h = h.WithAttrs(attrs)
	}
	if err := h.Handle(ctx, r); err != nil {
		return nil, err
	}
	return bytes.Clone(buf.Bytes()), nil
}
