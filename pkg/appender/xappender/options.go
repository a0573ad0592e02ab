package xappender

import (
	"log/slog"
	"maps"

	"github.com/omeyang/xsink/pkg/appender/xrecord"
	"github.com/omeyang/xsink/pkg/observability/xlog"
)

type options struct {
	layout  xrecord.Layout
	level   slog.Leveler
	onError func(error)
	logger  xlog.Logger
	headers map[string]string
}

// Option Appender 选项
type Option func(*options)

// WithLayout 记录编码方式，默认 text 格式的 SlogLayout
func WithLayout(l xrecord.Layout) Option {
	return func(o *options) { o.layout = l }
}

// WithLevel Handler 的最低级别，默认 Info
func WithLevel(l slog.Leveler) Option {
	return func(o *options) { o.level = l }
}

// WithOnError 写入失败回调；回调中的 panic 会被吞掉
func WithOnError(fn func(error)) Option {
	return func(o *options) { o.onError = fn }
}

// WithStatusLogger 状态日志，默认 xlog.Default()
func WithStatusLogger(l xlog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithHeaders 附加到每条记录的固定头部（队列条目可见）
func WithHeaders(h map[string]string) Option {
	return func(o *options) { o.headers = maps.Clone(h) }
}

func applyOptions(opts []Option) (options, error) {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.layout == nil {
		l, err := xrecord.NewSlogLayout("text")
		if err != nil {
			return o, err
		}
		o.layout = l
	}
	if o.level == nil {
		o.level = slog.LevelInfo
	}
	o.logger = xlog.OrDefault(o.logger)
	return o, nil
}
