package xrolling

import (
	"github.com/omeyang/xsink/pkg/appender/xrecord"
	"github.com/omeyang/xsink/pkg/observability/xlog"
	"github.com/omeyang/xsink/pkg/observability/xmetrics"
)

// DefaultBufferSize 默认缓冲区大小（256 KiB）
const DefaultBufferSize = 256 * 1024

// FactoryData 滚动文件 Manager 的不可变构造参数
type FactoryData struct {
	// FileName 活动文件路径（必填）
	FileName string
	// FilePattern 归档文件名模板（必填），见 ParseFilePattern
	FilePattern string
	// Append 为 true 时沿用已有文件内容与修改时间，否则截断
	Append bool
	// BufferSize 缓冲区容量，0 使用 DefaultBufferSize
	BufferSize int
	// Unbuffered 为 true 时每次写入直接落盘
	Unbuffered bool
	// ImmediateFlush 每次写入后 flush
	ImmediateFlush bool
	// Locking 每次写盘前对文件加 advisory 锁
	Locking bool
	// Policy 触发策略（必填）
	Policy TriggeringPolicy
	// Strategy 轮转策略，nil 使用 DefaultStrategy()
	Strategy RolloverStrategy
}

type options struct {
	logger   xlog.Logger
	clock    xrecord.Clock
	recorder xmetrics.Recorder
}

// Option Manager 运行时协作者
type Option func(*options)

// WithLogger 状态日志，默认 xlog.Default()
func WithLogger(l xlog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock 时钟，默认系统时钟
func WithClock(c xrecord.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithRecorder 埋点，默认不记录
func WithRecorder(r xmetrics.Recorder) Option {
	return func(o *options) { o.recorder = r }
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	o.logger = xlog.OrDefault(o.logger)
	o.clock = xrecord.OrSystem(o.clock)
	o.recorder = xmetrics.OrNoop(o.recorder)
	return o
}
