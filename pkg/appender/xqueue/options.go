package xqueue

import (
	"time"

	"github.com/omeyang/xsink/pkg/appender/xrecord"
	"github.com/omeyang/xsink/pkg/observability/xlog"
	"github.com/omeyang/xsink/pkg/observability/xmetrics"
	"github.com/omeyang/xsink/pkg/storage/xjournal"
	"github.com/omeyang/xsink/pkg/transport/xagent"
)

// 默认值
const (
	DefaultBatchSize         = 1
	DefaultReconnectionDelay = 5 * time.Minute
	DefaultDataDir           = ".xsink/queueData"
)

// FactoryData 持久队列 Manager 的不可变构造参数
type FactoryData struct {
	// Name 日志名，默认由 Agent 列表派生；同一目录下不同队列必须不同
	Name string
	// Agents 按顺序尝试的投递目标（必填）
	Agents []xagent.Spec
	// BatchSize 每批条目数，小于 1 时为 1
	BatchSize int
	// ReconnectionDelay 空闲等待上限，也是投递失败后的退避间隔
	ReconnectionDelay time.Duration
	// DataDir WAL 目录，默认 DefaultDataDir
	DataDir string
	// Fsync WAL 持久化方式，默认每次提交 fsync
	Fsync xjournal.FsyncMode
	// Properties 属性包：keyProvider、cipher 及提供者自身的参数
	Properties Properties
}

func (d FactoryData) withDefaults() FactoryData {
	if d.BatchSize < 1 {
		d.BatchSize = DefaultBatchSize
	}
	if d.ReconnectionDelay <= 0 {
		d.ReconnectionDelay = DefaultReconnectionDelay
	}
	if d.DataDir == "" {
		d.DataDir = DefaultDataDir
	}
	return d
}

type options struct {
	logger    xlog.Logger
	recorder  xmetrics.Recorder
	agent     xagent.Agent
	agentOpts []xagent.Option
	journals  *xjournal.Registry
	clock     xrecord.Clock
}

// Option Manager 运行时协作者
type Option func(*options)

// WithLogger 状态日志，默认 xlog.Default()
func WithLogger(l xlog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock 条目时间戳的时间源，默认系统时钟
func WithClock(c xrecord.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithRecorder 埋点，默认不记录
func WithRecorder(r xmetrics.Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithAgent 使用已构造的 Agent，忽略 FactoryData.Agents；Manager 停止时关闭它
func WithAgent(a xagent.Agent) Option {
	return func(o *options) { o.agent = a }
}

// WithAgentOptions 由 FactoryData.Agents 构造 Agent 时使用的选项
func WithAgentOptions(opts ...xagent.Option) Option {
	return func(o *options) { o.agentOpts = append(o.agentOpts, opts...) }
}

// WithJournalRegistry 共享 WAL 环境的注册表，默认 xjournal.DefaultRegistry()
func WithJournalRegistry(r *xjournal.Registry) Option {
	return func(o *options) { o.journals = r }
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	o.logger = xlog.OrDefault(o.logger)
	o.recorder = xmetrics.OrNoop(o.recorder)
	o.clock = xrecord.OrSystem(o.clock)
	if o.journals == nil {
		o.journals = xjournal.DefaultRegistry()
	}
	return o
}
