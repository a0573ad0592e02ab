package xagent

import (
	"time"

	"github.com/omeyang/xsink/pkg/observability/xlog"
)

const (
	// DefaultBreakerFailures 连续失败多少次后熔断
	DefaultBreakerFailures = 5
	// DefaultBreakerTimeout 熔断打开后多久进入半开
	DefaultBreakerTimeout = 30 * time.Second
)

type options struct {
	logger          xlog.Logger
	breakerFailures uint32
	breakerTimeout  time.Duration
}

// Option Agent 构造选项
type Option func(*options)

// WithLogger 状态日志，默认 xlog.Default()
func WithLogger(l xlog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithBreaker 设置 Failover 中每个 Agent 的熔断参数
//
// failures 为 0 表示不熔断。
func WithBreaker(failures uint32, timeout time.Duration) Option {
	return func(o *options) {
		o.breakerFailures = failures
		o.breakerTimeout = timeout
	}
}

func applyOptions(opts []Option) options {
	o := options{
		breakerFailures: DefaultBreakerFailures,
		breakerTimeout:  DefaultBreakerTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	o.logger = xlog.OrDefault(o.logger)
	return o
}
