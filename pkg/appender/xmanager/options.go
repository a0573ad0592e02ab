package xmanager

import (
	"reflect"

	"github.com/omeyang/xsink/pkg/observability/xlog"
)

type options[D any] struct {
	logger    xlog.Logger
	dataEqual func(a, b D) bool
}

// Option Registry 配置选项
type Option[D any] func(*options[D])

// WithLogger 设置状态日志，nil 时使用 xlog.Default()
func WithLogger[D any](l xlog.Logger) Option[D] {
	return func(o *options[D]) { o.logger = l }
}

// WithDataEqual 设置 factory data 的比较函数，默认 reflect.DeepEqual
//
// 仅用于判断是否需要记录"参数被忽略"的告警。
func WithDataEqual[D any](eq func(a, b D) bool) Option[D] {
	return func(o *options[D]) {
		if eq != nil {
			o.dataEqual = eq
		}
	}
}

func defaultOptions[D any]() options[D] {
	return options[D]{
		dataEqual: func(a, b D) bool { return reflect.DeepEqual(a, b) },
	}
}
