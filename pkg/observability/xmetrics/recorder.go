package xmetrics

import "context"

// DrainSpan 一轮 drain 的观测跨度
type DrainSpan interface {
	// End 结束跨度，delivered 为本轮成功投递并删除的条目数。
	End(delivered int, err error)
}

// Recorder xsink 写入路径的埋点接口
//
// 实现必须并发安全。
type Recorder interface {
	// Wrote 记录一次被 Manager 接受的写入
	Wrote(ctx context.Context, manager string, bytes int)
	// Dropped 记录一次被丢弃的写入，reason 为简短原因（如 "io"、"not_connected"）
	Dropped(ctx context.Context, manager, reason string)
	// Flushed 记录一次缓冲区落盘
	Flushed(ctx context.Context, manager string, bytes int)
	// RolledOver 记录一次文件轮转
	RolledOver(ctx context.Context, manager string, err error)
	// Journaled 记录一条写入 WAL 的条目
	Journaled(ctx context.Context, queue string, bytes int)
	// Delivered 记录一次批量投递的结果
	Delivered(ctx context.Context, queue, agent string, entries int, err error)
	// StartDrain 开始一轮 drain
	StartDrain(ctx context.Context, queue string) (context.Context, DrainSpan)
}

// NoopRecorder 不记录任何内容
type NoopRecorder struct{}

var _ Recorder = NoopRecorder{}

func (NoopRecorder) Wrote(context.Context, string, int)                    {}
func (NoopRecorder) Dropped(context.Context, string, string)               {}
func (NoopRecorder) Flushed(context.Context, string, int)                  {}
func (NoopRecorder) RolledOver(context.Context, string, error)             {}
func (NoopRecorder) Journaled(context.Context, string, int)                {}
func (NoopRecorder) Delivered(context.Context, string, string, int, error) {}
func (NoopRecorder) StartDrain(ctx context.Context, _ string) (context.Context, DrainSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(int, error) {}

// OrNoop 在 r 为 nil 时返回 NoopRecorder
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
