// Package xmetrics 提供 xsink 写入路径的可观测性埋点。
//
// [Recorder] 抽象了滚动文件与持久队列关心的事件：写入、丢弃、flush、rollover、
// 落盘到 WAL、投递到 agent，以及每一轮 drain 的 trace span。
//
// [NewOTelRecorder] 基于 OpenTelemetry metric/trace API 实现，默认使用全局
// MeterProvider/TracerProvider；[NoopRecorder] 为未配置时的零开销实现。
//
// 所有方法都不返回错误，埋点失败不影响写入路径。
package xmetrics
