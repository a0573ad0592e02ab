// Package observability 汇集写入组件自身的状态输出。
//
// 子包列表：
//   - xlog: 状态日志，基于 log/slog，可输出到 lumberjack 轮转文件
//   - xmetrics: 写入、刷新、轮转、投递等埋点，OpenTelemetry 实现
//
// 状态日志与业务日志分离：组件内部的错误只写入这里，不会回流到 Appender。
package observability
