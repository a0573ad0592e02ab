// Package appender 提供日志的持久写入路径。
//
// 子包列表：
//   - xrecord: 记录与队列条目的共享表示、Layout
//   - xmanager: Manager 能力接口与按键共享、引用计数的注册表
//   - xrolling: 滚动文件 Manager 及触发、轮转策略
//   - xqueue: 持久队列 Manager，先写 WAL 再由后台 worker 投递
//   - xappender: 把 slog 记录接到 Manager 上的 Appender
package appender
