// Package xrecord 定义 xsink 各组件共享的日志记录表示。
//
//   - [Record]: 已由 layout 编码的一条日志，连同触发策略需要的元数据（时间戳）
//   - [Entry]: 持久队列中的条目（GUID 键 + 载荷 + 头部），见 [NewEntry]
//   - [Layout]: 把 slog.Record 编码为字节的外部协作者
//   - [Clock]: 可注入的时钟，使文件时间与轮转边界的测试可确定
package xrecord
