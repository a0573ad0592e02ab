// Package xrolling 实现带缓冲的滚动文件 Manager。
//
// # 写入路径
//
// [Manager.WriteRecord] 在 Manager 的互斥锁内依次执行：
//
//  1. 触发策略检查：[TriggeringPolicy] 看到的是"磁盘字节 + 缓冲字节"与文件时间，
//     命中则 flush、关闭文件、执行 [RolloverStrategy]、打开新文件，全部在接受新字节之前完成；
//  2. 写入缓冲：写入会溢出剩余容量时先把缓冲区原样写盘，再把至多一整个缓冲区的字节放入；
//     超过容量的输入按容量分块重复这一步；
//  3. immediateFlush 时每次写入后 flush。
//
// 缓冲区恰好写满不会触发 flush，直到下一个字节到来或显式调用 [Manager.Flush]。
// 因此写入 k 倍容量的数据后，磁盘上是 (k-1) 倍容量。
//
// 磁盘错误只记录状态日志并丢弃本次写入；轮转失败时继续写原文件。
//
// # 触发策略
//
//   - [SizeBasedTriggeringPolicy]: 累计大小超过阈值
//   - [TimeBasedTriggeringPolicy]: 记录时间到达 fileTime + interval（可对齐到整点边界）
//   - [CronTriggeringPolicy]: 记录时间到达 fileTime 之后的下一个 cron 时刻
//   - [CompositeTriggeringPolicy]: 任一子策略命中即命中
//
// # 轮转策略
//
// [DefaultRolloverStrategy] 按 file pattern 计算归档文件名（%i 序号、%d{layout} 日期），
// 在 [Min, Max] 窗口内改名、按后缀压缩（.gz、.zst、.zip）并删除超出保留数的文件。
//
// # 共享
//
// 同一 FileName 的多个 Appender 通过 [DefaultRegistry] 共享一个 Manager。
package xrolling
