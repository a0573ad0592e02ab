// Package xjournal 是持久队列的本地预写日志（WAL），基于 Pebble。
//
// # 环境与日志
//
// 一个目录对应一个 [Env]（一个 Pebble 实例），同一目录的多个持久队列通过
// [Acquire] 共享同一个 Env，按引用计数在最后一个使用者释放时关闭。
// 一个 Env 内可以有多个按名称区分的 [Journal]，每个 Journal 同一时刻只能被一个
// 消费者打开。
//
// # 键布局
//
//	q/{name}/e/{seq:8 字节大端}{guid}   条目
//	q/{name}/m/seq                      最后分配的序号
//
// 序号大端编码，字典序即插入序；重启后从元数据与最后一个条目恢复序号，
// 未投递的条目按原始顺序重新读出。
//
// # 记录格式
//
//	[flags:1][xxhash64(flags||data):8][data]
//
// 读取时校验和不匹配返回 [ErrCorrupted]。
package xjournal
