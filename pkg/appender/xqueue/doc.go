// Package xqueue 实现持久队列 Manager：条目先持久写入本地 WAL，再由后台 worker
// 分批投递到远端 Agent，确认后才从 WAL 删除。
//
// # 写入路径
//
// [Manager.Send] 在一把锁内完成：编码条目、按需加密、写入 WAL（[xjournal]）、唤醒 worker。
// 因此 WAL 顺序与 Send 调用顺序一致。Send 不做任何网络 I/O。
//
// # 投递
//
// 每个 Manager 恰好一个 worker goroutine，它是 WAL 唯一的读取与删除者。
// worker 空闲时最多等待 ReconnectionDelay，或者等到 WAL 中攒够 BatchSize 条；
// 醒来后按插入顺序每次读取最多 BatchSize 条交给 Agent，删除 Agent 确认的前缀。
// 投递失败时本轮立即结束并退避 ReconnectionDelay，之后从 WAL 头部重试，
// 条目不会因投递失败被丢弃。WAL 校验失败时 worker 请求关闭 Manager，不再重试。
//
// 崩溃可能发生在"已投递"与"已删除"之间，重启后这些条目会被重复投递（至少一次）。
//
// # 加密
//
// 属性 keyProvider 指定密钥提供者（env、file、static 或 [RegisterKeyProvider] 注册的名称，
// 大小写不敏感），cipher 选择 aes-gcm（默认）或 xchacha20-poly1305。密钥材料经 HKDF-SHA256
// 派生为 256 位密钥，每条记录使用随机 nonce 的 AEAD 加密，附加数据为条目 GUID。
// 构造加密器或加密失败时记录错误，本 Manager 之后以明文写入。
package xqueue
