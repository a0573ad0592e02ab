// Package xagent 定义持久队列的远端投递目标（Agent）及其实现。
//
// Agent 对上层是不透明的：它接收按写入顺序排列的一批 [xrecord.Entry]，
// 返回已确认的前缀长度。返回 n 表示 batch[:n] 已被远端接收，调用方只删除这一段；
// 其余条目会在退避后按原顺序重试。
//
// 内置实现：
//   - redis：每个条目一次 XADD（pipeline），见 [NewRedisAgent]
//   - kafka：confluent-kafka-go 生产者，按投递报告计算确认前缀，见 [NewKafkaAgent]
//   - pulsar：pulsar-client-go 同步发送，见 [NewPulsarAgent]
//
// [Failover] 按顺序尝试多个 Agent，每个 Agent 有独立的重试（retry-go）与熔断（gobreaker），
// 熔断打开的 Agent 直接跳过。
package xagent
