// Package transport 提供对外投递的子包。
//
// 子包列表：
//   - xagent: Agent 接口及 Redis Streams、Kafka、Pulsar 实现，带重试与熔断的故障转移列表
package transport
