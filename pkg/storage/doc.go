// Package storage 提供持久化相关的子包。
//
// 子包列表：
//   - xjournal: 基于 Pebble 的预写日志，按目录共享实例，按队列名划分有序日志
package storage
