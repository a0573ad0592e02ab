// Package xmanager 定义物理日志汇（文件、WAL）的共享所有权模型。
//
// # Manager
//
// [Manager] 是一个物理汇的唯一所有者，能力接口只有 Write/Flush/IsConnected/Stop。
// 具体实现是封闭集合：滚动文件（xrolling）与持久队列（xqueue）。
// 生命周期状态 Starting → Started → Stopping → Stopped，见 [Lifecycle]。
//
// # Registry
//
// [Registry] 把 ManagerKey 映射到共享的 Manager 实例并维护引用计数：
//
//   - [Registry.Acquire] 是唯一的构造路径。同一 key 的并发调用只触发一次 Factory，
//     全部拿到同一个 Manager。
//   - 每次 Acquire 返回一个 [Handle]。[Handle.Release] 幂等；引用计数归零时
//     Manager 恰好被 Stop 一次，然后从 Registry 中移除。
//   - [Registry.Use] 提供作用域式获取，任何退出路径都会释放。
//
// Factory 在构造 Registry 时显式注入，不存在全局静态工厂。
//
// 设计决策: key 已存在时 Acquire 忽略新的 factory data，直接复用现有 Manager。
// 这样配置热加载不会重建仍在使用中的文件或 WAL，但新参数也不会生效；
// Registry 在检测到参数不同时记录一条 Warn 日志以便发现。
package xmanager
