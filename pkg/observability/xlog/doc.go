// Package xlog 是 xsink 的低层状态通道（status logger）。
//
// xsink 的所有组件在失败时都不会向应用日志调用方抛出错误，而是通过本包记录，
// 然后按各自策略重试（持久队列）或丢弃（滚动文件）。
//
// # 创建 Logger
//
// 使用 Builder 模式（first-error-wins：遇到第一个配置错误后，后续 Set 操作被跳过）：
//
//	logger, cleanup, err := xlog.New().
//		SetLevelString("debug").
//		SetFormat("json").
//		SetRotation("/var/log/xsink/status.log", xlog.WithMaxSize(50)).
//		Build()
//	if err != nil {
//		return err
//	}
//	defer cleanup()
//
// 状态日志文件的轮转交给 lumberjack，与被管理的业务日志文件（xrolling）互不干扰。
//
// # 全局 Logger
//
//   - [Default]: 惰性初始化（stderr、Info 级别、text 格式）
//   - [SetDefault]: 替换全局 Logger（nil 会被忽略）
//   - [ResetDefault]: 重置为未初始化状态（仅用于测试）
//   - [Discard]: 丢弃所有输出的 Logger，常用于测试
//
// 各 Manager 的 logger 选项为 nil 时回退到 [Default]。
//
// # 便捷属性
//
// [Err]、[Manager]、[Key]、[Path]、[Agent]、[Count]、[Bytes]、[Duration]。
package xlog
