// Package xappender 把 Manager 接到应用的日志调用上。
//
// [Appender] 持有一个 Manager 引用（[xmanager.Handle]），把记录交给 Manager 写入，
// 吞掉所有错误与 panic：失败只计数并交给可选的 OnError 回调，
// 不会回到应用的日志调用。多个 Appender 指向同一 ManagerKey 时共享同一个 Manager。
//
// [Appender.Handler] 返回 slog.Handler，可直接用于 slog.New：
//
//	app, err := xappender.NewRolling(ctx, "app", xrolling.FactoryData{...})
//	...
//	defer app.Close(ctx)
//	logger := slog.New(app.Handler())
package xappender
