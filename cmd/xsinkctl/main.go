// xsinkctl 是 xsink 持久写入组件的运维命令行工具。
//
// 用法:
//
//	xsinkctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-t, --timeout    命令超时时间 (默认: 30s)
//	    --log-level  状态日志级别 (默认: warn)
//
// 命令:
//
//	validate <config>            校验配置文件并列出 Appender
//	journal stats                查看 WAL 中各队列的积压条数
//	journal dump                 以 JSON Lines 输出队列中的条目
//	journal purge                清空队列（不可恢复）
//	replay                       按配置连接 Agent，把积压条目投递完后退出
//
// journal 子命令通过 --dir/--queue 指定日志，或通过 --config/--appender
// 从配置中读取目录、队列名与加密属性。Pebble 目录同一时间只能被一个进程
// 打开，因此应在应用停止后执行。
//
// 退出码:
//
//	0: 成功
//	1: 执行失败（配置非法、仍有未投递条目等）
//	2: 参数错误
//
// 示例:
//
//	xsinkctl validate /etc/app/xsink.yaml
//	xsinkctl journal stats --dir .xsink/queueData
//	xsinkctl journal dump --config /etc/app/xsink.yaml --appender ship --limit 10
//	xsinkctl replay --config /etc/app/xsink.yaml --queue ship --timeout 2m
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"
)

const defaultTimeout = 30 * time.Second

// 版本信息，通过 -ldflags "-X main.Version=..." 注入
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(os.Args))
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:    "xsinkctl",
		Usage:   "xsink 持久写入组件运维工具",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "命令超时时间",
				Value:   defaultTimeout,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "状态日志级别 (debug/info/warn/error)",
				Value: "warn",
			},
		},
		Commands: []*cli.Command{
			createValidateCommand(),
			createJournalCommand(),
			createReplayCommand(),
		},
		// 退出码统一由 run 映射
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func run(args []string) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandler(cancel)

	return exitCode(createApp().Run(ctx, args))
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		fmt.Fprintf(os.Stderr, "参数错误: %v\n", usageErr)
		return 2
	}
	if isCLIUsageError(err) {
		return 2
	}
	fmt.Fprintf(os.Stderr, "错误: %v\n", err)
	return 1
}
