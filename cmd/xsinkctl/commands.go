package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/omeyang/xsink/pkg/appender/xqueue"
	"github.com/omeyang/xsink/pkg/config/xsinkconf"
	"github.com/omeyang/xsink/pkg/observability/xlog"
	"github.com/omeyang/xsink/pkg/storage/xjournal"
)

// exitError 命令已完成输出，只需设置退出码
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// usageError 参数错误，退出码 2
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

// isCLIUsageError 识别 urfave/cli 产生的参数错误
func isCLIUsageError(err error) bool {
	msg := err.Error()
	for _, p := range []string{
		"flag provided but not defined",
		"Required flag",
		"Required flags",
		"invalid value",
		"No help topic",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// replayPoll replay 检查积压的间隔
const replayPoll = 100 * time.Millisecond

func createValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "校验配置文件并列出 Appender",
		ArgsUsage: "<config>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return &usageError{msg: "validate 需要且只需要一个配置文件路径"}
			}
			return cmdValidate(cmd.Root().Writer, cmd.Args().First())
		},
	}
}

func journalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "dir", Usage: "WAL 目录"},
		&cli.StringFlag{Name: "queue", Usage: "日志名（stats 可省略，表示全部）"},
		&cli.StringFlag{Name: "config", Usage: "配置文件，代替 --dir/--queue"},
		&cli.StringFlag{Name: "appender", Usage: "配置中 queue 类型 Appender 的名称"},
	}
}

func createJournalCommand() *cli.Command {
	return &cli.Command{
		Name:  "journal",
		Usage: "检查或清理 WAL",
		Commands: []*cli.Command{
			{
				Name:  "stats",
				Usage: "查看积压条数",
				Flags: journalFlags(),
				Action: func(_ context.Context, cmd *cli.Command) error {
					t, err := resolveTarget(cmd, false)
					if err != nil {
						return err
					}
					return cmdStats(cmd.Root().Writer, t)
				},
			},
			{
				Name:  "dump",
				Usage: "以 JSON Lines 输出条目",
				Flags: append(journalFlags(), &cli.IntFlag{Name: "limit", Usage: "最多输出条数，0 表示全部"}),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					t, err := resolveTarget(cmd, true)
					if err != nil {
						return err
					}
					return cmdDump(ctx, cmd.Root().Writer, t, cmd.Int("limit"))
				},
			},
			{
				Name:  "purge",
				Usage: "清空队列，条目不可恢复",
				Flags: journalFlags(),
				Action: func(_ context.Context, cmd *cli.Command) error {
					t, err := resolveTarget(cmd, true)
					if err != nil {
						return err
					}
					return cmdPurge(cmd.Root().Writer, t)
				},
			},
		},
	}
}

func createReplayCommand() *cli.Command {
	return &cli.Command{
		Name:  "replay",
		Usage: "连接配置中的 Agent，投递积压条目后退出",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "配置文件", Required: true},
			&cli.StringFlag{Name: "queue", Usage: "queue 类型 Appender 的名称", Required: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger, cleanup, err := xlog.New().
				SetOutput(cmd.Root().ErrWriter).
				SetLevelString(cmd.Root().String("log-level")).
				Build()
			if err != nil {
				return &usageError{msg: err.Error()}
			}
			defer func() { _ = cleanup() }()

			ctx, cancel := context.WithTimeout(ctx, cmd.Root().Duration("timeout"))
			defer cancel()
			return cmdReplay(ctx, cmd.Root().Writer, logger, cmd.String("config"), cmd.String("queue"))
		},
	}
}

func cmdValidate(w io.Writer, path string) error {
	cfg, err := xsinkconf.Load(path)
	if err != nil {
		fmt.Fprintf(w, "invalid: %v\n", err)
		return &exitError{code: 1}
	}
	doc := cfg.Document()
	for _, a := range doc.Appenders {
		switch strings.ToLower(a.Type) {
		case xsinkconf.TypeRolling:
			fmt.Fprintf(w, "%s\trolling\t%s\n", a.Name, a.Rolling.FileName)
		case xsinkconf.TypeQueue:
			data, _ := a.QueueData() //nolint:errcheck // Load 已校验
			fmt.Fprintf(w, "%s\tqueue\t%s\n", a.Name, xqueue.Key(data))
		}
	}
	fmt.Fprintf(w, "ok: %d appender(s)\n", len(doc.Appenders))
	return nil
}

// target journal 子命令的操作对象
type target struct {
	dir   string
	queue string
	props xqueue.Properties
}

func resolveTarget(cmd *cli.Command, needQueue bool) (target, error) {
	if path := cmd.String("config"); path != "" {
		name := cmd.String("appender")
		if name == "" {
			return target{}, &usageError{msg: "--config 需要同时指定 --appender"}
		}
		cfg, err := xsinkconf.Load(path)
		if err != nil {
			return target{}, err
		}
		ac, ok := cfg.Document().Appender(name)
		if !ok || !strings.EqualFold(ac.Type, xsinkconf.TypeQueue) {
			return target{}, &usageError{msg: fmt.Sprintf("配置中没有名为 %q 的 queue Appender", name)}
		}
		data, err := ac.QueueData()
		if err != nil {
			return target{}, err
		}
		if data.DataDir == "" {
			data.DataDir = xqueue.DefaultDataDir
		}
		return target{dir: data.DataDir, queue: xqueue.JournalName(data), props: data.Properties}, nil
	}

	t := target{dir: cmd.String("dir"), queue: cmd.String("queue")}
	if t.dir == "" {
		return target{}, &usageError{msg: "需要 --dir 或 --config"}
	}
	if needQueue && t.queue == "" {
		return target{}, &usageError{msg: "需要 --queue"}
	}
	return t, nil
}

// openEnv 只打开已存在的目录，避免在错误路径上创建空的 WAL
func openEnv(dir string) (*xjournal.Env, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}
	return xjournal.Open(xjournal.Options{Dir: dir, Logger: xlog.Discard()})
}

func cmdStats(w io.Writer, t target) (err error) {
	env, err := openEnv(t.dir)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, env.Close()) }()

	names := []string{t.queue}
	if t.queue == "" {
		if names, err = env.Names(); err != nil {
			return err
		}
	}
	for _, name := range names {
		j, err := env.Journal(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\n", name, j.Count())
		if err := j.Close(); err != nil {
			return err
		}
	}
	return nil
}

// dumpLine journal dump 的一行输出
type dumpLine struct {
	Seq       uint64            `json:"seq"`
	GUID      string            `json:"guid"`
	Encrypted bool              `json:"encrypted,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Payload   string            `json:"payload,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func cmdDump(ctx context.Context, w io.Writer, t target, limit int) (err error) {
	dec, err := xqueue.NewDecoder(ctx, t.props)
	if err != nil {
		return err
	}
	env, err := openEnv(t.dir)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, env.Close()) }()
	j, err := env.Journal(t.queue)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, j.Close()) }()
	c, err := j.Cursor()
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, c.Close()) }()

	enc := json.NewEncoder(w)
	for n := 0; (limit <= 0 || n < limit) && c.Next(); n++ {
		rec := c.Record()
		line := dumpLine{Seq: rec.Seq, GUID: guidString(rec.GUID), Encrypted: rec.Encrypted()}
		if e, derr := dec.Decode(rec); derr != nil {
			line.Error = derr.Error()
		} else {
			line.Headers, line.Payload = e.Headers, string(e.Payload)
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	return c.Err()
}

func guidString(b []byte) string {
	if id, err := uuid.FromBytes(b); err == nil {
		return id.String()
	}
	return fmt.Sprintf("%x", b)
}

func cmdPurge(w io.Writer, t target) (err error) {
	env, err := openEnv(t.dir)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, env.Close()) }()
	j, err := env.Journal(t.queue)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, j.Close()) }()

	n, err := j.Purge()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "purged %d entries from %s\n", n, t.queue)
	return nil
}

func cmdReplay(ctx context.Context, w io.Writer, logger xlog.Logger, path, name string) (err error) {
	cfg, err := xsinkconf.Load(path)
	if err != nil {
		return err
	}
	ac, ok := cfg.Document().Appender(name)
	if !ok || !strings.EqualFold(ac.Type, xsinkconf.TypeQueue) {
		return &usageError{msg: fmt.Sprintf("配置中没有名为 %q 的 queue Appender", name)}
	}
	data, err := ac.QueueData()
	if err != nil {
		return err
	}

	m, err := xqueue.NewManager(xqueue.Key(data), data, xqueue.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		err = errors.Join(err, m.Stop(stopCtx))
	}()

	start := m.Pending()
	ticker := time.NewTicker(replayPoll)
	defer ticker.Stop()
	for m.Pending() > 0 {
		if err := m.Flush(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			st := m.Stats()
			fmt.Fprintf(w, "replay incomplete: delivered %d, pending %d, last error: %v\n",
				st.Delivered, st.Pending, st.LastError)
			return &exitError{code: 1}
		case <-ticker.C:
		}
	}
	fmt.Fprintf(w, "replayed %d entries from %s\n", start, m.Journal())
	return nil
}

func setupSignalHandler(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()

		<-sigCh
		signal.Stop(sigCh)
		os.Exit(130)
	}()
}
