package xjournal

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/omeyang/xsink/pkg/observability/xlog"
)

// FsyncMode 写入的持久化方式
type FsyncMode int

const (
	// FsyncAlways 每次提交都 fsync WAL
	FsyncAlways FsyncMode = iota
	// FsyncNever 不强制 fsync，由 Pebble 自行决定
	FsyncNever
)

// Options Env 配置
type Options struct {
	// Dir Pebble 数据目录（必填）
	Dir string
	// Fsync 默认 FsyncAlways
	Fsync FsyncMode
	// PebbleOptions 高级调优，nil 使用默认值
	PebbleOptions *pebble.Options
	// Logger 状态日志，nil 使用 xlog.Default()
	Logger xlog.Logger
}

// Env 一个目录上的 Pebble 实例
type Env struct {
	dir       string
	db        *pebble.DB
	writeOpts *pebble.WriteOptions
	logger    xlog.Logger

	mu       sync.Mutex
	journals map[string]*Journal
	closed   bool
}

// Open 打开（或创建）目录上的 Env
func Open(opts Options) (*Env, error) {
	if opts.Dir == "" {
		return nil, ErrEmptyDir
	}
	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("xjournal: resolve %s: %w", opts.Dir, err)
	}
	logger := xlog.OrDefault(opts.Logger).With(xlog.Path(dir))

	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}
	if po.Logger == nil {
		po.Logger = pebbleLogger{l: logger}
	}
	db, err := pebble.Open(dir, po)
	if err != nil {
		return nil, fmt.Errorf("xjournal: open %s: %w", dir, err)
	}

	wo := pebble.Sync
	if opts.Fsync == FsyncNever {
		wo = pebble.NoSync
	}
	return &Env{
		dir:       dir,
		db:        db,
		writeOpts: wo,
		logger:    logger,
		journals:  make(map[string]*Journal),
	}, nil
}

// Dir 返回绝对路径
func (e *Env) Dir() string { return e.dir }

// Journal 打开名为 name 的日志，恢复序号与条目数
//
// name 只能包含字母、数字、'.'、'_'、'-'。同名 Journal 关闭前再次打开返回 ErrJournalInUse。
func (e *Env) Journal(name string) (*Journal, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	if _, ok := e.journals[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrJournalInUse, name)
	}
	j, err := openJournal(e, name)
	if err != nil {
		return nil, err
	}
	e.journals[name] = j
	return j, nil
}

func (e *Env) detach(name string, j *Journal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.journals[name] == j {
		delete(e.journals, name)
	}
}

// Names 列出目录中存在数据的所有 Journal 名称
func (e *Env) Names() ([]string, error) {
	it, err := e.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: prefixEnd([]byte(keyPrefix)),
	})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	seen := make(map[string]struct{})
	for valid := it.First(); valid; {
		rest := it.Key()[len(keyPrefix):]
		i := bytes.IndexByte(rest, '/')
		if i <= 0 {
			valid = it.Next()
			continue
		}
		name := string(rest[:i])
		seen[name] = struct{}{}
		valid = it.SeekGE(prefixEnd([]byte(keyPrefix + name + "/")))
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Stop 关闭 Env 及其上仍打开的 Journal；幂等
func (e *Env) Stop(context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	for name, j := range e.journals {
		j.markClosed()
		delete(e.journals, name)
	}
	e.mu.Unlock()

	if err := e.db.Close(); err != nil {
		return fmt.Errorf("xjournal: close %s: %w", e.dir, err)
	}
	return nil
}

// Close 等价于 Stop(context.Background())
func (e *Env) Close() error {
	return e.Stop(context.Background())
}

func validName(name string) bool {
	if name == "" || len(name) > 128 {
		return false
	}
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}

// pebbleLogger 把 Pebble 的内部日志转到状态通道
type pebbleLogger struct {
	l xlog.Logger
}

func (p pebbleLogger) Infof(format string, args ...any) {
	p.l.Debug(context.Background(), "pebble: "+fmt.Sprintf(format, args...))
}

func (p pebbleLogger) Errorf(format string, args ...any) {
	p.l.Error(context.Background(), "pebble: "+fmt.Sprintf(format, args...))
}

func (p pebbleLogger) Fatalf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	p.l.Error(context.Background(), "pebble fatal: "+msg)
	panic(msg)
}
