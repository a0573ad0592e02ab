package xrolling

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/omeyang/xsink/pkg/appender/xmanager"
	"github.com/omeyang/xsink/pkg/appender/xrecord"
	"github.com/omeyang/xsink/pkg/observability/xlog"
)

var _ xmanager.Manager = (*Manager)(nil)

// Manager 带缓冲的滚动文件 Manager
//
// 所有对文件、缓冲区、大小计数的修改都在 mu 内完成；写入顺序即调用顺序。
type Manager struct {
	xmanager.Lifecycle

	name     string
	data     FactoryData
	pattern  *FilePattern
	policy   TriggeringPolicy
	strategy RolloverStrategy
	opts     options
	logger   xlog.Logger

	mu       sync.Mutex
	file     *os.File
	buf      []byte
	size     int64
	fileTime time.Time
}

// Stats Manager 的状态快照
type Stats struct {
	ActiveFile string
	FileSize   int64
	Buffered   int
	Capacity   int
	FileTime   time.Time
	State      xmanager.State
}

// NewManager 校验参数并打开活动文件
func NewManager(name string, data FactoryData, opts ...Option) (*Manager, error) {
	if data.FileName == "" {
		return nil, fmt.Errorf("%w: %w", xmanager.ErrInvalidConfig, ErrEmptyPath)
	}
	pattern, err := ParseFilePattern(data.FilePattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", xmanager.ErrInvalidConfig, err)
	}
	if data.Policy == nil {
		return nil, fmt.Errorf("%w: %w: missing policy", xmanager.ErrInvalidConfig, ErrInvalidPolicy)
	}
	if data.BufferSize < 0 {
		return nil, fmt.Errorf("%w: %w: %d", xmanager.ErrInvalidConfig, ErrInvalidBufferSize, data.BufferSize)
	}
	if data.BufferSize == 0 {
		data.BufferSize = DefaultBufferSize
	}
	strategy := data.Strategy
	if strategy == nil {
		strategy = DefaultStrategy()
	}
	if name == "" {
		name = data.FileName
	}

	o := applyOptions(opts)
	m := &Manager{
		name:     name,
		data:     data,
		pattern:  pattern,
		policy:   data.Policy,
		strategy: strategy,
		opts:     o,
		logger:   o.logger.With(xlog.Manager(name)),
	}
	if !data.Unbuffered {
		m.buf = make([]byte, 0, data.BufferSize)
	}
	if err := m.open(data.Append); err != nil {
		return nil, err
	}
	m.MarkStarted()
	return m, nil
}

// open 打开活动文件并初始化 size 与 fileTime；调用方持有 mu 或处于构造期。
func (m *Manager) open(appendMode bool) error {
	path := m.data.FileName
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("xrolling: create directory for %s: %w", path, err)
	}
	var prior fs.FileInfo
	if st, err := os.Stat(path); err == nil {
		prior = st
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("xrolling: open %s: %w", path, err)
	}

	m.file = f
	m.size = 0
	m.fileTime = m.opts.clock.Now()
	if appendMode && prior != nil {
		m.size = prior.Size()
		m.fileTime = prior.ModTime()
	}
	return nil
}

// Name 返回 ManagerKey
func (m *Manager) Name() string { return m.name }

// FileName 返回活动文件路径
func (m *Manager) FileName() string { return m.data.FileName }

// FilePattern 返回归档模板
func (m *Manager) FilePattern() *FilePattern { return m.pattern }

// IsConnected 活动文件已打开且 Manager 处于 Started
func (m *Manager) IsConnected() bool {
	if !m.IsStarted() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.file != nil
}

// Write 以当前时间构造记录并写入
func (m *Manager) Write(p []byte) error {
	return m.WriteRecord(xrecord.Record{Time: m.opts.clock.Now(), Body: p})
}

// WriteRecord 检查轮转后写入记录体
//
// 失败会记录到状态日志并丢弃本次写入，返回的错误只供上层计数。
func (m *Manager) WriteRecord(rec xrecord.Record) error {
	ctx := context.Background()
	if !m.IsStarted() {
		m.logger.Warn(ctx, "write to stopped manager dropped", xlog.Bytes(int64(len(rec.Body))))
		m.opts.recorder.Dropped(ctx, m.name, "not_connected")
		return xmanager.ErrNotConnected
	}
	if rec.Time.IsZero() {
		rec.Time = m.opts.clock.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		m.opts.recorder.Dropped(ctx, m.name, "not_connected")
		return xmanager.ErrNotConnected
	}

	m.checkRollover(ctx, rec)
	if m.file == nil {
		m.opts.recorder.Dropped(ctx, m.name, "not_connected")
		return xmanager.ErrNotConnected
	}

	if err := m.put(rec.Body); err != nil {
		m.logger.Error(ctx, "write failed, record dropped", xlog.Err(err), xlog.Bytes(int64(len(rec.Body))))
		m.opts.recorder.Dropped(ctx, m.name, "io")
		return err
	}
	if m.data.ImmediateFlush {
		if err := m.flushLocked(ctx); err != nil {
			return err
		}
	}
	m.opts.recorder.Wrote(ctx, m.name, len(rec.Body))
	return nil
}

// put 把 p 按缓冲区容量分块放入，溢出前先 flush
func (m *Manager) put(p []byte) error {
	if m.buf == nil {
		return m.writeFile(p)
	}
	for len(p) > 0 {
		if len(p) > cap(m.buf)-len(m.buf) {
			if err := m.flushLocked(context.Background()); err != nil {
				return err
			}
		}
		n := min(len(p), cap(m.buf)-len(m.buf))
		m.buf = append(m.buf, p[:n]...)
		p = p[n:]
	}
	return nil
}

// writeFile 直接写盘并更新 size
func (m *Manager) writeFile(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if m.data.Locking {
		if err := lockFile(m.file); err != nil {
			return fmt.Errorf("%w: lock %s: %w", ErrWriteFailed, m.data.FileName, err)
		}
		defer func() { _ = unlockFile(m.file) }()
	}
	n, err := m.file.Write(p)
	m.size += int64(n)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, m.data.FileName, err)
	}
	return nil
}

// Flush 把缓冲区写盘；缓冲区为空时是空操作
func (m *Manager) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return xmanager.ErrNotConnected
	}
	return m.flushLocked(context.Background())
}

// flushLocked 写出缓冲区并清空；写盘失败时缓冲字节被丢弃
func (m *Manager) flushLocked(ctx context.Context) error {
	if len(m.buf) == 0 {
		return nil
	}
	n := len(m.buf)
	err := m.writeFile(m.buf)
	m.buf = m.buf[:0]
	if err != nil {
		m.logger.Error(ctx, "flush failed, buffered bytes dropped", xlog.Err(err), xlog.Bytes(int64(n)))
		m.opts.recorder.Dropped(ctx, m.name, "io")
		return err
	}
	m.opts.recorder.Flushed(ctx, m.name, n)
	return nil
}

// checkRollover 触发策略命中时执行轮转；失败只记录日志
func (m *Manager) checkRollover(ctx context.Context, rec xrecord.Record) {
	if !m.triggered(ctx, rec) {
		return
	}
	_ = m.rolloverLocked(ctx) //nolint:errcheck // 已记录，继续写原文件
}

func (m *Manager) triggered(ctx context.Context, rec xrecord.Record) (fired bool) {
	defer func() {
		if p := recover(); p != nil {
			m.logger.Error(ctx, "triggering policy panicked", slog.Any("panic", p))
			fired = false
		}
	}()
	return m.policy.IsTriggered(Snapshot{
		Size:     m.size + int64(len(m.buf)),
		FileTime: m.fileTime,
	}, rec)
}

// Rollover 强制轮转
func (m *Manager) Rollover(ctx context.Context) error {
	if !m.IsStarted() {
		return xmanager.ErrNotConnected
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return xmanager.ErrNotConnected
	}
	return m.rolloverLocked(ctx)
}

func (m *Manager) rolloverLocked(ctx context.Context) error {
	_ = m.flushLocked(ctx) //nolint:errcheck // flushLocked 已记录并清空缓冲区
	retiredTime := m.fileTime
	if err := m.file.Close(); err != nil {
		m.logger.Warn(ctx, "close before rollover failed", xlog.Err(err))
	}
	m.file = nil

	m.assertRolloverReady(ctx)

	res, err := m.callStrategy(RolloverRequest{
		ActiveFile: m.data.FileName,
		Pattern:    m.pattern,
		FileTime:   retiredTime,
	})
	for _, p := range res.Pruned {
		m.logger.Debug(ctx, "pruned archive", xlog.Path(p))
	}
	if res.CompressErr != nil {
		m.logger.Warn(ctx, "compress archive failed, kept uncompressed",
			xlog.Path(res.Retired), xlog.Err(res.CompressErr))
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrRolloverFailed, err)
		m.logger.Error(ctx, "rollover failed, continuing with current file", xlog.Err(err))
		m.opts.recorder.RolledOver(ctx, m.name, err)
		if res.File != nil {
			_ = res.File.Close()
		}
		if oerr := m.open(true); oerr != nil {
			m.logger.Error(ctx, "reopen after failed rollover failed", xlog.Err(oerr))
		}
		return err
	}

	m.file = res.File
	m.size = 0
	m.fileTime = m.opts.clock.Now()
	m.opts.recorder.RolledOver(ctx, m.name, nil)
	m.logger.Info(ctx, "rolled over", xlog.Path(res.Retired))
	return nil
}

func (m *Manager) callStrategy(req RolloverRequest) (res RolloverResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("rollover strategy panicked: %v", p)
		}
	}()
	return m.strategy.Rollover(req)
}

// assertRolloverReady 轮转前缓冲区必须为空且文件已关闭
//
// 违反时属于编程错误：xsinkdebug 构建下 panic，否则记录错误并先行 flush。
func (m *Manager) assertRolloverReady(ctx context.Context) {
	if len(m.buf) == 0 && m.file == nil {
		return
	}
	if strictInvariants {
		panic(ErrDirtyBuffer)
	}
	m.logger.Error(ctx, "rollover invariant violated", xlog.Err(ErrDirtyBuffer))
	if m.file != nil {
		_ = m.flushLocked(ctx) //nolint:errcheck
		_ = m.file.Close()
		m.file = nil
	}
	m.buf = m.buf[:0]
}

// Stats 返回状态快照
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		ActiveFile: m.data.FileName,
		FileSize:   m.size,
		Buffered:   len(m.buf),
		Capacity:   cap(m.buf),
		FileTime:   m.fileTime,
		State:      m.State(),
	}
}

// Stop flush 并关闭活动文件；幂等
func (m *Manager) Stop(ctx context.Context) error {
	if !m.BeginStop() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.MarkStopped()
	if m.file == nil {
		return nil
	}
	ferr := m.flushLocked(ctx)
	cerr := m.file.Close()
	m.file = nil
	if err := errors.Join(ferr, cerr); err != nil {
		m.logger.Error(ctx, "stop failed", xlog.Err(err))
		return err
	}
	return nil
}
