package xqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/omeyang/xsink/pkg/appender/xmanager"
	"github.com/omeyang/xsink/pkg/appender/xrecord"
	"github.com/omeyang/xsink/pkg/observability/xlog"
	"github.com/omeyang/xsink/pkg/storage/xjournal"
	"github.com/omeyang/xsink/pkg/transport/xagent"
)

var _ xmanager.Manager = (*Manager)(nil)

// Manager 持久队列 Manager
//
// 生产者在 mu 内完成编码、加密、写入 WAL 与唤醒，WAL 顺序即 Send 调用顺序。
// 投递只发生在 worker goroutine 上，它是 WAL 唯一的读取与删除者。
type Manager struct {
	xmanager.Lifecycle

	name    string
	data    FactoryData
	opts    options
	logger  xlog.Logger
	agent   xagent.Agent
	env     *xjournal.Handle
	journal *xjournal.Journal

	mu         sync.Mutex
	cipher     *payloadCipher // 解密始终可用
	sealing    bool           // 加密失败后关闭
	shutdown   atomic.Bool
	wake       chan struct{}
	force      atomic.Bool
	stopCh     chan struct{}
	stopOnce   sync.Once
	done       chan struct{}
	runCtx     context.Context
	cancelRun  context.CancelFunc
	delivered  atomic.Int64
	failures   atomic.Int64
	lastErr    atomic.Pointer[errBox]
	workerStat atomic.Int32
}

type errBox struct{ err error }

// Stats Manager 的状态快照
type Stats struct {
	Journal   string
	Dir       string
	Agent     string
	Pending   int
	Delivered int64
	Failures  int64
	Encrypted bool
	Worker    WorkerState
	LastError error
	State     xmanager.State
}

// NewManager 打开 WAL、构造 Agent 并启动 worker
//
// 启动时 WAL 中遗留的条目会立即按原顺序投递。
func NewManager(name string, data FactoryData, opts ...Option) (*Manager, error) {
	data = data.withDefaults()
	o := applyOptions(opts)
	if len(data.Agents) == 0 && o.agent == nil {
		return nil, fmt.Errorf("%w: %w", xmanager.ErrInvalidConfig, ErrNoAgents)
	}
	if name == "" {
		name = Key(data)
	}
	journalName := JournalName(data)
	if data.Name == "" && o.agent != nil && len(data.Agents) == 0 {
		journalName = fmt.Sprintf("q-%016x", xxhash.Sum64String(o.agent.Name()))
	}

	m := &Manager{
		name:   name,
		data:   data,
		opts:   o,
		logger: o.logger.With(xlog.Manager(name)),
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}

	agent := o.agent
	if agent == nil {
		f, err := xagent.NewFailover(data.Agents, append([]xagent.Option{xagent.WithLogger(m.logger)}, o.agentOpts...)...)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", xmanager.ErrInvalidConfig, err)
		}
		agent = f
	}
	m.agent = agent

	ctx := context.Background()
	env, err := o.journals.Acquire(ctx, xjournal.Key(data.DataDir), xjournal.Options{
		Dir:    data.DataDir,
		Fsync:  data.Fsync,
		Logger: o.logger,
	})
	if err != nil {
		_ = agent.Close()
		return nil, fmt.Errorf("xqueue: open journal directory %s: %w", data.DataDir, err)
	}
	j, err := env.Manager().Journal(journalName)
	if err != nil {
		_ = env.Release(ctx)
		_ = agent.Close()
		if errors.Is(err, xjournal.ErrJournalInUse) || errors.Is(err, xjournal.ErrInvalidName) {
			err = fmt.Errorf("%w: %w", xmanager.ErrInvalidConfig, err)
		}
		return nil, err
	}
	m.env, m.journal = env, j
	m.logger = m.logger.With(xlog.Path(j.Dir()), xlog.Key(journalName))

	m.initCipher(ctx)
	m.runCtx, m.cancelRun = context.WithCancel(context.Background())
	m.MarkStarted()
	go m.run()

	if n := j.Count(); n > 0 {
		m.logger.Info(ctx, "recovered pending entries", xlog.Count(n))
		m.Flush() //nolint:errcheck // 只是唤醒
	}
	return m, nil
}

// initCipher 按属性构造加密器；失败时记录错误并以明文运行
func (m *Manager) initCipher(ctx context.Context) {
	c, err := buildCipher(ctx, m.data.Properties)
	if err != nil {
		m.logger.Error(ctx, "encryption disabled", xlog.Err(err))
		return
	}
	if c != nil {
		m.cipher = c
		m.sealing = true
	}
}

// buildCipher 未配置 keyProvider 时返回 nil, nil
func buildCipher(ctx context.Context, props Properties) (*payloadCipher, error) {
	provider, ok := props.Get(PropKeyProvider)
	if !ok || provider == "" {
		return nil, nil //nolint:nilnil // 未配置加密
	}
	kp, err := lookupKeyProvider(provider, props)
	if err != nil {
		return nil, err
	}
	secret, err := kp.SecretKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrKeyProvider, provider, err)
	}
	alg, _ := props.Get(PropCipher)
	return newPayloadCipher(secret, alg)
}

// Name 返回 ManagerKey
func (m *Manager) Name() string { return m.name }

// Journal 返回 WAL 中的日志名
func (m *Manager) Journal() string { return m.journal.Name() }

// IsConnected Manager 处于 Started 且未请求关闭
func (m *Manager) IsConnected() bool {
	return m.IsStarted() && !m.shutdown.Load()
}

// Pending 返回 WAL 中尚未确认投递的条目数
func (m *Manager) Pending() int { return m.journal.Count() }

// Write 以当前时间构造条目并入队
func (m *Manager) Write(p []byte) error {
	return m.WriteRecord(xrecord.Record{Time: m.opts.clock.Now(), Body: p})
}

// WriteRecord 为记录生成 GUID 与标准头部后入队
func (m *Manager) WriteRecord(rec xrecord.Record) error {
	if rec.Time.IsZero() {
		rec.Time = m.opts.clock.Now()
	}
	return m.Send(xrecord.NewEntry(rec))
}

// Send 编码、按需加密并持久写入 WAL，然后唤醒 worker
//
// 返回 nil 时条目已持久化；关闭中返回 ErrShuttingDown。
func (m *Manager) Send(e xrecord.Entry) error {
	ctx := context.Background()
	if len(e.Key) == 0 {
		e.Key = xrecord.NewKey()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shutdown.Load() || !m.IsStarted() {
		m.opts.recorder.Dropped(ctx, m.name, "shutting_down")
		m.logger.Warn(ctx, "entry rejected, shutting down", xlog.Key(e.KeyString()))
		return ErrShuttingDown
	}

	rec, err := encodeEntry(e.Payload, e.Headers)
	if err != nil {
		m.opts.recorder.Dropped(ctx, m.name, "encode")
		m.logger.Error(ctx, "encode entry failed, dropped", xlog.Key(e.KeyString()), xlog.Err(err))
		return err
	}
	var flags byte
	if m.sealing {
		sealed, serr := m.cipher.seal(rec, e.Key)
		if serr != nil {
			m.sealing = false
			m.logger.Error(ctx, "encryption failed, disabled for this manager", xlog.Err(serr))
		} else {
			rec, flags = sealed, xjournal.FlagEncrypted
		}
	}

	if _, err := m.journal.Append(e.Key, flags, rec); err != nil {
		m.opts.recorder.Dropped(ctx, m.name, "journal")
		m.logger.Error(ctx, "journal append failed, dropped", xlog.Key(e.KeyString()), xlog.Err(err))
		return err
	}
	m.opts.recorder.Journaled(ctx, m.name, len(rec))
	m.signal()
	return nil
}

// signal 非阻塞唤醒 worker
func (m *Manager) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Flush 要求 worker 立即投递，不等待批次凑满；不等待投递完成
func (m *Manager) Flush() error {
	if !m.IsConnected() {
		return xmanager.ErrNotConnected
	}
	m.force.Store(true)
	m.signal()
	return nil
}

// Stats 返回状态快照
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	encrypted := m.sealing
	m.mu.Unlock()
	var last error
	if b := m.lastErr.Load(); b != nil {
		last = b.err
	}
	return Stats{
		Journal:   m.journal.Name(),
		Dir:       m.journal.Dir(),
		Agent:     m.agent.Name(),
		Pending:   m.journal.Count(),
		Delivered: m.delivered.Load(),
		Failures:  m.failures.Load(),
		Encrypted: encrypted,
		Worker:    WorkerState(m.workerStat.Load()),
		LastError: last,
		State:     m.State(),
	}
}

// requestShutdown 拒绝新条目并通知 worker 退出；幂等
func (m *Manager) requestShutdown() {
	m.mu.Lock()
	m.shutdown.Store(true)
	m.mu.Unlock()
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// Stop 请求关闭并等待 worker 退出，随后关闭日志、释放 WAL 环境与 Agent；幂等
//
// worker 会完成正在进行的投递轮次；ctx 到期时取消进行中的投递。
// 未投递的条目留在 WAL 中，下次启动时继续投递。
func (m *Manager) Stop(ctx context.Context) error {
	if !m.BeginStop() {
		return nil
	}
	defer m.MarkStopped()
	m.requestShutdown()

	var errs []error
	select {
	case <-m.done:
	case <-ctx.Done():
		m.cancelRun()
		<-m.done
		errs = append(errs, ctx.Err())
	}
	m.cancelRun()

	if n := m.journal.Count(); n > 0 {
		m.logger.Info(ctx, "stopped with pending entries", xlog.Count(n))
	}
	errs = append(errs, m.journal.Close(), m.agent.Close(), m.env.Release(context.WithoutCancel(ctx)))
	if err := errors.Join(errs...); err != nil {
		m.logger.Error(ctx, "stop failed", xlog.Err(err))
		return err
	}
	return nil
}
