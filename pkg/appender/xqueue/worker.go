package xqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/omeyang/xsink/pkg/appender/xrecord"
	"github.com/omeyang/xsink/pkg/observability/xlog"
	"github.com/omeyang/xsink/pkg/storage/xjournal"
)

// WorkerState worker 状态：Idle ⇄ Draining ⇄ ShuttingDown → Stopped，失败后进入 Backoff
type WorkerState int32

// worker 状态
const (
	WorkerIdle WorkerState = iota
	WorkerDraining
	WorkerBackoff
	WorkerShuttingDown
	WorkerStopped
)

func (s WorkerState) String() string {
	switch s {
	case WorkerIdle:
		return "idle"
	case WorkerDraining:
		return "draining"
	case WorkerBackoff:
		return "backoff"
	case WorkerShuttingDown:
		return "shutting_down"
	case WorkerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

func (m *Manager) setWorker(s WorkerState) { m.workerStat.Store(int32(s)) }

// run 是 WAL 唯一的消费者
//
// 空闲时最多等待 ReconnectionDelay：被唤醒后若条目数未达到 BatchSize 且未到期、
// 也没有 Flush 请求，则继续等待剩余时间。
func (m *Manager) run() {
	defer close(m.done)
	defer m.setWorker(WorkerStopped)

	delay := m.data.ReconnectionDelay
	idleSince := time.Now()
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		m.setWorker(WorkerIdle)
		select {
		case <-m.stopCh:
			m.setWorker(WorkerShuttingDown)
			return
		case <-m.wake:
		case <-timer.C:
		}
		if m.shutdown.Load() {
			m.setWorker(WorkerShuttingDown)
			return
		}

		due := time.Since(idleSince) >= delay
		if !due && !m.force.Load() && m.journal.Count() < m.data.BatchSize {
			resetTimer(timer, delay-time.Since(idleSince))
			continue
		}
		m.force.Store(false)
		if m.journal.Count() == 0 {
			idleSince = time.Now()
			resetTimer(timer, delay)
			continue
		}

		err := m.drainSafely()
		if errors.Is(err, xjournal.ErrCorrupted) {
			m.logger.Error(m.runCtx, "journal corrupted, shutting down queue", xlog.Err(err))
			m.setWorker(WorkerShuttingDown)
			m.requestShutdown()
			return
		}
		if err != nil {
			m.failures.Add(1)
			m.lastErr.Store(&errBox{err})
			m.logger.Warn(m.runCtx, "delivery failed, backing off",
				xlog.Err(err), xlog.Count(m.journal.Count()), xlog.Duration(delay))
			if !m.backoff(delay) {
				m.setWorker(WorkerShuttingDown)
				return
			}
			// 退避结束后立即从 WAL 头部重试
			m.force.Store(true)
			m.signal()
		}
		idleSince = time.Now()
		resetTimer(timer, delay)
	}
}

// backoff 等待 d，被关闭打断时返回 false
func (m *Manager) backoff(d time.Duration) bool {
	m.setWorker(WorkerBackoff)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-m.stopCh:
		return false
	case <-t.C:
		return true
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	t.Stop()
	select {
	case <-t.C:
	default:
	}
	t.Reset(max(d, 0))
}

// drainSafely 执行一轮投递，panic 视为投递失败
func (m *Manager) drainSafely() (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("drain panicked: %v", p)
			m.logger.Error(m.runCtx, "drain panicked", slog.Any("panic", p))
		}
	}()
	m.setWorker(WorkerDraining)
	return m.drain(m.runCtx)
}

// drain 按插入顺序分批读出并投递，直到 WAL 读空或出现失败
//
// 只删除 Agent 确认的前缀；失败时本轮立即结束，剩余条目留待退避后从头重试。
func (m *Manager) drain(ctx context.Context) (err error) {
	ctx, span := m.opts.recorder.StartDrain(ctx, m.name)
	delivered := 0
	defer func() { span.End(delivered, err) }()

	for {
		recs, batch, rerr := m.readBatch()
		if rerr != nil {
			return rerr
		}
		if len(recs) == 0 {
			return nil
		}

		n, sendErr := m.agent.Send(ctx, batch)
		n = max(0, min(n, len(batch)))
		if n > 0 {
			if derr := m.journal.Delete(recs[:n]...); derr != nil {
				return errors.Join(sendErr, fmt.Errorf("xqueue: delete delivered entries: %w", derr))
			}
			delivered += n
			m.delivered.Add(int64(n))
		}
		m.opts.recorder.Delivered(ctx, m.name, m.agent.Name(), n, sendErr)
		if sendErr != nil {
			return sendErr
		}
		if len(recs) < m.data.BatchSize {
			return nil
		}
	}
}

// readBatch 读取最多 BatchSize 条记录并解码
func (m *Manager) readBatch() ([]xjournal.Record, []xrecord.Entry, error) {
	c, err := m.journal.Cursor()
	if err != nil {
		return nil, nil, err
	}
	defer c.Close()

	var (
		recs  []xjournal.Record
		batch []xrecord.Entry
	)
	for len(recs) < m.data.BatchSize && c.Next() {
		r := c.Record()
		e, err := m.decode(r)
		if err != nil {
			if len(recs) > 0 {
				// 先投递前面完好的条目
				return recs, batch, nil
			}
			return nil, nil, err
		}
		recs = append(recs, r)
		batch = append(batch, e)
	}
	if err := c.Err(); err != nil && len(recs) == 0 {
		return nil, nil, err
	}
	return recs, batch, nil
}

// decode 按需解密并解码一条记录
func (m *Manager) decode(r xjournal.Record) (xrecord.Entry, error) {
	return decodeRecord(m.cipher, r)
}
