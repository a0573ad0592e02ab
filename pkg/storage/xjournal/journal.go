package xjournal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
)

// Record 从 Journal 读出的一条记录
type Record struct {
	// Seq 插入序号
	Seq uint64
	// GUID 调用方提供的条目键
	GUID []byte
	// Flags 记录标志位，见 FlagEncrypted
	Flags byte
	// Data 记录体（拷贝，可安全持有）
	Data []byte

	key []byte
}

// Encrypted 记录体是否加密
func (r Record) Encrypted() bool { return r.Flags&FlagEncrypted != 0 }

// Journal 一个按插入顺序读取的持久日志
//
// Append 可并发调用；Cursor 与 Delete 预期只由单一消费者使用。
type Journal struct {
	env    *Env
	name   string
	prefix []byte
	upper  []byte
	meta   []byte

	mu     sync.Mutex // 串行化序号分配与提交
	seq    uint64
	count  atomic.Int64
	closed atomic.Bool
}

func openJournal(env *Env, name string) (*Journal, error) {
	j := &Journal{
		env:    env,
		name:   name,
		prefix: entryPrefix(name),
		meta:   metaSeqKey(name),
	}
	j.upper = prefixEnd(j.prefix)
	if err := j.recover(); err != nil {
		return nil, err
	}
	return j, nil
}

// recover 恢复最后序号并统计条目数
func (j *Journal) recover() error {
	if v, closer, err := j.env.db.Get(j.meta); err == nil {
		if len(v) == seqLen {
			j.seq = binary.BigEndian.Uint64(v)
		}
		_ = closer.Close()
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("xjournal: read sequence of %s: %w", j.name, err)
	}

	it, err := j.env.db.NewIter(&pebble.IterOptions{LowerBound: j.prefix, UpperBound: j.upper})
	if err != nil {
		return err
	}
	defer it.Close()
	var n int64
	for valid := it.First(); valid; valid = it.Next() {
		n++
		if seq, ok := j.seqOf(it.Key()); ok && seq > j.seq {
			j.seq = seq
		}
	}
	if err := it.Error(); err != nil {
		return fmt.Errorf("xjournal: scan %s: %w", j.name, err)
	}
	j.count.Store(n)
	return nil
}

func (j *Journal) seqOf(key []byte) (uint64, bool) {
	if len(key) < len(j.prefix)+seqLen || !bytes.HasPrefix(key, j.prefix) {
		return 0, false
	}
	return binary.BigEndian.Uint64(key[len(j.prefix):]), true
}

// Name 返回名称
func (j *Journal) Name() string { return j.name }

// Dir 返回所在 Env 的目录
func (j *Journal) Dir() string { return j.env.dir }

// Count 返回当前条目数
func (j *Journal) Count() int {
	return int(j.count.Load())
}

// Append 持久化追加一条记录并返回其序号
//
// 提交按 Env 的 FsyncMode 落盘；返回后记录对后续打开的 Cursor 可见。
func (j *Journal) Append(guid []byte, flags byte, data []byte) (uint64, error) {
	if j.closed.Load() {
		return 0, ErrClosed
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	seq := j.seq + 1
	b := j.env.db.NewBatch()
	defer b.Close()
	if err := b.Set(entryKey(j.prefix, seq, guid), frame(flags, data), nil); err != nil {
		return 0, err
	}
	var sb [seqLen]byte
	binary.BigEndian.PutUint64(sb[:], seq)
	if err := b.Set(j.meta, sb[:], nil); err != nil {
		return 0, err
	}
	if err := b.Commit(j.env.writeOpts); err != nil {
		return 0, fmt.Errorf("xjournal: append to %s: %w", j.name, err)
	}
	j.seq = seq
	j.count.Add(1)
	return seq, nil
}

// Delete 删除已确认投递的记录
func (j *Journal) Delete(recs ...Record) error {
	if len(recs) == 0 {
		return nil
	}
	if j.closed.Load() {
		return ErrClosed
	}
	b := j.env.db.NewBatch()
	defer b.Close()
	for _, r := range recs {
		if err := b.Delete(r.key, nil); err != nil {
			return err
		}
	}
	if err := b.Commit(j.env.writeOpts); err != nil {
		return fmt.Errorf("xjournal: delete from %s: %w", j.name, err)
	}
	j.count.Add(-int64(len(recs)))
	return nil
}

// Purge 删除全部条目（人工清理），返回删除的条数
func (j *Journal) Purge() (int, error) {
	if j.closed.Load() {
		return 0, ErrClosed
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	n := int(j.count.Load())
	b := j.env.db.NewBatch()
	defer b.Close()
	if err := b.DeleteRange(j.prefix, j.upper, nil); err != nil {
		return 0, err
	}
	if err := b.Commit(j.env.writeOpts); err != nil {
		return 0, fmt.Errorf("xjournal: purge %s: %w", j.name, err)
	}
	j.count.Store(0)
	return n, nil
}

// Cursor 打开一个按插入顺序遍历的游标
//
// 游标看到的是打开时刻的快照；之后追加的记录需要新的游标。
func (j *Journal) Cursor() (*Cursor, error) {
	if j.closed.Load() {
		return nil, ErrClosed
	}
	it, err := j.env.db.NewIter(&pebble.IterOptions{LowerBound: j.prefix, UpperBound: j.upper})
	if err != nil {
		return nil, err
	}
	return &Cursor{j: j, it: it}, nil
}

// Close 释放 Journal 的独占权，不关闭 Env
func (j *Journal) Close() error {
	if j.closed.Swap(true) {
		return nil
	}
	j.env.detach(j.name, j)
	return nil
}

func (j *Journal) markClosed() {
	j.closed.Store(true)
}

// Cursor 按插入顺序遍历记录
//
//	c, err := j.Cursor()
//	...
//	defer c.Close()
//	for c.Next() {
//		rec := c.Record()
//	}
//	if err := c.Err(); err != nil { ... }
type Cursor struct {
	j       *Journal
	it      *pebble.Iterator
	started bool
	rec     Record
	err     error
}

// Next 前进到下一条记录；遇到损坏记录时停止并通过 Err 报告
func (c *Cursor) Next() bool {
	if c.err != nil || c.it == nil {
		return false
	}
	var valid bool
	if !c.started {
		c.started = true
		valid = c.it.First()
	} else {
		valid = c.it.Next()
	}
	if !valid {
		c.err = c.it.Error()
		return false
	}

	key := bytes.Clone(c.it.Key())
	seq, ok := c.j.seqOf(key)
	if !ok {
		c.err = fmt.Errorf("%w: malformed key %s", ErrCorrupted, keyString(key))
		return false
	}
	value, err := c.it.ValueAndErr()
	if err != nil {
		c.err = err
		return false
	}
	flags, data, ok := unframe(value)
	if !ok {
		c.err = fmt.Errorf("%w: %s seq %d", ErrCorrupted, c.j.name, seq)
		return false
	}
	c.rec = Record{
		Seq:   seq,
		GUID:  key[len(c.j.prefix)+seqLen:],
		Flags: flags,
		Data:  bytes.Clone(data),
		key:   key,
	}
	return true
}

// Record 返回当前记录
func (c *Cursor) Record() Record { return c.rec }

// Err 返回遍历中遇到的错误
func (c *Cursor) Err() error { return c.err }

// Close 关闭游标；幂等
func (c *Cursor) Close() error {
	if c.it == nil {
		return nil
	}
	err := c.it.Close()
	c.it = nil
	return err
}
