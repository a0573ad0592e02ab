package xrecord

import (
	"log/slog"
	"maps"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// 队列条目的标准头部
const (
	HeaderGUID      = "guid"
	HeaderTimestamp = "timestamp"
	HeaderLevel     = "level"
	HeaderLogger    = "logger"
)

// Record 一条已编码的日志记录
type Record struct {
	Time    time.Time
	Level   slog.Level
	Logger  string
	Body    []byte
	Headers map[string]string
}

// Entry 持久队列条目
//
// Key 是 16 字节 GUID；Entry 只在 WAL 中确认投递后才会被删除。
type Entry struct {
	Key     []byte
	Payload []byte
	Headers map[string]string
}

// KeyString 返回 Key 的可读形式
func (e Entry) KeyString() string {
	if id, err := uuid.FromBytes(e.Key); err == nil {
		return id.String()
	}
	return strconv.Quote(string(e.Key))
}

// NewKey 生成新的条目 GUID（UUIDv7，时间有序）
func NewKey() []byte {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	b := id[:]
	return b
}

// NewEntry 由 Record 构造队列条目并填充标准头部
//
// Record.Headers 原样保留；与标准头部同名的键以标准头部为准。
func NewEntry(rec Record) Entry {
	key := NewKey()
	headers := make(map[string]string, len(rec.Headers)+4)
	maps.Copy(headers, rec.Headers)

	ts := rec.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	id, _ := uuid.FromBytes(key) //nolint:errcheck // NewKey 总是 16 字节
	headers[HeaderGUID] = id.String()
	headers[HeaderTimestamp] = strconv.FormatInt(ts.UnixMilli(), 10)
	headers[HeaderLevel] = rec.Level.String()
	if rec.Logger != "" {
		headers[HeaderLogger] = rec.Logger
	}
	return Entry{Key: key, Payload: rec.Body, Headers: headers}
}
