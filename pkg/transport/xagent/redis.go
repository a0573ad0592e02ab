package xagent

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/omeyang/xsink/pkg/appender/xrecord"
)

// DefaultRedisStream redis Agent 未指定 Target 时使用的 stream
const DefaultRedisStream = "xsink"

// 条目在 stream 中的字段名；header 字段以 headerFieldPrefix 开头
const (
	fieldKey          = "key"
	fieldBody         = "body"
	headerFieldPrefix = "h."
)

// RedisAgent 把条目 XADD 到 Redis Stream
type RedisAgent struct {
	name   string
	client redis.UniversalClient
	stream string
	maxLen int64
	owned  bool
}

// NewRedisAgent 使用已有客户端创建 Agent，Close 不关闭 client
//
// maxLen > 0 时以近似裁剪（MAXLEN ~）限制 stream 长度。
func NewRedisAgent(name string, client redis.UniversalClient, stream string, maxLen int64) *RedisAgent {
	if stream == "" {
		stream = DefaultRedisStream
	}
	return &RedisAgent{name: name, client: client, stream: stream, maxLen: maxLen}
}

func newRedisFromSpec(spec Spec, _ ...Option) (Agent, error) {
	ro := &redis.Options{Addr: spec.Address, Password: spec.Options["password"]}
	if v, ok := spec.Options["db"]; ok {
		db, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: redis db %q: %w", ErrInvalidSpec, v, err)
		}
		ro.DB = db
	}
	var maxLen int64
	if v, ok := spec.Options["maxlen"]; ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: redis maxlen %q: %w", ErrInvalidSpec, v, err)
		}
		maxLen = n
	}
	a := NewRedisAgent(spec.DisplayName(), redis.NewClient(ro), spec.Target, maxLen)
	a.owned = true
	return a, nil
}

// Name 实现 Agent
func (a *RedisAgent) Name() string { return a.name }

// Stream 返回目标 stream
func (a *RedisAgent) Stream() string { return a.stream }

// Send 在一个 pipeline 中依次 XADD，确认数为从头开始连续成功的命令数
func (a *RedisAgent) Send(ctx context.Context, batch []xrecord.Entry) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	pipe := a.client.Pipeline()
	for _, e := range batch {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: a.stream,
			MaxLen: a.maxLen,
			Approx: a.maxLen > 0,
			Values: streamValues(e),
		})
	}
	cmds, err := pipe.Exec(ctx)
	if err == nil {
		return len(batch), nil
	}
	acked := 0
	for _, c := range cmds {
		if c.Err() != nil {
			break
		}
		acked++
	}
	return acked, fmt.Errorf("%w: %s: %w", ErrSendFailed, a.name, err)
}

func streamValues(e xrecord.Entry) []any {
	names := make([]string, 0, len(e.Headers))
	for k := range e.Headers {
		names = append(names, k)
	}
	sort.Strings(names)
	v := make([]any, 0, 4+2*len(names))
	v = append(v, fieldKey, e.KeyString(), fieldBody, e.Payload)
	for _, k := range names {
		v = append(v, headerFieldPrefix+k, e.Headers[k])
	}
	return v
}

// Close 关闭自建的客户端
func (a *RedisAgent) Close() error {
	if !a.owned {
		return nil
	}
	return a.client.Close()
}
