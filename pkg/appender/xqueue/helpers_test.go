package xqueue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/omeyang/xsink/pkg/appender/xqueue"
	"github.com/omeyang/xsink/pkg/appender/xrecord"
	"github.com/omeyang/xsink/pkg/observability/xlog"
	"github.com/omeyang/xsink/pkg/storage/xjournal"
	"github.com/omeyang/xsink/pkg/transport/xagent"
)

const (
	shortDelay = 20 * time.Millisecond
	waitFor    = 5 * time.Second
	tick       = 5 * time.Millisecond
)

// recordingAgent 记录收到的 payload；fail 返回非 nil 错误时只确认前 n 条
type recordingAgent struct {
	mu      sync.Mutex
	got     []string
	headers []map[string]string
	at      []time.Time
	calls   int
	closed  bool
	fail    func(call int, batch []xrecord.Entry) (int, error)
}

func (a *recordingAgent) Name() string { return "recording" }

func (a *recordingAgent) Send(_ context.Context, batch []xrecord.Entry) (int, error) {
	a.mu.Lock()
	a.calls++
	a.at = append(a.at, time.Now())
	call, fail := a.calls, a.fail
	a.mu.Unlock()

	n, err := len(batch), error(nil)
	if fail != nil {
		if fn, ferr := fail(call, batch); ferr != nil {
			n, err = fn, ferr
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range batch[:n] {
		a.got = append(a.got, string(e.Payload))
		a.headers = append(a.headers, e.Headers)
	}
	return n, err
}

func (a *recordingAgent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *recordingAgent) received() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.got...)
}

func (a *recordingAgent) callTimes() []time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]time.Time(nil), a.at...)
}

func (a *recordingAgent) receivedHeaders() []map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]map[string]string(nil), a.headers...)
}

func (a *recordingAgent) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func newQueue(t *testing.T, data xqueue.FactoryData, agent xagent.Agent, opts ...xqueue.Option) *xqueue.Manager {
	t.Helper()
	if data.DataDir == "" {
		data.DataDir = t.TempDir()
	}
	if data.ReconnectionDelay == 0 {
		data.ReconnectionDelay = shortDelay
	}
	base := []xqueue.Option{
		xqueue.WithLogger(xlog.Discard()),
		xqueue.WithAgent(agent),
		xqueue.WithJournalRegistry(xjournal.NewRegistry()),
	}
	m, err := xqueue.NewManager("", data, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Stop(context.Background()) })
	return m
}

func send(t *testing.T, m *xqueue.Manager, payloads ...string) {
	t.Helper()
	for _, p := range payloads {
		require.NoError(t, m.Send(xrecord.NewEntry(xrecord.Record{Time: time.Now(), Body: []byte(p)})))
	}
}

func indexOf(batch []xrecord.Entry, payload string) int {
	for i, e := range batch {
		if string(e.Payload) == payload {
			return i
		}
	}
	return -1
}
