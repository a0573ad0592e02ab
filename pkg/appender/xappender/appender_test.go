package xappender_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xsink/pkg/appender/xappender"
	"github.com/omeyang/xsink/pkg/appender/xmanager"
	"github.com/omeyang/xsink/pkg/appender/xqueue"
	"github.com/omeyang/xsink/pkg/appender/xrecord"
	"github.com/omeyang/xsink/pkg/appender/xrolling"
	"github.com/omeyang/xsink/pkg/observability/xlog"
	"github.com/omeyang/xsink/pkg/storage/xjournal"
)

// stubSink 按 err/panics 决定写入结果
type stubSink struct {
	xmanager.Lifecycle
	err    error
	panics bool
	got    []xrecord.Record
}

func (s *stubSink) Name() string               { return "stub" }
func (s *stubSink) Write(p []byte) error       { return s.WriteRecord(xrecord.Record{Body: p}) }
func (s *stubSink) Flush() error               { return nil }
func (s *stubSink) IsConnected() bool          { return s.IsStarted() }
func (s *stubSink) Stop(context.Context) error { s.MarkStopped(); return nil }

func (s *stubSink) WriteRecord(rec xrecord.Record) error {
	if s.panics {
		panic("sink exploded")
	}
	if s.err != nil {
		return s.err
	}
	s.got = append(s.got, rec)
	return nil
}

func stubAppender(t *testing.T, sink *stubSink, opts ...xappender.Option) *xappender.Appender {
	t.Helper()
	reg, err := xmanager.NewRegistry(func(string, struct{}) (*stubSink, error) {
		sink.MarkStarted()
		return sink, nil
	})
	require.NoError(t, err)
	h, err := reg.Acquire(context.Background(), "stub", struct{}{})
	require.NoError(t, err)
	opts = append([]xappender.Option{xappender.WithStatusLogger(xlog.Discard())}, opts...)
	a, err := xappender.New("app", h, opts...)
	require.NoError(t, err)
	return a
}

func rollingHandle(t *testing.T, reg *xrolling.Registry, path string) *xrolling.Handle {
	t.Helper()
	policy, err := xrolling.NewSizeBasedTriggeringPolicy("10 MB")
	require.NoError(t, err)
	h, err := reg.Acquire(context.Background(), xrolling.Key(path), xrolling.FactoryData{
		FileName:    path,
		FilePattern: path + ".%i",
		Append:      true,
		Policy:      policy,
	})
	require.NoError(t, err)
	return h
}

func TestAppender_SlogToRollingFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "app.log")
	reg := xrolling.NewRegistry(xrolling.WithLogger(xlog.Discard()))

	a, err := xappender.New("app", rollingHandle(t, reg, path), xappender.WithStatusLogger(xlog.Discard()))
	require.NoError(t, err)
	logger := slog.New(a.Handler())
	logger.Info("hello", "k", 1)
	logger.Debug("filtered")
	require.NoError(t, a.Flush())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "msg=hello k=1")
	assert.NotContains(t, string(b), "filtered")
	assert.Equal(t, uint64(1), a.Stats().Appended)
	require.NoError(t, a.Close(ctx))
	require.NoError(t, a.Close(ctx))
}

func TestAppender_SharedManagerClosesOnLastRelease(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.log")
	reg := xrolling.NewRegistry(xrolling.WithLogger(xlog.Discard()))

	a1, err := xappender.New("one", rollingHandle(t, reg, path))
	require.NoError(t, err)
	a2, err := xappender.New("two", rollingHandle(t, reg, path))
	require.NoError(t, err)
	assert.Same(t, a1.Manager(), a2.Manager())
	assert.Equal(t, 2, reg.RefCount(xrolling.Key(path)))

	require.NoError(t, a1.Close(ctx))
	assert.True(t, a2.Manager().IsConnected())
	require.NoError(t, a2.Close(ctx))
	assert.False(t, a2.Manager().IsConnected())
	assert.Zero(t, reg.Len())
}

func TestAppender_ErrorsAreAbsorbed(t *testing.T) {
	var seen atomic.Int32
	sink := &stubSink{err: errors.New("disk full")}
	a := stubAppender(t, sink, xappender.WithOnError(func(err error) {
		seen.Add(1)
		panic("callback bug")
	}))

	assert.NotPanics(t, func() {
		a.Append(context.Background(), xrecord.Record{Body: []byte("x")})
		slog.New(a.Handler()).Error("boom")
	})
	assert.Equal(t, uint64(2), a.Stats().Failed)
	assert.Equal(t, int32(2), seen.Load())

	sink.err, sink.panics = nil, true
	assert.NotPanics(t, func() { a.Append(context.Background(), xrecord.Record{}) })
	assert.Equal(t, uint64(3), a.Stats().Failed)
}

func TestAppender_AppendAfterClose(t *testing.T) {
	sink := &stubSink{}
	a := stubAppender(t, sink)
	require.NoError(t, a.Close(context.Background()))
	a.Append(context.Background(), xrecord.Record{Body: []byte("late")})
	assert.Equal(t, uint64(1), a.Stats().Failed)
	assert.Empty(t, sink.got)
}

func TestAppender_RecordDefaults(t *testing.T) {
	sink := &stubSink{}
	a := stubAppender(t, sink, xappender.WithHeaders(map[string]string{"env": "prod", "region": "eu"}))
	a.Append(context.Background(), xrecord.Record{Body: []byte("x"), Headers: map[string]string{"region": "us"}})

	require.Len(t, sink.got, 1)
	assert.Equal(t, "app", sink.got[0].Logger)
	assert.Equal(t, map[string]string{"env": "prod", "region": "us"}, sink.got[0].Headers)
}

func TestHandler_GroupsAndAttrs(t *testing.T) {
	sink := &stubSink{}
	a := stubAppender(t, sink, xappender.WithLevel(slog.LevelDebug))
	logger := slog.New(a.Handler()).With("svc", "api").WithGroup("req").With("id", 7)
	logger.Debug("handled", "status", 200)

	require.Len(t, sink.got, 1)
	line := string(sink.got[0].Body)
	assert.Contains(t, line, "svc=api")
	assert.Contains(t, line, "req.id=7")
	assert.Contains(t, line, "req.status=200")
	assert.Equal(t, slog.LevelDebug, sink.got[0].Level)
}

func TestHandler_JSONLayout(t *testing.T) {
	layout, err := xrecord.NewSlogLayout("json")
	require.NoError(t, err)
	sink := &stubSink{}
	a := stubAppender(t, sink, xappender.WithLayout(layout))
	slog.New(a.Handler()).Warn("careful", "n", 3)

	require.Len(t, sink.got, 1)
	assert.Contains(t, string(sink.got[0].Body), `"msg":"careful"`)
	assert.Contains(t, string(sink.got[0].Body), `"n":3`)
}

type countingAgent struct{ n atomic.Int64 }

func (c *countingAgent) Name() string { return "counting" }
func (c *countingAgent) Send(_ context.Context, b []xrecord.Entry) (int, error) {
	c.n.Add(int64(len(b)))
	return len(b), nil
}
func (c *countingAgent) Close() error { return nil }

func TestAppender_DurableQueue(t *testing.T) {
	ctx := context.Background()
	agent := &countingAgent{}
	reg := xqueue.NewRegistry(xqueue.WithLogger(xlog.Discard()), xqueue.WithAgent(agent),
		xqueue.WithJournalRegistry(xjournal.NewRegistry()))
	data := xqueue.FactoryData{DataDir: t.TempDir(), ReconnectionDelay: 20 * time.Millisecond}
	h, err := reg.Acquire(ctx, xqueue.Key(data), data)
	require.NoError(t, err)

	a, err := xappender.New("queue", h, xappender.WithStatusLogger(xlog.Discard()))
	require.NoError(t, err)
	defer a.Close(ctx)

	logger := slog.New(a.Handler())
	for range 5 {
		logger.Info("event")
	}
	require.Eventually(t, func() bool { return agent.n.Load() == 5 }, 5*time.Second, 5*time.Millisecond)
	assert.Zero(t, a.Stats().Failed)
}

func TestNew_NilHandle(t *testing.T) {
	_, err := xappender.New[*xrolling.Manager]("x", nil)
	assert.ErrorIs(t, err, xmanager.ErrInvalidConfig)
}
