package xrolling_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/omeyang/xsink/pkg/appender/xrecord"
	"github.com/omeyang/xsink/pkg/appender/xrolling"
	"github.com/omeyang/xsink/pkg/observability/xlog"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type policyFunc func(xrolling.Snapshot, xrecord.Record) bool

func (f policyFunc) IsTriggered(s xrolling.Snapshot, r xrecord.Record) bool { return f(s, r) }

var never = policyFunc(func(xrolling.Snapshot, xrecord.Record) bool { return false })

func fileSize(t *testing.T, path string) int64 {
	t.Helper()
	st, err := os.Stat(path)
	require.NoError(t, err)
	return st.Size()
}

func newManager(t *testing.T, data xrolling.FactoryData, opts ...xrolling.Option) *xrolling.Manager {
	t.Helper()
	opts = append([]xrolling.Option{xrolling.WithLogger(xlog.Discard())}, opts...)
	m, err := xrolling.NewManager("", data, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Stop(context.Background()) })
	return m
}
