package xlog_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xsink/pkg/observability/xlog"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestBuilder_JSONWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup, err := xlog.New().
		SetOutput(&buf).
		SetFormat("JSON").
		SetAttrs(slog.String("component", "xsink")).
		Build()
	require.NoError(t, err)
	defer func() { assert.NoError(t, cleanup()) }()

	logger.Info(context.Background(), "opened", xlog.Path("/tmp/a.log"), xlog.Bytes(42))

	out := buf.String()
	assert.Contains(t, out, `"msg":"opened"`)
	assert.Contains(t, out, `"component":"xsink"`)
	assert.Contains(t, out, `"path":"/tmp/a.log"`)
	assert.Contains(t, out, `"bytes":42`)
}

func TestBuilder_FirstErrorWins(t *testing.T) {
	_, _, err := xlog.New().
		SetLevelString("verbose").
		SetFormat("xml").
		Build()
	require.ErrorIs(t, err, xlog.ErrUnknownLevel)

	_, _, err = xlog.New().SetFormat("xml").Build()
	require.ErrorIs(t, err, xlog.ErrUnknownFormat)
}

func TestBuilder_Rotation(t *testing.T) {
	_, _, err := xlog.New().SetRotation("  ").Build()
	require.ErrorIs(t, err, xlog.ErrEmptyFilename)

	_, _, err = xlog.New().SetRotation("a.log", xlog.WithMaxSize(0)).Build()
	require.ErrorIs(t, err, xlog.ErrInvalidRotation)

	path := filepath.Join(t.TempDir(), "status.log")
	logger, cleanup, err := xlog.New().
		SetRotation(path, xlog.WithMaxSize(1), xlog.WithMaxBackups(1), xlog.WithCompress(false)).
		Build()
	require.NoError(t, err)
	logger.Warn(context.Background(), "rotation ok")
	require.NoError(t, cleanup())
	require.NoError(t, cleanup())
	assert.FileExists(t, path)
}

func TestLogger_LevelIsDynamicAndShared(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := xlog.New().SetOutput(&buf).SetLevel(xlog.LevelWarn).Build()
	require.NoError(t, err)
	child := logger.With(xlog.Manager("m1"))

	child.Info(context.Background(), "hidden")
	assert.Empty(t, buf.String())

	logger.SetLevel(xlog.LevelDebug)
	child.Debug(context.Background(), "visible")
	assert.Contains(t, buf.String(), "visible")
	assert.Contains(t, buf.String(), "manager=m1")
	assert.True(t, logger.Enabled(context.Background(), xlog.LevelDebug))
	assert.Equal(t, xlog.LevelDebug, logger.GetLevel())
}

func TestLogger_HandlerErrorIsAbsorbed(t *testing.T) {
	var seen []error
	logger, _, err := xlog.New().
		SetOutput(failingWriter{}).
		SetOnError(func(err error) {
			seen = append(seen, err)
			panic("callback panics are isolated")
		}).
		Build()
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		logger.Error(context.Background(), "boom", xlog.Err(errors.New("x")))
	})
	assert.Len(t, seen, 1)
	assert.Equal(t, uint64(2), xlog.ErrorCount(logger))
}

func TestParseLevel(t *testing.T) {
	cases := map[string]xlog.Level{
		"debug":   xlog.LevelDebug,
		" INFO ":  xlog.LevelInfo,
		"":        xlog.LevelInfo,
		"warning": xlog.LevelWarn,
		"Error":   xlog.LevelError,
	}
	for in, want := range cases {
		got, err := xlog.ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	var lv xlog.Level
	require.NoError(t, lv.UnmarshalText([]byte("warn")))
	assert.Equal(t, xlog.LevelWarn, lv)
	assert.Error(t, lv.UnmarshalText([]byte("loud")))
}

func TestDefault(t *testing.T) {
	xlog.ResetDefault()
	defer xlog.ResetDefault()

	first := xlog.Default()
	require.NotNil(t, first)
	assert.Same(t, first, xlog.Default())

	var buf bytes.Buffer
	custom, _, err := xlog.New().SetOutput(&buf).Build()
	require.NoError(t, err)
	xlog.SetDefault(custom)
	xlog.SetDefault(nil)
	xlog.Info(context.Background(), "through global")
	assert.Contains(t, buf.String(), "through global")

	assert.Equal(t, xlog.Logger(custom), xlog.OrDefault(nil))
	d := xlog.Discard()
	assert.Equal(t, xlog.Logger(d), xlog.OrDefault(d))
}

func TestErr_Nil(t *testing.T) {
	assert.Equal(t, slog.Attr{}, xlog.Err(nil))
}
