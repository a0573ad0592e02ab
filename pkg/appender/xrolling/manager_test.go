package xrolling_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xsink/pkg/appender/xmanager"
	"github.com/omeyang/xsink/pkg/appender/xrecord"
	"github.com/omeyang/xsink/pkg/appender/xrolling"
	"github.com/omeyang/xsink/pkg/observability/xlog"
)

func TestManager_WriteExactMultipleOfBufferKeepsLastBuffer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	m := newManager(t, xrolling.FactoryData{
		FileName:    path,
		FilePattern: path + ".%i",
		Append:      true,
		Policy:      never,
	})

	const c = xrolling.DefaultBufferSize
	require.NoError(t, m.Write(bytes.Repeat([]byte{'x'}, 3*c)))
	assert.Equal(t, int64(2*c), fileSize(t, path))
	assert.Equal(t, c, m.Stats().Buffered)

	require.NoError(t, m.Flush())
	assert.Equal(t, int64(3*c), fileSize(t, path))
	require.NoError(t, m.Flush())
	assert.Equal(t, int64(3*c), fileSize(t, path))
}

func TestManager_WriteBeyondMultipleFlushesWholeBuffers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	m := newManager(t, xrolling.FactoryData{
		FileName:    path,
		FilePattern: path + ".%i",
		Policy:      never,
	})

	const c = xrolling.DefaultBufferSize
	require.NoError(t, m.Write(bytes.Repeat([]byte{'y'}, 3*c+1)))
	assert.Equal(t, int64(3*c), fileSize(t, path))

	require.NoError(t, m.Flush())
	assert.Equal(t, int64(3*c+1), fileSize(t, path))
}

func TestManager_BufferProperties(t *testing.T) {
	const c = 64
	for k := 1; k <= 4; k++ {
		for _, r := range []int{0, 1, c / 2, c - 1} {
			path := filepath.Join(t.TempDir(), "p.log")
			m := newManager(t, xrolling.FactoryData{
				FileName:    path,
				FilePattern: path + ".%i",
				BufferSize:  c,
				Policy:      never,
			})
			total := k*c + r
			require.NoError(t, m.Write(bytes.Repeat([]byte{'z'}, total)))

			want := int64((total / c) * c)
			if r == 0 {
				want = int64((k - 1) * c)
			}
			assert.Equal(t, want, fileSize(t, path), "k=%d r=%d", k, r)
			require.NoError(t, m.Flush())
			assert.Equal(t, int64(total), fileSize(t, path), "k=%d r=%d", k, r)
		}
	}
}

func TestManager_SmallWritesFlushOnOverflowOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.log")
	m := newManager(t, xrolling.FactoryData{
		FileName:    path,
		FilePattern: path + ".%i",
		BufferSize:  10,
		Policy:      never,
	})

	require.NoError(t, m.Write([]byte("0123456789")))
	assert.Equal(t, int64(0), fileSize(t, path))
	require.NoError(t, m.Write([]byte("a")))
	assert.Equal(t, int64(10), fileSize(t, path))
	assert.Equal(t, 1, m.Stats().Buffered)
}

func TestManager_AppendModePreservesContentAndModTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "append.log")
	existing := []byte("previous content\n")
	require.NoError(t, os.WriteFile(path, existing, 0o644))
	mtime := time.Date(2023, 3, 4, 5, 6, 7, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, mtime, mtime))

	clock := newFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	m := newManager(t, xrolling.FactoryData{
		FileName:    path,
		FilePattern: path + ".%i",
		Append:      true,
		Policy:      never,
	}, xrolling.WithClock(clock))

	st := m.Stats()
	assert.Equal(t, int64(len(existing)), st.FileSize)
	assert.True(t, st.FileTime.Equal(mtime), "fileTime %s", st.FileTime)

	require.NoError(t, m.Write([]byte("new\n")))
	require.NoError(t, m.Stop(context.Background()))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "previous content\nnew\n", string(got))
}

func TestManager_NonAppendTruncatesAndUsesClock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trunc.log")
	require.NoError(t, os.WriteFile(path, []byte("old data"), 0o644))

	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	m := newManager(t, xrolling.FactoryData{
		FileName:    path,
		FilePattern: path + ".%i",
		Append:      false,
		Policy:      never,
	}, xrolling.WithClock(newFakeClock(now)))

	st := m.Stats()
	assert.Equal(t, int64(0), st.FileSize)
	assert.True(t, st.FileTime.Equal(now))
	assert.Equal(t, int64(0), fileSize(t, path))
}

func TestManager_AppendModeNewFileUsesClock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "fresh.log")
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	m := newManager(t, xrolling.FactoryData{
		FileName:    path,
		FilePattern: path + ".%i",
		Append:      true,
		Policy:      never,
	}, xrolling.WithClock(newFakeClock(now)))
	assert.True(t, m.Stats().FileTime.Equal(now))
}

func TestManager_ImmediateFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "imm.log")
	m := newManager(t, xrolling.FactoryData{
		FileName:       path,
		FilePattern:    path + ".%i",
		ImmediateFlush: true,
		Locking:        true,
		Policy:         never,
	})
	require.NoError(t, m.Write([]byte("line\n")))
	assert.Equal(t, int64(5), fileSize(t, path))
}

func TestManager_Unbuffered(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unbuf.log")
	m := newManager(t, xrolling.FactoryData{
		FileName:    path,
		FilePattern: path + ".%i",
		Unbuffered:  true,
		Policy:      never,
	})
	require.NoError(t, m.Write([]byte("abc")))
	assert.Equal(t, int64(3), fileSize(t, path))
	assert.Equal(t, 0, m.Stats().Capacity)
}

func TestManager_StopFlushesAndRejectsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stop.log")
	m := newManager(t, xrolling.FactoryData{
		FileName:    path,
		FilePattern: path + ".%i",
		Policy:      never,
	})
	require.NoError(t, m.Write([]byte("pending")))
	assert.True(t, m.IsConnected())

	require.NoError(t, m.Stop(context.Background()))
	require.NoError(t, m.Stop(context.Background()))
	assert.Equal(t, int64(7), fileSize(t, path))
	assert.False(t, m.IsConnected())
	assert.Equal(t, xmanager.StateStopped, m.State())
	assert.ErrorIs(t, m.Write([]byte("late")), xmanager.ErrNotConnected)
	assert.ErrorIs(t, m.Flush(), xmanager.ErrNotConnected)
}

func TestManager_SizeRolloverCompressesArchive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	m := newManager(t, xrolling.FactoryData{
		FileName:    path,
		FilePattern: filepath.Join(dir, "archive", "app-%i.log.gz"),
		BufferSize:  64,
		Policy:      &xrolling.SizeBasedTriggeringPolicy{MaxBytes: 10},
	})

	first := []byte("first record\n")
	second := []byte("second record\n")
	require.NoError(t, m.Write(first))
	require.NoError(t, m.Write(second))
	require.NoError(t, m.Flush())

	active, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, second, active)
	assert.Equal(t, int64(len(second)), m.Stats().FileSize)

	archive := filepath.Join(dir, "archive", "app-1.log.gz")
	f, err := os.Open(archive)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	content, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, first, content)
	assert.NoFileExists(t, filepath.Join(dir, "archive", "app-1.log"))
}

func TestManager_TimeRolloverUsesRetiredFileTime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	start := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	clock := newFakeClock(start)
	policy, err := xrolling.NewTimeBasedTriggeringPolicy(time.Hour, true)
	require.NoError(t, err)

	m := newManager(t, xrolling.FactoryData{
		FileName:    path,
		FilePattern: filepath.Join(dir, "app-%d{2006010215}.log"),
		Policy:      policy,
	}, xrolling.WithClock(clock))

	require.NoError(t, m.WriteRecord(xrecord.Record{Time: start.Add(29 * time.Minute), Body: []byte("a\n")}))
	_, err = os.Stat(filepath.Join(dir, "app-2024050110.log"))
	assert.True(t, os.IsNotExist(err))

	clock.Set(start.Add(30 * time.Minute))
	require.NoError(t, m.WriteRecord(xrecord.Record{Time: start.Add(30 * time.Minute), Body: []byte("b\n")}))

	retired, err := os.ReadFile(filepath.Join(dir, "app-2024050110.log"))
	require.NoError(t, err)
	assert.Equal(t, "a\n", string(retired))
	assert.True(t, m.Stats().FileTime.Equal(start.Add(30*time.Minute)))
}

type failingStrategy struct{ calls int }

func (s *failingStrategy) Rollover(xrolling.RolloverRequest) (xrolling.RolloverResult, error) {
	s.calls++
	return xrolling.RolloverResult{}, errors.New("disk is read-only")
}

func TestManager_FailedRolloverKeepsOriginalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	strategy := &failingStrategy{}
	var buf bytes.Buffer
	logger, _, err := xlog.New().SetOutput(&buf).Build()
	require.NoError(t, err)

	m, err := xrolling.NewManager("", xrolling.FactoryData{
		FileName:    path,
		FilePattern: path + ".%i",
		Policy:      &xrolling.SizeBasedTriggeringPolicy{MaxBytes: 1},
		Strategy:    strategy,
	}, xrolling.WithLogger(logger))
	require.NoError(t, err)

	require.NoError(t, m.Write([]byte("one\n")))
	require.NoError(t, m.Write([]byte("two\n")))
	assert.ErrorIs(t, m.Rollover(context.Background()), xrolling.ErrRolloverFailed)
	require.NoError(t, m.Stop(context.Background()))

	assert.Equal(t, 2, strategy.calls)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(got))
	assert.Contains(t, buf.String(), "rollover failed")
}

func TestManager_ConcurrentWritersKeepRecordsIntact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conc.log")
	m := newManager(t, xrolling.FactoryData{
		FileName:    path,
		FilePattern: path + ".%i",
		BufferSize:  128,
		Policy:      never,
	})

	const writers, perWriter = 8, 200
	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			line := []byte(strings.Repeat(string(rune('a'+w)), 15) + "\n")
			for range perWriter {
				assert.NoError(t, m.Write(line))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, m.Stop(context.Background()))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(got), "\n"), "\n")
	require.Len(t, lines, writers*perWriter)
	for _, l := range lines {
		require.Len(t, l, 15)
		assert.Equal(t, strings.Repeat(l[:1], 15), l)
	}
}

func TestNewManager_Validation(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name string
		data xrolling.FactoryData
		want error
	}{
		{"no file", xrolling.FactoryData{FilePattern: "a.%i", Policy: never}, xrolling.ErrEmptyPath},
		{"no pattern", xrolling.FactoryData{FileName: filepath.Join(dir, "a"), Policy: never}, xrolling.ErrInvalidPattern},
		{"no policy", xrolling.FactoryData{FileName: filepath.Join(dir, "a"), FilePattern: "a.%i"}, xrolling.ErrInvalidPolicy},
		{"negative buffer", xrolling.FactoryData{FileName: filepath.Join(dir, "a"), FilePattern: "a.%i", Policy: never, BufferSize: -1}, xrolling.ErrInvalidBufferSize},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := xrolling.NewManager("", tc.data)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, xmanager.ErrInvalidConfig)
		})
	}
}

func TestRegistry_SharedFileManager(t *testing.T) {
	reg := xrolling.NewRegistry(xrolling.WithLogger(xlog.Discard()))
	path := filepath.Join(t.TempDir(), "shared.log")
	data := xrolling.FactoryData{FileName: path, FilePattern: path + ".%i", Policy: never}
	ctx := context.Background()

	h1, err := reg.Acquire(ctx, xrolling.Key(path), data)
	require.NoError(t, err)
	h2, err := reg.Acquire(ctx, xrolling.Key(path), data)
	require.NoError(t, err)
	assert.Same(t, h1.Manager(), h2.Manager())
	assert.Equal(t, 2, reg.RefCount(xrolling.Key(path)))

	require.NoError(t, h1.Manager().Write([]byte("shared\n")))
	require.NoError(t, h1.Release(ctx))
	assert.True(t, h2.Manager().IsConnected())
	assert.Equal(t, int64(0), fileSize(t, path))

	require.NoError(t, h2.Release(ctx))
	assert.False(t, h2.Manager().IsConnected())
	assert.Equal(t, int64(7), fileSize(t, path))
	assert.Equal(t, 0, reg.Len())
}
