package xjournal

import (
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xsink/pkg/observability/xlog"
)

func TestCursor_ChecksumMismatch(t *testing.T) {
	env, err := Open(Options{Dir: t.TempDir(), Logger: xlog.Discard()})
	require.NoError(t, err)
	defer env.Close()
	j, err := env.Journal("q")
	require.NoError(t, err)

	_, err = j.Append([]byte("ok"), 0, []byte("good"))
	require.NoError(t, err)
	seq, err := j.Append([]byte("bad"), 0, []byte("evil"))
	require.NoError(t, err)

	v := frame(0, []byte("evil"))
	v[len(v)-1] ^= 0xff
	require.NoError(t, env.db.Set(entryKey(j.prefix, seq, []byte("bad")), v, pebble.Sync))

	c, err := j.Cursor()
	require.NoError(t, err)
	defer c.Close()
	require.True(t, c.Next())
	assert.Equal(t, "good", string(c.Record().Data))
	assert.False(t, c.Next())
	assert.ErrorIs(t, c.Err(), ErrCorrupted)
}

func TestUnframe_Short(t *testing.T) {
	_, _, ok := unframe([]byte{1, 2, 3})
	assert.False(t, ok)
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, []byte("q0"), prefixEnd([]byte("q/")))
	assert.Equal(t, []byte{'a', 1}, prefixEnd([]byte{'a', 0, 0xff}))
	assert.Nil(t, prefixEnd([]byte{0xff, 0xff}))
}
