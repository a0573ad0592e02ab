package xrolling_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xsink/pkg/appender/xrolling"
)

func TestParseFilePattern(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		pattern string
		index   int
		want    string
		comp    xrolling.Compression
	}{
		{"logs/app-%i.log", 3, "logs/app-3.log", xrolling.CompressionNone},
		{"logs/app-%d-%i.log.gz", 1, "logs/app-2024-05-01-1.log.gz", xrolling.CompressionGzip},
		{"logs/%d{2006/01}/app-%d{20060102T15}.log.zst", 0, "logs/2024/05/app-20240501T10.log.zst", xrolling.CompressionZstd},
		{"app-100%%-%i.zip", 2, "app-100%-2.zip", xrolling.CompressionZip},
	}
	for _, tc := range cases {
		p, err := xrolling.ParseFilePattern(tc.pattern)
		require.NoError(t, err, tc.pattern)
		assert.Equal(t, tc.want, p.Format(tc.index, ts))
		assert.Equal(t, tc.comp, p.Compression())
		assert.Equal(t, tc.pattern, p.String())
	}

	p := xrolling.MustParseFilePattern("a-%i.log.gz")
	assert.True(t, p.HasIndex())
	assert.False(t, p.HasDate())
	assert.Equal(t, "a-1.log", p.Plain("a-1.log.gz"))
	assert.Equal(t, ".gz", xrolling.CompressionGzip.Suffix())
	assert.Equal(t, "gzip", xrolling.CompressionGzip.String())
}

func TestParseFilePattern_Invalid(t *testing.T) {
	for _, bad := range []string{"", "plain.log", "app-%x.log", "app-%d{2006", "app-%d{}.log", "app-%"} {
		_, err := xrolling.ParseFilePattern(bad)
		assert.ErrorIs(t, err, xrolling.ErrInvalidPattern, bad)
	}
	assert.Panics(t, func() { xrolling.MustParseFilePattern("plain.log") })
}
