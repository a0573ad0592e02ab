package xrolling_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xsink/pkg/appender/xrecord"
	"github.com/omeyang/xsink/pkg/appender/xrolling"
)

func TestParseSize(t *testing.T) {
	cases := map[string]int64{
		"":       xrolling.DefaultMaxFileSize,
		"10 MB":  10 * 1024 * 1024,
		"512KB":  512 * 1024,
		"1GB":    1024 * 1024 * 1024,
		"2048":   2048,
		"1,5 KB": 1536,
	}
	for in, want := range cases {
		got, err := xrolling.ParseSize(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"ten", "-1", "0"} {
		_, err := xrolling.ParseSize(bad)
		assert.ErrorIs(t, err, xrolling.ErrInvalidPolicy, bad)
	}
}

func TestSizeBasedTriggeringPolicy(t *testing.T) {
	p, err := xrolling.NewSizeBasedTriggeringPolicy("1 KB")
	require.NoError(t, err)
	assert.False(t, p.IsTriggered(xrolling.Snapshot{Size: 1024}, xrecord.Record{}))
	assert.True(t, p.IsTriggered(xrolling.Snapshot{Size: 1025}, xrecord.Record{}))
}

func TestTimeBasedTriggeringPolicy_NextBoundary(t *testing.T) {
	ft := time.Date(2024, 5, 1, 10, 37, 12, 0, time.UTC)

	plain := &xrolling.TimeBasedTriggeringPolicy{Interval: time.Hour}
	assert.Equal(t, ft.Add(time.Hour), plain.NextBoundary(ft))

	hourly := &xrolling.TimeBasedTriggeringPolicy{Interval: time.Hour, Modulate: true}
	assert.Equal(t, time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC), hourly.NextBoundary(ft))

	sixHours := &xrolling.TimeBasedTriggeringPolicy{Interval: 6 * time.Hour, Modulate: true}
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), sixHours.NextBoundary(ft))

	daily := &xrolling.TimeBasedTriggeringPolicy{Interval: 24 * time.Hour, Modulate: true}
	assert.Equal(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), daily.NextBoundary(ft))

	shanghai := time.FixedZone("CST", 8*3600)
	local := time.Date(2024, 5, 1, 23, 10, 0, 0, shanghai)
	assert.True(t, daily.NextBoundary(local).Equal(time.Date(2024, 5, 2, 0, 0, 0, 0, shanghai)))
}

func TestTimeBasedTriggeringPolicy_IsTriggered(t *testing.T) {
	p, err := xrolling.NewTimeBasedTriggeringPolicy(time.Hour, true)
	require.NoError(t, err)
	ft := time.Date(2024, 5, 1, 10, 37, 0, 0, time.UTC)
	s := xrolling.Snapshot{FileTime: ft}

	assert.False(t, p.IsTriggered(s, xrecord.Record{Time: time.Date(2024, 5, 1, 10, 59, 59, 0, time.UTC)}))
	assert.True(t, p.IsTriggered(s, xrecord.Record{Time: time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)}))

	_, err = xrolling.NewTimeBasedTriggeringPolicy(0, false)
	assert.ErrorIs(t, err, xrolling.ErrInvalidPolicy)
}

func TestCronTriggeringPolicy(t *testing.T) {
	p, err := xrolling.NewCronTriggeringPolicy("0 0 * * *")
	require.NoError(t, err)
	ft := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s := xrolling.Snapshot{FileTime: ft}

	assert.False(t, p.IsTriggered(s, xrecord.Record{Time: time.Date(2024, 5, 1, 23, 59, 0, 0, time.UTC)}))
	assert.True(t, p.IsTriggered(s, xrecord.Record{Time: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)}))

	withSeconds, err := xrolling.NewCronTriggeringPolicy("30 * * * * *")
	require.NoError(t, err)
	assert.True(t, withSeconds.IsTriggered(s, xrecord.Record{Time: ft.Add(30 * time.Second)}))

	_, err = xrolling.NewCronTriggeringPolicy("@daily")
	require.NoError(t, err)
	_, err = xrolling.NewCronTriggeringPolicy("every day")
	assert.ErrorIs(t, err, xrolling.ErrInvalidPolicy)
}

func TestCompositeTriggeringPolicy(t *testing.T) {
	size := &xrolling.SizeBasedTriggeringPolicy{MaxBytes: 100}
	tp := &xrolling.TimeBasedTriggeringPolicy{Interval: time.Hour}
	p, err := xrolling.NewCompositeTriggeringPolicy(nil, size, tp)
	require.NoError(t, err)
	assert.Len(t, p.Policies, 2)

	ft := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	early := xrecord.Record{Time: ft.Add(time.Minute)}
	late := xrecord.Record{Time: ft.Add(2 * time.Hour)}

	assert.False(t, p.IsTriggered(xrolling.Snapshot{Size: 10, FileTime: ft}, early))
	assert.True(t, p.IsTriggered(xrolling.Snapshot{Size: 101, FileTime: ft}, early))
	assert.True(t, p.IsTriggered(xrolling.Snapshot{Size: 10, FileTime: ft}, late))
	assert.Contains(t, p.String(), "SizeBasedTriggeringPolicy(size=100)")

	_, err = xrolling.NewCompositeTriggeringPolicy()
	assert.ErrorIs(t, err, xrolling.ErrInvalidPolicy)
}
