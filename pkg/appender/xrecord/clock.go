package xrecord

import "time"

// Clock 时间源
type Clock interface {
	Now() time.Time
}

// SystemClock 使用墙上时钟
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc 函数适配器
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// OrSystem 在 c 为 nil 时返回 SystemClock
func OrSystem(c Clock) Clock {
	if c == nil {
		return SystemClock{}
	}
	return c
}
