package xrolling

import (
	"fmt"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/robfig/cron/v3"

	"github.com/omeyang/xsink/pkg/appender/xrecord"
)

// DefaultMaxFileSize 大小策略的默认阈值（10 MiB）
const DefaultMaxFileSize = 10 * 1024 * 1024

// Snapshot 触发策略可见的 Manager 状态
type Snapshot struct {
	// Size 磁盘字节数 + 缓冲字节数
	Size int64
	// FileTime 活动文件的创建（或沿用的最后修改）时间
	FileTime time.Time
}

// TriggeringPolicy 决定写入前是否需要轮转
//
// 实现必须是纯函数：只依赖 Snapshot 与记录时间戳，没有副作用。
type TriggeringPolicy interface {
	IsTriggered(s Snapshot, rec xrecord.Record) bool
}

// SizeBasedTriggeringPolicy 累计大小超过 MaxBytes 时触发
type SizeBasedTriggeringPolicy struct {
	MaxBytes int64
}

// NewSizeBasedTriggeringPolicy 解析 "10 MB"、"512KB"、"1GB" 形式的大小（1 KB = 1024 B），
// 空字符串使用 DefaultMaxFileSize。
func NewSizeBasedTriggeringPolicy(size string) (*SizeBasedTriggeringPolicy, error) {
	n, err := ParseSize(size)
	if err != nil {
		return nil, err
	}
	return &SizeBasedTriggeringPolicy{MaxBytes: n}, nil
}

// ParseSize 解析文件大小
func ParseSize(size string) (int64, error) {
	s := strings.TrimSpace(size)
	if s == "" {
		return DefaultMaxFileSize, nil
	}
	s = strings.ReplaceAll(s, ",", ".")
	n, err := units.RAMInBytes(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: size %q", ErrInvalidPolicy, size)
	}
	return n, nil
}

func (p *SizeBasedTriggeringPolicy) IsTriggered(s Snapshot, _ xrecord.Record) bool {
	return s.Size > p.MaxBytes
}

func (p *SizeBasedTriggeringPolicy) String() string {
	return fmt.Sprintf("SizeBasedTriggeringPolicy(size=%d)", p.MaxBytes)
}

// TimeBasedTriggeringPolicy 记录时间到达下一个边界时触发
//
// Modulate 为 false 时边界是 fileTime + Interval；为 true 时边界对齐到 Interval 的整倍数
// （Interval 不超过一天时以 fileTime 所在时区的零点为起点，例如 1h 对齐到整点）。
type TimeBasedTriggeringPolicy struct {
	Interval time.Duration
	Modulate bool
}

// NewTimeBasedTriggeringPolicy interval 必须 > 0
func NewTimeBasedTriggeringPolicy(interval time.Duration, modulate bool) (*TimeBasedTriggeringPolicy, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: interval %s", ErrInvalidPolicy, interval)
	}
	return &TimeBasedTriggeringPolicy{Interval: interval, Modulate: modulate}, nil
}

// NextBoundary 返回 fileTime 之后的下一个轮转时刻
func (p *TimeBasedTriggeringPolicy) NextBoundary(fileTime time.Time) time.Time {
	if !p.Modulate {
		return fileTime.Add(p.Interval)
	}
	if p.Interval <= 24*time.Hour {
		y, m, d := fileTime.Date()
		midnight := time.Date(y, m, d, 0, 0, 0, 0, fileTime.Location())
		elapsed := fileTime.Sub(midnight).Truncate(p.Interval)
		return midnight.Add(elapsed + p.Interval)
	}
	return fileTime.Truncate(p.Interval).Add(p.Interval)
}

func (p *TimeBasedTriggeringPolicy) IsTriggered(s Snapshot, rec xrecord.Record) bool {
	if p.Interval <= 0 {
		return false
	}
	return !rec.Time.Before(p.NextBoundary(s.FileTime))
}

func (p *TimeBasedTriggeringPolicy) String() string {
	return fmt.Sprintf("TimeBasedTriggeringPolicy(interval=%s, modulate=%t)", p.Interval, p.Modulate)
}

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// CronTriggeringPolicy 记录时间到达 fileTime 之后的下一个 cron 时刻时触发
type CronTriggeringPolicy struct {
	Expr     string
	schedule cron.Schedule
}

// NewCronTriggeringPolicy 解析 cron 表达式（5 或 6 段，支持 @daily 等描述符）
func NewCronTriggeringPolicy(expr string) (*CronTriggeringPolicy, error) {
	sched, err := cronParser.Parse(strings.TrimSpace(expr))
	if err != nil {
		return nil, fmt.Errorf("%w: cron %q: %w", ErrInvalidPolicy, expr, err)
	}
	return &CronTriggeringPolicy{Expr: expr, schedule: sched}, nil
}

func (p *CronTriggeringPolicy) IsTriggered(s Snapshot, rec xrecord.Record) bool {
	if p.schedule == nil {
		return false
	}
	next := p.schedule.Next(s.FileTime)
	return !next.IsZero() && !rec.Time.Before(next)
}

func (p *CronTriggeringPolicy) String() string {
	return fmt.Sprintf("CronTriggeringPolicy(schedule=%s)", p.Expr)
}

// CompositeTriggeringPolicy 任一子策略触发即触发
type CompositeTriggeringPolicy struct {
	Policies []TriggeringPolicy
}

// NewCompositeTriggeringPolicy 忽略 nil 子策略；至少需要一个有效子策略
func NewCompositeTriggeringPolicy(policies ...TriggeringPolicy) (*CompositeTriggeringPolicy, error) {
	list := make([]TriggeringPolicy, 0, len(policies))
	for _, p := range policies {
		if p != nil {
			list = append(list, p)
		}
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: composite without policies", ErrInvalidPolicy)
	}
	return &CompositeTriggeringPolicy{Policies: list}, nil
}

func (p *CompositeTriggeringPolicy) IsTriggered(s Snapshot, rec xrecord.Record) bool {
	for _, sub := range p.Policies {
		if sub.IsTriggered(s, rec) {
			return true
		}
	}
	return false
}

func (p *CompositeTriggeringPolicy) String() string {
	names := make([]string, 0, len(p.Policies))
	for _, sub := range p.Policies {
		names = append(names, fmt.Sprint(sub))
	}
	return "CompositeTriggeringPolicy(" + strings.Join(names, ", ") + ")"
}
