package xsinkconf

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/omeyang/xsink/pkg/appender/xqueue"
	"github.com/omeyang/xsink/pkg/appender/xrolling"
	"github.com/omeyang/xsink/pkg/observability/xlog"
	"github.com/omeyang/xsink/pkg/storage/xjournal"
	"github.com/omeyang/xsink/pkg/transport/xagent"
)

// Appender 类型
const (
	TypeRolling = "rolling"
	TypeQueue   = "queue"
)

// Document 配置文档
type Document struct {
	Status    StatusConfig     `koanf:"status" json:"status"`
	Appenders []AppenderConfig `koanf:"appenders" json:"appenders"`
}

// StatusConfig 状态日志；File 为空时输出到 stderr
type StatusConfig struct {
	Level  string `koanf:"level" json:"level,omitempty"`
	Format string `koanf:"format" json:"format,omitempty"`
	File   string `koanf:"file" json:"file,omitempty"`
	// MaxSizeMB 状态日志单文件上限，0 使用 lumberjack 默认值
	MaxSizeMB  int `koanf:"max_size_mb" json:"max_size_mb,omitempty"`
	MaxBackups int `koanf:"max_backups" json:"max_backups,omitempty"`
}

// AppenderConfig 单个 Appender
type AppenderConfig struct {
	Name string `koanf:"name" json:"name"`
	// Type rolling | queue
	Type string `koanf:"type" json:"type"`
	// Level 最低级别，默认 info
	Level string `koanf:"level" json:"level,omitempty"`
	// Layout text | json，默认 text
	Layout  string            `koanf:"layout" json:"layout,omitempty"`
	Headers map[string]string `koanf:"headers" json:"headers,omitempty"`

	Rolling *RollingConfig `koanf:"rolling" json:"rolling,omitempty"`
	Queue   *QueueConfig   `koanf:"queue" json:"queue,omitempty"`
}

// RollingConfig 对应 xrolling.FactoryData
type RollingConfig struct {
	FileName    string `koanf:"file_name" json:"file_name"`
	FilePattern string `koanf:"file_pattern" json:"file_pattern"`
	// Append 默认 true
	Append *bool `koanf:"append" json:"append,omitempty"`
	// BufferSize 形如 "256 KB"，为空使用默认值
	BufferSize string `koanf:"buffer_size" json:"buffer_size,omitempty"`
	Unbuffered bool   `koanf:"unbuffered" json:"unbuffered,omitempty"`
	// ImmediateFlush 默认 true
	ImmediateFlush *bool          `koanf:"immediate_flush" json:"immediate_flush,omitempty"`
	Locking        bool           `koanf:"locking" json:"locking,omitempty"`
	Policy         PolicyConfig   `koanf:"policy" json:"policy"`
	Strategy       StrategyConfig `koanf:"strategy" json:"strategy,omitempty"`
}

// PolicyConfig 触发条件；设置多项时任一满足即轮转
type PolicyConfig struct {
	Size     string        `koanf:"size" json:"size,omitempty"`
	Interval time.Duration `koanf:"interval" json:"interval,omitempty"`
	Modulate bool          `koanf:"modulate" json:"modulate,omitempty"`
	Cron     string        `koanf:"cron" json:"cron,omitempty"`
}

// StrategyConfig 对应 DefaultRolloverStrategy
type StrategyConfig struct {
	Min              int    `koanf:"min" json:"min,omitempty"`
	Max              int    `koanf:"max" json:"max,omitempty"`
	FileIndex        string `koanf:"file_index" json:"file_index,omitempty"`
	CompressionLevel int    `koanf:"compression_level" json:"compression_level,omitempty"`
}

// QueueConfig 对应 xqueue.FactoryData
type QueueConfig struct {
	Name              string        `koanf:"name" json:"name,omitempty"`
	Agents            []xagent.Spec `koanf:"agents" json:"agents"`
	BatchSize         int           `koanf:"batch_size" json:"batch_size,omitempty"`
	ReconnectionDelay time.Duration `koanf:"reconnection_delay" json:"reconnection_delay,omitempty"`
	DataDir           string        `koanf:"data_dir" json:"data_dir,omitempty"`
	// Fsync always（默认）| never
	Fsync      string            `koanf:"fsync" json:"fsync,omitempty"`
	Properties map[string]string `koanf:"properties" json:"properties,omitempty"`
}

// Validate 校验整个文档，返回全部问题
func (d Document) Validate() error {
	var errs []error
	if err := d.Status.Validate(); err != nil {
		errs = append(errs, err)
	}
	seen := make(map[string]bool, len(d.Appenders))
	for i, a := range d.Appenders {
		if a.Name == "" {
			errs = append(errs, fmt.Errorf("%w: appenders[%d]: missing name", ErrInvalidConfig, i))
		} else if seen[a.Name] {
			errs = append(errs, fmt.Errorf("%w: appenders[%d]: duplicate name %q", ErrInvalidConfig, i, a.Name))
		}
		seen[a.Name] = true
		if err := a.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("appenders[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Appender 按名称查找
func (d Document) Appender(name string) (AppenderConfig, bool) {
	for _, a := range d.Appenders {
		if a.Name == name {
			return a, true
		}
	}
	return AppenderConfig{}, false
}

func (d Document) clone() Document {
	d.Appenders = slices.Clone(d.Appenders)
	return d
}

// Validate 校验状态日志的级别与格式
func (s StatusConfig) Validate() error {
	if _, err := xlog.ParseLevel(s.Level); err != nil {
		return fmt.Errorf("%w: status: %w", ErrInvalidConfig, err)
	}
	if !validFormat(s.Format) {
		return fmt.Errorf("%w: status: format %q", ErrInvalidConfig, s.Format)
	}
	return nil
}

// Validate 校验单个 Appender，并尝试构造其 FactoryData
func (a AppenderConfig) Validate() error {
	if _, err := a.level(); err != nil {
		return err
	}
	if !validFormat(a.Layout) {
		return fmt.Errorf("%w: %s: layout %q", ErrInvalidConfig, a.Name, a.Layout)
	}
	switch strings.ToLower(a.Type) {
	case TypeRolling:
		_, err := a.RollingData()
		return err
	case TypeQueue:
		_, err := a.QueueData()
		return err
	default:
		return fmt.Errorf("%w: %s: unknown type %q", ErrInvalidConfig, a.Name, a.Type)
	}
}

// RollingData 转换为 xrolling.FactoryData
func (a AppenderConfig) RollingData() (xrolling.FactoryData, error) {
	r := a.Rolling
	if r == nil {
		return xrolling.FactoryData{}, fmt.Errorf("%w: %s: missing rolling section", ErrInvalidConfig, a.Name)
	}
	if r.FileName == "" {
		return xrolling.FactoryData{}, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, a.Name, xrolling.ErrEmptyPath)
	}
	if _, err := xrolling.ParseFilePattern(r.FilePattern); err != nil {
		return xrolling.FactoryData{}, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, a.Name, err)
	}

	data := xrolling.FactoryData{
		FileName:       r.FileName,
		FilePattern:    r.FilePattern,
		Append:         boolOr(r.Append, true),
		Unbuffered:     r.Unbuffered,
		ImmediateFlush: boolOr(r.ImmediateFlush, true),
		Locking:        r.Locking,
	}
	if r.BufferSize != "" {
		n, err := xrolling.ParseSize(r.BufferSize)
		if err != nil {
			return xrolling.FactoryData{}, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, a.Name, xrolling.ErrInvalidBufferSize)
		}
		data.BufferSize = int(n)
	}

	policy, err := r.Policy.build()
	if err != nil {
		return xrolling.FactoryData{}, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, a.Name, err)
	}
	data.Policy = policy

	s := r.Strategy
	if s != (StrategyConfig{}) {
		maxIndex := s.Max
		if maxIndex == 0 {
			maxIndex = xrolling.DefaultMaxIndex
		}
		strategy, err := xrolling.NewDefaultRolloverStrategy(s.Min, maxIndex, xrolling.FileIndex(s.FileIndex), s.CompressionLevel)
		if err != nil {
			return xrolling.FactoryData{}, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, a.Name, err)
		}
		data.Strategy = strategy
	}
	return data, nil
}

func (p PolicyConfig) build() (xrolling.TriggeringPolicy, error) {
	var policies []xrolling.TriggeringPolicy
	if p.Size != "" {
		sp, err := xrolling.NewSizeBasedTriggeringPolicy(p.Size)
		if err != nil {
			return nil, err
		}
		policies = append(policies, sp)
	}
	if p.Interval > 0 {
		tp, err := xrolling.NewTimeBasedTriggeringPolicy(p.Interval, p.Modulate)
		if err != nil {
			return nil, err
		}
		policies = append(policies, tp)
	}
	if p.Cron != "" {
		cp, err := xrolling.NewCronTriggeringPolicy(p.Cron)
		if err != nil {
			return nil, err
		}
		policies = append(policies, cp)
	}
	switch len(policies) {
	case 0:
		return nil, fmt.Errorf("%w: no trigger configured", xrolling.ErrInvalidPolicy)
	case 1:
		return policies[0], nil
	default:
		return xrolling.NewCompositeTriggeringPolicy(policies...)
	}
}

// QueueData 转换为 xqueue.FactoryData
func (a AppenderConfig) QueueData() (xqueue.FactoryData, error) {
	q := a.Queue
	if q == nil {
		return xqueue.FactoryData{}, fmt.Errorf("%w: %s: missing queue section", ErrInvalidConfig, a.Name)
	}
	if len(q.Agents) == 0 {
		return xqueue.FactoryData{}, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, a.Name, xqueue.ErrNoAgents)
	}
	for i, spec := range q.Agents {
		if err := spec.Validate(); err != nil {
			return xqueue.FactoryData{}, fmt.Errorf("%w: %s: agents[%d]: %w", ErrInvalidConfig, a.Name, i, err)
		}
	}
	if q.BatchSize < 0 || q.ReconnectionDelay < 0 {
		return xqueue.FactoryData{}, fmt.Errorf("%w: %s: negative batch size or delay", ErrInvalidConfig, a.Name)
	}

	var fsync xjournal.FsyncMode
	switch strings.ToLower(q.Fsync) {
	case "", "always":
		fsync = xjournal.FsyncAlways
	case "never":
		fsync = xjournal.FsyncNever
	default:
		return xqueue.FactoryData{}, fmt.Errorf("%w: %s: fsync %q", ErrInvalidConfig, a.Name, q.Fsync)
	}

	return xqueue.FactoryData{
		Name:              q.Name,
		Agents:            slices.Clone(q.Agents),
		BatchSize:         q.BatchSize,
		ReconnectionDelay: q.ReconnectionDelay,
		DataDir:           q.DataDir,
		Fsync:             fsync,
		Properties:        xqueue.Properties(maps.Clone(q.Properties)),
	}, nil
}

func (a AppenderConfig) level() (slog.Level, error) {
	lv, err := xlog.ParseLevel(a.Level)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, a.Name, err)
	}
	return slog.Level(lv), nil
}

func validFormat(f string) bool {
	switch strings.ToLower(f) {
	case "", "text", "json":
		return true
	default:
		return false
	}
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
