package xlog

import (
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// 状态日志文件轮转默认值
const (
	DefaultMaxSizeMB  = 100
	DefaultMaxBackups = 5
	DefaultMaxAgeDays = 14
)

// RotationConfig 状态日志文件的轮转参数
type RotationConfig struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	LocalTime  bool
}

// RotationOption 轮转配置选项
type RotationOption func(*RotationConfig)

// WithMaxSize 单个文件最大大小（MB），必须 > 0
func WithMaxSize(mb int) RotationOption {
	return func(c *RotationConfig) { c.MaxSizeMB = mb }
}

// WithMaxBackups 保留的备份数量，0 表示不限制
func WithMaxBackups(n int) RotationOption {
	return func(c *RotationConfig) { c.MaxBackups = n }
}

// WithMaxAge 保留备份的天数，0 表示不按天数清理
func WithMaxAge(days int) RotationOption {
	return func(c *RotationConfig) { c.MaxAgeDays = days }
}

// WithCompress 是否 gzip 压缩备份
func WithCompress(compress bool) RotationOption {
	return func(c *RotationConfig) { c.Compress = compress }
}

// WithLocalTime 备份文件名是否使用本地时间
func WithLocalTime(local bool) RotationOption {
	return func(c *RotationConfig) { c.LocalTime = local }
}

func newRotation(filename string, opts ...RotationOption) (*lumberjack.Logger, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, ErrEmptyFilename
	}
	cfg := RotationConfig{
		MaxSizeMB:  DefaultMaxSizeMB,
		MaxBackups: DefaultMaxBackups,
		MaxAgeDays: DefaultMaxAgeDays,
		Compress:   true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.MaxSizeMB <= 0 {
		return nil, fmt.Errorf("%w: max size %d", ErrInvalidRotation, cfg.MaxSizeMB)
	}
	if cfg.MaxBackups < 0 || cfg.MaxAgeDays < 0 {
		return nil, fmt.Errorf("%w: negative retention", ErrInvalidRotation)
	}
	return &lumberjack.Logger{
		Filename:   filepath.Clean(filename),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
		LocalTime:  cfg.LocalTime,
	}, nil
}
