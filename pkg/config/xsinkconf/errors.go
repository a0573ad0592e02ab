package xsinkconf

import "errors"

var (
	// ErrEmptyPath 配置文件路径为空
	ErrEmptyPath = errors.New("xsinkconf: empty config path")

	// ErrUnsupportedFormat 不支持的配置格式
	ErrUnsupportedFormat = errors.New("xsinkconf: unsupported config format")

	// ErrLoadFailed 读取配置失败
	ErrLoadFailed = errors.New("xsinkconf: failed to load config")

	// ErrParseFailed 解析配置失败
	ErrParseFailed = errors.New("xsinkconf: failed to parse config")

	// ErrInvalidConfig 配置内容非法
	ErrInvalidConfig = errors.New("xsinkconf: invalid config")

	// ErrNotReloadable 由字节数据创建的配置不能重载或监视
	ErrNotReloadable = errors.New("xsinkconf: config was not loaded from a file")
)
