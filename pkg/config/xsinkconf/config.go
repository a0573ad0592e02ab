package xsinkconf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Format 配置文件格式
type Format string

const (
	// FormatYAML YAML 格式
	FormatYAML Format = "yaml"
	// FormatJSON JSON 格式
	FormatJSON Format = "json"
)

// Config 已解析并校验的配置；Reload 并发安全
type Config struct {
	path   string
	format Format

	mu  sync.RWMutex
	doc Document
}

// Load 读取文件，按扩展名（.yaml/.yml/.json）选择格式
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	format, err := detectFormat(path)
	if err != nil {
		return nil, err
	}
	doc, err := readDocument(path, format)
	if err != nil {
		return nil, err
	}
	return &Config{path: path, format: format, doc: doc}, nil
}

// Parse 从字节数据创建配置；空数据得到空文档
func Parse(data []byte, format Format) (*Config, error) {
	doc, err := parseDocument(data, format)
	if err != nil {
		return nil, err
	}
	return &Config{format: format, doc: doc}, nil
}

// Document 返回当前文档的副本
func (c *Config) Document() Document {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.doc.clone()
}

// Reload 重新读取文件；解析或校验失败时保留原文档
func (c *Config) Reload() error {
	if c.path == "" {
		return ErrNotReloadable
	}
	doc, err := readDocument(c.path, c.format)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.doc = doc
	c.mu.Unlock()
	return nil
}

// Path 文件路径，由 Parse 创建时为空
func (c *Config) Path() string { return c.path }

// Format 配置格式
func (c *Config) Format() Format { return c.format }

func detectFormat(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown extension %q", ErrUnsupportedFormat, ext)
	}
}

func readDocument(path string, format Format) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	return parseDocument(data, format)
}

func parseDocument(data []byte, format Format) (Document, error) {
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return Document{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	k := koanf.New(".")
	if len(data) > 0 {
		if err := k.Load(rawbytes.Provider(data), parser); err != nil {
			return Document{}, fmt.Errorf("%w: %w", ErrParseFailed, err)
		}
	}

	var doc Document
	if err := k.UnmarshalWithConf("", &doc, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}
