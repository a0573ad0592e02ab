package xrolling

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultDateLayout %d 未指定 layout 时使用的日期格式
const DefaultDateLayout = "2006-01-02"

// Compression 归档文件的压缩格式，由 file pattern 的后缀决定
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionZstd
	CompressionZip
)

func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionZip:
		return "zip"
	default:
		return "none"
	}
}

// Suffix 返回压缩格式对应的文件后缀
func (c Compression) Suffix() string {
	switch c {
	case CompressionGzip:
		return ".gz"
	case CompressionZstd:
		return ".zst"
	case CompressionZip:
		return ".zip"
	default:
		return ""
	}
}

type partKind int

const (
	partLiteral partKind = iota
	partIndex
	partDate
)

type patternPart struct {
	kind partKind
	text string // 字面量或日期 layout
}

// FilePattern 归档文件名模板
//
// 支持的占位符：%i（序号）、%d 或 %d{layout}（Go 时间 layout，作用于被归档文件的 fileTime）、%%（字面 %）。
type FilePattern struct {
	raw         string
	parts       []patternPart
	hasIndex    bool
	hasDate     bool
	compression Compression
}

// ParseFilePattern 解析 file pattern，至少需要 %i 或 %d 之一
func ParseFilePattern(pattern string) (*FilePattern, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPattern)
	}
	fp := &FilePattern{raw: pattern}
	var lit strings.Builder
	flushLit := func() {
		if lit.Len() > 0 {
			fp.parts = append(fp.parts, patternPart{kind: partLiteral, text: lit.String()})
			lit.Reset()
		}
	}
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c != '%' {
			lit.WriteByte(c)
			continue
		}
		if i+1 >= len(pattern) {
			return nil, fmt.Errorf("%w: trailing %% in %q", ErrInvalidPattern, pattern)
		}
		i++
		switch pattern[i] {
		case '%':
			lit.WriteByte('%')
		case 'i':
			flushLit()
			fp.parts = append(fp.parts, patternPart{kind: partIndex})
			fp.hasIndex = true
		case 'd':
			flushLit()
			layout := DefaultDateLayout
			if i+1 < len(pattern) && pattern[i+1] == '{' {
				end := strings.IndexByte(pattern[i+2:], '}')
				if end < 0 {
					return nil, fmt.Errorf("%w: unclosed %%d{ in %q", ErrInvalidPattern, pattern)
				}
				layout = pattern[i+2 : i+2+end]
				if layout == "" {
					return nil, fmt.Errorf("%w: empty date layout in %q", ErrInvalidPattern, pattern)
				}
				i += 2 + end
			}
			fp.parts = append(fp.parts, patternPart{kind: partDate, text: layout})
			fp.hasDate = true
		default:
			return nil, fmt.Errorf("%w: unknown conversion %%%c in %q", ErrInvalidPattern, pattern[i], pattern)
		}
	}
	flushLit()
	if !fp.hasIndex && !fp.hasDate {
		return nil, fmt.Errorf("%w: %q needs %%i or %%d", ErrInvalidPattern, pattern)
	}
	for _, c := range []Compression{CompressionGzip, CompressionZstd, CompressionZip} {
		if strings.HasSuffix(pattern, c.Suffix()) {
			fp.compression = c
			break
		}
	}
	return fp, nil
}

// MustParseFilePattern 解析失败时 panic，仅用于常量模板
func MustParseFilePattern(pattern string) *FilePattern {
	fp, err := ParseFilePattern(pattern)
	if err != nil {
		panic(err)
	}
	return fp
}

// String 返回原始模板
func (p *FilePattern) String() string { return p.raw }

// HasIndex 是否包含 %i
func (p *FilePattern) HasIndex() bool { return p.hasIndex }

// HasDate 是否包含 %d
func (p *FilePattern) HasDate() bool { return p.hasDate }

// Compression 返回归档压缩格式
func (p *FilePattern) Compression() Compression { return p.compression }

// Format 生成文件名（含压缩后缀）
func (p *FilePattern) Format(index int, t time.Time) string {
	var b strings.Builder
	for _, part := range p.parts {
		switch part.kind {
		case partLiteral:
			b.WriteString(part.text)
		case partIndex:
			b.WriteString(strconv.Itoa(index))
		case partDate:
			b.WriteString(t.Format(part.text))
		}
	}
	return b.String()
}

// Plain 去掉压缩后缀，得到压缩前的文件名
func (p *FilePattern) Plain(name string) string {
	return strings.TrimSuffix(name, p.compression.Suffix())
}
