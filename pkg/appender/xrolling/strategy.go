package xrolling

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// 默认保留窗口
const (
	DefaultMinIndex = 1
	DefaultMaxIndex = 7
)

// FileIndex 序号方向
type FileIndex string

const (
	// FileIndexMax 序号越大越新；窗口满时删除最小序号并整体前移
	FileIndexMax FileIndex = "max"
	// FileIndexMin 固定窗口：Min 总是最新，旧文件依次后移，超过 Max 的被删除
	FileIndexMin FileIndex = "min"
)

// RolloverRequest 一次轮转的输入
//
// 调用时缓冲区必须为空、活动文件必须已关闭。
type RolloverRequest struct {
	ActiveFile string
	Pattern    *FilePattern
	// FileTime 被归档文件的时间，用于 %d
	FileTime time.Time
}

// RolloverResult 一次轮转的结果
type RolloverResult struct {
	// File 新打开的活动文件（已截断）
	File *os.File
	// Retired 归档后的文件名，活动文件不存在时为空
	Retired string
	// Pruned 被删除的归档
	Pruned []string
	// CompressErr 压缩失败时归档以未压缩形式保留
	CompressErr error
}

// RolloverStrategy 执行轮转：改名、压缩、清理，并返回新的活动文件
type RolloverStrategy interface {
	Rollover(req RolloverRequest) (RolloverResult, error)
}

// DefaultRolloverStrategy 基于序号窗口的轮转策略
type DefaultRolloverStrategy struct {
	Min       int
	Max       int
	FileIndex FileIndex
	// CompressionLevel 0 表示各格式的默认级别
	CompressionLevel int
}

// NewDefaultRolloverStrategy 校验参数；min < 1 视为 1，max < min 报错
func NewDefaultRolloverStrategy(minIndex, maxIndex int, index FileIndex, level int) (*DefaultRolloverStrategy, error) {
	if minIndex < 1 {
		minIndex = DefaultMinIndex
	}
	if maxIndex < minIndex {
		return nil, fmt.Errorf("%w: max %d < min %d", ErrInvalidStrategy, maxIndex, minIndex)
	}
	switch strings.ToLower(string(index)) {
	case "", string(FileIndexMax):
		index = FileIndexMax
	case string(FileIndexMin):
		index = FileIndexMin
	default:
		return nil, fmt.Errorf("%w: file index %q", ErrInvalidStrategy, index)
	}
	return &DefaultRolloverStrategy{Min: minIndex, Max: maxIndex, FileIndex: index, CompressionLevel: level}, nil
}

// DefaultStrategy 返回 min=1、max=7、序号越大越新的策略
func DefaultStrategy() *DefaultRolloverStrategy {
	return &DefaultRolloverStrategy{Min: DefaultMinIndex, Max: DefaultMaxIndex, FileIndex: FileIndexMax}
}

func (s *DefaultRolloverStrategy) String() string {
	return fmt.Sprintf("DefaultRolloverStrategy(min=%d, max=%d, fileIndex=%s)", s.Min, s.Max, s.FileIndex)
}

// Rollover 实现 RolloverStrategy
func (s *DefaultRolloverStrategy) Rollover(req RolloverRequest) (RolloverResult, error) {
	var res RolloverResult
	if req.Pattern == nil || req.ActiveFile == "" {
		return res, fmt.Errorf("%w: missing active file or pattern", ErrInvalidStrategy)
	}

	if exists(req.ActiveFile) {
		target, pruned, err := s.target(req)
		res.Pruned = pruned
		if err != nil {
			return res, err
		}
		plain := req.Pattern.Plain(target)
		if err := os.MkdirAll(filepath.Dir(plain), 0o755); err != nil {
			return res, err
		}
		if err := os.Rename(req.ActiveFile, plain); err != nil {
			return res, err
		}
		res.Retired = plain
		if c := req.Pattern.Compression(); c != CompressionNone {
			if err := compressFile(plain, target, c, s.CompressionLevel); err != nil {
				res.CompressErr = err
			} else {
				res.Retired = target
			}
		}
	}

	f, err := os.OpenFile(req.ActiveFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return res, err
	}
	res.File = f
	return res, nil
}

// target 为即将归档的文件腾出位置并返回其名称
func (s *DefaultRolloverStrategy) target(req RolloverRequest) (string, []string, error) {
	p := req.Pattern
	if !p.HasIndex() {
		return p.Format(0, req.FileTime), nil, nil
	}
	minIdx, maxIdx := s.Min, s.Max
	if minIdx < 1 {
		minIdx = DefaultMinIndex
	}
	if maxIdx < minIdx {
		maxIdx = minIdx
	}
	name := func(i int) string { return p.Format(i, req.FileTime) }

	if s.FileIndex == FileIndexMin {
		pruned, err := s.shiftUp(name, p, minIdx, maxIdx)
		return name(minIdx), pruned, err
	}
	return s.shiftDown(name, p, minIdx, maxIdx)
}

// shiftUp 固定窗口：删除 max，i → i+1
func (s *DefaultRolloverStrategy) shiftUp(name func(int) string, p *FilePattern, minIdx, maxIdx int) ([]string, error) {
	var pruned []string
	if old, ok := existing(p, name(maxIdx)); ok {
		if err := os.Remove(old); err != nil {
			return pruned, err
		}
		pruned = append(pruned, old)
	}
	for i := maxIdx - 1; i >= minIdx; i-- {
		old, ok := existing(p, name(i))
		if !ok {
			continue
		}
		if err := os.Rename(old, sameForm(p, old, name(i+1))); err != nil {
			return pruned, err
		}
	}
	return pruned, nil
}

// shiftDown 序号越大越新：有空位时用下一个序号；窗口满时删除 min，i → i-1
func (s *DefaultRolloverStrategy) shiftDown(name func(int) string, p *FilePattern, minIdx, maxIdx int) (string, []string, error) {
	highest := minIdx - 1
	for i := maxIdx; i >= minIdx; i-- {
		if _, ok := existing(p, name(i)); ok {
			highest = i
			break
		}
	}
	if highest < maxIdx {
		return name(highest + 1), nil, nil
	}

	var pruned []string
	if old, ok := existing(p, name(minIdx)); ok {
		if err := os.Remove(old); err != nil {
			return "", pruned, err
		}
		pruned = append(pruned, old)
	}
	for i := minIdx + 1; i <= maxIdx; i++ {
		old, ok := existing(p, name(i))
		if !ok {
			continue
		}
		if err := os.Rename(old, sameForm(p, old, name(i-1))); err != nil {
			return "", pruned, err
		}
	}
	return name(maxIdx), pruned, nil
}

// existing 返回 name 的压缩或未压缩形式中存在的那一个
func existing(p *FilePattern, name string) (string, bool) {
	if exists(name) {
		return name, true
	}
	if plain := p.Plain(name); plain != name && exists(plain) {
		return plain, true
	}
	return "", false
}

// sameForm 让目标名与 old 保持相同的压缩形式
func sameForm(p *FilePattern, old, target string) string {
	if p.Plain(old) == old {
		return p.Plain(target)
	}
	return target
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}
