package xjournal

import "errors"

var (
	// ErrEmptyDir 未提供目录
	ErrEmptyDir = errors.New("xjournal: empty directory")

	// ErrInvalidName Journal 名称非法
	ErrInvalidName = errors.New("xjournal: invalid journal name")

	// ErrJournalInUse Journal 已被打开
	ErrJournalInUse = errors.New("xjournal: journal already open")

	// ErrClosed Env 或 Journal 已关闭
	ErrClosed = errors.New("xjournal: closed")

	// ErrCorrupted 记录损坏（长度不足或校验和不匹配）
	ErrCorrupted = errors.New("xjournal: corrupted record")
)
