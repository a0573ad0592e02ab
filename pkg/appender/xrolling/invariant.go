//go:build !xsinkdebug

package xrolling

// strictInvariants 为 true 时违反不变量直接 panic（-tags xsinkdebug）
const strictInvariants = false
