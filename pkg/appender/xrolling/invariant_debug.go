//go:build xsinkdebug

package xrolling

const strictInvariants = true
