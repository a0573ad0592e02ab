//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package xrolling

import (
	"os"

	"golang.org/x/sys/unix"
)

// lockFile 对活动文件加排他的 advisory 锁，跨进程串行化同一文件的写入
func lockFile(f *os.File) error {
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX)
		if err != unix.EINTR {
			return err
		}
	}
}

func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
