package utils

import (
	"os"

	"golang.org/x/sys/unix"
)

// IOCtl はファイルに対して整数引数のioctlを発行する
func IOCtl(f *os.File, req, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), req, arg)
	if errno != 0 {
		return errno
	}
	return nil
}
