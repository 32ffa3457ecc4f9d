package main

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/coolguy741/go-jailer/internal/jailerr"
)

// openDevNull opens /dev/null before the chroot so its file descriptor
// stays valid regardless of what the new root looks like; daemonize
// itself (setsid + dup2) happens later, on the other side of chroot and
// the PID-namespace fork, immediately before exec.
func openDevNull() (*os.File, error) {
	f, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return nil, jailerr.WithPath(jailerr.KindProcess, "open /dev/null", os.DevNull, err)
	}
	return f, nil
}

// daemonize detaches the process from its controlling terminal: it
// starts a new session and redirects stdin/stdout/stderr to devNull,
// which must have been opened before any chroot took place.
func daemonize(devNull *os.File) error {
	if _, err := unix.Setsid(); err != nil {
		return jailerr.New(jailerr.KindProcess, "setsid", err)
	}

	fd := int(devNull.Fd())
	for _, target := range []int{0, 1, 2} {
		if err := unix.Dup2(fd, target); err != nil {
			return jailerr.New(jailerr.KindProcess, "dup2 /dev/null", err)
		}
	}
	return nil
}
