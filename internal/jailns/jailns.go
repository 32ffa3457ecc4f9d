// Package jailns manipulates Linux namespaces and mounts on behalf of
// the jailer: joining an existing network namespace, slaving mount
// propagation, and chrooting into the jailed filesystem.
package jailns

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/coolguy741/go-jailer/internal/jailerr"
	"github.com/coolguy741/go-jailer/internal/pathutil"
)

// JoinNetNS sets the calling thread's network namespace to the one at
// nsPath, then detaches the mount namespace and remounts /sys so its
// view reflects the newly joined network namespace, matching
// env.rs::join_netns's setns+unshare+remount sequence in full.
//
// Callers must invoke this before spawning any goroutine that performs
// networking, and ideally from a goroutine locked to its OS thread via
// runtime.LockOSThread, since setns only affects the calling thread.
func JoinNetNS(nsPath string) error {
	f, err := os.Open(nsPath)
	if err != nil {
		return jailerr.WithPath(jailerr.KindNamespace, "open network namespace", nsPath, err)
	}

	if err := unix.Setns(int(f.Fd()), unix.CLONE_NEWNET); err != nil {
		f.Close()
		return jailerr.WithPath(jailerr.KindNamespace, "join network namespace", nsPath, err)
	}
	if err := f.Close(); err != nil {
		return jailerr.WithPath(jailerr.KindNamespace, "close network namespace fd", nsPath, err)
	}

	// Disassociate from the parent's mount namespace so the /sys remount
	// below, and the chroot's own mount traffic later, stay local to
	// this process.
	if err := unix.Unshare(unix.CLONE_NEWNS); err != nil {
		return jailerr.New(jailerr.KindNamespace, "unshare mount namespace", err)
	}

	if err := SlaveMountPropagation(); err != nil {
		return err
	}

	return RemountSysfs()
}

// SlaveMountPropagation remounts "/" as MS_SLAVE|MS_REC so that the
// subsequent /sys remount, and the chroot's own mount/unmount
// operations, do not propagate back to the host's mount namespace.
func SlaveMountPropagation() error {
	if err := unix.Mount("", "/", "none", unix.MS_SLAVE|unix.MS_REC, ""); err != nil {
		return jailerr.WithPath(jailerr.KindNamespace, "slave mount propagation", "/", err)
	}
	return nil
}

// RemountSysfs unmounts the current /sys, which still describes the
// previous network namespace, and mounts a fresh one describing the
// namespace just joined.
func RemountSysfs() error {
	if err := unix.Unmount("/sys", unix.MNT_DETACH); err != nil && err != unix.EINVAL {
		return jailerr.WithPath(jailerr.KindNamespace, "unmount /sys", "/sys", err)
	}
	if err := unix.Mount("", "/sys", "sysfs", 0, ""); err != nil {
		return jailerr.WithPath(jailerr.KindNamespace, "mount /sys", "/sys", err)
	}
	return nil
}

// Chroot changes the process's root filesystem to root and its current
// directory to the new root, matching env.rs's chroot()+chdir("/") pair.
func Chroot(root string) error {
	if _, err := pathutil.ToCString(root); err != nil {
		return err
	}
	if err := unix.Chroot(root); err != nil {
		return jailerr.WithPath(jailerr.KindNamespace, "chroot", root, err)
	}
	if err := unix.Chdir("/"); err != nil {
		return jailerr.WithPath(jailerr.KindNamespace, "chdir", "/", err)
	}
	return nil
}
