// Package jailfs prepares the jailed filesystem tree: copying the
// target executable into the chroot, creating the jail's root directory
// with the right owner/mode, and recreating the handful of device nodes
// the jailed process needs.
package jailfs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/coolguy741/go-jailer/internal/jailerr"
	"github.com/coolguy741/go-jailer/internal/pathutil"
)

// requiredExecFileSubstring is the mandatory basename fragment every
// jailed exec file must carry, matching env.rs::validate_exec_file_path.
const requiredExecFileSubstring = "firecracker"

// DeviceSpec describes one device node the jailed chroot needs under
// /dev, and whether a failure to create it is fatal.
type DeviceSpec struct {
	Name     string
	Major    uint32
	Minor    uint32
	Fatal    bool
	FileMode os.FileMode
}

// DefaultDevices is the jailer's fixed device table: /dev/net/tun and
// /dev/kvm are required, /dev/urandom is created best-effort.
var DefaultDevices = []DeviceSpec{
	{Name: "net/tun", Major: 10, Minor: 200, Fatal: true, FileMode: 0600},
	{Name: "kvm", Major: 10, Minor: 232, Fatal: true, FileMode: 0600},
	{Name: "urandom", Major: 1, Minor: 9, Fatal: false, FileMode: 0600},
}

// SetupJailedFolder creates root (mode 0700) owned by uid/gid and its
// /dev subdirectory, matching env.rs::setup_jailed_folder.
func SetupJailedFolder(root string, uid, gid int) error {
	if err := os.MkdirAll(root, 0700); err != nil {
		return jailerr.WithPath(jailerr.KindFilesystem, "create jail root", root, err)
	}
	if err := os.Chmod(root, 0700); err != nil {
		return jailerr.WithPath(jailerr.KindFilesystem, "chmod jail root", root, err)
	}
	if err := unix.Chown(root, uid, gid); err != nil {
		return jailerr.WithPath(jailerr.KindFilesystem, "chown jail root", root, err)
	}

	devDir := filepath.Join(root, "dev")
	if err := os.MkdirAll(devDir, 0755); err != nil {
		return jailerr.WithPath(jailerr.KindFilesystem, "create jail dev directory", devDir, err)
	}
	return nil
}

// MknodAndOwnDev recreates every device in devices under root/dev,
// chowning each to uid/gid. A failure on a non-fatal device
// (urandom) is logged and swallowed; a failure on a fatal device is
// returned, matching env.rs::mknod_and_own_dev.
func MknodAndOwnDev(root string, uid, gid int, devices []DeviceSpec) error {
	for _, dev := range devices {
		path, err := pathutil.JoinChroot(root, filepath.Join("dev", dev.Name))
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			if dev.Fatal {
				return jailerr.WithPath(jailerr.KindFilesystem, "create device parent directory", path, err)
			}
			logrus.WithError(err).WithField("device", dev.Name).Warn("failed to create device parent directory, continuing")
			continue
		}

		devT := unix.Mkdev(dev.Major, dev.Minor)
		err = unix.Mknod(path, uint32(dev.FileMode)|unix.S_IFCHR, int(devT))
		if err != nil {
			if dev.Fatal {
				return jailerr.WithPath(jailerr.KindDevice, "mknod", path, err)
			}
			logrus.WithError(err).WithField("device", dev.Name).Warn("failed to mknod device, continuing best-effort")
			continue
		}

		if err := unix.Chown(path, uid, gid); err != nil {
			if dev.Fatal {
				return jailerr.WithPath(jailerr.KindDevice, "chown device", path, err)
			}
			logrus.WithError(err).WithField("device", dev.Name).Warn("failed to chown device, continuing best-effort")
		}
	}
	return nil
}

// CopyExecToChroot copies the file at execPath into root, preserving its
// base name and execute permissions, matching
// env.rs::copy_exec_to_chroot.
func CopyExecToChroot(execPath, root string) (string, error) {
	src, err := os.Open(execPath)
	if err != nil {
		return "", jailerr.WithPath(jailerr.KindFilesystem, "open exec file", execPath, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return "", jailerr.WithPath(jailerr.KindFilesystem, "stat exec file", execPath, err)
	}

	destPath, err := pathutil.JoinChroot(root, filepath.Base(execPath))
	if err != nil {
		return "", err
	}
	dst, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return "", jailerr.WithPath(jailerr.KindFilesystem, "create exec file in chroot", destPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", jailerr.WithPath(jailerr.KindFilesystem, "copy exec file into chroot", destPath, err)
	}

	return destPath, nil
}

// ValidateExecFile canonicalizes path, checks that it names a regular
// file whose basename contains "firecracker", and returns the
// canonicalized path, matching env.rs::validate_exec_file_path's
// canonicalize-then-check sequence.
func ValidateExecFile(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return "", jailerr.WithPath(jailerr.KindParse, "validate exec file", path, fmt.Errorf("exec file path must be absolute"))
	}
	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", jailerr.WithPath(jailerr.KindFilesystem, "canonicalize exec file", path, err)
	}
	info, err := os.Stat(real)
	if err != nil {
		return "", jailerr.WithPath(jailerr.KindFilesystem, "validate exec file", real, err)
	}
	if !info.Mode().IsRegular() {
		return "", jailerr.WithPath(jailerr.KindFilesystem, "validate exec file", real, fmt.Errorf("exec file path is not a regular file"))
	}
	if !strings.Contains(filepath.Base(real), requiredExecFileSubstring) {
		return "", jailerr.WithPath(jailerr.KindParse, "validate exec file", real, fmt.Errorf("exec file basename must contain %q", requiredExecFileSubstring))
	}
	return real, nil
}
