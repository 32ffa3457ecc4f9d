// Package jailproc forks the jailer into a new PID namespace with a raw
// clone(2) call (bypassing os/exec's fork+exec wrapper, which would pull
// in CLONE_VM semantics this jailer cannot use), persists the resulting
// PID to a file, and finally execs the target binary in place of the
// jailer's own image.
package jailproc

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/coolguy741/go-jailer/internal/jailerr"
)

// ForkIntoPidNS performs a raw clone(2) with CLONE_NEWPID and no
// CLONE_VM, so the child gets PID 1 in a fresh PID namespace and an
// independent address space, matching
// env.rs::exec_into_new_pid_ns's private clone helper.
//
// In the parent, it returns the child's PID (as seen from the parent's
// own PID namespace) and isChild=false. In the child, it returns
// isChild=true and pid=0; the caller must not return through any of its
// own deferred cleanup meant for the parent.
func ForkIntoPidNS() (pid int, isChild bool, err error) {
	ret, _, errno := unix.RawSyscall(unix.SYS_CLONE, uintptr(unix.SIGCHLD|unix.CLONE_NEWPID), 0, 0)
	if errno != 0 {
		return 0, false, jailerr.New(jailerr.KindProcess, "clone", errno)
	}
	if int(ret) == 0 {
		return 0, true, nil
	}
	return int(ret), false, nil
}

// SavePIDFile writes pid, as a decimal string, to a new file at path.
// The file must not already exist, matching
// env.rs::save_exec_file_pid's OpenOptions::create_new semantics.
func SavePIDFile(path string, pid int) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return jailerr.WithPath(jailerr.KindFilesystem, "create pid file", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(strconv.Itoa(pid)); err != nil {
		return jailerr.WithPath(jailerr.KindFilesystem, "write pid file", path, err)
	}
	return nil
}

// MonotonicMicros reads CLOCK_MONOTONIC in microseconds, matching
// env.rs::get_time_us(ClockType::Monotonic) at jailer startup.
func MonotonicMicros() (int64, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0, jailerr.New(jailerr.KindProcess, "clock_gettime monotonic", err)
	}
	return ts.Sec*1_000_000 + int64(ts.Nsec)/1_000, nil
}

// ProcessCPUMicros returns the calling process's total user+system CPU
// time in microseconds, matching
// env.rs::get_time_us(ClockType::ProcessCpu).
func ProcessCPUMicros() (int64, error) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0, jailerr.New(jailerr.KindProcess, "getrusage", err)
	}
	userUS := ru.Utime.Sec*1_000_000 + int64(ru.Utime.Usec)
	sysUS := ru.Stime.Sec*1_000_000 + int64(ru.Stime.Usec)
	return userUS + sysUS, nil
}

// dropPrivileges sets the real, effective, and saved gid and uid to
// gid/uid, matching env.rs::exec_command's Command::uid/gid, which the
// standard library applies to the child right before the exec that
// replaces its image. Gid is dropped before uid: once uid is no longer
// privileged, a later setresgid would itself fail.
func dropPrivileges(uid, gid int) error {
	if err := unix.Setresgid(gid, gid, gid); err != nil {
		return jailerr.New(jailerr.KindProcess, "setresgid", err)
	}
	if err := unix.Setresuid(uid, uid, uid); err != nil {
		return jailerr.New(jailerr.KindProcess, "setresuid", err)
	}
	return nil
}

// ExecInto drops privileges to uid/gid and replaces the calling
// process's image with argv[0], matching env.rs::exec_command. It never
// returns on success.
func ExecInto(argv []string, env []string, uid, gid int) error {
	if len(argv) == 0 {
		return jailerr.New(jailerr.KindProcess, "exec", fmt.Errorf("empty argv"))
	}
	path, err := lookupBinary(argv[0])
	if err != nil {
		return jailerr.WithPath(jailerr.KindProcess, "resolve exec target", argv[0], err)
	}
	if err := dropPrivileges(uid, gid); err != nil {
		return err
	}
	if err := unix.Exec(path, argv, env); err != nil {
		return jailerr.WithPath(jailerr.KindProcess, "exec", path, err)
	}
	return nil
}

func lookupBinary(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty exec target")
	}
	if name[0] == '/' {
		return name, nil
	}
	return "./" + name, nil
}
