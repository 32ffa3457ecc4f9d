// Command jailer builds a chroot, joins an existing network namespace,
// applies cgroup and resource-limit constraints, forks into a fresh PID
// namespace, and execs a target binary in place of itself, the
// single-shot process-jailing driver described in this module's design
// notes.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/coolguy741/go-jailer/internal/cgroup"
	"github.com/coolguy741/go-jailer/internal/jailenv"
	"github.com/coolguy741/go-jailer/internal/jailfs"
	"github.com/coolguy741/go-jailer/internal/jailns"
	"github.com/coolguy741/go-jailer/internal/jailproc"
	"github.com/coolguy741/go-jailer/internal/macvtap"
	"github.com/coolguy741/go-jailer/internal/rlimit"
	"github.com/coolguy741/go-jailer/internal/sanitize"
)

func main() {
	// Must be the very first action: close inherited fds and clear the
	// environment before anything else runs.
	sanitize.Process()

	startTimeUS, err := jailproc.MonotonicMicros()
	if err != nil {
		logrus.WithError(err).Fatal("failed to read startup clock")
	}
	startTimeCPUUS, err := jailproc.ProcessCPUMicros()
	if err != nil {
		logrus.WithError(err).Fatal("failed to read startup CPU clock")
	}

	plan, err := jailenv.Parse(os.Args[1:], startTimeUS, startTimeCPUUS)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			// pflag has already printed the usage text.
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := os.MkdirAll(plan.ChrootRoot(), 0700); err != nil {
		logrus.WithError(err).Fatal("failed to create chroot root")
	}

	if err := run(plan); err != nil {
		logrus.WithError(err).Fatal("jailer run failed")
	}
}

// run follows the jailer's fixed master order: the exec file is copied
// into the chroot while paths still resolve against the host
// filesystem, then resource limits, cgroups, netns, and macvtap
// resolution all apply to the still-unforked process (and are inherited
// across the later clone); only then does the process fork into a new
// PID namespace, chroot, populate /dev, optionally daemonize, and exec.
func run(plan *jailenv.Plan) error {
	log := logrus.WithField("id", plan.ID)

	root := plan.ChrootRoot()
	destExecName, err := jailfs.CopyExecToChroot(plan.ExecFile, root)
	if err != nil {
		return err
	}
	destExecName = "/" + filepath.Base(destExecName)

	if len(plan.ResourceLimits) > 0 {
		log.Debug("applying resource limits")
		if err := rlimit.Apply(os.Getpid(), plan.ResourceLimits); err != nil {
			return err
		}
	}

	writer := cgroup.NewWriter(plan.CgroupVersion, plan.ParentCgroup)
	if len(plan.Cgroups) > 0 {
		log.Debug("writing cgroup values")
		if err := writer.WriteAll(plan.Cgroups); err != nil {
			return err
		}
		if err := writer.AttachPID(cgroupControllers(plan.Cgroups), os.Getpid()); err != nil {
			return err
		}
	}

	if plan.NetNS != "" {
		log.WithField("netns", plan.NetNS).Debug("joining network namespace")
		if err := jailns.JoinNetNS(plan.NetNS); err != nil {
			return err
		}
	}

	var ifaces []macvtap.Iface
	if len(plan.Macvtaps) > 0 {
		log.WithField("interfaces", plan.Macvtaps).Debug("resolving macvtap interfaces")
		resolved, err := macvtap.ResolveAll(plan.Macvtaps)
		if err != nil {
			log.WithError(err).Warn("macvtap resolution failed, continuing without it")
		} else {
			ifaces = resolved
		}
	}

	devNull, err := openDevNull()
	if err != nil {
		return err
	}
	defer devNull.Close()

	pidFilePath := filepath.Base(plan.ExecFile) + ".pid"

	childPID := os.Getpid()
	isChild := true
	startTimeCPUUS := plan.StartTimeCPUUS
	var jailerCPUTimeUS int64
	if plan.NewPidNS {
		nowCPU, cerr := jailproc.ProcessCPUMicros()
		if cerr != nil {
			return cerr
		}
		jailerCPUTimeUS = nowCPU - plan.StartTimeCPUUS

		pid, forkedIsChild, ferr := jailproc.ForkIntoPidNS()
		if ferr != nil {
			return ferr
		}
		childPID = pid
		isChild = forkedIsChild
		if isChild {
			startTimeCPUUS = 0
		}
	}

	if !isChild {
		// The parent's only remaining job is to record the child's pid,
		// in its own (unchrooted) working directory, and exit.
		return jailproc.SavePIDFile(pidFilePath, childPID)
	}

	if !plan.NewPidNS {
		if err := jailproc.SavePIDFile(pidFilePath, childPID); err != nil {
			return err
		}
	}

	if err := jailns.Chroot(root); err != nil {
		return err
	}

	if err := jailfs.SetupJailedFolder("/", plan.UID, plan.GID); err != nil {
		return err
	}
	if err := jailfs.MknodAndOwnDev("/", plan.UID, plan.GID, jailfs.DefaultDevices); err != nil {
		return err
	}
	for _, iface := range ifaces {
		dev := jailfs.DeviceSpec{Name: "net/" + iface.IfName, Major: iface.Mknod.Major, Minor: iface.Mknod.Minor, Fatal: false, FileMode: 0600}
		if err := jailfs.MknodAndOwnDev("/", plan.UID, plan.GID, []jailfs.DeviceSpec{dev}); err != nil {
			log.WithError(err).WithField("interface", iface.IfName).Warn("failed to mknod macvtap device, continuing")
		}
	}

	if plan.Daemonize {
		if err := daemonize(devNull); err != nil {
			return err
		}
	}

	argv := []string{
		destExecName,
		"--id", plan.ID,
		"--start-time-us", strconv.FormatInt(plan.StartTimeUS, 10),
		"--start-time-cpu-us", strconv.FormatInt(startTimeCPUUS, 10),
		"--parent-cpu-time-us", strconv.FormatInt(jailerCPUTimeUS, 10),
	}
	argv = append(argv, plan.ExtraArgs...)
	return jailproc.ExecInto(argv, os.Environ(), plan.UID, plan.GID)
}

// cgroupControllers returns the distinct set of controllers the parsed
// cgroup values touch, in first-seen order, for the attach_pid pass.
func cgroupControllers(values []cgroup.Value) []string {
	seen := make(map[string]bool, len(values))
	var controllers []string
	for _, v := range values {
		if !seen[v.Controller] {
			seen[v.Controller] = true
			controllers = append(controllers, v.Controller)
		}
	}
	return controllers
}
