// Package jailercmd is a client-side library for callers that want to
// invoke the cmd/jailer binary as a subprocess rather than link its
// internal packages directly, the Go analogue of
// firecracker-go-sdk's own JailerCommandBuilder.
package jailercmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/hashicorp/go-multierror"
)

// CommandBuilder assembles an *exec.Cmd that runs the jailer binary with
// a validated argument set, following the fluent builder shape
// firecracker-go-sdk's jailer.go uses.
type CommandBuilder struct {
	bin            string
	id             string
	execFile       string
	chrootBaseDir  string
	uid            int
	gid            int
	netns          string
	daemonize      bool
	newPidNS       bool
	numaNode       *int
	parentCgroup   string
	cgroupVersion  int
	cgroups        []string
	resourceLimits []string
	macvtaps       []string
	extraArgs      []string

	chrootRoot string // set by Build, read back by Finish
}

// NewCommandBuilder returns a CommandBuilder that invokes bin (typically
// an absolute path to the built jailer binary).
func NewCommandBuilder(bin string) CommandBuilder {
	return CommandBuilder{bin: bin, cgroupVersion: 1}
}

func (b CommandBuilder) WithID(id string) CommandBuilder                { b.id = id; return b }
func (b CommandBuilder) WithExecFile(path string) CommandBuilder        { b.execFile = path; return b }
func (b CommandBuilder) WithChrootBaseDir(dir string) CommandBuilder    { b.chrootBaseDir = dir; return b }
func (b CommandBuilder) WithUID(uid int) CommandBuilder                 { b.uid = uid; return b }
func (b CommandBuilder) WithGID(gid int) CommandBuilder                 { b.gid = gid; return b }
func (b CommandBuilder) WithNetNS(path string) CommandBuilder           { b.netns = path; return b }
func (b CommandBuilder) WithDaemonize(on bool) CommandBuilder           { b.daemonize = on; return b }
func (b CommandBuilder) WithNewPidNS(on bool) CommandBuilder            { b.newPidNS = on; return b }
func (b CommandBuilder) WithCgroupVersion(v int) CommandBuilder         { b.cgroupVersion = v; return b }
func (b CommandBuilder) WithParentCgroup(name string) CommandBuilder    { b.parentCgroup = name; return b }

// WithNumaNode passes --node to the jailer, which records the value in
// its Plan; the jailer does not pin the process to that node.
func (b CommandBuilder) WithNumaNode(node int) CommandBuilder {
	b.numaNode = &node
	return b
}

// WithCgroup appends a "<file>=<value>" cgroup argument.
func (b CommandBuilder) WithCgroup(value string) CommandBuilder {
	b.cgroups = append(append([]string{}, b.cgroups...), value)
	return b
}

// WithResourceLimit appends a "<resource>=<value>" rlimit argument.
func (b CommandBuilder) WithResourceLimit(value string) CommandBuilder {
	b.resourceLimits = append(append([]string{}, b.resourceLimits...), value)
	return b
}

// WithMacvtap declares a macvtap interface the jailer should resolve and
// recreate inside the chroot before exec.
func (b CommandBuilder) WithMacvtap(name string) CommandBuilder {
	b.macvtaps = append(append([]string{}, b.macvtaps...), name)
	return b
}

// WithExtraArgs sets the arguments passed through to the jailed command
// after "--".
func (b CommandBuilder) WithExtraArgs(args ...string) CommandBuilder {
	b.extraArgs = args
	return b
}

// Args renders the full jailer argv (excluding argv[0]), mirroring the
// teacher's own GetJailerArgs.
func (b CommandBuilder) Args() ([]string, error) {
	if b.id == "" {
		return nil, fmt.Errorf("jailercmd: id is required")
	}
	if b.execFile == "" {
		return nil, fmt.Errorf("jailercmd: exec file is required")
	}

	args := []string{
		"--id", b.id,
		"--exec-file", b.execFile,
	}
	if b.chrootBaseDir != "" {
		args = append(args, "--chroot-base-dir", b.chrootBaseDir)
	}
	args = append(args, "--uid", strconv.Itoa(b.uid), "--gid", strconv.Itoa(b.gid))
	if b.netns != "" {
		args = append(args, "--netns", b.netns)
	}
	if b.daemonize {
		args = append(args, "--daemonize")
	}
	if b.newPidNS {
		args = append(args, "--new-pid-ns")
	}
	if b.numaNode != nil {
		args = append(args, "--node", strconv.Itoa(*b.numaNode))
	}
	if b.parentCgroup != "" {
		args = append(args, "--parent-cgroup", b.parentCgroup)
	}
	if b.cgroupVersion != 0 {
		args = append(args, "--cgroup-version", strconv.Itoa(b.cgroupVersion))
	}
	for _, c := range b.cgroups {
		args = append(args, "--cgroup", c)
	}
	for _, r := range b.resourceLimits {
		args = append(args, "--resource-limit", r)
	}
	for _, m := range b.macvtaps {
		args = append(args, "--macvtap", m)
	}

	if len(b.extraArgs) > 0 {
		args = append(args, "--")
		args = append(args, b.extraArgs...)
	}

	return args, nil
}

// Build validates the builder and returns an *exec.Cmd ready to Run or
// Start. It also records the chroot root the jailer will create, which
// ChrootRoot returns and Finish later removes.
func (b *CommandBuilder) Build(ctx context.Context) (*exec.Cmd, error) {
	args, err := b.Args()
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, b.bin, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	base := b.chrootBaseDir
	if base == "" {
		base = "/srv/jailer"
	}
	b.chrootRoot = base + "/" + execFileBase(b.execFile) + "/" + b.id + "/root"

	return cmd, nil
}

// ChrootRoot returns the chroot root the most recent Build computed.
// Valid only after Build has been called.
func (b *CommandBuilder) ChrootRoot() string { return b.chrootRoot }

// Finish tears down the chroot tree Build's jailer invocation created,
// aggregating every cleanup error it encounters rather than stopping at
// the first one, mirroring the Finish handler in
// firecracker-go-sdk's own jailer.go.
func (b *CommandBuilder) Finish() error {
	if b.chrootRoot == "" {
		return nil
	}

	var result *multierror.Error
	if err := os.RemoveAll(b.chrootRoot); err != nil {
		result = multierror.Append(result, fmt.Errorf("remove chroot root %s: %w", b.chrootRoot, err))
	}
	return result.ErrorOrNil()
}

func execFileBase(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
