// Package jailenv parses the jailer's CLI surface into an immutable
// Plan, the Go analogue of the jailer's Env struct: a single validated
// snapshot of everything run() needs, built once at startup and never
// mutated afterward.
package jailenv

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/coolguy741/go-jailer/internal/cgroup"
	"github.com/coolguy741/go-jailer/internal/jailerr"
	"github.com/coolguy741/go-jailer/internal/jailfs"
	"github.com/coolguy741/go-jailer/internal/rlimit"
)

// Plan is the fully-parsed, validated jail configuration. Every field is
// set once by Parse and never mutated afterward.
type Plan struct {
	ID             string
	ExecFile       string
	ChrootBaseDir  string
	UID            int
	GID            int
	NetNS          string
	Daemonize      bool
	NewPidNS       bool
	NumaNode       *int
	ParentCgroup   string
	CgroupVersion  cgroup.Version
	Cgroups        []cgroup.Value
	ResourceLimits []rlimit.Limit
	Macvtaps       []string
	ExtraArgs      []string
	StartTimeUS    int64
	StartTimeCPUUS int64
}

var idPattern = regexp.MustCompile(`^[0-9A-Za-z-]{1,64}$`)

// Parse builds a Plan from args (typically os.Args[1:]), matching
// env.rs::Env::new's validation order: id format, exec file, chroot
// base dir, cgroup arguments, resource limits, then parent_cgroup
// defaulting. startTimeUS and startTimeCPUUS are the monotonic and
// process-CPU clock readings the caller took at its own startup, before
// any argument parsing; they flow unchanged into the returned Plan.
func Parse(args []string, startTimeUS, startTimeCPUUS int64) (*Plan, error) {
	fs := pflag.NewFlagSet("jailer", pflag.ContinueOnError)

	id := fs.StringP("id", "i", "", "jail instance id")
	execFile := fs.StringP("exec-file", "e", "", "absolute path to the binary to jail and exec")
	chrootBaseDir := fs.String("chroot-base-dir", "/srv/jailer", "base directory under which the chroot is built")
	uid := fs.Int("uid", -1, "uid to own the jailed process and its chroot")
	gid := fs.Int("gid", -1, "gid to own the jailed process and its chroot")
	netns := fs.String("netns", "", "path to an existing network namespace to join")
	daemonize := fs.Bool("daemonize", false, "daemonize before exec")
	newPidNS := fs.Bool("new-pid-ns", false, "fork into a new PID namespace before exec")
	numaNode := fs.Int("node", -1, "NUMA node number, -1 for unset; recorded in the plan, the process is not pinned to it")
	parentCgroup := fs.String("parent-cgroup", "", "parent cgroup slice name, defaults to the exec file's basename")
	cgroupVersion := fs.Int("cgroup-version", 1, "cgroup hierarchy version to target, 1 or 2")
	cgroupArgs := fs.StringArray("cgroup", nil, "a <file>=<value> cgroup argument, repeatable")
	resourceLimitArgs := fs.StringArray("resource-limit", nil, "a <resource>=<value> rlimit argument, repeatable")
	macvtapArgs := fs.StringArray("macvtap", nil, "a MACVTAP interface name to expose inside the jail, repeatable")
	logFormat := fs.String("log-format", "text", "log output format: text or json")
	logLevel := fs.String("log-level", "info", "log level")

	if err := fs.Parse(args); err != nil {
		return nil, jailerr.New(jailerr.KindParse, "parse command line", err)
	}

	configureLogging(*logFormat, *logLevel)

	if *id == "" || !idPattern.MatchString(*id) {
		return nil, jailerr.New(jailerr.KindParse, "validate id", fmt.Errorf("--id is required and must match %s", idPattern.String()))
	}

	canonicalExecFile, err := jailfs.ValidateExecFile(*execFile)
	if err != nil {
		return nil, err
	}

	canonicalChrootBaseDir, err := validateChrootBaseDir(*chrootBaseDir)
	if err != nil {
		return nil, err
	}

	if *uid < 0 {
		return nil, jailerr.New(jailerr.KindParse, "validate uid", fmt.Errorf("--uid is required"))
	}
	if *gid < 0 {
		return nil, jailerr.New(jailerr.KindParse, "validate gid", fmt.Errorf("--gid is required"))
	}

	var version cgroup.Version
	switch *cgroupVersion {
	case 1:
		version = cgroup.V1
	case 2:
		version = cgroup.V2
	default:
		return nil, jailerr.New(jailerr.KindParse, "validate cgroup version", fmt.Errorf("--cgroup-version must be 1 or 2, got %d", *cgroupVersion))
	}

	cgroups := make([]cgroup.Value, 0, len(*cgroupArgs))
	for _, raw := range *cgroupArgs {
		v, err := cgroup.ParseValue(raw)
		if err != nil {
			return nil, err
		}
		cgroups = append(cgroups, v)
	}

	limits := make([]rlimit.Limit, 0, len(*resourceLimitArgs))
	for _, raw := range *resourceLimitArgs {
		l, err := rlimit.ParseLimit(raw)
		if err != nil {
			return nil, err
		}
		limits = append(limits, l)
	}

	resolvedParentCgroup := *parentCgroup
	if resolvedParentCgroup == "" {
		resolvedParentCgroup = filepath.Base(canonicalExecFile)
	}
	if err := validateParentCgroup(resolvedParentCgroup); err != nil {
		return nil, err
	}

	var numaPtr *int
	if *numaNode >= 0 {
		n := *numaNode
		numaPtr = &n
	}

	return &Plan{
		ID:             *id,
		ExecFile:       canonicalExecFile,
		ChrootBaseDir:  canonicalChrootBaseDir,
		UID:            *uid,
		GID:            *gid,
		NetNS:          *netns,
		Daemonize:      *daemonize,
		NewPidNS:       *newPidNS,
		NumaNode:       numaPtr,
		ParentCgroup:   resolvedParentCgroup,
		CgroupVersion:  version,
		Cgroups:        cgroups,
		ResourceLimits: limits,
		Macvtaps:       *macvtapArgs,
		ExtraArgs:      extraArgsAfterDash(fs),
		StartTimeUS:    startTimeUS,
		StartTimeCPUUS: startTimeCPUUS,
	}, nil
}

// validateChrootBaseDir canonicalizes dir and checks that it names an
// existing directory, matching env.rs::Env::new's canonicalize(chroot_base)
// step.
func validateChrootBaseDir(dir string) (string, error) {
	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return "", jailerr.WithPath(jailerr.KindFilesystem, "canonicalize chroot base dir", dir, err)
	}
	info, err := os.Stat(real)
	if err != nil {
		return "", jailerr.WithPath(jailerr.KindFilesystem, "validate chroot base dir", real, err)
	}
	if !info.IsDir() {
		return "", jailerr.WithPath(jailerr.KindFilesystem, "validate chroot base dir", real, fmt.Errorf("chroot base dir is not a directory"))
	}
	return real, nil
}

// validateParentCgroup rejects a parent cgroup slice name that is
// root-anchored or carries a "." or ".." path component, matching
// env.rs::Env::new's rejection of --parent-cgroup=/root.
func validateParentCgroup(name string) error {
	if strings.HasPrefix(name, "/") {
		return jailerr.New(jailerr.KindParse, "validate parent cgroup", fmt.Errorf("--parent-cgroup must not be root-anchored, got %q", name))
	}
	for _, part := range strings.Split(name, "/") {
		if part == "." || part == ".." || part == "" {
			return jailerr.New(jailerr.KindParse, "validate parent cgroup", fmt.Errorf("--parent-cgroup must not contain \".\" or \"..\" components, got %q", name))
		}
	}
	return nil
}

// extraArgsAfterDash returns the arguments following a literal "--"
// separator, matching env.rs's pass-through of the jailed command's own
// argv tail.
func extraArgsAfterDash(fs *pflag.FlagSet) []string {
	idx := fs.ArgsLenAtDash()
	if idx < 0 {
		return nil
	}
	args := fs.Args()
	if idx > len(args) {
		return nil
	}
	return args[idx:]
}

// ChrootRoot returns the jail's root directory:
// <chroot_base_dir>/<exec_file_basename>/<id>/root, matching the layout
// env.rs builds chroot paths with.
func (p *Plan) ChrootRoot() string {
	return filepath.Join(p.ChrootBaseDir, filepath.Base(p.ExecFile), p.ID, "root")
}

func configureLogging(format, level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
	if format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
