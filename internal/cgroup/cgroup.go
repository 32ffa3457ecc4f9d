// Package cgroup implements the jailer's Cgroup capability: resolving
// the v1 or v2 cgroupfs mount for a controller and writing the
// <file>=<value> pairs the CLI accepts into it, then attaching the
// jailed PID, following the write-everything-then-attach-everything
// ordering the jailer's run pipeline requires.
package cgroup

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/coolguy741/go-jailer/internal/jailerr"
)

// Value is one parsed "<file>=<value>" cgroup argument, e.g.
// "cpuset.mems=0" or "cpu.shares=2" for a named parent_cgroup slice.
type Value struct {
	Controller string // derived from the file's first dot-delimited segment, e.g. "cpuset"
	File       string // e.g. "cpuset.mems"
	Val        string
}

// ParseValue splits a raw "<file>=<value>" CLI argument into a Value,
// rejecting an empty file name, empty value, or a file with no
// controller prefix.
func ParseValue(raw string) (Value, error) {
	eq := strings.IndexByte(raw, '=')
	if eq <= 0 || eq == len(raw)-1 {
		return Value{}, jailerr.New(jailerr.KindParse, "parse cgroup argument", fmt.Errorf("malformed cgroup value %q, want <file>=<value>", raw))
	}
	file := raw[:eq]
	val := raw[eq+1:]

	if err := validateFileComponents(file); err != nil {
		return Value{}, jailerr.New(jailerr.KindParse, "parse cgroup argument", err)
	}

	dot := strings.IndexByte(file, '.')
	if dot <= 0 {
		return Value{}, jailerr.New(jailerr.KindParse, "parse cgroup argument", fmt.Errorf("cgroup file %q has no controller prefix", file))
	}

	return Value{Controller: file[:dot], File: file, Val: val}, nil
}

// validateFileComponents rejects a cgroup file argument that is
// root-anchored or carries a "." or ".." path component, which would
// otherwise let writeValue's filepath.Join escape the cgroup directory.
func validateFileComponents(file string) error {
	if strings.HasPrefix(file, "/") {
		return fmt.Errorf("cgroup file %q must not be root-anchored", file)
	}
	for _, part := range strings.Split(file, "/") {
		if part == "." || part == ".." || part == "" {
			return fmt.Errorf("cgroup file %q must not contain \".\" or \"..\" components", file)
		}
	}
	return nil
}

// Version identifies which cgroup hierarchy a parent_cgroup path lives
// under.
type Version int

const (
	V1 Version = iota
	V2
)

// Mount is a resolved cgroup mount point a Value's file should be
// written beneath.
type Mount struct {
	Version Version
	Root    string // e.g. "/sys/fs/cgroup/cpuset" (v1) or "/sys/fs/cgroup" (v2)
}

// DiscoverV1 parses /proc/mounts for a cgroup v1 mount exposing
// controller, returning its mount root.
func DiscoverV1(controller string) (Mount, error) {
	return discoverV1At("/proc/mounts", controller)
}

func discoverV1At(mountsPath, controller string) (Mount, error) {
	f, err := os.Open(mountsPath)
	if err != nil {
		return Mount{}, jailerr.WithPath(jailerr.KindFilesystem, "read mount table", mountsPath, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || fields[2] != "cgroup" {
			continue
		}
		opts := strings.Split(fields[3], ",")
		for _, opt := range opts {
			if opt == controller {
				return Mount{Version: V1, Root: fields[1]}, nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Mount{}, jailerr.WithPath(jailerr.KindFilesystem, "read mount table", mountsPath, err)
	}

	return Mount{}, jailerr.New(jailerr.KindFilesystem, "discover cgroup v1 mount", fmt.Errorf("no cgroup v1 mount for controller %q", controller))
}

const cgroupV2Root = "/sys/fs/cgroup"

// DiscoverV2 returns the unified cgroup v2 hierarchy root, verifying
// cgroup.controllers exists there.
func DiscoverV2() (Mount, error) {
	if _, err := os.Stat(filepath.Join(cgroupV2Root, "cgroup.controllers")); err != nil {
		return Mount{}, jailerr.WithPath(jailerr.KindFilesystem, "discover cgroup v2 mount", cgroupV2Root, err)
	}
	return Mount{Version: V2, Root: cgroupV2Root}, nil
}

// Writer orchestrates the two-pass write-value/attach-pid sequence the
// jailer's run pipeline requires: every declared cgroup value is written
// before any PID is attached to any cgroup.
type Writer struct {
	version      Version
	parentCgroup string

	// resolveMountFunc defaults to resolveMount; tests override it to
	// exercise the write/attach logic against a synthetic mount root
	// without a real cgroupfs present.
	resolveMountFunc func(controller string) (Mount, error)
}

// NewWriter builds a Writer for the given hierarchy version and the
// named parent cgroup slice (defaults to the exec file's own basename
// when the CLI omits --parent-cgroup).
func NewWriter(version Version, parentCgroup string) *Writer {
	w := &Writer{version: version, parentCgroup: parentCgroup}
	w.resolveMountFunc = w.resolveMount
	return w
}

// WriteAll resolves each value's controller mount and writes its file,
// concurrently: write order across distinct cgroup files is
// unobservable, only "every write precedes every attach" is contractual.
func (w *Writer) WriteAll(values []Value) error {
	var g errgroup.Group
	for _, v := range values {
		v := v
		g.Go(func() error { return w.writeValue(v) })
	}
	return g.Wait()
}

func (w *Writer) writeValue(v Value) error {
	mount, err := w.resolveMountFunc(v.Controller)
	if err != nil {
		return err
	}

	groupDir := filepath.Join(mount.Root, w.parentCgroup)
	if err := os.MkdirAll(groupDir, 0755); err != nil {
		return jailerr.WithPath(jailerr.KindFilesystem, "create cgroup directory", groupDir, err)
	}

	filePath := filepath.Join(groupDir, v.File)
	if err := os.WriteFile(filePath, []byte(v.Val), 0644); err != nil {
		return jailerr.WithPath(jailerr.KindFilesystem, "write cgroup value", filePath, err)
	}
	return nil
}

// AttachPID attaches pid to every controller's parent cgroup, in
// sequence: the attach order across controllers has no observable
// effect, so there is no benefit to parallelizing it.
func (w *Writer) AttachPID(controllers []string, pid int) error {
	for _, controller := range controllers {
		mount, err := w.resolveMountFunc(controller)
		if err != nil {
			return err
		}
		procsPath := filepath.Join(mount.Root, w.parentCgroup, "cgroup.procs")
		if err := os.WriteFile(procsPath, []byte(strconv.Itoa(pid)), 0644); err != nil {
			return jailerr.WithPath(jailerr.KindFilesystem, "attach pid to cgroup", procsPath, err)
		}
	}
	return nil
}

func (w *Writer) resolveMount(controller string) (Mount, error) {
	if w.version == V2 {
		return DiscoverV2()
	}
	return DiscoverV1(controller)
}
