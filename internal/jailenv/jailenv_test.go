package jailenv

import (
	"os"
	"path/filepath"
	"testing"
)

func writableExec(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "firecracker")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseHappyPath(t *testing.T) {
	exec := writableExec(t)
	chrootBase := t.TempDir()
	plan, err := Parse([]string{
		"--id", "test-jail-1",
		"--exec-file", exec,
		"--chroot-base-dir", chrootBase,
		"--uid", "123",
		"--gid", "100",
		"--cgroup", "cpuset.mems=0",
		"--resource-limit", "fsize=2048",
		"--macvtap", "tap0",
		"--",
		"--extra-flag", "value",
	}, 1000, 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.ID != "test-jail-1" {
		t.Errorf("ID = %q, want test-jail-1", plan.ID)
	}
	if plan.UID != 123 || plan.GID != 100 {
		t.Errorf("UID/GID = %d/%d, want 123/100", plan.UID, plan.GID)
	}
	if plan.ParentCgroup != filepath.Base(plan.ExecFile) {
		t.Errorf("ParentCgroup = %q, want defaulted to exec basename %q", plan.ParentCgroup, filepath.Base(plan.ExecFile))
	}
	if len(plan.Cgroups) != 1 || plan.Cgroups[0].File != "cpuset.mems" {
		t.Errorf("Cgroups = %+v, want one cpuset.mems entry", plan.Cgroups)
	}
	if len(plan.ResourceLimits) != 1 || plan.ResourceLimits[0].Resource != "fsize" {
		t.Errorf("ResourceLimits = %+v, want one fsize entry", plan.ResourceLimits)
	}
	if len(plan.Macvtaps) != 1 || plan.Macvtaps[0] != "tap0" {
		t.Errorf("Macvtaps = %v, want [tap0]", plan.Macvtaps)
	}
	if len(plan.ExtraArgs) != 2 || plan.ExtraArgs[0] != "--extra-flag" {
		t.Errorf("ExtraArgs = %v, want [--extra-flag value]", plan.ExtraArgs)
	}
	if plan.StartTimeUS != 1000 || plan.StartTimeCPUUS != 500 {
		t.Errorf("StartTimeUS/StartTimeCPUUS = %d/%d, want 1000/500", plan.StartTimeUS, plan.StartTimeCPUUS)
	}
}

func TestParseRejectsMissingID(t *testing.T) {
	exec := writableExec(t)
	_, err := Parse([]string{"--exec-file", exec, "--chroot-base-dir", t.TempDir(), "--uid", "1", "--gid", "1"}, 0, 0)
	if err == nil {
		t.Fatal("expected error for missing --id")
	}
}

func TestParseRejectsMissingUID(t *testing.T) {
	exec := writableExec(t)
	_, err := Parse([]string{"--id", "abc", "--exec-file", exec, "--chroot-base-dir", t.TempDir(), "--gid", "1"}, 0, 0)
	if err == nil {
		t.Fatal("expected error for missing --uid")
	}
}

func TestParseRejectsExecFileWithoutFirecrackerBasename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vmm")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}
	_, err := Parse([]string{"--id", "abc", "--exec-file", path, "--chroot-base-dir", t.TempDir(), "--uid", "1", "--gid", "1"}, 0, 0)
	if err == nil {
		t.Fatal("expected error for an exec file basename without \"firecracker\"")
	}
}

func TestParseRejectsInvalidCgroupVersion(t *testing.T) {
	exec := writableExec(t)
	_, err := Parse([]string{
		"--id", "abc", "--exec-file", exec, "--chroot-base-dir", t.TempDir(), "--uid", "1", "--gid", "1",
		"--cgroup-version", "3",
	}, 0, 0)
	if err == nil {
		t.Fatal("expected error for invalid --cgroup-version")
	}
}

func TestParseRejectsMalformedCgroupArgument(t *testing.T) {
	exec := writableExec(t)
	_, err := Parse([]string{
		"--id", "abc", "--exec-file", exec, "--chroot-base-dir", t.TempDir(), "--uid", "1", "--gid", "1",
		"--cgroup", "cpuset.cpus=",
	}, 0, 0)
	if err == nil {
		t.Fatal("expected error for empty cgroup value")
	}
}

func TestParseRejectsInvalidParentCgroup(t *testing.T) {
	exec := writableExec(t)
	_, err := Parse([]string{
		"--id", "abc", "--exec-file", exec, "--chroot-base-dir", t.TempDir(), "--uid", "1", "--gid", "1",
		"--parent-cgroup", "/root",
	}, 0, 0)
	if err == nil {
		t.Fatal("expected error for a root-anchored --parent-cgroup")
	}
}

func TestParseRejectsNonexistentChrootBaseDir(t *testing.T) {
	exec := writableExec(t)
	_, err := Parse([]string{
		"--id", "abc", "--exec-file", exec, "--uid", "1", "--gid", "1",
		"--chroot-base-dir", "/no/such/chroot/base/e2e9f3",
	}, 0, 0)
	if err == nil {
		t.Fatal("expected error for a nonexistent --chroot-base-dir")
	}
}

func TestChrootRootLayout(t *testing.T) {
	p := &Plan{ChrootBaseDir: "/srv/jailer", ExecFile: "/usr/bin/firecracker", ID: "my-id"}
	want := filepath.Join("/srv/jailer", "firecracker", "my-id", "root")
	if got := p.ChrootRoot(); got != want {
		t.Fatalf("ChrootRoot() = %q, want %q", got, want)
	}
}
