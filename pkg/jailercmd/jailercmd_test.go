package jailercmd

import (
	"context"
	"reflect"
	"testing"
)

func TestArgsRequiresID(t *testing.T) {
	b := NewCommandBuilder("/usr/bin/jailer").WithExecFile("/usr/bin/vmm")
	if _, err := b.Args(); err == nil {
		t.Fatal("expected error when id is unset")
	}
}

func TestArgsRequiresExecFile(t *testing.T) {
	b := NewCommandBuilder("/usr/bin/jailer").WithID("vm-1")
	if _, err := b.Args(); err == nil {
		t.Fatal("expected error when exec file is unset")
	}
}

func TestArgsHappyPath(t *testing.T) {
	b := NewCommandBuilder("/usr/bin/jailer").
		WithID("vm-1").
		WithExecFile("/usr/bin/firecracker").
		WithUID(123).
		WithGID(100).
		WithCgroup("cpuset.mems=0").
		WithMacvtap("tap0").
		WithExtraArgs("--api-sock", "/run/api.sock")

	args, err := b.Args()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		"--id", "vm-1",
		"--exec-file", "/usr/bin/firecracker",
		"--uid", "123", "--gid", "100",
		"--cgroup-version", "1",
		"--cgroup", "cpuset.mems=0",
		"--macvtap", "tap0",
		"--",
		"--api-sock", "/run/api.sock",
	}
	if !reflect.DeepEqual(args, want) {
		t.Fatalf("Args() = %v, want %v", args, want)
	}
}

func TestBuildComputesChrootRoot(t *testing.T) {
	b := NewCommandBuilder("/usr/bin/jailer").
		WithID("vm-1").
		WithExecFile("/usr/bin/firecracker").
		WithChrootBaseDir("/srv/jailer")

	if _, err := b.Build(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "/srv/jailer/firecracker/vm-1/root"
	if got := b.ChrootRoot(); got != want {
		t.Fatalf("ChrootRoot() = %q, want %q", got, want)
	}
}

func TestFinishIsNoopWithoutBuild(t *testing.T) {
	b := NewCommandBuilder("/usr/bin/jailer")
	if err := b.Finish(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
