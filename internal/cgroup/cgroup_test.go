package cgroup

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseValueRejectsEmptyValue(t *testing.T) {
	if _, err := ParseValue("cpuset.cpus="); err == nil {
		t.Fatal("expected error for empty cgroup value")
	}
}

func TestParseValueAcceptsRangeValue(t *testing.T) {
	v, err := ParseValue("cpuset.cpus=2-4,5.3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Controller != "cpuset" || v.File != "cpuset.cpus" || v.Val != "2-4,5.3" {
		t.Fatalf("ParseValue = %+v, want controller=cpuset file=cpuset.cpus val=2-4,5.3", v)
	}
}

func TestParseValueAcceptsMemorySwapHigh(t *testing.T) {
	v, err := ParseValue("memory.swap.high=2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Controller != "memory" || v.File != "memory.swap.high" || v.Val != "2" {
		t.Fatalf("ParseValue = %+v, want controller=memory file=memory.swap.high val=2", v)
	}
}

func TestParseValueRejectsMissingEquals(t *testing.T) {
	if _, err := ParseValue("cpuset.cpus"); err == nil {
		t.Fatal("expected error for argument with no '='")
	}
}

func TestParseValueRejectsNoControllerPrefix(t *testing.T) {
	if _, err := ParseValue("noDot=1"); err == nil {
		t.Fatal("expected error for file with no controller prefix")
	}
}

func TestParseValueRejectsPathEscape(t *testing.T) {
	if _, err := ParseValue("cpu/../../x.y=1"); err == nil {
		t.Fatal("expected error for a cgroup file with a \"..\" path component")
	}
}

func TestParseValueRejectsRootAnchoredFile(t *testing.T) {
	if _, err := ParseValue("/etc/passwd.x=1"); err == nil {
		t.Fatal("expected error for a root-anchored cgroup file")
	}
}

func TestWriterWriteAllWritesEachValue(t *testing.T) {
	root := t.TempDir()
	w := &Writer{version: V1, parentCgroup: "my-jail"}
	// Bypass real mount discovery: run WriteAll, and through it
	// writeValue, against a synthetic mount root.
	orig := w.resolveMountFunc
	defer func() { w.resolveMountFunc = orig }()
	w.resolveMountFunc = func(string) (Mount, error) { return Mount{Version: V1, Root: root}, nil }

	err := w.WriteAll([]Value{{Controller: "cpuset", File: "cpuset.mems", Val: "0"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(root, "my-jail", "cpuset.mems"))
	if err != nil {
		t.Fatalf("expected cgroup file to be written: %v", err)
	}
	if string(got) != "0" {
		t.Fatalf("cpuset.mems content = %q, want %q", got, "0")
	}
}

func TestDiscoverV1NoMatchingController(t *testing.T) {
	dir := t.TempDir()
	mountsPath := filepath.Join(dir, "mounts")
	content := "cgroup /sys/fs/cgroup/memory cgroup rw,memory 0 0\n"
	if err := os.WriteFile(mountsPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := discoverV1At(mountsPath, "cpuset"); err == nil {
		t.Fatal("expected error when no mount exposes the requested controller")
	}
}

func TestDiscoverV1FindsMatchingController(t *testing.T) {
	dir := t.TempDir()
	mountsPath := filepath.Join(dir, "mounts")
	content := "cgroup /sys/fs/cgroup/cpuset cgroup rw,cpuset 0 0\n"
	if err := os.WriteFile(mountsPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	mount, err := discoverV1At(mountsPath, "cpuset")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mount.Root != "/sys/fs/cgroup/cpuset" {
		t.Fatalf("mount.Root = %q, want /sys/fs/cgroup/cpuset", mount.Root)
	}
}
