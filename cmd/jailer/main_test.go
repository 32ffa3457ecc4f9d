package main

import (
	"reflect"
	"testing"

	"github.com/coolguy741/go-jailer/internal/cgroup"
)

func TestCgroupControllersDedupesInFirstSeenOrder(t *testing.T) {
	values := []cgroup.Value{
		{Controller: "cpuset", File: "cpuset.mems", Val: "0"},
		{Controller: "cpu", File: "cpu.shares", Val: "2"},
		{Controller: "cpuset", File: "cpuset.cpus", Val: "0-1"},
	}
	got := cgroupControllers(values)
	want := []string{"cpuset", "cpu"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("cgroupControllers = %v, want %v", got, want)
	}
}
