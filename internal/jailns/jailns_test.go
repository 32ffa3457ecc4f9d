package jailns

import "testing"

func TestJoinNetNSMissingPath(t *testing.T) {
	if err := JoinNetNS("/run/netns/does-not-exist-e2e9f3"); err == nil {
		t.Fatal("expected error joining a nonexistent network namespace path")
	}
}

func TestChrootMissingPath(t *testing.T) {
	if err := Chroot("/nonexistent-chroot-target-e2e9f3"); err == nil {
		t.Fatal("expected error chrooting into a nonexistent path")
	}
}
