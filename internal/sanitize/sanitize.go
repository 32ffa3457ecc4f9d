// Package sanitize implements the jailer's process-hygiene step: closing
// every inherited file descriptor above stderr and clearing the process
// environment. It must run before anything else in main().
package sanitize

import (
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// maxCheckedFD bounds the fd-close loop; jailer parents never pass down
// more than a handful of descriptors, so this is generous headroom
// rather than a real ulimit probe.
const maxCheckedFD = 1024

// Process closes every file descriptor above stderr (2) and clears the
// environment, matching main.rs::sanitize_process/clean_env_vars. Call
// this as the very first statement of main().
func Process() {
	closeExtraFDs()
	os.Clearenv()
}

func closeExtraFDs() {
	limit := maxCheckedFD
	if n := highestOpenFDHint(); n > limit {
		limit = n
	}
	for fd := 3; fd <= limit; fd++ {
		unix.Close(fd)
	}
}

// highestOpenFDHint reads /proc/self/fd and returns the highest open fd
// number, so the close loop also reaches fds above maxCheckedFD when
// that many were inherited; falls back to maxCheckedFD when /proc is
// unavailable.
func highestOpenFDHint() int {
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		return maxCheckedFD
	}
	highest := 0
	for _, e := range entries {
		if n, err := strconv.Atoi(e.Name()); err == nil && n > highest {
			highest = n
		}
	}
	return highest
}
