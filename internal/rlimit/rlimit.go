// Package rlimit applies the jailer's --resource-limit arguments to the
// not-yet-exec'd child process via prlimit(2).
package rlimit

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/coolguy741/go-jailer/internal/jailerr"
)

// Limit is one parsed "<resource>=<value>" resource-limit argument.
type Limit struct {
	Resource string
	Value    uint64
}

var resourceNames = map[string]int{
	"fsize":    unix.RLIMIT_FSIZE,
	"no-file":  unix.RLIMIT_NOFILE,
	"nofile":   unix.RLIMIT_NOFILE,
	"nproc":    unix.RLIMIT_NPROC,
	"as":       unix.RLIMIT_AS,
	"core":     unix.RLIMIT_CORE,
	"data":     unix.RLIMIT_DATA,
	"memlock":  unix.RLIMIT_MEMLOCK,
	"rss":      unix.RLIMIT_RSS,
	"stack":    unix.RLIMIT_STACK,
}

// ParseLimit splits a raw "<resource>=<value>" argument, matching
// env.rs::parse_resource_limits's rejection of a missing '=' or a
// non-numeric value.
func ParseLimit(raw string) (Limit, error) {
	eq := strings.IndexByte(raw, '=')
	if eq <= 0 || eq == len(raw)-1 {
		return Limit{}, jailerr.New(jailerr.KindParse, "parse resource limit", fmt.Errorf("malformed resource limit %q, want <resource>=<value>", raw))
	}
	name := raw[:eq]
	valStr := raw[eq+1:]

	if _, ok := resourceNames[name]; !ok {
		return Limit{}, jailerr.New(jailerr.KindParse, "parse resource limit", fmt.Errorf("unknown resource limit %q", name))
	}

	val, err := strconv.ParseUint(valStr, 10, 64)
	if err != nil {
		return Limit{}, jailerr.New(jailerr.KindParse, "parse resource limit", fmt.Errorf("invalid resource limit value %q: %w", valStr, err))
	}

	return Limit{Resource: name, Value: val}, nil
}

// Apply sets every limit on pid via prlimit(2), with both the soft and
// hard limit set to the requested value, matching the jailer's
// one-shot, non-negotiable resource ceiling.
func Apply(pid int, limits []Limit) error {
	for _, l := range limits {
		res, ok := resourceNames[l.Resource]
		if !ok {
			return jailerr.New(jailerr.KindParse, "apply resource limit", fmt.Errorf("unknown resource limit %q", l.Resource))
		}
		rlim := unix.Rlimit{Cur: l.Value, Max: l.Value}
		if err := unix.Prlimit(pid, res, &rlim, nil); err != nil {
			return jailerr.New(jailerr.KindProcess, fmt.Sprintf("prlimit %s", l.Resource), err)
		}
	}
	return nil
}
