// Package macvtap resolves a MACVTAP network interface's backing
// character device node through sysfs, the Go stand-in for the jailer's
// "MACVTAP library" collaborator.
package macvtap

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

// MknodSpec is the device-node major/minor pair an interface's backing
// device should be recreated with inside a chroot.
type MknodSpec struct {
	Major uint32
	Minor uint32
}

// Iface is everything the jailer needs to mknod and open a resolved
// macvtap interface inside a chroot.
type Iface struct {
	IfName  string
	DevNode string
	Mknod   MknodSpec
}

// GetDeviceNode returns the /dev path backing ifName's macvtap character
// device, preferring the kernel's own devnode sysfs attribute and falling
// back to a /sys/dev/char uevent scan on kernels that predate it.
func GetDeviceNode(ifName string) (string, error) {
	devnodeAttr := filepath.Join("/sys/class/net", ifName, "device", "devnode")
	if b, err := os.ReadFile(devnodeAttr); err == nil {
		name := strings.TrimSpace(string(b))
		if name != "" {
			return filepath.Join("/dev", name), nil
		}
	}

	major, minor, err := readDevT(ifName)
	if err != nil {
		return "", err
	}

	return scanCharDevices(ifName, major, minor)
}

// ByName resolves ifName into its full macvtap Iface description,
// including the major/minor pair needed to recreate the node via mknod.
func ByName(ifName string) (Iface, error) {
	major, minor, err := readDevT(ifName)
	if err != nil {
		return Iface{}, err
	}

	devNode, err := GetDeviceNode(ifName)
	if err != nil {
		return Iface{}, err
	}

	return Iface{
		IfName:  ifName,
		DevNode: devNode,
		Mknod:   MknodSpec{Major: major, Minor: minor},
	}, nil
}

// ResolveAll resolves every named interface concurrently, returning the
// first error encountered (if any) across all lookups.
func ResolveAll(ifNames []string) ([]Iface, error) {
	ifaces := make([]Iface, len(ifNames))
	var g errgroup.Group
	for i, name := range ifNames {
		i, name := i, name
		g.Go(func() error {
			iface, err := ByName(name)
			if err != nil {
				return err
			}
			ifaces[i] = iface
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ifaces, nil
}

func readDevT(ifName string) (major, minor uint32, err error) {
	devPath := filepath.Join("/sys/class/net", ifName, "device", "dev")
	b, readErr := os.ReadFile(devPath)
	if readErr != nil {
		return 0, 0, jailerr.WithPath(jailerr.KindDevice, "resolve macvtap interface", ifName, readErr)
	}

	maj, min, parseErr := parseDevT(string(b))
	if parseErr != nil {
		return 0, 0, jailerr.WithPath(jailerr.KindDevice, "parse macvtap dev attribute", devPath, parseErr)
	}
	return maj, min, nil
}

// parseDevT parses a sysfs "dev" attribute's "<major>:<minor>" content.
func parseDevT(raw string) (major, minor uint32, err error) {
	parts := strings.SplitN(strings.TrimSpace(raw), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed major:minor %q", raw)
	}
	maj, err1 := strconv.ParseUint(parts[0], 10, 32)
	min, err2 := strconv.ParseUint(parts[1], 10, 32)
	if err1 != nil || err2 != nil {
		return 0, 0, fmt.Errorf("malformed major:minor %q", raw)
	}
	return uint32(maj), uint32(min), nil
}

func scanCharDevices(ifName string, major, minor uint32) (string, error) {
	ueventPath := fmt.Sprintf("/sys/dev/char/%d:%d/uevent", major, minor)
	f, err := os.Open(ueventPath)
	if err != nil {
		return "", jailerr.WithPath(jailerr.KindDevice, "resolve macvtap device node", ueventPath, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if name, ok := strings.CutPrefix(line, "DEVNAME="); ok {
			return filepath.Join("/dev", strings.TrimSpace(name)), nil
		}
	}

	return "", jailerr.WithPath(jailerr.KindDevice, "resolve macvtap device node", ueventPath, fmt.Errorf("no DEVNAME entry for interface %s", ifName))
}
