// Package tap implements the jailer's TAP/MACVTAP device handle: opening
// a named tap or macvtap interface, toggling offload/vnet-header options,
// and reading/writing virtio-net framed packets.
package tap

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/coolguy741/go-jailer/internal/jailerr"
	"github.com/coolguy741/go-jailer/internal/macvtap"
)

// IfaceNameMaxLen is the maximum length of a Linux network interface
// name, including the implicit NUL terminator the kernel ABI expects.
const IfaceNameMaxLen = 16

// VnetHdrSize is the size, in bytes, of the virtio-net header every frame
// read from or written to the device is prefixed with once vnet headers
// are enabled.
const VnetHdrSize = 10

const (
	devNetTun = "/dev/net/tun"

	iffTap     = 0x0002
	iffNoPI    = 0x1000
	iffVnetHdr = 0x4000

	sizeOfIfreq = 40

	tunsetIff        = 0x400454ca
	tunsetOffload    = 0x400454d0
	tunsetVnetHdrSz  = 0x400454d8
	tunOffloadCsum   = 0x01
	tunOffloadTso4   = 0x02
	tunOffloadTso6   = 0x04
	tunOffloadTsoEcn = 0x08
	tunOffloadUfo    = 0x10
)

// DefaultOffloadFlags mirrors the offload bitmask the jailer enables when
// a VM requests checksum/TSO offload on its tap device.
const DefaultOffloadFlags = tunOffloadCsum | tunOffloadTso4 | tunOffloadTso6 | tunOffloadTsoEcn | tunOffloadUfo

// Handle wraps an open tap or macvtap file descriptor.
type Handle struct {
	file   *os.File
	ifName string
}

// OpenNamed opens ifName as a tap device, preferring a macvtap interface
// of that name when one exists and falling back to /dev/net/tun +
// TUNSETIFF otherwise.
func OpenNamed(ifName string) (*Handle, error) {
	if len(ifName) >= IfaceNameMaxLen {
		return nil, jailerr.WithPath(jailerr.KindDevice, "open tap device", ifName, errNameTooLong)
	}

	if iface, err := macvtap.ByName(ifName); err == nil {
		return openMacvtap(iface.DevNode, ifName)
	}

	return openTunTap(ifName)
}

func openTunTap(ifName string) (*Handle, error) {
	f, err := os.OpenFile(devNetTun, os.O_RDWR, 0)
	if err != nil {
		return nil, jailerr.WithPath(jailerr.KindDevice, "open", devNetTun, err)
	}

	nameBuf := terminatedIfName(ifName)
	var ifr [sizeOfIfreq]byte
	copy(ifr[:], nameBuf)
	flags := uint16(iffTap | iffNoPI | iffVnetHdr)
	ifr[16] = byte(flags)
	ifr[17] = byte(flags >> 8)

	if err := ioctl(f.Fd(), tunsetIff, uintptr(unsafe.Pointer(&ifr[0]))); err != nil {
		f.Close()
		return nil, jailerr.WithPath(jailerr.KindDevice, "TUNSETIFF", ifName, err)
	}

	resolved := readBackIfName(ifr[:16])
	if resolved == "" {
		resolved = "tap0"
	}

	if err := unix.SetNonblock(int(f.Fd()), true); err != nil {
		f.Close()
		return nil, jailerr.WithPath(jailerr.KindDevice, "set nonblocking", ifName, err)
	}

	return &Handle{file: f, ifName: resolved}, nil
}

func openMacvtap(devPath, ifName string) (*Handle, error) {
	f, err := os.OpenFile(devPath, os.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, jailerr.WithPath(jailerr.KindDevice, "open", devPath, err)
	}

	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		f.Close()
		return nil, jailerr.WithPath(jailerr.KindDevice, "stat tap device", devPath, err)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFCHR {
		f.Close()
		return nil, jailerr.WithPath(jailerr.KindDevice, "stat tap device", devPath, errNotCharDevice)
	}

	return &Handle{file: f, ifName: ifName}, nil
}

// Name returns the kernel-canonicalized interface name, which may differ
// from the name requested in OpenNamed (e.g. an empty request resolves
// to "tap0").
func (h *Handle) Name() string { return h.ifName }

// SetOffload toggles checksum/segmentation offload on the device.
func (h *Handle) SetOffload(flags uint32) error {
	if err := ioctl(h.file.Fd(), tunsetOffload, uintptr(flags)); err != nil {
		return jailerr.WithPath(jailerr.KindDevice, "TUNSETOFFLOAD", h.ifName, err)
	}
	return nil
}

// SetVnetHdrSize sets the size of the virtio-net header the kernel
// prefixes to (and expects prefixed on) every frame.
func (h *Handle) SetVnetHdrSize(size int) error {
	v := int32(size)
	if err := ioctl(h.file.Fd(), tunsetVnetHdrSz, uintptr(unsafe.Pointer(&v))); err != nil {
		return jailerr.WithPath(jailerr.KindDevice, "TUNSETVNETHDRSZ", h.ifName, err)
	}
	return nil
}

// Read reads one frame, vnet header included, from the device.
func (h *Handle) Read(p []byte) (int, error) { return h.file.Read(p) }

// Write writes one frame, vnet header included, to the device.
func (h *Handle) Write(p []byte) (int, error) { return h.file.Write(p) }

// Fd returns the underlying file descriptor.
func (h *Handle) Fd() uintptr { return h.file.Fd() }

// Close releases the underlying file descriptor.
func (h *Handle) Close() error { return h.file.Close() }

func ioctl(fd uintptr, req uint, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(req), arg)
	if errno != 0 {
		return errno
	}
	return nil
}

func terminatedIfName(name string) []byte {
	buf := make([]byte, IfaceNameMaxLen)
	copy(buf, name)
	return buf
}

func readBackIfName(buf []byte) string {
	n := 0
	for n < len(buf) && buf[n] != 0 {
		n++
	}
	return string(buf[:n])
}

var errNameTooLong = ifNameTooLongError{}

type ifNameTooLongError struct{}

func (ifNameTooLongError) Error() string { return "interface name exceeds 15 characters" }

var errNotCharDevice = notCharDeviceError{}

type notCharDeviceError struct{}

func (notCharDeviceError) Error() string { return "tap device node is not a character device" }
