// Package pathutil holds the small path-handling helpers the jailer needs
// before handing a path to a raw syscall: NUL-safety checks (Go strings
// may embed a NUL that C-style APIs would silently truncate on) and
// chroot-relative joins.
package pathutil

import (
	"path/filepath"
	"strings"

	"github.com/coolguy741/go-jailer/internal/jailerr"
)

// ToCString validates that path contains no interior NUL byte and returns
// it NUL-terminated, ready for syscalls that expect a C string. Go's
// unix.BytePtrFromString already rejects interior NULs; this wrapper gives
// the jailer a single, consistently-tagged error for that failure mode.
func ToCString(path string) (string, error) {
	if strings.IndexByte(path, 0) >= 0 {
		return "", jailerr.WithPath(jailerr.KindEncoding, "convert path to C string", path, errStrContainsNUL)
	}
	return path + "\x00", nil
}

var errStrContainsNUL = nulError{}

type nulError struct{}

func (nulError) Error() string { return "path contains an interior NUL byte" }

// JoinChroot joins a chroot root with a path that is meant to land inside
// it, rejecting any component that would escape the root via "..".
func JoinChroot(root, rel string) (string, error) {
	clean := filepath.Clean(rel)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", jailerr.WithPath(jailerr.KindFilesystem, "join chroot path", rel, errEscapesRoot)
	}
	return filepath.Join(root, clean), nil
}

var errEscapesRoot = escapeError{}

type escapeError struct{}

func (escapeError) Error() string { return "path escapes chroot root" }
