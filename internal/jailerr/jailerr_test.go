package jailerr

import (
	"errors"
	"testing"
)

func TestErrorMessageWithPath(t *testing.T) {
	e := WithPath(KindFilesystem, "mknod", "/dev/net/tun", errors.New("file exists"))
	got := e.Error()
	want := "mknod: /dev/net/tun: file exists"
	if got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestErrorMessageWithoutPath(t *testing.T) {
	e := New(KindParse, "parse cgroup argument", errors.New("empty value"))
	got := e.Error()
	want := "parse cgroup argument: empty value"
	if got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	e := New(KindDevice, "open", cause)
	if !errors.Is(e, cause) {
		t.Fatalf("errors.Is(e, cause) = false, want true")
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindParse:      "parse",
		KindFilesystem: "filesystem",
		KindDevice:     "device",
		KindNamespace:  "namespace",
		KindProcess:    "process",
		KindEncoding:   "encoding",
		Kind(99):       "unknown",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
