package macvtap

import "testing"

func TestParseDevTValid(t *testing.T) {
	major, minor, err := parseDevT("248:0\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if major != 248 || minor != 0 {
		t.Fatalf("parseDevT = %d:%d, want 248:0", major, minor)
	}
}

func TestParseDevTMalformed(t *testing.T) {
	if _, _, err := parseDevT("not-a-devt"); err == nil {
		t.Fatal("expected error for malformed major:minor attribute")
	}
}

func TestResolveAllPropagatesError(t *testing.T) {
	if _, err := ResolveAll([]string{"macvtap-does-not-exist-0"}); err == nil {
		t.Fatal("expected error resolving a nonexistent interface")
	}
}
