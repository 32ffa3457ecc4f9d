package sanitize

import "testing"

func TestHighestOpenFDHintReturnsPositive(t *testing.T) {
	// The test binary itself always has stdin/stdout/stderr open, so this
	// should never fall through to zero.
	if got := highestOpenFDHint(); got <= 0 {
		t.Fatalf("highestOpenFDHint() = %d, want > 0", got)
	}
}
