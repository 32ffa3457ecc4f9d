package rlimit

import "testing"

func TestParseLimitValid(t *testing.T) {
	l, err := ParseLimit("fsize=2048")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Resource != "fsize" || l.Value != 2048 {
		t.Fatalf("ParseLimit = %+v, want resource=fsize value=2048", l)
	}
}

func TestParseLimitRejectsUnknownResource(t *testing.T) {
	if _, err := ParseLimit("not-a-resource=1"); err == nil {
		t.Fatal("expected error for unknown resource name")
	}
}

func TestParseLimitRejectsNonNumericValue(t *testing.T) {
	if _, err := ParseLimit("fsize=not-a-number"); err == nil {
		t.Fatal("expected error for non-numeric resource limit value")
	}
}

func TestParseLimitRejectsMissingEquals(t *testing.T) {
	if _, err := ParseLimit("fsize"); err == nil {
		t.Fatal("expected error for argument with no '='")
	}
}
