package util

import "testing"

func TestNormalizeWhitespace(t *testing.T) {
	if got := NormalizeWhitespace("  feeling \n\t low  today "); got != "feeling low today" {
		t.Fatalf("got %q", got)
	}
	if !IsBlank(" \n\t") || IsBlank(" a ") {
		t.Fatalf("IsBlank mismatch")
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := Truncate("héllo", 2); got != "hé" {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("ok", 10); got != "ok" {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("ok", 0); got != "" {
		t.Fatalf("got %q", got)
	}
}
