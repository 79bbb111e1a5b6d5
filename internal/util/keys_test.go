package util

import "testing"

func TestKey(t *testing.T) {
	if got := Key("cache:shop:", "42"); got != "cache:shop:42" {
		t.Fatalf("Key: got %q", got)
	}
}

func TestRedactStableAndShort(t *testing.T) {
	a, b := Redact("token-1"), Redact("token-1")
	if a != b {
		t.Fatalf("Redact not stable: %q vs %q", a, b)
	}
	if len(a) != 16 {
		t.Fatalf("Redact length: got %d want 16", len(a))
	}
	if a == Redact("token-2") {
		t.Fatalf("Redact collided for different inputs")
	}
}
