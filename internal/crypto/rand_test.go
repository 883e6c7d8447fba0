package crypto

import "testing"

func TestNewTokenID(t *testing.T) {
	a, err := NewTokenID()
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 64 {
		t.Fatalf("want 64 hex chars, got %d", len(a))
	}
	b, err := NewTokenID()
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("two token ids collided")
	}
}

func TestNewNonce(t *testing.T) {
	n, err := NewNonce()
	if err != nil {
		t.Fatal(err)
	}
	if len(n) != 32 {
		t.Fatalf("want 32 hex chars, got %d", len(n))
	}
}

func TestShortCode(t *testing.T) {
	id := "aabbccddee00112233"
	if got := ShortCode(id); got != "aabbccddee" {
		t.Fatalf("got %q", got)
	}
	if got := ShortCode("short"); got != "short" {
		t.Fatalf("got %q", got)
	}
}
