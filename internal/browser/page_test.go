package browser

import "testing"

func TestKeyByName_Named(t *testing.T) {
	if _, ok := keyByName("Enter"); !ok {
		t.Fatalf("expected Enter to resolve")
	}
}

func TestKeyByName_SingleRune(t *testing.T) {
	if _, ok := keyByName("a"); !ok {
		t.Fatalf("expected single-rune key to resolve")
	}
}

func TestKeyByName_Unknown(t *testing.T) {
	if _, ok := keyByName("NotAKey"); ok {
		t.Fatalf("expected unknown key name to fail")
	}
}

func TestIsNotFound(t *testing.T) {
	if isNotFound(nil) {
		t.Fatalf("nil error is not a not-found error")
	}
}
