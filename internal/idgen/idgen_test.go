package idgen

import (
	"strings"
	"testing"
	"time"
)

func TestUUIDv7_Format(t *testing.T) {
	gen := UUIDv7()
	id := gen()
	parts := strings.Split(id, "-")
	if len(parts) != 5 {
		t.Fatalf("UUIDv7: expected 5 parts, got %d in %q", len(parts), id)
	}
	if len(id) != 36 {
		t.Fatalf("UUIDv7: expected length 36, got %d", len(id))
	}
}

func TestUUIDv7_Uniqueness(t *testing.T) {
	gen := UUIDv7()
	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		id := gen()
		if _, ok := seen[id]; ok {
			t.Fatalf("UUIDv7: duplicate at iteration %d", i)
		}
		seen[id] = struct{}{}
	}
}

func TestNew_IsValidUUID(t *testing.T) {
	id := New()
	if _, err := Parse(id); err != nil {
		t.Fatalf("New: default should produce a valid UUID: %v", err)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse("not-a-uuid"); err == nil {
		t.Fatal("Parse: expected error for invalid UUID")
	}
}

func TestEpochSuffix(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	if got := EpochSuffix(at); got != "1700000000123" {
		t.Fatalf("EpochSuffix: got %q", got)
	}
}
