package idgen

import (
	"strings"
	"testing"
)

func TestNanoID_Length(t *testing.T) {
	for _, length := range []int{6, 8, 12, 24} {
		id := NanoID(length)()
		if len(id) != length {
			t.Fatalf("NanoID(%d): got length %d", length, len(id))
		}
	}
}

func TestNanoID_Alphabet(t *testing.T) {
	id := NanoID(100)()
	for _, c := range id {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'z')) {
			t.Fatalf("NanoID: unexpected character %q in %q", c, id)
		}
	}
}

func TestNanoID_Uniqueness(t *testing.T) {
	gen := NanoID(12)
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := gen()
		if _, ok := seen[id]; ok {
			t.Fatalf("NanoID: duplicate at iteration %d: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestUUIDv7_Format(t *testing.T) {
	id := UUIDv7()()
	if len(id) != 36 || len(strings.Split(id, "-")) != 5 {
		t.Fatalf("UUIDv7: bad format %q", id)
	}
}

func TestPrefixed(t *testing.T) {
	id := Prefixed("ttg-", NanoID(8))()
	if !strings.HasPrefix(id, "ttg-") {
		t.Fatalf("Prefixed: expected prefix 'ttg-', got %q", id)
	}
	if len(id) != 4+8 {
		t.Fatalf("Prefixed: expected length 12, got %d", len(id))
	}
}

func TestNew_ParsesAsUUID(t *testing.T) {
	id := New()
	got, err := Parse(id)
	if err != nil {
		t.Fatalf("Parse(New()): %v", err)
	}
	if got != id {
		t.Fatalf("Parse: got %q, want %q", got, id)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse("not-a-uuid"); err == nil {
		t.Fatal("Parse: expected error for invalid UUID")
	}
}
