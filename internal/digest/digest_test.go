package digest

import (
	"strings"
	"testing"
)

func TestSumDeterministic(t *testing.T) {
	a := Sum([]byte("hello"))
	b := Sum([]byte("hello"))
	if a != b {
		t.Fatalf("same bytes produced different fingerprints: %s vs %s", a, b)
	}
	if len(a) != Size {
		t.Fatalf("expected %d hex chars, got %d", Size, len(a))
	}
	if a != strings.ToLower(a) {
		t.Fatalf("fingerprint is not lowercase: %s", a)
	}
	// Known SHA-256 of "hello".
	if a != "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824" {
		t.Fatalf("unexpected fingerprint: %s", a)
	}
}

func TestSumDistinct(t *testing.T) {
	inputs := [][]byte{nil, []byte(""), []byte("a"), []byte("b"), []byte("hello"), []byte("hello ")}
	seen := make(map[string][]byte)
	for _, in := range inputs {
		h := Sum(in)
		if prev, ok := seen[h]; ok && string(prev) != string(in) {
			t.Fatalf("collision between %q and %q", prev, in)
		}
		seen[h] = in
	}
	// nil and empty slice are the same byte sequence.
	if Sum(nil) != Sum([]byte{}) {
		t.Fatal("nil and empty content must fingerprint identically")
	}
}

func TestSumString(t *testing.T) {
	if SumString("hello") != Sum([]byte("hello")) {
		t.Fatal("SumString must hash the UTF-8 bytes of the string")
	}
}

func TestPrefix(t *testing.T) {
	h := Sum([]byte("hello"))
	if got := Prefix(h, 16); got != h[:16] {
		t.Fatalf("unexpected prefix: %s", got)
	}
	if got := Prefix("abc", 16); got != "abc" {
		t.Fatalf("short input must be returned whole, got %s", got)
	}
	if got := Short(h); got != h[:ShortLen] {
		t.Fatalf("Short must cut at ShortLen: %s", got)
	}
}
