package idgen

import (
	"strings"
	"testing"
)

func TestUUIDv7_UniqueAndParseable(t *testing.T) {
	gen := UUIDv7()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := gen()
		if seen[id] {
			t.Fatalf("duplicate ID: %s", id)
		}
		seen[id] = true
		if _, err := Parse(id); err != nil {
			t.Fatalf("generated ID does not parse: %v", err)
		}
	}
}

func TestUUIDv7_TimeSortable(t *testing.T) {
	// WHAT: consecutive v7 IDs sort in generation order.
	// WHY: store queries rely on lexicographic ordering of primary keys.
	gen := UUIDv7()
	prev := gen()
	for i := 0; i < 100; i++ {
		next := gen()
		if next <= prev {
			t.Fatalf("IDs not monotonic: %s then %s", prev, next)
		}
		prev = next
	}
}

func TestPrefixed(t *testing.T) {
	gen := Prefixed("sub_", UUIDv7())
	id := gen()
	if !strings.HasPrefix(id, "sub_") {
		t.Errorf("expected sub_ prefix, got %s", id)
	}
	if _, err := Parse(strings.TrimPrefix(id, "sub_")); err != nil {
		t.Errorf("suffix not a valid UUID: %v", err)
	}
}

func TestTimestamped(t *testing.T) {
	gen := Timestamped(UUIDv7())
	id := gen()
	parts := strings.SplitN(id, "_", 2)
	if len(parts) != 2 {
		t.Fatalf("expected timestamp_suffix, got %s", id)
	}
	if len(parts[0]) != len("20060102T150405Z") {
		t.Errorf("unexpected timestamp segment: %s", parts[0])
	}
}
