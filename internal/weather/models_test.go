package weather

import (
	"sort"
	"testing"
	"time"
)

func TestIdentifierKey(t *testing.T) {
	id := Identifier{Base: utc(2024, 1, 1, 6), Offset: 3}
	if id.Key() != "20240101-06.f003" {
		t.Fatalf("unexpected key %q", id.Key())
	}
	if id.Date() != "20240101" || id.Hour() != "06" || id.Forecast() != "003" {
		t.Fatalf("unexpected parts %s %s %s", id.Date(), id.Hour(), id.Forecast())
	}
	if !id.ValidTime().Equal(utc(2024, 1, 1, 9)) {
		t.Fatalf("unexpected valid time %s", id.ValidTime())
	}
}

func TestKeysAreInjectiveAndRoundTrip(t *testing.T) {
	seen := map[string]Identifier{}
	start := utc(2023, 12, 30, 0)

	for run := 0; run < 12; run++ {
		base := DefaultGrid.Step(start, run)
		for offset := 0; offset <= 384; offset += 3 {
			id := Identifier{Base: base, Offset: offset}
			key := id.Key()

			if prev, dup := seen[key]; dup {
				t.Fatalf("key %s shared by %v and %v", key, prev, id)
			}
			seen[key] = id

			parsed, err := ParseKey(key)
			if err != nil {
				t.Fatalf("ParseKey(%q): %v", key, err)
			}
			if !parsed.Equal(id) || parsed.Key() != key {
				t.Fatalf("round trip mismatch: %v -> %q -> %v", id, key, parsed)
			}
		}
	}
}

func TestParseKeyRejectsGarbage(t *testing.T) {
	for _, k := range []string{"", "20240101", "20240101-06", "2024010106.f003", "20240101-6.f003", "20241301-06.f003", "20240101-25.f003", "20240101-06.fxyz", "20240101-06.f-03"} {
		if _, err := ParseKey(k); err == nil {
			t.Errorf("ParseKey(%q) should fail", k)
		}
	}
}

func TestIdentifierOrdering(t *testing.T) {
	ids := []Identifier{
		{Base: utc(2024, 1, 1, 6), Offset: 3},
		{Base: utc(2023, 12, 31, 18), Offset: 12},
		{Base: utc(2024, 1, 1, 6), Offset: 0},
		{Base: utc(2024, 1, 1, 0), Offset: 9},
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })

	want := []string{"20231231-18.f012", "20240101-00.f009", "20240101-06.f000", "20240101-06.f003"}
	for i, id := range ids {
		if id.Key() != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], id.Key())
		}
	}
	if ids[0].Compare(ids[0]) != 0 {
		t.Fatalf("identifier should compare equal to itself")
	}
}

func TestIdentifierEqualIgnoresLocation(t *testing.T) {
	a := Identifier{Base: utc(2024, 1, 1, 6)}
	b := Identifier{Base: time.Date(2024, 1, 1, 8, 0, 0, 0, time.FixedZone("x", 2*3600))}
	if !a.Equal(b) {
		t.Fatalf("identifiers for the same instant should be equal")
	}
}
