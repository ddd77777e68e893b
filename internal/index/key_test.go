package index

import "testing"

func TestMakeKeyDeterministic(t *testing.T) {
	k1 := MakeKey("host", "web-1")
	k2 := MakeKey("host", "web-1")
	if k1 != k2 {
		t.Fatalf("MakeKey must be deterministic, got %d and %d", k1, k2)
	}
}

func TestMakeKeySameNameOrdersByValue(t *testing.T) {
	a := MakeKey("host", "a")
	b := MakeKey("host", "b")
	lo, hi := NameRange("host")
	if a < lo || a >= hi {
		t.Fatalf("key for host=a should fall within its name's range [%d, %d), got %d", lo, hi, a)
	}
	if b < lo || b >= hi {
		t.Fatalf("key for host=b should fall within its name's range [%d, %d), got %d", lo, hi, b)
	}
	if a >= b {
		t.Fatalf("key for host=a should sort before host=b, got %d and %d", a, b)
	}
}

func TestNameRangeSeparatesDistinctNames(t *testing.T) {
	hostLo, hostHi := NameRange("host")
	regionLo, regionHi := NameRange("region")

	if hostLo >= hostHi {
		t.Fatalf("name range must be non-empty: [%d, %d)", hostLo, hostHi)
	}
	if hostLo >= regionLo && hostLo < regionHi {
		t.Fatalf("distinct label names must not share a key range")
	}
	_ = regionHi
}
