package consttab

import "testing"

func TestInternLongReusesIdenticalValue(t *testing.T) {
	tbl := New()
	a := tbl.InternLong(7)
	b := tbl.InternLong(7)
	c := tbl.InternLong(8)
	if a != b {
		t.Errorf("expected interning 7 twice to return the same ID, got %v and %v", a, b)
	}
	if a == c {
		t.Errorf("expected distinct values to get distinct IDs")
	}
	if tbl.Long(a) != 7 {
		t.Errorf("Long(a) = %d, want 7", tbl.Long(a))
	}
}

func TestInternFloatReusesIdenticalValue(t *testing.T) {
	tbl := New()
	f := Float{Mantissa: 1, Exponent: 2}
	a := tbl.InternFloat(f)
	b := tbl.InternFloat(f)
	if a != b {
		t.Errorf("expected interning the same Float twice to return the same ID")
	}
	if tbl.Float(a) != f {
		t.Errorf("Float(a) = %+v, want %+v", tbl.Float(a), f)
	}
}

func TestInternStringAdvancesOffsetOnceOnly(t *testing.T) {
	tbl := New()
	id1 := tbl.InternString("ab")
	before := tbl.TotalStringBytes()
	id2 := tbl.InternString("ab")
	after := tbl.TotalStringBytes()

	if id1 != id2 {
		t.Fatalf("expected re-interning the same string to return the same ID")
	}
	if before != after {
		t.Fatalf("expected the string offset to stay put on re-intern: before=%d after=%d", before, after)
	}

	id3 := tbl.InternString("abc")
	if id3 == id1 {
		t.Fatalf("expected a distinct string to get a distinct ID")
	}
	if tbl.TotalStringBytes() <= after {
		t.Fatalf("expected a new string to advance the offset")
	}
}

func TestStringBytesAreNulTerminatedAndWordAligned(t *testing.T) {
	tbl := New()
	tbl.InternString("hi")
	out := tbl.StringBytes()
	if len(out)%4 != 0 {
		t.Fatalf("expected the string pool to be word-aligned, got %d bytes", len(out))
	}
	if out[0] != 'h' || out[1] != 'i' || out[2] != 0 {
		t.Fatalf("expected \"hi\\x00\"-prefixed bytes, got %v", out)
	}
}

func TestIDRoundTripsThroughTableAndOffset(t *testing.T) {
	id := makeID(TableStr, 42)
	if id.TableOf() != TableStr {
		t.Errorf("TableOf() = %d, want %d", id.TableOf(), TableStr)
	}
	if id.OffsetOf() != 42 {
		t.Errorf("OffsetOf() = %d, want 42", id.OffsetOf())
	}
}

func TestDifferentKindsWithSameOffsetAreDistinctIDs(t *testing.T) {
	tbl := New()
	// Drive the long and string tables to the same offset (0) and confirm
	// their IDs don't collide even though OffsetOf() is equal for both.
	longID := tbl.InternLong(1)
	strID := tbl.InternString("x")
	if longID == strID {
		t.Fatalf("expected IDs from different sub-tables to never compare equal")
	}
	if longID.TableOf() == strID.TableOf() {
		t.Fatalf("expected different sub-table numbers, got %d for both", longID.TableOf())
	}
}
