// Package consttab implements the interned numeric/string literal pool.
// Every literal the lexer sees is registered once and referenced afterward
// by a stable 32-bit ID; strings additionally
// advance a running offset counter so the back end can place string bytes
// at a fixed position inside the final code image.
package consttab

// ID identifies an interned constant: (tableNr<<16 | offset).
type ID uint32

const (
	tableShift = 16
	tableMask  = 0xFFFF
)

// Table number constants, kept distinct so a stray ID from the wrong table
// is easy to spot in debug dumps.
const (
	TableLong  = 0
	TableFloat = 1
	TableStr   = 2
)

func makeID(table int, offset int) ID {
	return ID(uint32(table)<<tableShift | uint32(offset)&tableMask)
}

// TableOf extracts which sub-table an ID belongs to.
func (id ID) TableOf() int { return int(uint32(id) >> tableShift) }

// OffsetOf extracts the entry index within its sub-table.
func (id ID) OffsetOf() int { return int(uint32(id) & tableMask) }

// Float is the compact (mantissa, exponent) encoding used in place of a
// bare IEEE-754 float64: 8 bytes total, a uint32 mantissa and an int32
// base-2 exponent.
type Float struct {
	Mantissa uint32
	Exponent int32
}

// entry is one append-only slot: (length, bytes) plus, for strings, the
// running byte offset assigned when it was interned.
type entry struct {
	long       int32
	float      Float
	str        string
	strOffset  int32
	registered bool
}

// Table is an append-only, never-mutated-after-insertion literal pool.
// Once issued, an ID is stable and points at immutable bytes for the rest
// of the compilation run.
type Table struct {
	longs        []entry
	floats       []entry
	strings      []entry
	stringOffset int32 // running byte offset for the next interned string
}

// New returns an empty constant table.
func New() *Table {
	return &Table{}
}

// InternLong interns (or reuses) an INTEGER literal value.
func (t *Table) InternLong(v int32) ID {
	for i, e := range t.longs {
		if e.long == v {
			return makeID(TableLong, i)
		}
	}
	t.longs = append(t.longs, entry{long: v})
	return makeID(TableLong, len(t.longs)-1)
}

// InternFloat interns (or reuses) a REAL literal's compact encoding.
func (t *Table) InternFloat(f Float) ID {
	for i, e := range t.floats {
		if e.float == f {
			return makeID(TableFloat, i)
		}
	}
	t.floats = append(t.floats, entry{float: f})
	return makeID(TableFloat, len(t.floats)-1)
}

// InternString interns (or reuses) a STRING literal and advances the
// string-offset counter on first sight only, so re-use of an identical
// literal does not inflate the code image.
func (t *Table) InternString(s string) ID {
	for i, e := range t.strings {
		if e.str == s {
			return makeID(TableStr, i)
		}
	}
	off := t.stringOffset
	// Strings are stored little-endian packed into 4-byte words, so each
	// byte plus a NUL terminator consumes ceil((len+1)/4) words of
	// 4 bytes each when computing the absolute address of the *next*
	// string.
	t.strings = append(t.strings, entry{str: s, strOffset: off})
	words := (len(s) + 1 + 3) / 4
	t.stringOffset += int32(words) * 4
	return makeID(TableStr, len(t.strings)-1)
}

// Long returns the value registered for a long-table ID.
func (t *Table) Long(id ID) int32 { return t.longs[id.OffsetOf()].long }

// Float returns the value registered for a float-table ID.
func (t *Table) Float(id ID) Float { return t.floats[id.OffsetOf()].float }

// String returns the value registered for a string-table ID.
func (t *Table) String(id ID) string { return t.strings[id.OffsetOf()].str }

// StringOffset returns the byte offset of a string constant within the
// serialized string pool — its absolute address inside the final code
// image once the pool is placed.
func (t *Table) StringOffset(id ID) int32 { return t.strings[id.OffsetOf()].strOffset }

// StringBytes returns the raw bytes of every interned string, in insertion
// order, NUL-terminated and padded to a 4-byte boundary — the layout
// internal/serializer packs into little-endian 32-bit words.
func (t *Table) StringBytes() []byte {
	out := make([]byte, 0, t.stringOffset)
	for _, e := range t.strings {
		out = append(out, []byte(e.str)...)
		out = append(out, 0)
		for len(out)%4 != 0 {
			out = append(out, 0)
		}
	}
	return out
}

// TotalStringBytes returns the size in bytes of the serialized string pool.
func (t *Table) TotalStringBytes() int32 { return t.stringOffset }
