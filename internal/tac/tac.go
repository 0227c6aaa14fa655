// Package tac lowers a type-checked AST into three-address code: a flat
// list of register-free operations over an unbounded pool of typed
// temporaries, plus the two trampolines (range-check, string output) every
// unit needs at most once. internal/optim folds and simplifies this list;
// internal/cbam performs register allocation and expands it into CBAM.
package tac

import (
	"minilax/internal/consttab"
)

// Label names a position in the Code slice, resolved to a byte address by
// internal/serializer after internal/cbam has run.
type Label int32

// Kind tags what an Operand's Value field means. This replaces the
// original's bitmask-derived oVLONG/oVLONG_IND/oVLONG_IX family with a
// plain enum plus explicit Indirect/Indexed flags — the indirection mode
// and the operand's kind are independent axes, and keeping them as separate
// fields reads better than a combinatorial tag for every (kind, mode) pair.
type Kind int

const (
	KConst      Kind = iota // Value is a literal INTEGER/BOOLEAN constant
	KConstFloat             // Value/Offset hold a consttab.Float's Mantissa/Exponent
	KLong                   // Value is a long-width (INTEGER/address) temp id
	KFloat                  // Value is a float-width (REAL) temp id, occupies 2 registers
	KByte                   // Value is a byte-width (BOOLEAN) temp id
	KLabel                  // Value is a Label id
	KReg                    // Value is a fixed machine register (SP=29, AP=30, ...)
	KStringID               // Value is a consttab.ID for the string table
)

// Operand is one operation argument. Indirect reads/writes through the
// addressed location; Indexed adds a constant scaled displacement (Offset)
// to it — the two combine the same way CBAM's own addressing modes do,
// letting internal/cbam map an Operand onto an addressing mode almost
// mechanically.
//
// When Indirect or Indexed is set, Value names the register supplying the
// address, and BaseKind says which namespace it lives in: KReg when Value
// is already a physical machine register (SP/AP), KLong when Value is a
// virtual long temp that register allocation must still resolve. Kind
// itself then carries only the *width* of the value being loaded/stored
// through that address (which may differ from BaseKind, e.g. a KFloat
// value stored through a KLong-held base address) — internal/cbam must
// resolve registers by (BaseKind, Value) for addressed operands and by
// (Kind, Value) for plain ones, never by Kind alone once an addressing
// mode applies.
type Operand struct {
	Kind     Kind
	Value    int32
	Indirect bool
	Indexed  bool
	Offset   int32
	BaseKind Kind
}

func longOp(id int32) Operand   { return Operand{Kind: KLong, Value: id} }
func floatOp(id int32) Operand  { return Operand{Kind: KFloat, Value: id} }
func constOp(v int32) Operand   { return Operand{Kind: KConst, Value: v} }
func regOp(n int32) Operand     { return Operand{Kind: KReg, Value: n} }
func labelOp(l Label) Operand   { return Operand{Kind: KLabel, Value: int32(l)} }
func stringOp(id consttab.ID) Operand { return Operand{Kind: KStringID, Value: int32(id)} }

func constFloatOp(f consttab.Float) Operand {
	return Operand{Kind: KConstFloat, Value: int32(f.Mantissa), Offset: f.Exponent}
}

// deref reinterprets addr as a pointer and reads/writes the location it
// points to at the given width. The width lives on the result, not on addr
// itself, since addr is always produced as a plain address-holding KLong
// temp (or a fixed register) regardless of what it ends up pointing at.
func deref(width Kind, addr Operand) Operand {
	return Operand{Kind: width, Value: addr.Value, Indirect: true, BaseKind: addr.Kind}
}

// indexedAs adds a constant scaled displacement to a register-held base
// address, storing/loading a value of the given width through it — used
// for the FRAME-relative actual-parameter stores in genCallAny and the
// stack-relative stores in genWriteArg/genFormat. width and base.Kind are
// independent: a REAL actual passed through a long-typed frame-base
// register stores a KFloat value (width) through a KLong base (BaseKind).
func indexedAs(width Kind, base Operand, offset int32) Operand {
	return Operand{Kind: width, Value: base.Value, Indexed: true, Offset: offset, BaseKind: base.Kind}
}

// OpCode is a TAC operation's statement kind, mirroring a3_stat_type.
type OpCode int

const (
	Assign OpCode = iota
	UnaryOp
	BinaryOp
	Goto
	Cond
	Frame
	Jsr
	Rts
	Halt
	PopL
	PopF
	PushL
	PushF

	// NoOp marks an instruction internal/optim has folded away. Its Labels,
	// if any, are migrated to the next live instruction at deletion time;
	// a NoOp itself never reaches internal/cbam (Optimize compacts the list).
	NoOp
)

// UnaryKind enumerates a3_operation_type's unary members.
type UnaryKind int

const (
	NoUnary UnaryKind = iota
	Neg
	LNot
	BNot
	Int2Float
)

// BinaryKind enumerates a3_operation_type's arithmetic/bitwise members.
type BinaryKind int

const (
	NoBinary BinaryKind = iota
	Add
	Sub
	Mult
	Div
	Mod
	Shl
	Shr
	BAnd
	BOr
)

// Rel enumerates a3_operation_type's relational members, used only by Cond.
type Rel int

const (
	NoRel Rel = iota
	RLower
	RLeq
	REq
	RGeq
	RGreater
)

// Instruction is one TAC operation. Not every field applies to every OpCode:
// Unary/Binary/Rel are mutually exclusive discriminators used only by
// UnaryOp/BinaryOp/Cond respectively; Dst doubles as a branch target for
// Goto/Cond. Labels lists the labels attached to this instruction by the
// generator's pending-label queue (see Generator.setLabel).
type Instruction struct {
	Op     OpCode
	Unary  UnaryKind
	Binary BinaryKind
	Rel    Rel
	Dst, A, B Operand
	Labels []Label
}

// Program is the TAC generator's output: a flat operation list plus the
// total number of labels minted, which internal/cbam and internal/serializer
// both need to size their label tables.
type Program struct {
	Code       []Instruction
	LabelCount int32
}
