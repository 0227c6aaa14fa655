package ast

import (
	"minilax/internal/consttab"
	"minilax/internal/symtab"
)

// Op enumerates the type-checked operators; NOT uses EBinary with RHS ==
// nil (the same generic node doubles for unary NOT, setting only LHS —
// mirroring parser.c's parse_factor/OP_NOT).
type Op int

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpConcat
	OpLT
	OpLE
	OpEQ
	OpGE
	OpGT
	OpNot
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpMod:
		return "%"
	case OpConcat:
		return "++"
	case OpLT:
		return "<"
	case OpLE:
		return "<="
	case OpEQ:
		return "=="
	case OpGE:
		return ">="
	case OpGT:
		return ">"
	case OpNot:
		return "NOT"
	default:
		return "?"
	}
}

// Coercion records the implicit numeric coercion the type checker inserted
// on an expression: OK, ERROR, or INT_TO_REAL.
type Coercion int

const (
	CoOK Coercion = iota
	CoError
	CoIntToReal
)

// ExprTag enumerates the Expr variants.
type ExprTag int

const (
	EBinary ExprTag = iota
	EIfThenElse
	EFunCall
	EIntConst
	ERealConst
	EBoolConst
	EStringConst
	EIndex
	EFormat
)

// Expr is the atn_expr tagged node. Type and Coercion are filled in by the
// type checker: after type checking every Expr carries a type pointer and
// a coercion.
type Expr struct {
	Tag ExprTag

	// EBinary (and unary NOT, with RHS == nil)
	Op  Op
	LHS *Expr
	RHS *Expr

	// EIfThenElse
	If   *Expr
	Then *Expr
	Else *Expr

	// EFunCall
	Name    string
	Ident   symtab.Merkmal
	Actuals []*Expr
	Callee  *Object

	// EIntConst
	IntVal int32

	// ERealConst
	RealID consttab.ID

	// EBoolConst
	BoolVal bool

	// EStringConst
	StringID consttab.ID

	// EIndex
	Index *Index

	// EFormat
	FormatArg *Expr

	Type     *Type
	Coercion Coercion

	// OpType records the operand type an EBinary operator actually computes
	// over — distinct from Type, which for a relational operator is always
	// BOOLEAN. Mirrors typechk.c's per-node op_type, used downstream to pick
	// the right TAC/CBAM instruction family for the same source operator.
	OpType TypeTag

	Ln int
}

func (e *Expr) Line() int { return e.Ln }

// IndexTag enumerates the Index variants: Name{ident} | Index{inner, expr}.
type IndexTag int

const (
	IxName IndexTag = iota
	IxIndex
)

// Index is the atn_index tagged node. After type checking it carries the
// type produced by that selection.
type Index struct {
	Tag IndexTag

	// IxName
	Name   string
	Ident  symtab.Merkmal
	Object *Object

	// IxIndex
	Inner *Index
	Sub   *Expr

	Type     *Type
	Coercion Coercion
	Ln       int
}

func (i *Index) Line() int { return i.Ln }

// Depth returns the number of IxIndex layers wrapping the root IxName —
// i.e. the number of subscripts applied so far.
func (i *Index) Depth() int {
	d := 0
	for i != nil && i.Tag == IxIndex {
		d++
		i = i.Inner
	}
	return d
}

// Root returns the IxName at the base of an Index chain.
func (i *Index) Root() *Index {
	for i != nil && i.Tag == IxIndex {
		i = i.Inner
	}
	return i
}
