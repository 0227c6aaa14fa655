package optim

import (
	"testing"

	"minilax/internal/tac"
)

func long(id int32) tac.Operand  { return tac.Operand{Kind: tac.KLong, Value: id} }
func konst(v int32) tac.Operand  { return tac.Operand{Kind: tac.KConst, Value: v} }

func TestCopyPropagationRemovesDeadCopy(t *testing.T) {
	// t1 := 5; t2 := t1; t3 := t2 + 0  -->  both copies propagate into the
	// add, so no ASSIGN into t2 survives.
	prog := &tac.Program{Code: []tac.Instruction{
		{Op: tac.Assign, Dst: long(1), A: konst(5)},
		{Op: tac.Assign, Dst: long(2), A: long(1)},
		{Op: tac.BinaryOp, Binary: tac.Add, Dst: long(3), A: long(2), B: konst(0)},
	}}

	out := Optimize(prog)

	for _, ins := range out.Code {
		if ins.Op == tac.Assign && ins.Dst.Kind == tac.KLong && ins.Dst.Value == 2 {
			t.Fatalf("expected the dead copy into t2 to be folded away, got %+v", out.Code)
		}
	}
}

func TestConstantFoldingComputesLiteralArithmetic(t *testing.T) {
	prog := &tac.Program{Code: []tac.Instruction{
		{Op: tac.BinaryOp, Binary: tac.Add, Dst: long(1), A: konst(2), B: konst(3)},
	}}

	out := Optimize(prog)

	if len(out.Code) != 1 {
		t.Fatalf("expected one surviving instruction, got %d: %+v", len(out.Code), out.Code)
	}
	ins := out.Code[0]
	if ins.Op != tac.Assign || ins.A.Kind != tac.KConst || ins.A.Value != 5 {
		t.Fatalf("expected ASSIGN t1, #5, got %+v", ins)
	}
}

func TestAddressFusionBuildsIndexedOperand(t *testing.T) {
	// t2 := R5 + 8; t3 := *t2  -->  t3 := R5[2] (offset 8 scaled by width 4)
	reg := tac.Operand{Kind: tac.KReg, Value: 5}
	prog := &tac.Program{Code: []tac.Instruction{
		{Op: tac.BinaryOp, Binary: tac.Add, Dst: long(2), A: reg, B: konst(8)},
		{Op: tac.Assign, Dst: long(3), A: tac.Operand{Kind: tac.KLong, Value: 2, Indirect: true, BaseKind: tac.KLong}},
	}}

	out := Optimize(prog)

	found := false
	for _, ins := range out.Code {
		if ins.Op == tac.Assign && ins.A.Indexed && ins.A.BaseKind == tac.KReg && ins.A.Value == 5 && ins.A.Offset == 2 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the load to fuse into an indexed operand on R5, got %+v", out.Code)
	}
}

func TestOptimizeIsIdempotent(t *testing.T) {
	prog := &tac.Program{Code: []tac.Instruction{
		{Op: tac.Assign, Dst: long(1), A: konst(5)},
		{Op: tac.BinaryOp, Binary: tac.Add, Dst: long(2), A: long(1), B: konst(3)},
	}}

	once := Optimize(prog)
	twice := Optimize(once)

	if len(once.Code) != len(twice.Code) {
		t.Fatalf("optimizing twice changed instruction count: %d vs %d", len(once.Code), len(twice.Code))
	}
}

func TestOptimizeDoesNotMutateInput(t *testing.T) {
	prog := &tac.Program{Code: []tac.Instruction{
		{Op: tac.Assign, Dst: long(1), A: konst(5)},
		{Op: tac.Assign, Dst: long(2), A: long(1)},
	}}
	originalLen := len(prog.Code)

	Optimize(prog)

	if len(prog.Code) != originalLen {
		t.Fatalf("Optimize mutated its input program")
	}
}
