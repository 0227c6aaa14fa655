package cbam

import (
	"testing"

	"minilax/internal/diag"
	"minilax/internal/tac"
)

func longOp(id int32) tac.Operand  { return tac.Operand{Kind: tac.KLong, Value: id} }
func floatOp(id int32) tac.Operand { return tac.Operand{Kind: tac.KFloat, Value: id} }
func constOp(v int32) tac.Operand  { return tac.Operand{Kind: tac.KConst, Value: v} }

func lowerFor(t *testing.T, code []tac.Instruction, labelCount int32) (*Program, *diag.Reporter) {
	t.Helper()
	rep := diag.New(nil)
	out := Lower(&tac.Program{Code: code, LabelCount: labelCount}, rep)
	return out, rep
}

func TestLowerAssignPicksWidthByDestination(t *testing.T) {
	out, rep := lowerFor(t, []tac.Instruction{
		{Op: tac.Assign, Dst: longOp(1), A: constOp(5)},
		{Op: tac.Assign, Dst: floatOp(2), A: longOp(1)},
	}, 0)
	if rep.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", rep.Records())
	}
	if len(out.Code) != 2 {
		t.Fatalf("expected 2 instructions, got %d: %+v", len(out.Code), out.Code)
	}
	if out.Code[0].Op != MOVL {
		t.Errorf("expected long ASSIGN to lower to MOVL, got %v", out.Code[0].Op)
	}
	if out.Code[1].Op != MOVF {
		t.Errorf("expected float ASSIGN to lower to MOVF, got %v", out.Code[1].Op)
	}
}

func TestLinearScanReusesExpiredRegister(t *testing.T) {
	// t1 dies at instruction 0; t2's first use at instruction 1 should be
	// free to reuse register 0.
	code := []tac.Instruction{
		{Op: tac.Assign, Dst: longOp(1), A: constOp(1)},
		{Op: tac.Assign, Dst: longOp(2), A: constOp(2)},
	}
	lv := computeLiveness(code)
	rep := diag.New(nil)
	alloc := allocateRegisters(code, lv, rep)
	if rep.HasErrors() {
		t.Fatalf("unexpected register exhaustion: %v", rep.Records())
	}
	if alloc.longReg[1] != alloc.longReg[2] {
		t.Errorf("expected t1's expired register to be reused for t2: t1=%d t2=%d", alloc.longReg[1], alloc.longReg[2])
	}
}

func TestRegisterExhaustionReportsFatal(t *testing.T) {
	// generalRegisters live long temps all alive simultaneously at the same
	// instruction index, plus one more: the allocator must run out.
	var code []tac.Instruction
	for i := int32(0); i < generalRegisters+1; i++ {
		code = append(code, tac.Instruction{Op: tac.Assign, Dst: longOp(i), A: constOp(i)})
	}
	// The chained adds below keep every temp live until it is folded into
	// t0; the instruction built here is never appended to code.
	var ins tac.Instruction
	ins.Op = tac.BinaryOp
	ins.Binary = tac.Add
	ins.Dst = longOp(0)
	ins.A = longOp(0)
	for i := int32(1); i < generalRegisters+1; i++ {
		// fold extra temps in one at a time via chained adds so all remain live
		code = append(code, tac.Instruction{Op: tac.BinaryOp, Binary: tac.Add, Dst: longOp(0), A: longOp(0), B: longOp(i)})
	}

	lv := computeLiveness(code)
	rep := diag.New(nil)
	allocateRegisters(code, lv, rep)

	if !rep.HasErrors() {
		t.Fatalf("expected register exhaustion to be reported")
	}
	found := false
	for _, rec := range rep.Records() {
		if rec.Code == diag.ENoFreeRegister {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ENoFreeRegister, got %v", rep.Records())
	}
}

func TestPowerOfTwoMultLowersToShift(t *testing.T) {
	out, _ := lowerFor(t, []tac.Instruction{
		{Op: tac.BinaryOp, Binary: tac.Mult, Dst: longOp(1), A: longOp(2), B: constOp(4)},
	}, 0)
	var shifts int
	for _, ins := range out.Code {
		if ins.Op == SHLL {
			shifts++
		}
		if ins.Op == MATHOP {
			t.Fatalf("expected power-of-two MULT to avoid MATHOP, got %+v", out.Code)
		}
	}
	if shifts != 2 {
		t.Fatalf("expected 2 SHLL for *4, got %d", shifts)
	}
}

func TestNonPowerOfTwoMultUsesMathop(t *testing.T) {
	out, _ := lowerFor(t, []tac.Instruction{
		{Op: tac.BinaryOp, Binary: tac.Mult, Dst: longOp(1), A: longOp(2), B: constOp(3)},
	}, 0)
	found := false
	for _, ins := range out.Code {
		if ins.Op == MATHOP && len(ins.Operands) > 0 && ins.Operands[0].Value == MathLongMult {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected MATHOP MathLongMult for *3, got %+v", out.Code)
	}
}

func TestCondEqualityEmitsNotBeforeBsany(t *testing.T) {
	out, _ := lowerFor(t, []tac.Instruction{
		{Op: tac.Cond, Rel: tac.REq, A: longOp(1), B: longOp(2), Dst: tac.Operand{Kind: tac.KLabel, Value: 1}},
	}, 2)

	var sawNot, sawBsany bool
	for _, ins := range out.Code {
		if ins.Op == NOT {
			sawNot = true
		}
		if ins.Op == BSANY {
			sawBsany = true
			if !sawNot {
				t.Fatalf("expected NOT before BSANY for REq, got %+v", out.Code)
			}
			if ins.Operands[1].Value != 2 {
				t.Errorf("expected BSANY bit pattern 2 for REq, got %+v", ins)
			}
		}
	}
	if !sawBsany {
		t.Fatalf("expected a BSANY instruction, got %+v", out.Code)
	}
}

func TestNestedCallsSaveRegistersPerFrame(t *testing.T) {
	// FRAME/JSR(outer) wraps FRAME/JSR(inner) — as genCallAny emits when an
	// actual parameter is itself a call — and a long temp computed before the
	// outer FRAME stays live across both.
	code := []tac.Instruction{
		{Op: tac.Assign, Dst: longOp(1), A: constOp(7)}, // stays live across both calls
		{Op: tac.Frame, A: tac.Operand{Kind: tac.KConst, Value: 0}, B: constOp(0)},
		{Op: tac.Frame, A: tac.Operand{Kind: tac.KConst, Value: 0}, B: constOp(0)},
		{Op: tac.Jsr, A: tac.Operand{Kind: tac.KLabel, Value: 1}},
		{Op: tac.Jsr, A: tac.Operand{Kind: tac.KLabel, Value: 2}},
		{Op: tac.BinaryOp, Binary: tac.Add, Dst: longOp(2), A: longOp(1), B: longOp(1)},
	}

	out, rep := lowerFor(t, code, 3)
	if rep.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", rep.Records())
	}

	var pushes, pops int
	for _, ins := range out.Code {
		if ins.Op == PUSHL {
			pushes++
		}
		if ins.Op == POPL {
			pops++
		}
	}
	if pushes == 0 || pushes != pops {
		t.Fatalf("expected balanced PUSHL/POPL across nested calls, got pushes=%d pops=%d: %+v", pushes, pops, out.Code)
	}
}
