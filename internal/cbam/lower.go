package cbam

import (
	"sort"

	"minilax/internal/diag"
	"minilax/internal/tac"
)

// tempRange is a virtual temporary's [first_use, last_use] instruction-index
// window, the live range linear-scan allocation needs. internal/tac does
// not track this itself (see its Generator doc comment); internal/cbam
// recovers it with one forward scan of the finished instruction list.
type tempRange struct{ first, last int }

type liveness struct {
	longs  map[int32]*tempRange
	floats map[int32]*tempRange
}

// computeLiveness scans every operand of every instruction once. An operand
// that addresses through a base (Indirect or Indexed) contributes a use of
// the base register named by (BaseKind, Value), never of its own Kind/Value
// — that pair only describes the *width* of the value read or written
// through the address (see tac.Operand's doc comment).
func computeLiveness(code []tac.Instruction) *liveness {
	lv := &liveness{longs: map[int32]*tempRange{}, floats: map[int32]*tempRange{}}

	touch := func(o tac.Operand, idx int) {
		kind, value := o.Kind, o.Value
		if o.Indirect || o.Indexed {
			kind, value = o.BaseKind, o.Value
		}
		switch kind {
		case tac.KLong:
			r, ok := lv.longs[value]
			if !ok {
				r = &tempRange{first: idx}
				lv.longs[value] = r
			}
			r.last = idx
		case tac.KFloat:
			r, ok := lv.floats[value]
			if !ok {
				r = &tempRange{first: idx}
				lv.floats[value] = r
			}
			r.last = idx
		}
	}

	for i, ins := range code {
		touch(ins.Dst, i)
		touch(ins.A, i)
		touch(ins.B, i)
	}
	return lv
}

// regSpan is one register assignment's occupied instruction-index window,
// recorded so FRAME's register-save logic can ask "is register r still
// holding a value the program needs past this call?".
type regSpan struct{ first, last int }

// allocator is the outcome of linear-scan register allocation over a TAC
// program's temporary pool, following threeadr.c's a3_codegen register-
// expiry loop: registerL[]/registerF[] become longReg/floatReg, reg_exp[]
// becomes the expire scratch array used only during allocation.
type allocator struct {
	longReg  map[int32]int32
	floatReg map[int32]int32
	spans    [generalRegisters][]regSpan
}

// allocateRegisters performs one forward scan over code, assigning each
// temporary a register at its first_use the moment a previously assigned
// register's expiry has passed: scanning operations in forward order, at
// each temporary's first_use it picks any general register whose
// expires_at <= the current index. Long and float temps are
// interleaved by the instruction index their first_use falls on, matching
// a3_codegen's single combined scan rather than allocating all longs and
// then all floats as two independent passes.
func allocateRegisters(code []tac.Instruction, lv *liveness, rep *diag.Reporter) *allocator {
	a := &allocator{longReg: map[int32]int32{}, floatReg: map[int32]int32{}}
	expire := make([]int, generalRegisters)

	byIndexLong := map[int][]int32{}
	for id, r := range lv.longs {
		byIndexLong[r.first] = append(byIndexLong[r.first], id)
	}
	byIndexFloat := map[int][]int32{}
	for id, r := range lv.floats {
		byIndexFloat[r.first] = append(byIndexFloat[r.first], id)
	}
	for _, ids := range byIndexLong {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	for _, ids := range byIndexFloat {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}

	for i := range code {
		for _, id := range byIndexLong[i] {
			last := lv.longs[id].last
			reg := -1
			for j := 0; j < generalRegisters; j++ {
				if expire[j] <= i {
					reg = j
					break
				}
			}
			if reg < 0 {
				rep.Log(diag.Fatal, diag.System, diag.ENoFreeRegister, "", 0)
				reg = 0
			}
			expire[reg] = last
			a.longReg[id] = int32(reg)
			a.spans[reg] = append(a.spans[reg], regSpan{first: i, last: last})
		}
		for _, id := range byIndexFloat[i] {
			last := lv.floats[id].last
			reg := -1
			for j := 0; j+1 < generalRegisters; j += 2 {
				if expire[j] <= i && expire[j+1] <= i {
					reg = j
					break
				}
			}
			if reg < 0 {
				rep.Log(diag.Fatal, diag.System, diag.ENoFreeRegister, "", 0)
				reg = 0
			}
			expire[reg], expire[reg+1] = last, last
			a.floatReg[id] = int32(reg)
			a.spans[reg] = append(a.spans[reg], regSpan{first: i, last: last})
			a.spans[reg+1] = append(a.spans[reg+1], regSpan{first: i, last: last})
		}
	}
	return a
}

// liveAcross reports, in ascending register order, every general register
// still holding a value at instruction index at that remains needed strictly
// after jsrPos — the set FRAME must save across a JSR to a user procedure:
// every general register still live past the subsequent JSR gets pushed.
func (a *allocator) liveAcross(at, jsrPos int) []int32 {
	var regs []int32
	for r := 0; r < generalRegisters; r++ {
		for _, sp := range a.spans[r] {
			if sp.first <= at && sp.last > jsrPos {
				regs = append(regs, int32(r))
				break
			}
		}
	}
	return regs
}

func (a *allocator) resolveReg(kind tac.Kind, value int32) int32 {
	switch kind {
	case tac.KReg:
		return value
	case tac.KFloat:
		if r, ok := a.floatReg[value]; ok {
			return r
		}
	default: // KLong, KByte (KByte only ever appears as a width tag, never bare)
		if r, ok := a.longReg[value]; ok {
			return r
		}
	}
	return 0
}

// lowerer expands one TAC instruction at a time into CBAM instructions,
// threading the FRAME/JSR register-save state between the two TAC ops that
// make up one call: after the JSR, saved registers pop back in reverse.
// saveStack is a stack rather than a single slot because an actual-parameter
// expression can itself contain a call, nesting one FRAME/JSR pair inside
// another (see matchingJsr).
type lowerer struct {
	alloc         *allocator
	code          []Instruction
	pendingLabels []tac.Label
	saveStack     [][]int32
}

func (l *lowerer) emit(op Opcode, operands ...Operand) {
	ins := Instruction{Op: op, Operands: operands}
	if len(l.pendingLabels) > 0 {
		ins.Labels = append(ins.Labels, l.pendingLabels...)
		l.pendingLabels = nil
	}
	l.code = append(l.code, ins)
}

// resolveOperand maps a TAC operand onto a CBAM operand, following
// a3_add_operand_code: literals pass through as-is, a plain
// virtual temp resolves through the allocator, and an Indirect/Indexed
// operand resolves its *base* register via BaseKind/Value rather than its
// own Kind/Value (see tac.Operand's doc comment).
func (l *lowerer) resolveOperand(o tac.Operand) Operand {
	if o.Indirect && o.Indexed {
		r := l.alloc.resolveReg(o.BaseKind, o.Value)
		return Operand{Mode: ModePreIdxInd, Kind: VReg, Value: r, Offset: o.Offset}
	}
	if o.Indirect {
		r := l.alloc.resolveReg(o.BaseKind, o.Value)
		return Operand{Mode: ModeInd, Kind: VReg, Value: r}
	}
	if o.Indexed {
		r := l.alloc.resolveReg(o.BaseKind, o.Value)
		return Operand{Mode: ModeIdx, Kind: VReg, Value: r, Offset: o.Offset}
	}

	switch o.Kind {
	case tac.KConst:
		return lit(o.Value)
	case tac.KConstFloat:
		return litFloat(o.Value, o.Offset)
	case tac.KReg:
		return reg(o.Value)
	case tac.KLabel:
		return label(tac.Label(o.Value))
	case tac.KStringID:
		return stringID(o.Value)
	case tac.KFloat:
		return reg(l.alloc.resolveReg(tac.KFloat, o.Value))
	default: // KLong, KByte
		return reg(l.alloc.resolveReg(tac.KLong, o.Value))
	}
}

// Lower expands optimized (or raw) TAC into CBAM, performing register
// allocation in its own pass before the lowering pass.
func Lower(prog *tac.Program, rep *diag.Reporter) *Program {
	lv := computeLiveness(prog.Code)
	alloc := allocateRegisters(prog.Code, lv, rep)
	l := &lowerer{alloc: alloc}

	for i := 0; i < len(prog.Code); i++ {
		ins := prog.Code[i]
		if len(ins.Labels) > 0 {
			l.pendingLabels = append(l.pendingLabels, ins.Labels...)
		}
		switch ins.Op {
		case tac.Assign:
			l.lowerAssign(ins)
		case tac.UnaryOp:
			l.lowerUnary(ins)
		case tac.BinaryOp:
			l.lowerBinary(ins)
		case tac.Goto:
			l.emit(JMP, l.resolveOperand(ins.A))
		case tac.Cond:
			l.lowerCond(ins)
		case tac.Frame:
			l.lowerFrame(prog.Code, i, ins)
		case tac.Jsr:
			l.lowerJsr(ins)
		case tac.Rts:
			l.emit(RTS, l.resolveOperand(ins.A))
		case tac.Halt:
			l.emit(HALT, l.resolveOperand(ins.A))
		case tac.PopL:
			l.emit(POPL)
		case tac.PopF:
			l.emit(POPF)
		case tac.PushL:
			l.emit(PUSHL, l.resolveOperand(ins.A))
		case tac.PushF:
			l.emit(PUSHF, l.resolveOperand(ins.A))
		case tac.NoOp:
			// internal/optim always compacts these away; ignored defensively.
		}
	}

	return &Program{Code: l.code, LabelCount: prog.LabelCount}
}

// lowerAssign picks MOVB/MOVF/MOVL by the destination's declared width:
// a byte assignment becomes MOVB, a long becomes MOVL, and any operand of
// float type becomes MOVF.
func (l *lowerer) lowerAssign(ins tac.Instruction) {
	switch ins.Dst.Kind {
	case tac.KByte:
		l.emit(MOVB, l.resolveOperand(ins.Dst), l.resolveOperand(ins.A))
	case tac.KFloat:
		l.emit(MOVF, l.resolveOperand(ins.Dst), l.resolveOperand(ins.A))
	default:
		l.emit(MOVL, l.resolveOperand(ins.Dst), l.resolveOperand(ins.A))
	}
}

func (l *lowerer) lowerUnary(ins tac.Instruction) {
	switch ins.Unary {
	case tac.Neg:
		if ins.Dst.Kind != tac.KFloat {
			l.emit(NEGL, l.resolveOperand(ins.Dst), l.resolveOperand(ins.A))
			return
		}
		l.emit(MOVF, reg(scratchF0), l.resolveOperand(ins.A))
		l.emit(MATHOP, lit(MathFloatNeg), l.resolveOperand(ins.Dst))
	case tac.BNot:
		l.emit(BNOTL, l.resolveOperand(ins.Dst), l.resolveOperand(ins.A))
	case tac.LNot:
		l.emit(BNOTL, l.resolveOperand(ins.Dst), l.resolveOperand(ins.A))
		l.emit(BANDL, l.resolveOperand(ins.Dst), l.resolveOperand(ins.Dst), lit(1))
	case tac.Int2Float:
		l.emit(MOVL, reg(scratchL0), l.resolveOperand(ins.A))
		l.emit(MATHOP, lit(MathInt2Float), l.resolveOperand(ins.Dst))
	}
}

func (l *lowerer) lowerBinary(ins tac.Instruction) {
	if ins.Dst.Kind == tac.KFloat {
		l.lowerBinaryFloat(ins)
		return
	}
	l.lowerBinaryLong(ins)
}

// powerOfTwoShift reports the shift count for a constant operand whose
// value is 2, 4, or 8 — the only values a3_codegen's MULT/DIV special case
// recognizes, turning a MULT long by a power-of-two constant into a
// sequence of SHLL.
func powerOfTwoShift(o tac.Operand) (int, bool) {
	if o.Kind != tac.KConst {
		return 0, false
	}
	switch o.Value {
	case 2:
		return 1, true
	case 4:
		return 2, true
	case 8:
		return 3, true
	}
	return 0, false
}

func (l *lowerer) lowerBinaryLong(ins tac.Instruction) {
	dst := l.resolveOperand(ins.Dst)
	a := l.resolveOperand(ins.A)
	b := l.resolveOperand(ins.B)

	switch ins.Binary {
	case tac.Add:
		l.emit(ADDL, dst, a, b)
	case tac.Sub:
		l.emit(NEGL, dst, b)
		l.emit(ADDL, dst, a, dst)
	case tac.Mult:
		if n, ok := powerOfTwoShift(ins.B); ok {
			l.emit(MOVL, dst, a)
			for k := 0; k < n; k++ {
				l.emit(SHLL, dst)
			}
			return
		}
		if n, ok := powerOfTwoShift(ins.A); ok {
			l.emit(MOVL, dst, b)
			for k := 0; k < n; k++ {
				l.emit(SHLL, dst)
			}
			return
		}
		l.emit(MOVL, reg(scratchL0), a)
		l.emit(MOVL, reg(scratchL1), b)
		l.emit(MATHOP, lit(MathLongMult), dst)
	case tac.Div:
		if n, ok := powerOfTwoShift(ins.B); ok {
			l.emit(MOVL, dst, a)
			for k := 0; k < n; k++ {
				l.emit(SHRL, dst)
			}
			return
		}
		l.emit(MOVL, reg(scratchL0), a)
		l.emit(MOVL, reg(scratchL1), b)
		l.emit(MATHOP, lit(MathLongDiv), dst)
	case tac.Mod:
		l.emit(MOVL, reg(scratchL0), a)
		l.emit(MOVL, reg(scratchL1), b)
		l.emit(MATHOP, lit(MathLongMod), dst)
	case tac.Shl:
		l.emit(MOVL, dst, a)
		for k := int32(0); k < ins.B.Value; k++ {
			l.emit(SHLL, dst)
		}
	case tac.Shr:
		l.emit(MOVL, dst, a)
		for k := int32(0); k < ins.B.Value; k++ {
			l.emit(SHRL, dst)
		}
	case tac.BAnd:
		l.emit(BANDL, dst, a, b)
	case tac.BOr:
		l.emit(BORL, dst, a, b)
	}
}

func (l *lowerer) lowerBinaryFloat(ins tac.Instruction) {
	l.emit(MOVF, reg(scratchF0), l.resolveOperand(ins.A))
	l.emit(MOVF, reg(scratchF1), l.resolveOperand(ins.B))

	var fn int32
	switch ins.Binary {
	case tac.Add:
		fn = MathFloatAdd
	case tac.Sub:
		fn = MathFloatSub
	case tac.Mult:
		fn = MathFloatMult
	case tac.Div:
		fn = MathFloatDiv
	}
	l.emit(MATHOP, lit(fn), l.resolveOperand(ins.Dst))
}

// relBits gives BSANY's per-relation test pattern: R_LOWER and
// R_GREATER share "6" because lowerCond always normalizes which side is
// negated so both end up testing "strictly positive"; R_LEQ/R_GEQ share "4"
// ("non-negative") the same way; R_EQ uses "2" and is preceded by NOT.
func relBits(r tac.Rel) int32 {
	switch r {
	case tac.RLower, tac.RGreater:
		return 6
	case tac.RLeq, tac.RGeq:
		return 4
	case tac.REq:
		return 2
	}
	return 0
}

// lowerCond implements COND lowering. The subtraction direction
// is chosen per relation (B-A for LOWER/LEQ/EQ, A-B for GEQ/GREATER) so that
// LOWER and GREATER both reduce to "is the scratch result > 0", and LEQ/GEQ
// both reduce to "is it >= 0" — letting a single BSANY pattern per pair work
// regardless of which side of the comparison was which.
func (l *lowerer) lowerCond(ins tac.Instruction) {
	isFloat := ins.A.Kind == tac.KFloat || ins.A.Kind == tac.KConstFloat ||
		ins.B.Kind == tac.KFloat || ins.B.Kind == tac.KConstFloat

	first, second := ins.B, ins.A
	if ins.Rel == tac.RGeq || ins.Rel == tac.RGreater {
		first, second = ins.A, ins.B
	}

	if isFloat {
		l.emit(MOVF, reg(scratchF0), l.resolveOperand(first))
		l.emit(MOVF, reg(scratchF1), l.resolveOperand(second))
		l.emit(MATHOP, lit(MathFloatSub), reg(scratchL0))
	} else {
		l.emit(NEGL, reg(scratchL0), l.resolveOperand(second))
		l.emit(ADDL, reg(scratchL0), reg(scratchL0), l.resolveOperand(first))
	}

	if ins.Rel == tac.REq {
		l.emit(NOT)
	}
	bits := relBits(ins.Rel)
	l.emit(BSANY, lit(8), lit(bits), lit(bits))
	l.emit(JMP, l.resolveOperand(ins.Dst))
}

// matchingJsr finds the JSR that closes the FRAME at i. An actual-parameter
// expression can itself contain a call (genCallAny evaluates actuals after
// emitting FRAME), nesting another complete FRAME/JSR pair inside this one,
// so the search tracks nesting depth rather than stopping at the first JSR.
func matchingJsr(code []tac.Instruction, i int) int {
	depth := 0
	for j := i + 1; j < len(code); j++ {
		switch code[j].Op {
		case tac.Frame:
			depth++
		case tac.Jsr:
			if depth == 0 {
				return j
			}
			depth--
		}
	}
	return len(code)
}

// lowerFrame emits the register-save prologue before a call to a user
// PROCEDURE/FUNCTION: every general register still live past the matching
// JSR is pushed, padded to an even count, then restored (by lowerJsr) in
// reverse order after the call returns. A call to one of the fixed
// negative-address trampolines never needs this, since those never return
// control past live compiler-managed registers in a way FRAME's caller
// still depends on mid-expression.
func (l *lowerer) lowerFrame(code []tac.Instruction, i int, ins tac.Instruction) {
	jsrPos := matchingJsr(code, i)

	var saved []int32
	if jsrPos < len(code) {
		target := code[jsrPos].A
		callsUser := target.Kind == tac.KLabel || (target.Kind == tac.KConst && target.Value >= 0)
		if callsUser {
			saved = l.alloc.liveAcross(i, jsrPos)
			for _, r := range saved {
				l.emit(PUSHL, reg(r))
			}
			if len(saved)%2 == 1 {
				l.emit(PUSHL, reg(0))
			}
		}
	}

	l.emit(FRAME, l.resolveOperand(ins.A), l.resolveOperand(ins.B))
	l.saveStack = append(l.saveStack, saved)
}

// lowerJsr transfers control, then restores whatever the matching lowerFrame
// saved, in reverse push order: after the JSR, saved registers pop back in
// reverse. The innermost open FRAME always closes first, so a plain stack
// pop finds the right save set even with nested calls.
func (l *lowerer) lowerJsr(ins tac.Instruction) {
	l.emit(JSR, l.resolveOperand(ins.A))

	var saved []int32
	if n := len(l.saveStack); n > 0 {
		saved = l.saveStack[n-1]
		l.saveStack = l.saveStack[:n-1]
	}
	if len(saved) == 0 {
		return
	}
	if len(saved)%2 == 1 {
		l.emit(POPL)
	}
	for k := len(saved) - 1; k >= 0; k-- {
		l.emit(POPL)
		l.emit(MOVL, reg(saved[k]), regInd(regSP))
	}
}
