// Package optim implements the TAC peephole/base-block optimization pass,
// following threeadr.c's a3_optimize: partition the TAC stream into base
// blocks, then iterate three local rewrite rules to a per-block fixpoint —
// copy/constant substitution, algebraic constant folding, and base+const
// address fusion into CBAM-shaped indexed operands.
//
// Unlike the original, which free-lists and reuses dead code-list slots in
// place, this package marks folded instructions tac.NoOp and migrates their
// labels forward, then compacts the slice once at the end — a label on a
// deleted node migrates to the next live node, expressed without the
// original's mutable free-list bookkeeping.
package optim

import "minilax/internal/tac"

// Optimize returns a new *tac.Program with every base block folded to a
// local fixpoint: running it again on its own output is a no-op. prog is
// not mutated.
func Optimize(prog *tac.Program) *tac.Program {
	code := append([]tac.Instruction(nil), prog.Code...)

	for _, b := range blockBounds(code) {
		optimizeBlock(code, b.start, b.stop)
	}

	return &tac.Program{Code: compact(code), LabelCount: prog.LabelCount}
}

type block struct{ start, stop int } // optimizable range is code[start:stop]

// blockBounds partitions code into base blocks: a block runs from its
// first instruction up to, but not including, the control-flow instruction
// that ends it (GOTO/COND/JSR/RTS/HALT) — following a3_optimize's
// start/stop scan, which stops advancing once the current instruction is
// one of those five kinds or the next one carries a label.
func blockBounds(code []tac.Instruction) []block {
	var blocks []block
	n := len(code)
	i := 0
	for i < n {
		start := i
		for i+1 < n && len(code[i+1].Labels) == 0 && !isBoundary(code[i].Op) {
			i++
		}
		stop := i
		if !isBoundary(code[i].Op) {
			stop = i + 1
		}
		blocks = append(blocks, block{start: start, stop: stop})
		i++
	}
	return blocks
}

func isBoundary(op tac.OpCode) bool {
	switch op {
	case tac.Goto, tac.Cond, tac.Jsr, tac.Rts, tac.Halt:
		return true
	}
	return false
}

// optimizeBlock iterates the three rewrite passes over code[start:stop]
// until none of them find anything to change in a full pass.
func optimizeBlock(code []tac.Instruction, start, stop int) {
	for {
		changed := propagateCopies(code, start, stop)
		changed = foldConstants(code, start, stop) || changed
		changed = fuseAddresses(code, start, stop) || changed
		if !changed {
			return
		}
	}
}

// isTemp reports whether o identifies a virtual long temp used as a plain
// (non-indirect, non-indexed) operand — the only shape a3_optimize's first
// step ever substitutes as an ASSIGN destination.
func isTemp(o tac.Operand) bool {
	return o.Kind == tac.KLong && !o.Indirect && !o.Indexed
}

// isSimpleSrc reports whether o is simple enough to copy-propagate into
// every remaining reference of a temp it's assigned to: a constant,
// register, label, string id, or another plain long temp. Follows
// a3_optimize step one — float propagation is commented out in the
// original and isn't required here either, so KFloat is excluded.
func isSimpleSrc(o tac.Operand) bool {
	if o.Indirect || o.Indexed {
		return false
	}
	switch o.Kind {
	case tac.KConst, tac.KReg, tac.KLabel, tac.KStringID, tac.KLong:
		return true
	default:
		return false
	}
}

// matches reports whether o refers to the long temp value in the namespace
// a use actually lives in: BaseKind for an addressed operand, Kind otherwise
// (see tac.Operand's doc comment).
func matches(o tac.Operand, value int32) bool {
	if o.Indirect || o.Indexed {
		return o.BaseKind == tac.KLong && o.Value == value
	}
	return o.Kind == tac.KLong && o.Value == value
}

// countUses returns every instruction index at or after from referencing
// the long temp value, anywhere in the whole program — a substitution is
// only safe when there is exactly one such reference, referenced exactly
// once later in the block and nowhere outside it.
func countUses(code []tac.Instruction, value int32, from int) []int {
	var idx []int
	for i := from; i < len(code); i++ {
		ins := &code[i]
		if matches(ins.Dst, value) || matches(ins.A, value) || matches(ins.B, value) {
			idx = append(idx, i)
		}
	}
	return idx
}

func substitute(o *tac.Operand, value int32, repl tac.Operand) {
	if o.Indirect || o.Indexed {
		if o.BaseKind == tac.KLong && o.Value == value {
			o.BaseKind = repl.Kind
			o.Value = repl.Value
		}
		return
	}
	if o.Kind == tac.KLong && o.Value == value {
		*o = tac.Operand{Kind: repl.Kind, Value: repl.Value, Indirect: repl.Indirect, Indexed: repl.Indexed, Offset: repl.Offset, BaseKind: repl.BaseKind}
	}
}

// remove marks code[j] tac.NoOp and migrates any labels it carried onto the
// next instruction.
func remove(code []tac.Instruction, j int) {
	labels := code[j].Labels
	code[j] = tac.Instruction{Op: tac.NoOp}
	if len(labels) > 0 && j+1 < len(code) {
		code[j+1].Labels = append(labels, code[j+1].Labels...)
	}
}

// propagateCopies implements a3_optimize's step one: an ASSIGN of a simple
// value into a temp used exactly once afterward (and only inside this
// block) is inlined at its use site and the definition deleted.
func propagateCopies(code []tac.Instruction, start, stop int) bool {
	changed := false
	for j := start; j < stop; j++ {
		ins := &code[j]
		if ins.Op != tac.Assign || !isTemp(ins.Dst) || !isSimpleSrc(ins.A) {
			continue
		}
		uses := countUses(code, ins.Dst.Value, j+1)
		if len(uses) != 1 || uses[0] >= stop {
			continue
		}
		k := uses[0]
		substitute(&code[k].Dst, ins.Dst.Value, ins.A)
		substitute(&code[k].A, ins.Dst.Value, ins.A)
		substitute(&code[k].B, ins.Dst.Value, ins.A)
		remove(code, j)
		changed = true
	}
	return changed
}

func foldBinaryLong(op tac.BinaryKind, a, b int32) (int32, bool) {
	switch op {
	case tac.Add:
		return a + b, true
	case tac.Sub:
		return a - b, true
	case tac.Mult:
		return a * b, true
	case tac.Div:
		if b == 0 {
			return 0, false
		}
		return a / b, true
	case tac.Mod:
		if b == 0 {
			return 0, false
		}
		return a % b, true
	case tac.Shl:
		return a << uint32(b), true
	case tac.Shr:
		return a >> uint32(b), true
	case tac.BAnd:
		return a & b, true
	case tac.BOr:
		return a | b, true
	}
	return 0, false
}

// foldConstants implements a3_optimize's second step: a binary op over two
// constants collapses to ASSIGN; NEG of a constant folds the same way;
// ADD-with-zero and MULT-by-one collapse to a plain copy of the other side.
func foldConstants(code []tac.Instruction, start, stop int) bool {
	changed := false
	for j := start; j < stop; j++ {
		ins := &code[j]

		if ins.Op == tac.BinaryOp && isTemp(ins.Dst) && ins.A.Kind == tac.KConst && ins.B.Kind == tac.KConst {
			if v, ok := foldBinaryLong(ins.Binary, ins.A.Value, ins.B.Value); ok {
				dst := ins.Dst
				*ins = tac.Instruction{Op: tac.Assign, Dst: dst, A: tac.Operand{Kind: tac.KConst, Value: v}, Labels: ins.Labels}
				changed = true
				continue
			}
		}

		if ins.Op == tac.UnaryOp && ins.Unary == tac.Neg && ins.A.Kind == tac.KConst {
			dst := ins.Dst
			*ins = tac.Instruction{Op: tac.Assign, Dst: dst, A: tac.Operand{Kind: tac.KConst, Value: -ins.A.Value}, Labels: ins.Labels}
			changed = true
			continue
		}

		if ins.Op == tac.BinaryOp && isTemp(ins.Dst) && ins.Binary == tac.Add &&
			((ins.A.Kind == tac.KConst && ins.A.Value == 0) || (ins.B.Kind == tac.KConst && ins.B.Value == 0)) {
			other := ins.B
			if ins.B.Kind == tac.KConst && ins.B.Value == 0 {
				other = ins.A
			}
			dst := ins.Dst
			*ins = tac.Instruction{Op: tac.Assign, Dst: dst, A: other, Labels: ins.Labels}
			changed = true
			continue
		}

		if ins.Op == tac.BinaryOp && isTemp(ins.Dst) && ins.Binary == tac.Mult &&
			((ins.A.Kind == tac.KConst && ins.A.Value == 1) || (ins.B.Kind == tac.KConst && ins.B.Value == 1)) {
			other := ins.B
			if ins.B.Kind == tac.KConst && ins.B.Value == 1 {
				other = ins.A
			}
			dst := ins.Dst
			*ins = tac.Instruction{Op: tac.Assign, Dst: dst, A: other, Labels: ins.Labels}
			changed = true
			continue
		}
	}
	return changed
}

// fuseAddresses implements a3_optimize's third step: a temp computed as
// `base + const` (base a fixed or already-allocated register, const a
// literal displacement) and used exactly once more, as the address side of
// a dereferenced load or store, collapses into one indexed CBAM-shaped
// operand — `r := base[const/scale]` or its dual. scale is 8 for a
// float-width access, 4 otherwise.
func fuseAddresses(code []tac.Instruction, start, stop int) bool {
	changed := false
	for j := start; j < stop; j++ {
		ins := &code[j]
		if ins.Op != tac.BinaryOp || ins.Binary != tac.Add || !isTemp(ins.Dst) ||
			ins.A.Kind != tac.KReg || ins.B.Kind != tac.KConst {
			continue
		}
		uses := countUses(code, ins.Dst.Value, j+1)
		if len(uses) != 1 || uses[0] >= stop {
			continue
		}
		k := uses[0]
		use := &code[k]
		if use.Op != tac.Assign {
			continue
		}

		if use.A.Indirect && use.A.BaseKind == tac.KLong && use.A.Value == ins.Dst.Value {
			scale := scaleFor(use.A.Kind)
			use.A = tac.Operand{Kind: use.A.Kind, Value: ins.A.Value, Indexed: true, Offset: ins.B.Value / scale, BaseKind: tac.KReg}
			remove(code, j)
			changed = true
			continue
		}
		if use.Dst.Indirect && use.Dst.BaseKind == tac.KLong && use.Dst.Value == ins.Dst.Value {
			scale := scaleFor(use.A.Kind)
			use.Dst = tac.Operand{Kind: use.Dst.Kind, Value: ins.A.Value, Indexed: true, Offset: ins.B.Value / scale, BaseKind: tac.KReg}
			remove(code, j)
			changed = true
			continue
		}
	}
	return changed
}

func scaleFor(k tac.Kind) int32 {
	if k == tac.KFloat {
		return 8
	}
	return 4
}

// compact drops every tac.NoOp instruction, preserving order.
func compact(code []tac.Instruction) []tac.Instruction {
	out := make([]tac.Instruction, 0, len(code))
	for _, ins := range code {
		if ins.Op == tac.NoOp {
			continue
		}
		out = append(out, ins)
	}
	return out
}
