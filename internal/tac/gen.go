package tac

import (
	"minilax/internal/ast"
	"minilax/internal/consttab"
	"minilax/internal/diag"
)

// Generator walks a type-checked AST and emits TAC, following codegen.c's
// cogen_decl/cogen_stats/cogen_expr/cogen_index family. Unlike the
// original, it does not track per-temporary first/last-use windows while
// emitting: CBAM lowering is a forward liveness scan over the finished
// operation list, so internal/cbam computes that scan itself instead of
// inheriting eager bookkeeping from generation time.
type Generator struct {
	rep    *diag.Reporter
	consts *consttab.Table

	// noRangeChecks mirrors the compiler's `-R` flag: skip emitting the
	// bounds test genIndex would otherwise insert around every array
	// subscript.
	noRangeChecks bool

	code    []Instruction
	pending []Label

	labelCount int32
	nextLong   int32
	nextFloat  int32

	depth   uint16
	curDecl *ast.Decl

	haveStringCR    bool
	stringCR        consttab.ID
	haveRangeLabel  bool
	rangeCheckLabel Label
}

// Generate lowers a whole program to TAC, starting from its synthetic root
// procedure, following code_gen's top-level driver.
func Generate(prog *ast.Program, consts *consttab.Table, rep *diag.Reporter) *Program {
	return GenerateWithOptions(prog, consts, rep, false)
}

// GenerateWithOptions is Generate plus the `-R` disable-range-checks flag.
func GenerateWithOptions(prog *ast.Program, consts *consttab.Table, rep *diag.Reporter, noRangeChecks bool) *Program {
	g := &Generator{rep: rep, consts: consts, noRangeChecks: noRangeChecks}
	prog.Root.Object.Label = int32(g.newLabel())

	hasSub := false
	for _, d := range prog.Root.Decls {
		if d.Tag != ast.DeclVar {
			hasSub = true
			break
		}
	}
	if hasSub {
		g.emit(Instruction{Op: Goto, A: labelOp(Label(prog.Root.Object.Label))})
	}

	g.genDecl(prog.Root)

	return &Program{Code: g.code, LabelCount: g.labelCount}
}

func (g *Generator) newLabel() Label {
	g.labelCount++
	return Label(g.labelCount)
}

func (g *Generator) newLong() int32 {
	g.nextLong++
	return g.nextLong
}

func (g *Generator) newFloat() int32 {
	g.nextFloat++
	return g.nextFloat
}

// setLabel queues a label to attach to whatever instruction is emitted
// next — mirroring a3_set_label's "attach to the next op" behavior without
// the original's linked-list-per-op bookkeeping.
func (g *Generator) setLabel(l Label) {
	g.pending = append(g.pending, l)
}

func (g *Generator) emit(ins Instruction) {
	if len(g.pending) > 0 {
		ins.Labels = append(ins.Labels, g.pending...)
		g.pending = nil
	}
	g.code = append(g.code, ins)
}

// genDecl lays out one procedure/function's frame, recurses into its nested
// declarations, and generates its body, following cogen_decl.
func (g *Generator) genDecl(node *ast.Decl) {
	if node.Tag == ast.DeclVar {
		return
	}

	fr := &frame{}
	for _, formal := range node.Formals {
		align, length := formalWidth(formal.Type)
		formal.Object.Location = fr.insert(align, length)
	}
	formalsSpace := fr.length()
	node.Object.Location = formalsSpace

	for _, decl := range node.Decls {
		if decl.Tag == ast.DeclVar {
			decl.Object.Location = fr.insert(typeAlign(decl.Type), typeLength(decl.Type))
		}
	}
	variableSpace := fr.length()

	g.depth++
	for _, decl := range node.Decls {
		if decl.Tag != ast.DeclVar {
			if decl.Object.Label == 0 {
				decl.Object.Label = int32(g.newLabel())
			}
			g.genDecl(decl)
		}
	}
	g.depth--

	g.setLabel(Label(node.Object.Label))

	growth := variableSpace - formalsSpace
	if g.depth == 0 {
		growth += 4
	}
	if growth != 0 {
		g.emit(Instruction{Op: BinaryOp, Binary: Add, Dst: regOp(29), A: regOp(29), B: constOp(growth)})
	}

	prevDecl := g.curDecl
	g.curDecl = node
	returned := g.genStats(node.Stats)
	g.curDecl = prevDecl

	if returned {
		return
	}

	if node.Tag != ast.DeclFunc {
		if g.depth > 0 {
			g.emit(Instruction{Op: Rts, A: constOp(0)})
		} else {
			g.emit(Instruction{Op: Halt, A: constOp(0)})
		}
		return
	}

	g.rep.Log(diag.Warning, diag.Semantic, diag.EFuncNoReturn, "", node.Ln)
	switch node.Type.Unwrap().Tag {
	case ast.TBoolean, ast.TInteger:
		g.emit(Instruction{Op: BinaryOp, Binary: Add, Dst: regOp(29), A: regOp(29), B: constOp(4)})
		g.emit(Instruction{Op: Rts, A: constOp(1)})
	case ast.TReal:
		g.emit(Instruction{Op: BinaryOp, Binary: Add, Dst: regOp(29), A: regOp(29), B: constOp(8)})
		g.emit(Instruction{Op: Rts, A: constOp(2)})
	case ast.TArray:
		size := up4(typeLength(node.Type))
		g.emit(Instruction{Op: BinaryOp, Binary: Add, Dst: regOp(29), A: regOp(29), B: constOp(size)})
		g.emit(Instruction{Op: Rts, A: constOp(size / 4)})
	}
}

// genStats lowers a statement list in order, reporting unreachable code
// once after a RETURN/FAIL the way cogen_stats' trailing check does, and
// reports whether the list definitely returns.
func (g *Generator) genStats(stats []*ast.Stat) bool {
	returned := false
	for _, s := range stats {
		if returned {
			g.rep.Log(diag.Notice, diag.Semantic, diag.ENeverReached, "", s.Ln)
			break
		}
		switch s.Tag {
		case ast.StAssign:
			g.genAssign(s)
		case ast.StCall:
			g.genCallAny(s.Callee, s.Actuals)
		case ast.StIf:
			g.genIf(s)
		case ast.StWhile:
			g.genWhile(s)
		case ast.StRead:
			g.genRead(s)
		case ast.StWrite:
			g.genWrite(s, false)
		case ast.StWriteLn:
			g.genWrite(s, true)
		case ast.StReturn:
			g.genReturn(s)
			returned = true
		case ast.StFail:
			g.genFail(s)
			returned = true
		}
	}
	return returned
}

func (g *Generator) genAssign(st *ast.Stat) {
	rhs := g.genExpr(st.RHS)
	addr := g.genIndex(st.LHS)
	switch st.LHS.Type.Unwrap().Tag {
	case ast.TArray:
		g.genCopyArray(addr, rhs, st.LHS.Type.Unwrap())
	case ast.TReal:
		g.emit(Instruction{Op: Assign, Dst: deref(KFloat, addr), A: rhs})
	case ast.TBoolean:
		g.emit(Instruction{Op: Assign, Dst: deref(KByte, addr), A: rhs})
	default:
		g.emit(Instruction{Op: Assign, Dst: deref(KLong, addr), A: rhs})
	}
}

func (g *Generator) genIf(st *ast.Stat) {
	cond := g.genExpr(st.Cond)
	elseLabel := g.newLabel()
	g.emit(Instruction{Op: Cond, Rel: REq, A: cond, B: constOp(0), Dst: labelOp(elseLabel)})
	g.genStats(st.Then)
	endLabel := g.newLabel()
	g.emit(Instruction{Op: Goto, A: labelOp(endLabel)})
	g.setLabel(elseLabel)
	g.genStats(st.Else)
	g.setLabel(endLabel)
}

func (g *Generator) genWhile(st *ast.Stat) {
	loop := g.newLabel()
	g.setLabel(loop)
	cond := g.genExpr(st.Cond)
	end := g.newLabel()
	g.emit(Instruction{Op: Cond, Rel: REq, A: cond, B: constOp(0), Dst: labelOp(end)})
	g.genStats(st.Body)
	g.emit(Instruction{Op: Goto, A: labelOp(loop)})
	g.setLabel(end)
}

func (g *Generator) genRead(st *ast.Stat) {
	g.emit(Instruction{Op: Frame, A: constOp(0), B: constOp(0)})
	switch st.Target.Type.Unwrap().Tag {
	case ast.TInteger:
		g.emit(Instruction{Op: Jsr, A: constOp(-40)})
		v := longOp(g.newLong())
		g.emit(Instruction{Op: Assign, Dst: v, A: deref(KLong, regOp(29))})
		g.emit(Instruction{Op: PopL})
		addr := g.genIndex(st.Target)
		g.emit(Instruction{Op: Assign, Dst: deref(KLong, addr), A: v})
	case ast.TReal:
		g.emit(Instruction{Op: Jsr, A: constOp(-48)})
		v := floatOp(g.newFloat())
		g.emit(Instruction{Op: Assign, Dst: v, A: deref(KFloat, regOp(29))})
		g.emit(Instruction{Op: PopF})
		addr := g.genIndex(st.Target)
		g.emit(Instruction{Op: Assign, Dst: deref(KFloat, addr), A: v})
	case ast.TBoolean:
		g.emit(Instruction{Op: Jsr, A: constOp(-56)})
		v := longOp(g.newLong())
		g.emit(Instruction{Op: Assign, Dst: v, A: deref(KLong, regOp(29))})
		g.emit(Instruction{Op: PopL})
		addr := g.genIndex(st.Target)
		g.emit(Instruction{Op: Assign, Dst: deref(KByte, addr), A: v})
	default:
		// Already rejected by the type checker (E_NO_READ_ARRAY); codegen
		// never reaches an ARRAY/STRING target in practice.
		g.rep.Log(diag.Error, diag.Type, diag.ENoReadArray, "", st.Ln)
	}
}

func (g *Generator) emitStringOutput(v Operand) {
	g.emit(Instruction{Op: Frame, A: constOp(0), B: constOp(1)})
	g.emit(Instruction{Op: Assign, Dst: indexedAs(KLong, regOp(29), -1), A: v})
	g.emit(Instruction{Op: Jsr, A: constOp(-20)})
}

// genWriteArg outputs a STRING-producing expression for WRITE: CONCAT has
// no value of its own, so it recurses over both sides instead of
// evaluating to something printable — following cogen_expr's OP_CONCAT
// case, which prints each side in turn rather than building a result.
func (g *Generator) genWriteArg(e *ast.Expr) {
	if e.Tag == ast.EBinary && e.Op == ast.OpConcat {
		g.genWriteArg(e.LHS)
		g.genWriteArg(e.RHS)
		return
	}
	g.emitStringOutput(g.genExpr(e))
}

func (g *Generator) genWrite(st *ast.Stat, newline bool) {
	g.genWriteArg(st.Arg)
	if !newline {
		return
	}
	if !g.haveStringCR {
		g.stringCR = g.consts.InternString("\n")
		g.haveStringCR = true
	}
	g.emitStringOutput(stringOp(g.stringCR))
}

func (g *Generator) genReturn(st *ast.Stat) {
	if g.depth == 0 {
		g.emit(Instruction{Op: Halt, A: constOp(0)})
		return
	}
	if st.Value == nil {
		g.emit(Instruction{Op: Rts, A: constOp(0)})
		return
	}

	v := g.genExpr(st.Value)
	// Dispatch on the function's declared return type, not the RETURN
	// expression's own static type: genExpr already applied any INT_TO_REAL
	// coercion checkParams/typecheck required, so v's width already matches
	// the declared type even when the two differ before coercion.
	switch g.curDecl.Type.Unwrap().Tag {
	case ast.TArray:
		addr := longOp(g.newLong())
		g.emit(Instruction{Op: Assign, Dst: addr, A: regOp(29)})
		size := up4(typeLength(g.curDecl.Type))
		g.emit(Instruction{Op: BinaryOp, Binary: Add, Dst: regOp(29), A: regOp(29), B: constOp(size)})
		g.genCopyArray(addr, v, g.curDecl.Type)
		g.emit(Instruction{Op: Rts, A: constOp(size / 4)})
	case ast.TReal:
		g.emit(Instruction{Op: PushF, A: v})
		g.emit(Instruction{Op: Rts, A: constOp(2)})
	default:
		g.emit(Instruction{Op: PushL, A: v})
		g.emit(Instruction{Op: Rts, A: constOp(1)})
	}
}

func (g *Generator) genFail(st *ast.Stat) {
	if st.Value == nil {
		g.emit(Instruction{Op: Halt, A: constOp(1)})
		return
	}
	v := g.genExpr(st.Value)
	g.emit(Instruction{Op: Halt, A: v})
}

// genCopyArray copies an already-flattened array element-by-element through
// a down-counting byte length, following cogen_copy_array.
func (g *Generator) genCopyArray(dst, src Operand, typ *ast.Type) {
	var unitSize int32
	var width Kind
	switch scalarElem(typ) {
	case ast.TReal:
		unitSize, width = 8, KFloat
	case ast.TBoolean:
		unitSize, width = 1, KByte
	default:
		unitSize, width = 4, KLong
	}

	dataLen := longOp(g.newLong())
	g.emit(Instruction{Op: Assign, Dst: dataLen, A: constOp(-typeLength(typ))})
	unitLen := longOp(g.newLong())
	g.emit(Instruction{Op: Assign, Dst: unitLen, A: constOp(unitSize)})

	loop := g.newLabel()
	g.setLabel(loop)
	g.emit(Instruction{Op: Assign, Dst: deref(width, dst), A: deref(width, src)})
	g.emit(Instruction{Op: BinaryOp, Binary: Add, Dst: src, A: src, B: unitLen})
	g.emit(Instruction{Op: BinaryOp, Binary: Add, Dst: dst, A: dst, B: unitLen})
	g.emit(Instruction{Op: BinaryOp, Binary: Add, Dst: dataLen, A: dataLen, B: unitLen})
	g.emit(Instruction{Op: Cond, Rel: RLower, A: dataLen, B: constOp(0), Dst: labelOp(loop)})
}

// genCallAny emits a procedure/function call, following cogen_call_any:
// grow the callee's frame, store each actual by value or, for VAR
// formals, by address, then transfer control. The type checker has
// already rejected a VAR actual whose type doesn't match the formal, so
// the address stored here is always read back at the right width.
func (g *Generator) genCallAny(callee *ast.Object, actuals []*ast.Expr) {
	g.emit(Instruction{Op: Frame, A: constOp(1 + int32(g.depth) - int32(callee.Depth)), B: constOp(callee.Location/4 + 1)})

	var base Operand
	if len(callee.Formals) > 0 {
		base = longOp(g.newLong())
		g.emit(Instruction{Op: BinaryOp, Binary: Add, Dst: base, A: regOp(29), B: constOp(-callee.Location)})
	}

	for i, actual := range actuals {
		formal := callee.Formals[i]
		offset := formal.Object.Location

		if formal.Type.RefDepth() > 1 {
			addr := g.genIndex(actual.Index)
			g.emit(Instruction{Op: Assign, Dst: indexedAs(KLong, base, offset/4), A: addr})
			continue
		}

		v := g.genExpr(actual)
		switch formal.Type.Unwrap().Tag {
		case ast.TReal:
			g.emit(Instruction{Op: Assign, Dst: indexedAs(KFloat, base, offset/8), A: v})
		case ast.TArray:
			dst := longOp(g.newLong())
			g.emit(Instruction{Op: BinaryOp, Binary: Add, Dst: dst, A: base, B: constOp(offset)})
			g.genCopyArray(dst, v, formal.Type.Unwrap())
		case ast.TBoolean:
			g.emit(Instruction{Op: Assign, Dst: indexedAs(KByte, base, offset), A: v})
		default: // INTEGER
			g.emit(Instruction{Op: Assign, Dst: indexedAs(KLong, base, offset/4), A: v})
		}
	}

	if callee.Label == 0 {
		callee.Label = int32(g.newLabel())
	}
	g.emit(Instruction{Op: Jsr, A: labelOp(Label(callee.Label))})
}

// genFormat lowers FORMAT(e), following cogen_expr's FORMAT case: every
// scalar type calls a well-known trampoline; STRING is a no-op, since a
// STRING value already is the thing WRITE prints.
func (g *Generator) genFormat(e *ast.Expr) Operand {
	v := g.genExpr(e.FormatArg)
	switch e.FormatArg.Type.Unwrap().Tag {
	case ast.TBoolean:
		g.emit(Instruction{Op: Frame, A: constOp(0), B: constOp(1)})
		g.emit(Instruction{Op: Assign, Dst: indexedAs(KByte, regOp(29), -4), A: v})
		g.emit(Instruction{Op: Jsr, A: constOp(-16)})
	case ast.TReal:
		g.emit(Instruction{Op: Frame, A: constOp(0), B: constOp(3)})
		g.emit(Instruction{Op: Assign, Dst: indexedAs(KFloat, regOp(29), -1), A: v})
		g.emit(Instruction{Op: Jsr, A: constOp(-12)})
	case ast.TString:
		return v
	default: // INTEGER
		g.emit(Instruction{Op: Frame, A: constOp(0), B: constOp(1)})
		g.emit(Instruction{Op: Assign, Dst: indexedAs(KLong, regOp(29), -1), A: v})
		g.emit(Instruction{Op: Jsr, A: constOp(-8)})
	}
	return Operand{}
}

// genIndex computes a variable reference's address at its static nesting
// difference, following cogen_index. The subscript chain is gathered
// outermost (last-written bracket) first, then
// walked in reverse to pair the first-written bracket with the first
// declared ARRAY dimension — the same order internal/typecheck's index()
// uses to type the chain, which this must agree with.
func (g *Generator) genIndex(node *ast.Index) Operand {
	var chain []*ast.Index
	ptr := node
	for ptr.Tag == ast.IxIndex {
		chain = append(chain, ptr)
		ptr = ptr.Inner
	}
	root := ptr

	var offset Operand
	haveOffset := false
	t := root.Object.VarType.Unwrap()
	for j := len(chain) - 1; j >= 0; j-- {
		idx := g.genExpr(chain[j].Sub)
		adjusted := longOp(g.newLong())
		g.emit(Instruction{Op: BinaryOp, Binary: Sub, Dst: adjusted, A: idx, B: constOp(int32(t.Lwb))})
		g.rangeCheck(adjusted, t)

		scaled := longOp(g.newLong())
		g.emit(Instruction{Op: BinaryOp, Binary: Mult, Dst: scaled, A: adjusted, B: constOp(typeLength(t.Elem))})

		if haveOffset {
			next := longOp(g.newLong())
			g.emit(Instruction{Op: BinaryOp, Binary: Add, Dst: next, A: scaled, B: offset})
			offset = next
		} else {
			offset = scaled
			haveOffset = true
		}
		t = t.Elem
	}

	base := longOp(g.newLong())
	g.emit(Instruction{Op: Assign, Dst: base, A: regOp(30)})
	hops := 1 + int(g.depth) - int(root.Object.Depth)
	for i := 0; i < hops; i++ {
		next := longOp(g.newLong())
		g.emit(Instruction{Op: Assign, Dst: next, A: deref(KLong, base)})
		base = next
	}

	withHeader := longOp(g.newLong())
	g.emit(Instruction{Op: BinaryOp, Binary: Add, Dst: withHeader, A: base, B: constOp(8 + root.Object.Location)})
	base = withHeader

	for i, refDepth := 1, root.Object.VarType.RefDepth(); i < refDepth; i++ {
		next := longOp(g.newLong())
		g.emit(Instruction{Op: Assign, Dst: next, A: deref(KLong, base)})
		base = next
	}

	if !haveOffset {
		return base
	}
	result := longOp(g.newLong())
	g.emit(Instruction{Op: BinaryOp, Binary: Add, Dst: result, A: offset, B: base})
	return result
}

// rangeCheck emits a bounds test against one subscript's adjusted index:
// the shared out-of-range trampoline is built once per unit, following
// cogen_index's range_check_flag/string_range static state.
func (g *Generator) rangeCheck(idx Operand, t *ast.Type) {
	if g.noRangeChecks {
		return
	}
	upb := int32(t.Upb - t.Lwb)

	if !g.haveRangeLabel {
		g.rangeCheckLabel = g.newLabel()
		ok := g.newLabel()
		g.emit(Instruction{Op: Cond, Rel: RGeq, A: idx, B: constOp(0), Dst: labelOp(ok)})

		g.setLabel(g.rangeCheckLabel)
		id := g.consts.InternString("runtime error: array index out of range\n")
		g.emitStringOutput(stringOp(id))
		g.emit(Instruction{Op: Halt, A: constOp(1)})

		g.setLabel(ok)
		g.haveRangeLabel = true
	} else {
		g.emit(Instruction{Op: Cond, Rel: RLower, A: idx, B: constOp(0), Dst: labelOp(g.rangeCheckLabel)})
	}

	g.emit(Instruction{Op: Cond, Rel: RGreater, A: idx, B: constOp(upb), Dst: labelOp(g.rangeCheckLabel)})
}
