package tac

import "minilax/internal/ast"

// genExpr evaluates an expression to an Operand, applying any INT_TO_REAL
// coercion the type checker recorded on it — mirroring cogen_expr's
// trailing coercion == CO_INTTOREAL handling.
func (g *Generator) genExpr(e *ast.Expr) Operand {
	v := g.genExprRaw(e)
	if e.Coercion != ast.CoIntToReal {
		return v
	}
	f := floatOp(g.newFloat())
	g.emit(Instruction{Op: UnaryOp, Unary: Int2Float, Dst: f, A: v})
	return f
}

func (g *Generator) genExprRaw(e *ast.Expr) Operand {
	switch e.Tag {
	case ast.EBinary:
		return g.genBinary(e)
	case ast.EIfThenElse:
		return g.genIfThenElse(e)
	case ast.EFunCall:
		return g.genFunCall(e)
	case ast.EIntConst:
		t := longOp(g.newLong())
		g.emit(Instruction{Op: Assign, Dst: t, A: constOp(e.IntVal)})
		return t
	case ast.ERealConst:
		t := floatOp(g.newFloat())
		g.emit(Instruction{Op: Assign, Dst: t, A: constFloatOp(g.consts.Float(e.RealID))})
		return t
	case ast.EBoolConst:
		t := longOp(g.newLong())
		v := int32(0)
		if e.BoolVal {
			v = 1
		}
		g.emit(Instruction{Op: Assign, Dst: t, A: constOp(v)})
		return t
	case ast.EStringConst:
		return stringOp(e.StringID)
	case ast.EIndex:
		addr := g.genIndex(e.Index)
		if e.Index.Type.Unwrap().Tag == ast.TArray {
			return addr
		}
		return g.genLoad(addr, e.Index.Type.Unwrap().Tag)
	case ast.EFormat:
		return g.genFormat(e)
	}
	return Operand{}
}

func (g *Generator) genLoad(addr Operand, tag ast.TypeTag) Operand {
	switch tag {
	case ast.TReal:
		t := floatOp(g.newFloat())
		g.emit(Instruction{Op: Assign, Dst: t, A: deref(KFloat, addr)})
		return t
	case ast.TBoolean:
		t := longOp(g.newLong())
		g.emit(Instruction{Op: Assign, Dst: t, A: deref(KByte, addr)})
		return t
	default: // INTEGER, STRING (handle)
		t := longOp(g.newLong())
		g.emit(Instruction{Op: Assign, Dst: t, A: deref(KLong, addr)})
		return t
	}
}

// genBinary lowers every EBinary operator except CONCAT, which produces no
// value (see genWriteArg): unary NOT, the five relational operators, and
// the arithmetic/MOD family, dispatched by the type checker's recorded
// OpType the same way cogen_expr's outer op_type switch does.
func (g *Generator) genBinary(e *ast.Expr) Operand {
	if e.Op == ast.OpNot {
		v := g.genExpr(e.LHS)
		t := longOp(g.newLong())
		g.emit(Instruction{Op: UnaryOp, Unary: LNot, Dst: t, A: v})
		return t
	}
	if e.Op == ast.OpConcat {
		g.genWriteArg(e)
		return Operand{}
	}

	lhs := g.genExpr(e.LHS)
	rhs := g.genExpr(e.RHS)

	if isRelational(e.Op) {
		return g.genRelational(e.Op, lhs, rhs)
	}

	if e.OpType == ast.TReal {
		t := floatOp(g.newFloat())
		g.emit(Instruction{Op: BinaryOp, Binary: binOf(e.Op), Dst: t, A: lhs, B: rhs})
		return t
	}
	t := longOp(g.newLong())
	g.emit(Instruction{Op: BinaryOp, Binary: binOf(e.Op), Dst: t, A: lhs, B: rhs})
	return t
}

func isRelational(op ast.Op) bool {
	switch op {
	case ast.OpLT, ast.OpLE, ast.OpEQ, ast.OpGE, ast.OpGT:
		return true
	}
	return false
}

func binOf(op ast.Op) BinaryKind {
	switch op {
	case ast.OpAdd:
		return Add
	case ast.OpSub:
		return Sub
	case ast.OpMul:
		return Mult
	case ast.OpDiv:
		return Div
	case ast.OpMod:
		return Mod
	}
	return Add
}

func relOf(op ast.Op) Rel {
	switch op {
	case ast.OpLT:
		return RLower
	case ast.OpLE:
		return RLeq
	case ast.OpEQ:
		return REq
	case ast.OpGE:
		return RGeq
	case ast.OpGT:
		return RGreater
	}
	return REq
}

// genRelational materializes a comparison's BOOLEAN result as 0/1: assume
// true, branch past the "set false" when the comparison holds. A condition
// used directly by IF/WHILE re-tests this materialized value rather than
// inlining the comparison into the branch; internal/optim's copy-propagation
// pass is what collapses the redundant round trip, not the generator.
func (g *Generator) genRelational(op ast.Op, lhs, rhs Operand) Operand {
	t := longOp(g.newLong())
	end := g.newLabel()
	g.emit(Instruction{Op: Assign, Dst: t, A: constOp(1)})
	g.emit(Instruction{Op: Cond, Rel: relOf(op), A: lhs, B: rhs, Dst: labelOp(end)})
	g.emit(Instruction{Op: Assign, Dst: t, A: constOp(0)})
	g.setLabel(end)
	return t
}

// genIfThenElse lowers an if-then-else expression into a shared result temp
// assigned from whichever branch runs, using the standard label layout
// with COND branching. The original's cogen_expr IFTHENELSE case reuses
// one C-level result variable across both branches without ever assigning
// either branch's value into a common destination, so the caller always
// reads the ELSE branch's own last-computed temp regardless of which branch
// ran — a miscompile, fixed here by allocating one temp up front and having
// both branches store into it explicitly.
func (g *Generator) genIfThenElse(e *ast.Expr) Operand {
	cond := g.genExpr(e.If)
	elseLabel := g.newLabel()
	g.emit(Instruction{Op: Cond, Rel: REq, A: cond, B: constOp(0), Dst: labelOp(elseLabel)})

	var result Operand
	if e.Type.Unwrap().Tag == ast.TReal {
		result = floatOp(g.newFloat())
	} else {
		result = longOp(g.newLong())
	}

	thenVal := g.genExpr(e.Then)
	g.emit(Instruction{Op: Assign, Dst: result, A: thenVal})
	end := g.newLabel()
	g.emit(Instruction{Op: Goto, A: labelOp(end)})

	g.setLabel(elseLabel)
	elseVal := g.genExpr(e.Else)
	g.emit(Instruction{Op: Assign, Dst: result, A: elseVal})
	g.setLabel(end)

	return result
}

// genFunCall evaluates a function call used for its value: genCallAny
// transfers control, then the result is popped from where RETURN pushed it.
func (g *Generator) genFunCall(e *ast.Expr) Operand {
	g.genCallAny(e.Callee, e.Actuals)
	switch e.Type.Unwrap().Tag {
	case ast.TReal:
		t := floatOp(g.newFloat())
		g.emit(Instruction{Op: Assign, Dst: t, A: deref(KFloat, regOp(29))})
		g.emit(Instruction{Op: PopF})
		return t
	case ast.TArray:
		addr := longOp(g.newLong())
		g.emit(Instruction{Op: Assign, Dst: addr, A: regOp(29)})
		return addr
	default:
		t := longOp(g.newLong())
		g.emit(Instruction{Op: Assign, Dst: t, A: deref(KLong, regOp(29))})
		g.emit(Instruction{Op: PopL})
		return t
	}
}
