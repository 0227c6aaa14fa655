// Package typecheck implements the type checker: it attributes every
// Expr/Index node with a Type, inserts INT_TO_REAL coercions where the
// operator rules allow them, resolves every Name reference to the Object the
// semantic analyzer already built, and validates parameter passing.
package typecheck

import (
	"fmt"

	"minilax/internal/ast"
	"minilax/internal/diag"
)

// Checker walks the tree exactly once, depth-first, tracking the innermost
// enclosing Proc/Func so RETURN/Name-resolution can see its Env and
// declared return type.
type Checker struct {
	rep         *diag.Reporter
	actualBlock *ast.Decl
}

// New creates a Checker reporting through rep.
func New(rep *diag.Reporter) *Checker {
	return &Checker{rep: rep}
}

// Check type-checks the whole program, starting from its synthetic root.
func (c *Checker) Check(prog *ast.Program) {
	c.decl(prog.Root)
}

func (c *Checker) decl(node *ast.Decl) {
	if node.Tag == ast.DeclVar {
		return
	}

	old := c.actualBlock
	c.actualBlock = node
	for _, d := range node.Decls {
		c.decl(d)
	}
	c.stats(node.Stats)
	c.actualBlock = old
}

func (c *Checker) stats(stats []*ast.Stat) {
	for _, s := range stats {
		c.stat(s)
	}
}

func (c *Checker) stat(s *ast.Stat) {
	switch s.Tag {
	case ast.StAssign:
		c.index(s.LHS)
		c.expr(s.RHS)
		s.RHS.Coercion = c.assignArray(s.LHS, s.RHS)

	case ast.StCall:
		obj := c.resolveName(s.Name, s.Line())
		s.Callee = obj
		c.actuals(s.Actuals)
		if obj == nil {
			return
		}
		if obj.Tag != ast.ObjDecl {
			c.rep.Log(diag.Error, diag.Semantic, diag.ENoFuncOrProc, "", s.Line())
			return
		}
		c.checkParams(obj.Formals, s.Actuals, s.Line())

	case ast.StWrite, ast.StWriteLn:
		c.expr(s.Arg)
		if !c.isA(s.Arg, ast.Str) {
			c.rep.Log(diag.Error, diag.Type, diag.EParamType, "1=STRING", s.Line())
		}

	case ast.StRead:
		c.index(s.Target)
		if !isAType(s.Target.Type, ast.Integer, ast.Real, ast.Boolean) {
			c.rep.Log(diag.Error, diag.Type, diag.ENoReadArray, "", s.Line())
		}

	case ast.StIf:
		c.expr(s.Cond)
		c.stats(s.Then)
		c.stats(s.Else)
		if !c.isA(s.Cond, ast.Boolean) {
			c.rep.Log(diag.Error, diag.Type, diag.EBooleanNeeded, "", s.Line())
		}

	case ast.StWhile:
		c.expr(s.Cond)
		c.stats(s.Body)
		if !c.isA(s.Cond, ast.Boolean) {
			c.rep.Log(diag.Error, diag.Type, diag.EBooleanNeeded, "", s.Line())
		}

	case ast.StReturn:
		if s.Value != nil {
			if c.actualBlock.Tag != ast.DeclFunc {
				c.rep.Log(diag.Error, diag.Semantic, diag.EParamInProcReturn, "", s.Line())
				return
			}
			c.expr(s.Value)
			coer := c.coercion(s.Value.Type, c.actualBlock.Type)
			s.Value.Coercion = coer
			if coer == ast.CoError {
				c.rep.Log(diag.Error, diag.Type, diag.EWrongType, "", s.Line())
			}
		} else if c.actualBlock.Tag != ast.DeclProc {
			// Symmetry fix: the original never fires this half of
			// the pair — a bare RETURN inside a FUNCTION passed silently.
			c.rep.Log(diag.Error, diag.Semantic, diag.ENoParamInFuncReturn, "", s.Line())
		}

	case ast.StFail:
		if s.Value != nil {
			c.expr(s.Value)
			if !c.isA(s.Value, ast.Integer) {
				c.rep.Log(diag.Error, diag.Type, diag.EParamType, "#1=INTEGER", s.Line())
			}
		} else {
			c.rep.Log(diag.Warning, diag.Type, diag.EParamCount, "", s.Line())
		}
	}
}

func (c *Checker) actuals(exprs []*ast.Expr) {
	for _, e := range exprs {
		c.expr(e)
	}
}

func (c *Checker) expr(e *ast.Expr) {
	if e == nil {
		return
	}

	switch e.Tag {
	case ast.EBinary:
		c.expr(e.LHS)
		c.expr(e.RHS)
		c.binary(e)

	case ast.EIfThenElse:
		c.expr(e.If)
		c.expr(e.Then)
		c.expr(e.Else)
		// The condition must be BOOLEAN; the original's typechk.c leaves a
		// comment for this check but never codes it.
		if !c.isA(e.If, ast.Boolean) {
			c.rep.Log(diag.Error, diag.Type, diag.EBooleanNeeded, "", e.Line())
		}
		coer := c.coercion(e.Then.Type, e.Else.Type)
		if coer == ast.CoOK {
			e.Type = e.Then.Type
			break
		}
		e.Type = ast.Real
		if coer == ast.CoIntToReal {
			e.Then.Coercion = coer
			break
		}
		coer2 := c.coercion(e.Else.Type, e.Then.Type)
		if coer2 != ast.CoIntToReal {
			c.rep.Log(diag.Error, diag.Type, diag.EWrongType, "", e.Line())
			e.Type = e.Then.Type
			break
		}
		e.Else.Coercion = coer2

	case ast.EFunCall:
		obj := c.resolveName(e.Name, e.Line())
		e.Callee = obj
		c.actuals(e.Actuals)
		if obj == nil {
			e.Type = ast.ErrType
			return
		}
		if obj.Tag != ast.ObjDecl || !obj.IsFunc {
			c.rep.Log(diag.Error, diag.Semantic, diag.ENoFuncOrProc, "", e.Line())
			e.Type = ast.ErrType
			return
		}
		e.Type = obj.RetType
		c.checkParams(obj.Formals, e.Actuals, e.Line())

	case ast.EFormat:
		c.expr(e.FormatArg)
		e.Type = ast.Str

	case ast.EIndex:
		c.index(e.Index)
		e.Type = e.Index.Type

	case ast.EIntConst:
		e.Type = ast.Integer
	case ast.ERealConst:
		e.Type = ast.Real
	case ast.EBoolConst:
		e.Type = ast.Boolean
	case ast.EStringConst:
		e.Type = ast.Str
	}
}

// binary dispatches an EBinary (or unary NOT, RHS == nil) by operator.
func (c *Checker) binary(e *ast.Expr) {
	switch e.Op {
	case ast.OpEQ:
		c.relational(e, true)
	case ast.OpLT, ast.OpLE, ast.OpGE, ast.OpGT:
		c.relational(e, false)
	case ast.OpMod:
		if !c.isA(e.LHS, ast.Integer) {
			c.rep.Log(diag.Error, diag.Type, diag.EWrongLHSType, "INTEGER", e.Line())
		}
		if !c.isA(e.RHS, ast.Integer) {
			c.rep.Log(diag.Error, diag.Type, diag.EWrongRHSType, "INTEGER", e.Line())
		}
		e.OpType = ast.TInteger
		e.Type = ast.Integer
	case ast.OpConcat:
		if !c.isA(e.LHS, ast.Str) {
			c.rep.Log(diag.Error, diag.Type, diag.EWrongLHSType, "STRING", e.Line())
		}
		if !c.isA(e.RHS, ast.Str) {
			c.rep.Log(diag.Error, diag.Type, diag.EWrongRHSType, "STRING", e.Line())
		}
		e.OpType = ast.TString
		e.Type = ast.Str
	case ast.OpAdd, ast.OpSub, ast.OpMul, ast.OpDiv:
		c.arith(e)
	case ast.OpNot:
		if !c.isA(e.LHS, ast.Boolean) {
			c.rep.Log(diag.Error, diag.Type, diag.EWrongRHSType, "BOOLEAN", e.Line())
		}
		e.OpType = ast.TBoolean
		e.Type = ast.Boolean
	}
}

// relational handles `< <= >= >` (allowString == false) and `==`
// (allowString == true): both coerce an INTEGER side to REAL when the other
// side is REAL and always produce BOOLEAN.
func (c *Checker) relational(e *ast.Expr, allowString bool) {
	allowed := []*ast.Type{ast.Integer, ast.Real, ast.Boolean}
	label := "REAL, INTEGER or BOOLEAN"
	if allowString {
		allowed = append(allowed, ast.Str)
		label = "REAL, INTEGER, BOOLEAN or STRING"
	}
	if !c.isA(e.LHS, allowed...) {
		c.rep.Log(diag.Error, diag.Type, diag.EWrongLHSType, label, e.Line())
	}
	if !c.isA(e.RHS, allowed...) {
		c.rep.Log(diag.Error, diag.Type, diag.EWrongRHSType, label, e.Line())
	}

	if allowString && c.isA(e.LHS, ast.Str) && c.isA(e.RHS, ast.Str) {
		// The original emits hand-written assembly straight to stdout for
		// STRING == STRING instead of a TAC op; diagnose instead of
		// reproducing that escape hatch.
		c.rep.Log(diag.Error, diag.Type, diag.EStringEqualityUnsupported, "", e.Line())
		e.OpType = ast.TString
		e.Type = ast.Boolean
		return
	}

	coer := c.coercion(e.LHS.Type, e.RHS.Type)
	switch coer {
	case ast.CoOK:
		e.OpType = realType(e.LHS.Type)
	case ast.CoIntToReal:
		e.LHS.Coercion = coer
		e.OpType = ast.TReal
	default:
		coer2 := c.coercion(e.RHS.Type, e.LHS.Type)
		if coer2 != ast.CoIntToReal {
			c.rep.Log(diag.Error, diag.Type, diag.EWrongType, "", e.Line())
		} else {
			e.RHS.Coercion = coer2
		}
		e.OpType = ast.TReal
	}
	e.Type = ast.Boolean
}

// arith handles `+ - * /`: both sides must be INTEGER/REAL; mismatched
// sides promote the INTEGER one to REAL.
func (c *Checker) arith(e *ast.Expr) {
	if !c.isA(e.LHS, ast.Real, ast.Integer) {
		c.rep.Log(diag.Error, diag.Type, diag.EWrongLHSType, "INTEGER or REAL", e.Line())
	}
	if !c.isA(e.RHS, ast.Real, ast.Integer) {
		c.rep.Log(diag.Error, diag.Type, diag.EWrongRHSType, "INTEGER or REAL", e.Line())
	}

	coer := c.coercion(e.LHS.Type, e.RHS.Type)
	if coer == ast.CoOK {
		e.OpType = realType(e.LHS.Type)
		e.Type = e.LHS.Type
		return
	}

	e.OpType = ast.TReal
	e.Type = ast.Real
	if coer == ast.CoIntToReal {
		e.LHS.Coercion = coer
		return
	}
	coer2 := c.coercion(e.RHS.Type, e.LHS.Type)
	if coer2 != ast.CoIntToReal {
		c.rep.Log(diag.Error, diag.Type, diag.EWrongType, "", e.Line())
		return
	}
	e.RHS.Coercion = coer2
}

// index types an Index chain: every Sub must be INTEGER, declared array
// depth must be >= the subscript count, and the result keeps the root
// variable's refdepth wrapped around whatever element type remains after
// peeling one ARRAY layer per subscript applied.
func (c *Checker) index(node *ast.Index) {
	var chain []*ast.Index
	ptr := node
	for ptr.Tag == ast.IxIndex {
		c.expr(ptr.Sub)
		if !c.isA(ptr.Sub, ast.Integer) {
			c.rep.Log(diag.Error, diag.Type, diag.ENotIndexType, "", ptr.Line())
		}
		ptr.Type = nil
		chain = append(chain, ptr)
		ptr = ptr.Inner
	}
	depth := len(chain)

	obj := c.resolveName(ptr.Name, ptr.Line())
	ptr.Object = obj
	if obj == nil {
		node.Type = ast.ErrType
		return
	}
	if obj.Tag != ast.ObjVari {
		c.rep.Log(diag.Error, diag.Semantic, diag.ENoVariable, "", ptr.Line())
		node.Type = ast.ErrType
		return
	}
	ptr.Type = obj.VarType

	declaredDepth := arrayDepth(ptr.Type)
	refDepth := ptr.Type.RefDepth()
	if declaredDepth-depth < 0 {
		c.rep.Log(diag.Error, diag.Type, diag.ETooManyIndices, "", node.Line())
		node.Type = ast.ErrType
		return
	}

	t := ptr.Type.Unwrap()
	for j := len(chain) - 1; j >= 0; j-- {
		t = t.Elem
		chain[j].Type = t
	}
	node.Type = refWrap(t, refDepth)
}

// checkParams matches actuals against formals positionally: a non-VAR
// formal needs a coercible actual; a VAR formal needs an Index-expression
// actual whose type is structurally identical to the formal's, since the
// callee aliases the actual's storage directly rather than copying through
// a coercion. Count mismatch is its own error independent of any
// per-parameter one.
func (c *Checker) checkParams(formals []*ast.Formal, actuals []*ast.Expr, line int) {
	n := len(formals)
	if len(actuals) < n {
		n = len(actuals)
	}
	for i := 0; i < n; i++ {
		f, a := formals[i], actuals[i]
		if f.Type.RefDepth() == 2 {
			a.Coercion = ast.CoOK
			if a.Tag != ast.EIndex {
				c.rep.Log(diag.Error, diag.Type, diag.ENoSimpleTypeActual, fmt.Sprintf("%d", i+1), a.Line())
				continue
			}
			if !ast.Equal(a.Type, f.Type.Unwrap()) {
				c.rep.Log(diag.Error, diag.Type, diag.EParamType, fmt.Sprintf("%d", i+1), a.Line())
			}
			continue
		}
		coer := c.coercion(a.Type, f.Type)
		a.Coercion = coer
		if coer == ast.CoError {
			c.rep.Log(diag.Error, diag.Type, diag.EParamType, fmt.Sprintf("%d", i+1), a.Line())
		}
	}
	switch {
	case len(formals) > len(actuals):
		c.rep.Log(diag.Error, diag.Type, diag.EParamCount, "", line)
	case len(actuals) > len(formals):
		c.rep.Log(diag.Error, diag.Type, diag.EParamCount, "", actuals[len(formals)].Line())
	}
}

// assignArray types an assignment's right-hand coercion: scalar destinations
// use ordinary coercion, array destinations require exact structural
// identity (no element-wise coercion).
func (c *Checker) assignArray(lhs *ast.Index, rhs *ast.Expr) ast.Coercion {
	lt, rt := lhs.Type.Unwrap(), rhs.Type.Unwrap()
	if arrayDepth(lt) == 0 {
		coer := c.coercion(rt, lt)
		if coer == ast.CoError {
			c.rep.Log(diag.Error, diag.Type, diag.EWrongType, "", lhs.Line())
		}
		return coer
	}
	if !ast.Equal(lt, rt) {
		c.rep.Log(diag.Error, diag.Type, diag.EWrongType, "", lhs.Line())
		return ast.CoError
	}
	return ast.CoOK
}

// resolveName resolves an identifier through the current block's completed
// Env chain — which already links straight through to every enclosing
// scope, since the semantic analyzer wires Env.Next directly to the
// enclosing Hidden slot (see internal/semant).
func (c *Checker) resolveName(name string, line int) *ast.Object {
	if obj := c.actualBlock.Env.Resolve(name); obj != nil {
		return obj
	}
	c.rep.Log(diag.Error, diag.Semantic, diag.EUndeclared, "", line)
	return nil
}

// coercion decides what implicit conversion, if any, carries a value of
// type src to a destination of type dst: identical (structurally equal)
// types need none; INTEGER -> REAL is the only implicit widening.
func (c *Checker) coercion(src, dst *ast.Type) ast.Coercion {
	s, d := src.Unwrap(), dst.Unwrap()
	if ast.Equal(s, d) {
		return ast.CoOK
	}
	if s.Tag == ast.TInteger && d.Tag == ast.TReal {
		return ast.CoIntToReal
	}
	return ast.CoError
}

// isA reports whether e's type (after stripping REF) structurally matches
// any of want.
func (c *Checker) isA(e *ast.Expr, want ...*ast.Type) bool {
	return isAType(e.Type, want...)
}

// isA is overloaded for Index through this sibling, since Index and Expr
// share no common typed interface in this tree — each is its own
// tagged-struct shape, not a common interface hierarchy.
func isAType(t *ast.Type, want ...*ast.Type) bool {
	u := t.Unwrap()
	for _, w := range want {
		if ast.Equal(u, w) {
			return true
		}
	}
	return false
}

func arrayDepth(t *ast.Type) int {
	t = t.Unwrap()
	d := 0
	for t.Tag == ast.TArray {
		t = t.Elem
		d++
	}
	return d
}

func realType(t *ast.Type) ast.TypeTag {
	return t.Unwrap().Tag
}

func refWrap(t *ast.Type, depth int) *ast.Type {
	for i := 0; i < depth; i++ {
		t = ast.Ref(t)
	}
	return t
}
