package typecheck

import (
	"testing"

	"minilax/internal/ast"
	"minilax/internal/consttab"
	"minilax/internal/diag"
	"minilax/internal/lexer"
	"minilax/internal/parser"
	"minilax/internal/semant"
	"minilax/internal/symtab"
)

func check(t *testing.T, src string) (*ast.Program, *diag.Reporter) {
	t.Helper()
	rep := diag.New(nil)
	syms := symtab.New()
	consts := consttab.New()
	toks := lexer.New(src, syms, consts, rep).ScanTokens()
	prog := parser.New(toks, syms, rep).Parse()
	if prog == nil {
		t.Fatalf("parse failed: %v", rep.Records())
	}
	semant.New(rep).Analyze(prog)
	New(rep).Check(prog)
	return prog, rep
}

func assertNoErrors(t *testing.T, rep *diag.Reporter) {
	t.Helper()
	if rep.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", rep.Records())
	}
}

func assertHasCode(t *testing.T, rep *diag.Reporter, code diag.Code) {
	t.Helper()
	for _, rec := range rep.Records() {
		if rec.Code == code {
			return
		}
	}
	t.Errorf("expected diagnostic code %v, got %v", code, rep.Records())
}

func TestIntPlusRealPromotesToReal(t *testing.T) {
	prog, rep := check(t, `
		PROGRAM P;
		DECLARE
			x : INTEGER;
			y : REAL
		BEGIN
			y := x + 1.5
		END.
	`)
	assertNoErrors(t, rep)
	rhs := prog.Stats[0].RHS
	if rhs.Type.Tag != ast.TReal {
		t.Errorf("x + 1.5 type = %v, want REAL", rhs.Type.Tag)
	}
	if rhs.LHS.Coercion != ast.CoIntToReal {
		t.Errorf("x's coercion = %v, want CoIntToReal", rhs.LHS.Coercion)
	}
}

func TestModRequiresIntegerOperands(t *testing.T) {
	_, rep := check(t, `
		PROGRAM P;
		DECLARE
			x : REAL
		BEGIN
			x := x % 2.0
		END.
	`)
	assertHasCode(t, rep, diag.EWrongLHSType)
}

func TestConcatRequiresStringOperands(t *testing.T) {
	_, rep := check(t, `
		PROGRAM P;
		DECLARE
			s : STRING;
			n : INTEGER
		BEGIN
			s := s ++ n
		END.
	`)
	assertHasCode(t, rep, diag.EWrongRHSType)
}

func TestStringEqualityIsUnsupported(t *testing.T) {
	_, rep := check(t, `
		PROGRAM P;
		DECLARE
			a : STRING;
			b : STRING;
			eq : BOOLEAN
		BEGIN
			eq := a == b
		END.
	`)
	assertHasCode(t, rep, diag.EStringEqualityUnsupported)
}

func TestRelationalAllowsIntAndRealMixed(t *testing.T) {
	prog, rep := check(t, `
		PROGRAM P;
		DECLARE
			x : INTEGER;
			y : REAL;
			b : BOOLEAN
		BEGIN
			b := x < y
		END.
	`)
	assertNoErrors(t, rep)
	rhs := prog.Stats[0].RHS
	if rhs.Type.Tag != ast.TBoolean {
		t.Errorf("relational result type = %v, want BOOLEAN", rhs.Type.Tag)
	}
	if rhs.OpType != ast.TReal {
		t.Errorf("relational op_type = %v, want REAL (the promoted common type)", rhs.OpType)
	}
}

func TestIfThenElseCoercesBranches(t *testing.T) {
	prog, rep := check(t, `
		PROGRAM P;
		DECLARE
			b : BOOLEAN;
			y : REAL
		BEGIN
			y := IF b THEN 1 ELSE 2.0 END
		END.
	`)
	assertNoErrors(t, rep)
	ite := prog.Stats[0].RHS
	if ite.Type.Tag != ast.TReal {
		t.Errorf("if-then-else type = %v, want REAL", ite.Type.Tag)
	}
	if ite.Then.Coercion != ast.CoIntToReal {
		t.Errorf("THEN branch coercion = %v, want CoIntToReal", ite.Then.Coercion)
	}
}

func TestIfConditionMustBeBoolean(t *testing.T) {
	_, rep := check(t, `
		PROGRAM P;
		DECLARE
			x : INTEGER
		BEGIN
			IF x THEN x := 1 ELSE x := 2 END
		END.
	`)
	assertHasCode(t, rep, diag.EBooleanNeeded)
}

func TestReadRejectsWholeArray(t *testing.T) {
	_, rep := check(t, `
		PROGRAM P;
		DECLARE
			a : ARRAY[1..3] OF INTEGER
		BEGIN
			READ(a)
		END.
	`)
	assertHasCode(t, rep, diag.ENoReadArray)
}

func TestReadAcceptsScalarElement(t *testing.T) {
	_, rep := check(t, `
		PROGRAM P;
		DECLARE
			a : ARRAY[1..3] OF INTEGER
		BEGIN
			READ(a[1])
		END.
	`)
	assertNoErrors(t, rep)
}

func TestTooManyIndicesIsError(t *testing.T) {
	_, rep := check(t, `
		PROGRAM P;
		DECLARE
			a : ARRAY[1..3] OF INTEGER
		BEGIN
			a[1][2] := 1
		END.
	`)
	assertHasCode(t, rep, diag.ETooManyIndices)
}

func TestVarParamRequiresIndexActual(t *testing.T) {
	_, rep := check(t, `
		PROGRAM P;
		DECLARE
			PROCEDURE Bump(VAR x : INTEGER);
			DECLARE unused : INTEGER BEGIN RETURN END
		BEGIN
			Bump(1 + 1)
		END.
	`)
	assertHasCode(t, rep, diag.ENoSimpleTypeActual)
}

func TestVarParamAcceptsIndexActual(t *testing.T) {
	_, rep := check(t, `
		PROGRAM P;
		DECLARE
			n : INTEGER;
			PROCEDURE Bump(VAR x : INTEGER);
			DECLARE unused : INTEGER BEGIN
				x := x + 1
			END
		BEGIN
			Bump(n)
		END.
	`)
	assertNoErrors(t, rep)
}

func TestVarParamRejectsMismatchedActualType(t *testing.T) {
	_, rep := check(t, `
		PROGRAM P;
		DECLARE
			n : INTEGER;
			PROCEDURE Bump(VAR x : REAL);
			DECLARE unused : INTEGER BEGIN
				x := x + 1.0
			END
		BEGIN
			Bump(n)
		END.
	`)
	assertHasCode(t, rep, diag.EParamType)
}

func TestParamCountMismatchIsError(t *testing.T) {
	_, rep := check(t, `
		PROGRAM P;
		DECLARE
			PROCEDURE P2(x : INTEGER);
			DECLARE unused : INTEGER BEGIN RETURN END
		BEGIN
			P2(1, 2)
		END.
	`)
	assertHasCode(t, rep, diag.EParamCount)
}

func TestBareReturnInFunctionIsErrorBySymmetry(t *testing.T) {
	_, rep := check(t, `
		PROGRAM P;
		DECLARE
			FUNCTION F : INTEGER;
			DECLARE unused : INTEGER BEGIN
				RETURN
			END
		BEGIN
			RETURN
		END.
	`)
	assertHasCode(t, rep, diag.ENoParamInFuncReturn)
}

func TestReturnWithExpressionInsideProcedureIsError(t *testing.T) {
	_, rep := check(t, `
		PROGRAM P;
		DECLARE
			PROCEDURE P2;
			DECLARE unused : INTEGER BEGIN
				RETURN(1)
			END
		BEGIN
			P2()
		END.
	`)
	assertHasCode(t, rep, diag.EParamInProcReturn)
}

func TestFunctionReturnCoercesIntToDeclaredReal(t *testing.T) {
	prog, rep := check(t, `
		PROGRAM P;
		DECLARE
			FUNCTION F : REAL;
			DECLARE unused : INTEGER BEGIN
				RETURN(1)
			END
		BEGIN
			RETURN
		END.
	`)
	assertNoErrors(t, rep)
	f := prog.Decls[0]
	ret := f.Stats[0]
	if ret.Value.Coercion != ast.CoIntToReal {
		t.Errorf("RETURN(1) inside FUNCTION F : REAL coercion = %v, want CoIntToReal", ret.Value.Coercion)
	}
}

func TestArrayAssignmentRequiresStructuralEquality(t *testing.T) {
	_, rep := check(t, `
		PROGRAM P;
		DECLARE
			a : ARRAY[1..3] OF INTEGER;
			b : ARRAY[1..3] OF REAL
		BEGIN
			a := b
		END.
	`)
	assertHasCode(t, rep, diag.EWrongType)
}

func TestArrayAssignmentAcceptsSameShape(t *testing.T) {
	_, rep := check(t, `
		PROGRAM P;
		DECLARE
			a : ARRAY[1..3] OF INTEGER;
			b : ARRAY[1..3] OF INTEGER
		BEGIN
			a := b
		END.
	`)
	assertNoErrors(t, rep)
}

func TestWriteRequiresString(t *testing.T) {
	_, rep := check(t, `
		PROGRAM P;
		DECLARE
			x : INTEGER
		BEGIN
			WRITE(x)
		END.
	`)
	assertHasCode(t, rep, diag.EParamType)
}

func TestWriteAcceptsFormat(t *testing.T) {
	_, rep := check(t, `
		PROGRAM P;
		DECLARE
			x : INTEGER
		BEGIN
			WRITE(FORMAT(x))
		END.
	`)
	assertNoErrors(t, rep)
}

func TestUndeclaredNameIsError(t *testing.T) {
	_, rep := check(t, `
		PROGRAM P;
		DECLARE
			x : INTEGER
		BEGIN
			x := y
		END.
	`)
	assertHasCode(t, rep, diag.EUndeclared)
}
