// Package parser implements the recursive-descent MiniLAX parser:
// Program = PROGRAM Name ; DECLARE Decls BEGIN Stats END . , five
// expression precedence levels, and left-associative index chains.
package parser

import (
	"minilax/internal/ast"
	"minilax/internal/consttab"
	"minilax/internal/diag"
	"minilax/internal/lexer"
	"minilax/internal/symtab"
)

// Parser walks a pre-lexed token stream and builds an *ast.Program. It never
// looks at source text directly — the lexer already resolved literals and
// identifiers into merkmals.
type Parser struct {
	toks []lexer.Token
	pos  int
	rep  *diag.Reporter
	syms *symtab.Table
}

// New creates a Parser over toks (as produced by lexer.Scanner.ScanTokens),
// sharing the run's symbol table and error reporter.
func New(toks []lexer.Token, syms *symtab.Table, rep *diag.Reporter) *Parser {
	return &Parser{toks: toks, syms: syms, rep: rep}
}

// Parse consumes the whole token stream and returns the compilation unit, or
// nil if a syntax error made it unsafe to keep building the tree: on error
// the parser logs a diagnostic and returns a nil subtree, and callers
// propagate that nil upward rather than trying to recover locally.
func (p *Parser) Parse() *ast.Program {
	ln := p.line()
	if !p.expect(lexer.TokProgram, "PROGRAM") {
		return nil
	}
	name, ident, _, ok := p.identTok()
	if !ok {
		return nil
	}
	p.eocmd()
	if !p.expect(lexer.TokDeclare, "DECLARE") {
		return nil
	}
	decls := p.decls()
	if decls == nil {
		return nil
	}
	if !p.expect(lexer.TokBegin, "BEGIN") {
		return nil
	}
	stats := p.stats()
	if stats == nil {
		return nil
	}
	if !p.expect(lexer.TokEnd, "END") {
		return nil
	}
	if !p.expect(lexer.TokDot, "'.'") {
		return nil
	}

	prog := &ast.Program{Name: name, Ident: ident, Decls: decls, Stats: stats}
	// Root wraps the whole program as a synthetic DeclProc at depth 0, so the
	// analyzer and code generator can treat main exactly like any nested
	// procedure instead of special-casing the entry point.
	prog.Root = &ast.Decl{Tag: ast.DeclProc, Name: name, Ident: ident, Decls: decls, Stats: stats, Ln: ln}
	return prog
}

// --- token cursor ---

func (p *Parser) cur() lexer.Token { return p.toks[p.pos] }

func (p *Parser) line() int { return p.cur().Line }

func (p *Parser) at(tt lexer.TokenType) bool { return p.cur().Type == tt }

func (p *Parser) advance() lexer.Token {
	t := p.toks[p.pos]
	if t.Type != lexer.TokEOF {
		p.pos++
	}
	return t
}

// expect consumes tt if it is current, else logs a syntax error and leaves
// the cursor where it is (matching parse_symbol's behavior on mismatch).
func (p *Parser) expect(tt lexer.TokenType, expected string) bool {
	if !p.at(tt) {
		p.rep.Log(diag.Error, diag.Syntax, diag.ESymbolExpected, expected, p.line())
		return false
	}
	p.advance()
	return true
}

// eocmd accepts the ';' that separates two declarations/statements/formals,
// or the one mandatory separator after a name or formal list. A missing
// separator is only a warning — parsing continues as though it were there.
func (p *Parser) eocmd() {
	if !p.at(lexer.TokSemi) {
		p.rep.Log(diag.Warning, diag.Syntax, diag.EMissingSemicolon, "", p.line())
		return
	}
	p.advance()
}

// identTok consumes a required identifier, returning its lexeme, the
// symbol-table merkmal the lexer already interned for it, and the line it
// started on.
func (p *Parser) identTok() (name string, ident symtab.Merkmal, ln int, ok bool) {
	t := p.cur()
	ln = t.Line
	if t.Type != lexer.TokIdent {
		p.rep.Log(diag.Error, diag.Syntax, diag.ESymbolExpected, "identifier", ln)
		return "", 0, ln, false
	}
	p.advance()
	return t.Lexeme, symtab.Merkmal(t.Merkmal), ln, true
}

// --- declarations ---

// decls parses a ';'-separated list of one or more declarations. The list
// simply ends at the first missing ';' (no diagnostic — the caller's own
// expect() reports whatever comes next, e.g. a missing BEGIN).
func (p *Parser) decls() []*ast.Decl {
	d := p.decl()
	if d == nil {
		return nil
	}
	result := []*ast.Decl{d}
	for p.at(lexer.TokSemi) {
		p.advance()
		more := p.decls()
		if more == nil {
			return nil
		}
		result = append(result, more...)
	}
	return result
}

func (p *Parser) decl() *ast.Decl {
	switch p.cur().Type {
	case lexer.TokIdent:
		name, ident, ln, ok := p.identTok()
		if !ok {
			return nil
		}
		if !p.expect(lexer.TokColon, "':'") {
			return nil
		}
		t := p.typ()
		if t == nil {
			return nil
		}
		return &ast.Decl{Tag: ast.DeclVar, Name: name, Ident: ident, Type: t, Ln: ln}

	case lexer.TokProcedure:
		ln := p.line()
		p.advance()
		name, ident, _, ok := p.identTok()
		if !ok {
			return nil
		}
		formals := p.formals() // nil means "no parameter list", not an error
		p.eocmd()
		if !p.expect(lexer.TokDeclare, "DECLARE") {
			return nil
		}
		decls := p.decls()
		if decls == nil {
			return nil
		}
		if !p.expect(lexer.TokBegin, "BEGIN") {
			return nil
		}
		stats := p.stats()
		if stats == nil {
			return nil
		}
		if !p.expect(lexer.TokEnd, "END") {
			return nil
		}
		return &ast.Decl{Tag: ast.DeclProc, Name: name, Ident: ident, Formals: formals, Decls: decls, Stats: stats, Ln: ln}

	case lexer.TokFunction:
		ln := p.line()
		p.advance()
		name, ident, _, ok := p.identTok()
		if !ok {
			return nil
		}
		formals := p.formals()
		if !p.expect(lexer.TokColon, "':'") {
			return nil
		}
		retType := p.typ()
		if retType == nil {
			return nil
		}
		p.eocmd()
		if !p.expect(lexer.TokDeclare, "DECLARE") {
			return nil
		}
		decls := p.decls()
		if decls == nil {
			return nil
		}
		if !p.expect(lexer.TokBegin, "BEGIN") {
			return nil
		}
		stats := p.stats()
		if stats == nil {
			return nil
		}
		if !p.expect(lexer.TokEnd, "END") {
			return nil
		}
		return &ast.Decl{Tag: ast.DeclFunc, Name: name, Ident: ident, Formals: formals, Decls: decls, Stats: stats, Type: retType, Ln: ln}

	default:
		p.rep.Log(diag.Error, diag.Syntax, diag.ESymbolExpected, "PROCEDURE, FUNCTION or identifier", p.line())
		return nil
	}
}

// formals parses an optional parenthesized, ';'-separated formal list. A
// declaration with no '(' at all has no parameters — nil is not an error in
// that case. An error inside the parens also yields nil here, matching the
// original grammar: the caller never distinguishes the two (the diagnostic
// was already logged by the failing inner call).
func (p *Parser) formals() []*ast.Formal {
	if !p.at(lexer.TokLParen) {
		return nil
	}
	p.advance()
	result, ok := p.innerFormals()
	if !ok {
		return nil
	}
	if !p.expect(lexer.TokRParen, "')'") {
		return nil
	}
	return result
}

func (p *Parser) innerFormals() ([]*ast.Formal, bool) {
	f := p.formal()
	if f == nil {
		return nil, false
	}
	result := []*ast.Formal{f}
	for p.at(lexer.TokSemi) {
		p.advance()
		more, ok := p.innerFormals()
		if !ok {
			return nil, false
		}
		result = append(result, more...)
	}
	return result, true
}

func (p *Parser) formal() *ast.Formal {
	switch p.cur().Type {
	case lexer.TokIdent:
		name, ident, ln, ok := p.identTok()
		if !ok {
			return nil
		}
		if !p.expect(lexer.TokColon, "':'") {
			return nil
		}
		t := p.typ()
		if t == nil {
			return nil
		}
		return &ast.Formal{Name: name, Ident: ident, Type: ast.Ref(t), Ln: ln}

	case lexer.TokVar:
		ln := p.line()
		p.advance()
		name, ident, _, ok := p.identTok()
		if !ok {
			return nil
		}
		if !p.expect(lexer.TokColon, "':'") {
			return nil
		}
		t := p.typ()
		if t == nil {
			return nil
		}
		return &ast.Formal{Name: name, Ident: ident, Type: ast.Ref(ast.Ref(t)), Ln: ln}

	default:
		p.rep.Log(diag.Error, diag.Syntax, diag.ESymbolExpected, "identifier or VAR", p.line())
		return nil
	}
}

func (p *Parser) typ() *ast.Type {
	ln := p.line()
	switch p.cur().Type {
	case lexer.TokInteger:
		p.advance()
		return &ast.Type{Tag: ast.TInteger, Ln: ln}
	case lexer.TokReal:
		p.advance()
		return &ast.Type{Tag: ast.TReal, Ln: ln}
	case lexer.TokBoolean:
		p.advance()
		return &ast.Type{Tag: ast.TBoolean, Ln: ln}
	case lexer.TokString:
		p.advance()
		return &ast.Type{Tag: ast.TString, Ln: ln}
	case lexer.TokArray:
		p.advance()
		if !p.expect(lexer.TokLBracket, "'['") {
			return nil
		}
		lwb, ok := p.intConst()
		if !ok {
			return nil
		}
		if !p.expect(lexer.TokDotDot, "'..'") {
			return nil
		}
		upb, ok := p.intConst()
		if !ok {
			return nil
		}
		if !p.expect(lexer.TokRBracket, "']'") {
			return nil
		}
		if !p.expect(lexer.TokOf, "OF") {
			return nil
		}
		elem := p.typ()
		if elem == nil {
			return nil
		}
		return &ast.Type{Tag: ast.TArray, Lwb: lwb, Upb: upb, Elem: elem, Ln: ln}
	default:
		p.rep.Log(diag.Error, diag.Syntax, diag.ESymbolExpected, "Type (INTEGER, REAL, BOOLEAN or STRING)", ln)
		return nil
	}
}

func (p *Parser) intConst() (int16, bool) {
	t := p.cur()
	if t.Type != lexer.TokIntLit {
		p.rep.Log(diag.Error, diag.Syntax, diag.ESymbolExpected, "integer constant", p.line())
		return 0, false
	}
	p.advance()
	return int16(int32(t.Merkmal)), true
}

// --- statements ---

func (p *Parser) stats() []*ast.Stat {
	s := p.stat()
	if s == nil {
		return nil
	}
	result := []*ast.Stat{s}
	for p.at(lexer.TokSemi) {
		p.advance()
		more := p.stats()
		if more == nil {
			return nil
		}
		result = append(result, more...)
	}
	return result
}

func (p *Parser) stat() *ast.Stat {
	ln := p.line()
	switch p.cur().Type {
	case lexer.TokIdent:
		name, ident, identLn, ok := p.identTok()
		if !ok {
			return nil
		}
		return p.assignOrCall(name, ident, identLn)

	case lexer.TokIf:
		p.advance()
		cond := p.expr()
		if cond == nil {
			return nil
		}
		if !p.expect(lexer.TokThen, "THEN") {
			return nil
		}
		then := p.stats()
		if then == nil {
			return nil
		}
		if !p.expect(lexer.TokElse, "ELSE") {
			return nil
		}
		els := p.stats()
		if els == nil {
			return nil
		}
		if !p.expect(lexer.TokEnd, "END") {
			return nil
		}
		return &ast.Stat{Tag: ast.StIf, Cond: cond, Then: then, Else: els, Ln: ln}

	case lexer.TokWhile:
		p.advance()
		cond := p.expr()
		if cond == nil {
			return nil
		}
		if !p.expect(lexer.TokDo, "DO") {
			return nil
		}
		body := p.stats()
		if body == nil {
			return nil
		}
		if !p.expect(lexer.TokEnd, "END") {
			return nil
		}
		return &ast.Stat{Tag: ast.StWhile, Cond: cond, Body: body, Ln: ln}

	case lexer.TokRead:
		p.advance()
		if !p.expect(lexer.TokLParen, "'('") {
			return nil
		}
		target := p.variable()
		if target == nil {
			return nil
		}
		if !p.expect(lexer.TokRParen, "')'") {
			return nil
		}
		return &ast.Stat{Tag: ast.StRead, Target: target, Ln: ln}

	case lexer.TokWrite, lexer.TokWriteLn:
		tag := ast.StWrite
		if p.cur().Type == lexer.TokWriteLn {
			tag = ast.StWriteLn
		}
		p.advance()
		if !p.expect(lexer.TokLParen, "'('") {
			return nil
		}
		arg := p.expr()
		if arg == nil {
			return nil
		}
		if !p.expect(lexer.TokRParen, "')'") {
			return nil
		}
		return &ast.Stat{Tag: tag, Arg: arg, Ln: ln}

	case lexer.TokReturn:
		p.advance()
		st := &ast.Stat{Tag: ast.StReturn, Ln: ln}
		if p.at(lexer.TokLParen) {
			p.advance()
			if !p.at(lexer.TokRParen) {
				v := p.expr()
				if v == nil {
					return nil
				}
				st.Value = v
			}
			if !p.expect(lexer.TokRParen, "')'") {
				return nil
			}
		} else {
			p.rep.Log(diag.Warning, diag.Syntax, diag.ESymbolExpected, "'('", ln)
		}
		return st

	case lexer.TokFail:
		p.advance()
		if !p.expect(lexer.TokLParen, "'('") {
			return nil
		}
		st := &ast.Stat{Tag: ast.StFail, Ln: ln}
		if !p.at(lexer.TokRParen) {
			v := p.expr()
			if v == nil {
				return nil
			}
			st.Value = v
		}
		if !p.expect(lexer.TokRParen, "')'") {
			return nil
		}
		return st

	default:
		p.rep.Log(diag.Error, diag.Syntax, diag.ESymbolExpected,
			"IF, WHILE, READ, WRITE, WRITELN, RETURN, FAIL or identifier", ln)
		return nil
	}
}

// assignOrCall parses what follows a bare identifier at the head of a
// statement: an (optionally indexed) assignment, or a procedure call.
func (p *Parser) assignOrCall(name string, ident symtab.Merkmal, ln int) *ast.Stat {
	switch p.cur().Type {
	case lexer.TokLBracket:
		root := &ast.Index{Tag: ast.IxName, Name: name, Ident: ident, Ln: ln}
		lhs := p.index(root)
		if lhs == nil {
			return nil
		}
		if !p.expect(lexer.TokAssign, "':='") {
			return nil
		}
		rhs := p.expr()
		if rhs == nil {
			return nil
		}
		return &ast.Stat{Tag: ast.StAssign, LHS: lhs, RHS: rhs, Ln: ln}

	case lexer.TokAssign:
		lhs := &ast.Index{Tag: ast.IxName, Name: name, Ident: ident, Ln: ln}
		p.advance()
		rhs := p.expr()
		if rhs == nil {
			return nil
		}
		return &ast.Stat{Tag: ast.StAssign, LHS: lhs, RHS: rhs, Ln: ln}

	case lexer.TokLParen:
		p.advance()
		var actuals []*ast.Expr
		if !p.at(lexer.TokRParen) {
			a, ok := p.actuals()
			if !ok {
				return nil
			}
			actuals = a
		}
		if !p.expect(lexer.TokRParen, "')'") {
			return nil
		}
		return &ast.Stat{Tag: ast.StCall, Name: name, Ident: ident, Actuals: actuals, Ln: ln}

	default:
		// A parameterless call with no '(' at all is no longer accepted
		// silently; warn and still build the call so later passes see it.
		p.rep.Log(diag.Warning, diag.Syntax, diag.ESymbolExpected, "'('", ln)
		return &ast.Stat{Tag: ast.StCall, Name: name, Ident: ident, Ln: ln}
	}
}

func (p *Parser) actuals() ([]*ast.Expr, bool) {
	e := p.expr()
	if e == nil {
		return nil, false
	}
	result := []*ast.Expr{e}
	for p.at(lexer.TokComma) {
		p.advance()
		more, ok := p.actuals()
		if !ok {
			return nil, false
		}
		result = append(result, more...)
	}
	return result, true
}

// variable parses a Name optionally followed by one or more index chains —
// the grammar READ accepts.
func (p *Parser) variable() *ast.Index {
	name, ident, ln, ok := p.identTok()
	if !ok {
		return nil
	}
	root := &ast.Index{Tag: ast.IxName, Name: name, Ident: ident, Ln: ln}
	return p.index(root)
}

func (p *Parser) index(inner *ast.Index) *ast.Index {
	if !p.at(lexer.TokLBracket) {
		return inner
	}
	ln := p.line()
	p.advance()
	sub := p.expr()
	if sub == nil {
		return nil
	}
	if !p.expect(lexer.TokRBracket, "']'") {
		return nil
	}
	result := &ast.Index{Tag: ast.IxIndex, Inner: inner, Sub: sub, Ln: ln}
	if p.at(lexer.TokLBracket) {
		return p.index(result)
	}
	return result
}

// --- expressions ---

func (p *Parser) expr() *ast.Expr {
	if p.at(lexer.TokIf) {
		ln := p.line()
		p.advance()
		cond := p.expr()
		if cond == nil {
			return nil
		}
		if !p.expect(lexer.TokThen, "THEN") {
			return nil
		}
		then := p.expr()
		if then == nil {
			return nil
		}
		if !p.expect(lexer.TokElse, "ELSE") {
			return nil
		}
		els := p.expr()
		if els == nil {
			return nil
		}
		if !p.expect(lexer.TokEnd, "END") {
			return nil
		}
		return &ast.Expr{Tag: ast.EIfThenElse, If: cond, Then: then, Else: els, Ln: ln}
	}

	result := p.expr2()
	if result == nil {
		return nil
	}
	if op, ok := relOp(p.cur().Type); ok {
		ln := p.line()
		p.advance()
		rhs := p.expr2()
		if rhs == nil {
			return nil
		}
		return &ast.Expr{Tag: ast.EBinary, Op: op, LHS: result, RHS: rhs, Ln: ln}
	}
	return result
}

func (p *Parser) expr2() *ast.Expr {
	result := p.expr3()
	if result == nil {
		return nil
	}
	for {
		op, ok := newOp(p.cur().Type)
		if !ok {
			return result
		}
		ln := p.line()
		p.advance()
		rhs := p.expr3()
		if rhs == nil {
			return nil
		}
		result = &ast.Expr{Tag: ast.EBinary, Op: op, LHS: result, RHS: rhs, Ln: ln}
	}
}

func (p *Parser) expr3() *ast.Expr {
	result := p.term()
	if result == nil {
		return nil
	}
	for {
		op, ok := addOp(p.cur().Type)
		if !ok {
			return result
		}
		ln := p.line()
		p.advance()
		rhs := p.term()
		if rhs == nil {
			return nil
		}
		result = &ast.Expr{Tag: ast.EBinary, Op: op, LHS: result, RHS: rhs, Ln: ln}
	}
}

func (p *Parser) term() *ast.Expr {
	result := p.factor()
	if result == nil {
		return nil
	}
	for {
		op, ok := mulOp(p.cur().Type)
		if !ok {
			return result
		}
		ln := p.line()
		p.advance()
		rhs := p.factor()
		if rhs == nil {
			return nil
		}
		result = &ast.Expr{Tag: ast.EBinary, Op: op, LHS: result, RHS: rhs, Ln: ln}
	}
}

func (p *Parser) factor() *ast.Expr {
	ln := p.line()
	switch p.cur().Type {
	case lexer.TokNot:
		p.advance()
		operand := p.factor()
		if operand == nil {
			return nil
		}
		return &ast.Expr{Tag: ast.EBinary, Op: ast.OpNot, LHS: operand, Ln: ln}

	case lexer.TokLParen:
		p.advance()
		e := p.expr()
		if e == nil {
			return nil
		}
		if !p.expect(lexer.TokRParen, "')'") {
			return nil
		}
		return e

	case lexer.TokIdent:
		name, ident, identLn, ok := p.identTok()
		if !ok {
			return nil
		}
		return p.varOrFunc(name, ident, identLn)

	case lexer.TokIntLit:
		t := p.cur()
		p.advance()
		return &ast.Expr{Tag: ast.EIntConst, IntVal: int32(t.Merkmal), Ln: ln}

	case lexer.TokReaLit:
		t := p.cur()
		p.advance()
		return &ast.Expr{Tag: ast.ERealConst, RealID: consttab.ID(t.Merkmal), Ln: ln}

	case lexer.TokStrLit:
		t := p.cur()
		p.advance()
		return &ast.Expr{Tag: ast.EStringConst, StringID: consttab.ID(t.Merkmal), Ln: ln}

	case lexer.TokFalse:
		p.advance()
		return &ast.Expr{Tag: ast.EBoolConst, BoolVal: false, Ln: ln}

	case lexer.TokTrue:
		p.advance()
		return &ast.Expr{Tag: ast.EBoolConst, BoolVal: true, Ln: ln}

	case lexer.TokFormat:
		p.advance()
		if !p.expect(lexer.TokLParen, "'('") {
			return nil
		}
		arg := p.expr()
		if arg == nil {
			return nil
		}
		if !p.expect(lexer.TokRParen, "')'") {
			return nil
		}
		return &ast.Expr{Tag: ast.EFormat, FormatArg: arg, Ln: ln}

	default:
		// The original grammar has a tok_lidx arm here that dereferences a
		// name never set on this path (an identifier is always consumed
		// before any '[' could be seen). A leading '[' can't start a factor
		// in this grammar, so it is just a syntax error.
		p.rep.Log(diag.Error, diag.Syntax, diag.ESymbolExpected, "NOT, '(', constant or identifier", ln)
		return nil
	}
}

// varOrFunc parses what follows an identifier already consumed inside an
// expression: a call (if '(' follows) or an (optionally indexed) variable
// reference otherwise.
func (p *Parser) varOrFunc(name string, ident symtab.Merkmal, ln int) *ast.Expr {
	if p.at(lexer.TokLParen) {
		p.advance()
		var actuals []*ast.Expr
		if !p.at(lexer.TokRParen) {
			a, ok := p.actuals()
			if !ok {
				return nil
			}
			actuals = a
		}
		if !p.expect(lexer.TokRParen, "')'") {
			return nil
		}
		return &ast.Expr{Tag: ast.EFunCall, Name: name, Ident: ident, Actuals: actuals, Ln: ln}
	}
	root := &ast.Index{Tag: ast.IxName, Name: name, Ident: ident, Ln: ln}
	idx := p.index(root)
	if idx == nil {
		return nil
	}
	return &ast.Expr{Tag: ast.EIndex, Index: idx, Ln: ln}
}

// --- operator-token-to-Op mappings ---

func relOp(t lexer.TokenType) (ast.Op, bool) {
	switch t {
	case lexer.TokLT:
		return ast.OpLT, true
	case lexer.TokLE:
		return ast.OpLE, true
	case lexer.TokEQ:
		return ast.OpEQ, true
	case lexer.TokGE:
		return ast.OpGE, true
	case lexer.TokGT:
		return ast.OpGT, true
	default:
		return 0, false
	}
}

func newOp(t lexer.TokenType) (ast.Op, bool) {
	switch t {
	case lexer.TokConcat:
		return ast.OpConcat, true
	case lexer.TokPercent:
		return ast.OpMod, true
	default:
		return 0, false
	}
}

func addOp(t lexer.TokenType) (ast.Op, bool) {
	switch t {
	case lexer.TokPlus:
		return ast.OpAdd, true
	case lexer.TokMinus:
		return ast.OpSub, true
	default:
		return 0, false
	}
}

func mulOp(t lexer.TokenType) (ast.Op, bool) {
	switch t {
	case lexer.TokStar:
		return ast.OpMul, true
	case lexer.TokSlash:
		return ast.OpDiv, true
	default:
		return 0, false
	}
}
