// Package golden drives whole-program compilation scenarios bundled as
// txtar archives: one archive per scenario, unpacked and run through the
// full pipeline, with structural assertions replacing a byte-exact listing
// compare so a scenario's expectations stay readable as plain Go rather
// than as an opaque decimal dump.
package golden

import (
	"fmt"

	"golang.org/x/tools/txtar"

	"minilax/internal/ast"
	"minilax/internal/cbam"
	"minilax/internal/consttab"
	"minilax/internal/diag"
	"minilax/internal/lexer"
	"minilax/internal/optim"
	"minilax/internal/parser"
	"minilax/internal/semant"
	"minilax/internal/serializer"
	"minilax/internal/symtab"
	"minilax/internal/tac"
	"minilax/internal/typecheck"
)

// Scenario is one unpacked txtar archive: the MiniLAX source under test,
// plus an "optimize" marker file that, if present, routes the scenario's
// TAC through internal/optim before lowering.
type Scenario struct {
	Name     string
	Source   string
	Optimize bool
}

// Load unpacks a txtar archive into a Scenario. The archive's file named
// "source.lax", wherever it appears in the archive, is the program text.
func Load(name string, data []byte) (*Scenario, error) {
	arc := txtar.Parse(data)
	s := &Scenario{Name: name}
	for _, f := range arc.Files {
		switch f.Name {
		case "source.lax":
			s.Source = string(f.Data)
		case "optimize":
			s.Optimize = true
		}
	}
	if s.Source == "" {
		return nil, fmt.Errorf("%s: archive has no source.lax file", name)
	}
	return s, nil
}

// Result captures every pipeline stage's output for a scenario run, so a
// test can inspect whichever stage it cares about.
type Result struct {
	Reporter *diag.Reporter
	AST      *ast.Program
	TAC      *tac.Program
	CBAM     *cbam.Program
	Output   []byte
}

// Run executes the full compiler pipeline over a scenario's source,
// stopping early the same way cmd/minilax does once diagnostics forbid
// further codegen.
func Run(s *Scenario) *Result {
	rep := diag.New(nil)
	syms := symtab.New()
	consts := consttab.New()

	r := &Result{Reporter: rep}

	toks := lexer.New(s.Source, syms, consts, rep).ScanTokens()
	if rep.Aborted() != nil {
		return r
	}

	prog := parser.New(toks, syms, rep).Parse()
	if rep.Aborted() != nil || prog == nil {
		return r
	}
	r.AST = prog

	semant.New(rep).Analyze(prog)
	typecheck.New(rep).Check(prog)
	if rep.Aborted() != nil || !rep.CodegenAllowed() {
		return r
	}

	tacProg := tac.Generate(prog, consts, rep)
	if s.Optimize {
		tacProg = optim.Optimize(tacProg)
	}
	r.TAC = tacProg
	if rep.Aborted() != nil || !rep.CodegenAllowed() {
		return r
	}

	cbamProg := cbam.Lower(tacProg, rep)
	r.CBAM = cbamProg
	if !rep.CodegenAllowed() {
		return r
	}

	r.Output = serializer.Serialize(cbamProg, consts, rep)
	return r
}

// DiagnosticCodes reports the codes the reporter actually logged, in
// emission order.
func DiagnosticCodes(rep *diag.Reporter) []diag.Code {
	var codes []diag.Code
	for _, rec := range rep.Records() {
		codes = append(codes, rec.Code)
	}
	return codes
}
