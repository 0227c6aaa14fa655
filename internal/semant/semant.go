// Package semant implements the semantic analyzer: it builds the
// environment chain every name reference resolves through, and attaches a
// unique Object to every declaring node. Referencing nodes are resolved
// against that chain later, by internal/typecheck.
package semant

import (
	"minilax/internal/ast"
	"minilax/internal/diag"
)

// Analyzer walks the tree exactly once, left to right, depth-first.
type Analyzer struct {
	rep   *diag.Reporter
	depth uint16
}

// New creates an Analyzer reporting through rep.
func New(rep *diag.Reporter) *Analyzer {
	return &Analyzer{rep: rep}
}

// Analyze builds every Object/Env/Hidden attribute on the tree rooted at
// prog.Root. The program root is itself wrapped as a synthetic procedure at
// depth 0 whose enclosing environment is empty.
func (a *Analyzer) Analyze(prog *ast.Program) {
	var noEnv *ast.Env = &ast.Env{}
	rootHidden := &ast.EnvExt{Tag: ast.ExtEnv, EnvPtr: &noEnv}
	a.decl(prog.Root, rootHidden)
}

// decl fills in one declaration's Object, and — for Proc/Func — its Env.
// hidden is the (address-stable) pointer to the enclosing scope's Env field;
// it becomes node.Env.Next once node's own Env is built.
func (a *Analyzer) decl(node *ast.Decl, hidden *ast.EnvExt) {
	node.Hidden = hidden

	switch node.Tag {
	case ast.DeclProc, ast.DeclFunc:
		var retType *ast.Type
		if node.Tag == ast.DeclFunc {
			a.checkBounds(node.Type)
			retType = node.Type
		}
		node.Object = a.procObject(node.Name, node.Formals, retType)

		a.depth++
		initial := a.formals(node.Formals)
		a.declsList(node, initial)
		a.depth--

	case ast.DeclVar:
		node.Object = a.varObject(node.Name, node.Type)
		a.checkBounds(node.Type)
	}
}

func (a *Analyzer) procObject(name string, formals []*ast.Formal, retType *ast.Type) *ast.Object {
	return &ast.Object{
		Tag:     ast.ObjDecl,
		Name:    name,
		Formals: formals,
		IsFunc:  retType != nil,
		RetType: retType,
		Depth:   a.depth,
	}
}

func (a *Analyzer) varObject(name string, t *ast.Type) *ast.Object {
	return &ast.Object{Tag: ast.ObjVari, Name: name, VarType: t, Depth: a.depth}
}

// formals assigns every formal its Object, flags a name that collides with
// an earlier formal in the same list, and returns the accumulated chain so
// the body's own local declarations can be checked against the formals too.
func (a *Analyzer) formals(formals []*ast.Formal) *ast.Decls {
	var chain *ast.Decls
	for _, f := range formals {
		f.Object = a.varObject(f.Name, f.Type)
		if chain.Lookup(f.Name) != nil {
			a.rep.Log(diag.Error, diag.Semantic, diag.EDeclaredTwice, f.Name, f.Line())
		}
		a.checkBounds(f.Type)
		chain = &ast.Decls{Object: f.Object, Next: chain}
	}
	return chain
}

// declsList processes a Proc/Func body's local declarations in order,
// flagging a name that collides with a formal or an earlier local
// declaration, then wraps the completed list in parent's new Env.
//
// Every child declaration's Hidden points at the address of parent.Env
// itself rather than at a value already computed — so once parent.Env is
// assigned below, every child (and anything nested inside it) resolves
// names through the *complete* sibling list, including ones declared later
// in the source. That is what lets mutual recursion between two sibling
// procedures work without a forward-declaration syntax.
func (a *Analyzer) declsList(parent *ast.Decl, initial *ast.Decls) {
	childHidden := &ast.EnvExt{Tag: ast.ExtEnv, EnvPtr: &parent.Env}

	chain := initial
	for _, d := range parent.Decls {
		if chain.Lookup(d.Name) != nil {
			a.rep.Log(diag.Error, diag.Semantic, diag.EDeclaredTwice, d.Name, d.Line())
		}
		a.decl(d, childHidden)
		chain = &ast.Decls{Object: d.Object, Next: chain}
	}

	parent.Env = &ast.Env{Decls: chain, Next: parent.Hidden}
}

// checkBounds validates lwb<=upb for every ARRAY layer reachable from t,
// unwrapping REF and nested ARRAY element types.
func (a *Analyzer) checkBounds(t *ast.Type) {
	if t == nil {
		return
	}
	switch t.Tag {
	case ast.TArray:
		if t.Lwb > t.Upb {
			a.rep.Log(diag.Error, diag.Semantic, diag.ELwbGreaterUpb, "", t.Line())
		}
		a.checkBounds(t.Elem)
	case ast.TRef:
		a.checkBounds(t.Inner)
	}
}
