package ast

import "minilax/internal/symtab"

// DeclTag enumerates the Decl variants.
type DeclTag int

const (
	DeclProc DeclTag = iota
	DeclFunc
	DeclVar
)

// Decl is the atn_decl tagged node: Proc{name,formals,decls,stats},
// Func{name,formals,type,decls,stats}, or Var{name,type}. Object/Env/Hidden
// are the attribute slots filled by the semantic analyzer.
type Decl struct {
	Tag   DeclTag
	Name  string
	Ident symtab.Merkmal

	Formals []*Formal // Proc/Func
	Decls   []*Decl   // Proc/Func nested declarations
	Stats   []*Stat   // Proc/Func body
	Type    *Type     // Var's declared type; Func's declared return type

	Object *Object // semantic identity, filled by the analyzer
	Env    *Env    // outgoing environment for nested resolution (Proc/Func)
	Hidden *EnvExt // back-pointer to the enclosing scope

	Ln int
}

func (d *Decl) Line() int { return d.Ln }

// Program is the parsed compilation unit: PROGRAM Name ; DECLARE Decls
// BEGIN Stats END .
type Program struct {
	Name  string
	Ident symtab.Merkmal

	Decls []*Decl
	Stats []*Stat

	// Root is the synthetic DeclProc wrapping the whole program so the
	// semantic analyzer and code generator can treat "main" exactly like
	// any other procedure at depth 0.
	Root *Decl
}
