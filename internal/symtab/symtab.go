// Package symtab implements the hashed identifier-interning table: a hash
// table from lexeme to (token kind, merkmal), preloaded with all MiniLAX
// keywords. Identifiers are interned on first sight and reused; the merkmal
// of an identifier token is the compact handle later passes use as the
// identifier's identity.
package symtab

// Kind is the lexical class stored alongside a lexeme.
type Kind int

const (
	KindIdent Kind = iota
	KindKeyword
)

// Merkmal is the 32-bit attribute handle assigned to an interned lexeme,
// stable for the lifetime of the compilation run.
type Merkmal uint32

type entry struct {
	lexeme string
	kind   Kind
	keyKind KeywordKind // valid only when kind == KindKeyword
}

// Table is the hashed symbol table. It is preloaded with keywords at
// construction and interns identifiers on demand.
type Table struct {
	byLexeme map[string]Merkmal
	entries  []entry
}

// KeywordKind enumerates MiniLAX's reserved words.
type KeywordKind int

const (
	KwArray KeywordKind = iota
	KwBegin
	KwBoolean
	KwDeclare
	KwDo
	KwElse
	KwEnd
	KwFail
	KwFalse
	KwFormat
	KwFunction
	KwIf
	KwInteger
	KwNot
	KwOf
	KwProcedure
	KwProgram
	KwRead
	KwReal
	KwReturn
	KwString
	KwThen
	KwTrue
	KwVar
	KwWhile
	KwWrite
	KwWriteLn
)

var keywordLexemes = map[string]KeywordKind{
	"ARRAY":     KwArray,
	"BEGIN":     KwBegin,
	"BOOLEAN":   KwBoolean,
	"DECLARE":   KwDeclare,
	"DO":        KwDo,
	"ELSE":      KwElse,
	"END":       KwEnd,
	"FAIL":      KwFail,
	"FALSE":     KwFalse,
	"FORMAT":    KwFormat,
	"FUNCTION":  KwFunction,
	"IF":        KwIf,
	"INTEGER":   KwInteger,
	"NOT":       KwNot,
	"OF":        KwOf,
	"PROCEDURE": KwProcedure,
	"PROGRAM":   KwProgram,
	"READ":      KwRead,
	"REAL":      KwReal,
	"RETURN":    KwReturn,
	"STRING":    KwString,
	"THEN":      KwThen,
	"TRUE":      KwTrue,
	"VAR":       KwVar,
	"WHILE":     KwWhile,
	"WRITE":     KwWrite,
	"WRITELN":   KwWriteLn,
}

// New returns a symbol table preloaded with all MiniLAX keywords.
func New() *Table {
	t := &Table{byLexeme: make(map[string]Merkmal, 64)}
	// Deterministic preload order keeps merkmal values stable across runs.
	order := make([]string, 0, len(keywordLexemes))
	for lex := range keywordLexemes {
		order = append(order, lex)
	}
	sortStrings(order)
	for _, lex := range order {
		t.entries = append(t.entries, entry{lexeme: lex, kind: KindKeyword, keyKind: keywordLexemes[lex]})
		t.byLexeme[lex] = Merkmal(len(t.entries) - 1)
	}
	return t
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// Lookup returns the keyword kind for a lexeme, if it is a keyword.
func (t *Table) Lookup(lexeme string) (KeywordKind, bool) {
	m, ok := t.byLexeme[lexeme]
	if !ok {
		return 0, false
	}
	e := t.entries[m]
	if e.kind != KindKeyword {
		return 0, false
	}
	return e.keyKind, true
}

// Intern returns the stable merkmal for lexeme, creating an identifier
// entry the first time it is seen — identifiers the lexer encounters are
// interned on first sight and reused thereafter.
func (t *Table) Intern(lexeme string) Merkmal {
	if m, ok := t.byLexeme[lexeme]; ok {
		return m
	}
	t.entries = append(t.entries, entry{lexeme: lexeme, kind: KindIdent})
	m := Merkmal(len(t.entries) - 1)
	t.byLexeme[lexeme] = m
	return m
}

// Lexeme returns the original spelling interned under m.
func (t *Table) Lexeme(m Merkmal) string { return t.entries[m].lexeme }

// IsKeyword reports whether m denotes a preloaded keyword.
func (t *Table) IsKeyword(m Merkmal) bool { return t.entries[m].kind == KindKeyword }
