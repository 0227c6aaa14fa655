package symtab

import "testing"

func TestKeywordsArePreloadedAndLookupable(t *testing.T) {
	tbl := New()
	kind, ok := tbl.Lookup("WHILE")
	if !ok {
		t.Fatalf("expected WHILE to be a preloaded keyword")
	}
	if kind != KwWhile {
		t.Errorf("Lookup(WHILE) = %d, want %d", kind, KwWhile)
	}
}

func TestLookupRejectsNonKeywordLexeme(t *testing.T) {
	tbl := New()
	if _, ok := tbl.Lookup("total"); ok {
		t.Fatalf("expected a non-keyword lexeme to fail Lookup")
	}
}

func TestInternReusesMerkmalForRepeatedIdentifier(t *testing.T) {
	tbl := New()
	a := tbl.Intern("total")
	b := tbl.Intern("total")
	if a != b {
		t.Errorf("expected interning \"total\" twice to return the same merkmal, got %d and %d", a, b)
	}
	if tbl.Lexeme(a) != "total" {
		t.Errorf("Lexeme(a) = %q, want %q", tbl.Lexeme(a), "total")
	}
	if tbl.IsKeyword(a) {
		t.Errorf("expected an interned identifier to not be reported as a keyword")
	}
}

func TestInternGivesDistinctIdentifiersDistinctMerkmals(t *testing.T) {
	tbl := New()
	a := tbl.Intern("x")
	b := tbl.Intern("y")
	if a == b {
		t.Fatalf("expected distinct identifiers to get distinct merkmals")
	}
}

func TestInternDoesNotShadowAKeywordLexeme(t *testing.T) {
	tbl := New()
	m := tbl.Intern("WHILE")
	if !tbl.IsKeyword(m) {
		t.Errorf("expected interning the keyword spelling \"WHILE\" to resolve to its existing keyword entry")
	}
	kind, ok := tbl.Lookup("WHILE")
	if !ok || kind != KwWhile {
		t.Errorf("expected WHILE to still be looked up as a keyword after Intern")
	}
}

func TestAllKeywordLexemesAreDistinctMerkmals(t *testing.T) {
	tbl := New()
	seen := make(map[Merkmal]string)
	for _, lex := range []string{
		"ARRAY", "BEGIN", "BOOLEAN", "DECLARE", "DO", "ELSE", "END", "FAIL",
		"FALSE", "FORMAT", "FUNCTION", "IF", "INTEGER", "NOT", "OF",
		"PROCEDURE", "PROGRAM", "READ", "REAL", "RETURN", "STRING", "THEN",
		"TRUE", "VAR", "WHILE", "WRITE", "WRITELN",
	} {
		kind, ok := tbl.Lookup(lex)
		if !ok {
			t.Fatalf("expected %q to be a preloaded keyword", lex)
		}
		m := tbl.byLexeme[lex]
		if prior, dup := seen[m]; dup {
			t.Fatalf("keyword %q collides with %q at merkmal %d", lex, prior, m)
		}
		seen[m] = lex
		_ = kind
	}
}
