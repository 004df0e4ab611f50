package synrope

import "testing"

func TestHasGrammar(t *testing.T) {
	if !HasGrammar("go") {
		t.Error("expected a grammar for go")
	}
	if HasGrammar("zig") {
		t.Error("did not expect a grammar for zig in this subset")
	}
}

func TestParseUnknownExtension(t *testing.T) {
	_, ok := Parse("zig", []byte("const x = 1;"))
	if ok {
		t.Error("expected Parse to report no grammar available")
	}
}

func TestParseAndReparseGo(t *testing.T) {
	src := []byte("package main\n\nfunc main() {}\n")
	tr, ok := Parse("go", src)
	if !ok || tr == nil {
		t.Fatal("expected a tree for go source")
	}
	defer tr.Close()

	// Simulate inserting " " between "{" and "}" — shifts bytes after it.
	insertAt := uint(27)
	tr.Edit(insertAt, insertAt, insertAt+1, Point{Row: 2, Column: 13}, Point{Row: 2, Column: 13}, Point{Row: 2, Column: 14})

	newSrc := append(append(append([]byte{}, src[:insertAt]...), ' '), src[insertAt:]...)
	nt, ok := tr.Reparse(newSrc)
	if !ok || nt == nil {
		t.Fatal("expected reparse to succeed")
	}
	defer nt.Close()
}
