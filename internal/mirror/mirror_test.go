package mirror

import (
	"testing"

	lspaierrors "github.com/standardbeagle/lspaid/internal/errors"
)

func TestOpenAndFilterText(t *testing.T) {
	m := New(false)
	m.Open("file:///a.go", "package main\n\nfunc main() {}\n")

	got, err := m.FilterText("file:///a.go", Position{Line: 2, Character: 4})
	if err != nil {
		t.Fatal(err)
	}
	if got != "func" {
		t.Fatalf("got %q", got)
	}
}

func TestFilterTextUnknownURI(t *testing.T) {
	m := New(false)
	_, err := m.FilterText("file:///missing.go", Position{})
	var me *lspaierrors.MirrorError
	if !asMirrorError(err, &me) || me.Kind != lspaierrors.MirrorFileNotFound {
		t.Fatalf("expected MirrorFileNotFound, got %v", err)
	}
}

func asMirrorError(err error, target **lspaierrors.MirrorError) bool {
	me, ok := err.(*lspaierrors.MirrorError)
	if ok {
		*target = me
	}
	return ok
}

func TestChangeFullReplacement(t *testing.T) {
	m := New(false)
	m.Open("file:///a.go", "one")
	if err := m.Change("file:///a.go", []Change{{Text: "two"}}); err != nil {
		t.Fatal(err)
	}
	doc, ok := m.Document("file:///a.go")
	if !ok {
		t.Fatal("expected document")
	}
	if doc.Rope.String() != "two" {
		t.Fatalf("got %q", doc.Rope.String())
	}
}

func TestChangeIncrementalSplice(t *testing.T) {
	m := New(false)
	m.Open("file:///a.go", "hello world")
	// Replace "world" (chars 6..11, line 0) with "there".
	err := m.Change("file:///a.go", []Change{{
		Range: &Range{Start: Position{Line: 0, Character: 6}, End: Position{Line: 0, Character: 11}},
		Text:  "there",
	}})
	if err != nil {
		t.Fatal(err)
	}
	doc, _ := m.Document("file:///a.go")
	if doc.Rope.String() != "hello there" {
		t.Fatalf("got %q", doc.Rope.String())
	}
}

func TestChangeOutOfRange(t *testing.T) {
	m := New(false)
	m.Open("file:///a.go", "abc")
	err := m.Change("file:///a.go", []Change{{
		Range: &Range{Start: Position{Line: 5, Character: 0}, End: Position{Line: 5, Character: 1}},
		Text:  "x",
	}})
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestRenameSkipsMissing(t *testing.T) {
	m := New(false)
	m.Open("file:///a.go", "a")
	m.Rename([][2]string{
		{"file:///missing.go", "file:///still-missing.go"},
		{"file:///a.go", "file:///b.go"},
	})
	if _, ok := m.Document("file:///a.go"); ok {
		t.Fatal("old URI should no longer resolve")
	}
	doc, ok := m.Document("file:///b.go")
	if !ok || doc.Rope.String() != "a" {
		t.Fatal("expected document to be rekeyed under the new URI")
	}
}

func TestCodeWindowSingleFile(t *testing.T) {
	m := New(false)
	m.Open("file:///a.go", "hello world")
	r, cursor, err := m.CodeWindow("file:///a.go", Position{Line: 0, Character: 5}, 100, false)
	if err != nil {
		t.Fatal(err)
	}
	if r.String() != "hello world" {
		t.Fatalf("got %q", r.String())
	}
	if cursor != 5 {
		t.Fatalf("expected cursor 5, got %d", cursor)
	}
}

func TestCodeWindowPullsFromMultipleFiles(t *testing.T) {
	m := New(false)
	m.Open("file:///a.go", "aaaa")
	m.Open("file:///b.go", "bbbb")

	r, cursor, err := m.CodeWindow("file:///b.go", Position{Line: 0, Character: 2}, 100, true)
	if err != nil {
		t.Fatal(err)
	}
	want := "aaaa\nbbbb"
	if r.String() != want {
		t.Fatalf("got %q want %q", r.String(), want)
	}
	if cursor != len("aaaa\n")+2 {
		t.Fatalf("cursor = %d", cursor)
	}
}

// TestCodeWindowOrdersSiblingsByRecency confirms that re-touching a document
// (via Change, not just Open) moves it back to the head of the recency list,
// so CodeWindow's sibling prefix always reflects most-recent-first order.
func TestCodeWindowOrdersSiblingsByRecency(t *testing.T) {
	m := New(false)
	m.Open("file:///a.go", "aaaa")
	m.Open("file:///b.go", "bbbb")
	m.Open("file:///c.go", "cccc")

	// Recency is now [c, b, a]. Touch a so it becomes most recent: [a, c, b].
	if err := m.Change("file:///a.go", []Change{{Text: "aaaa"}}); err != nil {
		t.Fatal(err)
	}

	r, _, err := m.CodeWindow("file:///c.go", Position{Line: 0, Character: 0}, 100, true)
	if err != nil {
		t.Fatal(err)
	}
	want := "aaaa\nbbbb\ncccc"
	if r.String() != want {
		t.Fatalf("got %q want %q", r.String(), want)
	}
}

func TestCodeWindowNoPullWhenDisabled(t *testing.T) {
	m := New(false)
	m.Open("file:///a.go", "aaaa")
	m.Open("file:///b.go", "bbbb")

	r, _, err := m.CodeWindow("file:///b.go", Position{Line: 0, Character: 0}, 100, false)
	if err != nil {
		t.Fatal(err)
	}
	if r.String() != "bbbb" {
		t.Fatalf("got %q", r.String())
	}
}
