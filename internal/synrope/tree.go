// Package synrope wraps github.com/tree-sitter/go-tree-sitter behind the
// narrow surface the Document Mirror needs: parse-if-available, edit,
// reparse. Grammar loading itself is an explicitly out-of-scope external
// collaborator; this package only decides which of the
// grammars already linked into the binary applies to a given file
// extension, and never fails the caller when one doesn't — tree building is
// optional.
package synrope

import (
	"sync"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// languages maps a lowercased file extension (no dot) to its grammar. Only a
// representative subset of the corpus's available grammars is linked in;
// grammar loading and discovery stay out of this package's concern.
var languages = map[string]*sitter.Language{
	"go":  sitter.NewLanguage(tree_sitter_go.Language()),
	"js":  sitter.NewLanguage(tree_sitter_javascript.Language()),
	"jsx": sitter.NewLanguage(tree_sitter_javascript.Language()),
	"ts":  sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript()),
	"tsx": sitter.NewLanguage(tree_sitter_typescript.LanguageTSX()),
	"py":  sitter.NewLanguage(tree_sitter_python.Language()),
	"rs":  sitter.NewLanguage(tree_sitter_rust.Language()),
}

// HasGrammar reports whether ext has a linked grammar.
func HasGrammar(ext string) bool {
	_, ok := languages[ext]
	return ok
}

// parserPool recycles *sitter.Parser per language; parsers are expensive to
// configure and the mirror may reparse on every keystroke.
var parserPool = struct {
	mu   sync.Mutex
	byOP map[*sitter.Language][]*sitter.Parser
}{byOP: make(map[*sitter.Language][]*sitter.Parser)}

func getParser(lang *sitter.Language) *sitter.Parser {
	parserPool.mu.Lock()
	defer parserPool.mu.Unlock()
	pool := parserPool.byOP[lang]
	if len(pool) > 0 {
		p := pool[len(pool)-1]
		parserPool.byOP[lang] = pool[:len(pool)-1]
		return p
	}
	p := sitter.NewParser()
	_ = p.SetLanguage(lang)
	return p
}

func putParser(lang *sitter.Language, p *sitter.Parser) {
	parserPool.mu.Lock()
	defer parserPool.mu.Unlock()
	parserPool.byOP[lang] = append(parserPool.byOP[lang], p)
}

// Tree pairs a tree-sitter Tree with the language that produced it, so a
// later Edit+Reparse doesn't need the caller to remember which grammar to
// use.
type Tree struct {
	lang *sitter.Language
	tree *sitter.Tree
}

// Parse produces a Tree for source if ext has a linked grammar. ok is false
// (Tree nil) when there is no grammar for ext; parser failure is likewise
// reported as ok=false rather than an error, since a missing or failed parse
// tree is never fatal to the caller.
func Parse(ext string, source []byte) (t *Tree, ok bool) {
	lang, has := languages[ext]
	if !has {
		return nil, false
	}
	p := getParser(lang)
	defer putParser(lang, p)

	st := p.Parse(source, nil)
	if st == nil {
		return nil, false
	}
	return &Tree{lang: lang, tree: st}, true
}

// Edit updates the tree's internal byte/position bookkeeping ahead of a
// reparse, recording the old and new byte ranges and positions the way
// tree-sitter's incremental parser expects before Reparse is called.
func (t *Tree) Edit(startByte, oldEndByte, newEndByte uint, startPos, oldEndPos, newEndPos Point) {
	t.tree.Edit(&sitter.InputEdit{
		StartByte:      startByte,
		OldEndByte:     oldEndByte,
		NewEndByte:     newEndByte,
		StartPosition:  sitter.Point{Row: startPos.Row, Column: startPos.Column},
		OldEndPosition: sitter.Point{Row: oldEndPos.Row, Column: oldEndPos.Column},
		NewEndPosition: sitter.Point{Row: newEndPos.Row, Column: newEndPos.Column},
	})
}

// Reparse reparses newSource using the edited tree as an incremental hint.
// On failure the caller keeps the previous Tree; a stale tree is never fatal.
func (t *Tree) Reparse(newSource []byte) (*Tree, bool) {
	p := getParser(t.lang)
	defer putParser(t.lang, p)

	nt := p.Parse(newSource, t.tree)
	if nt == nil {
		return t, false
	}
	return &Tree{lang: t.lang, tree: nt}, true
}

// Close releases the underlying tree-sitter tree.
func (t *Tree) Close() {
	if t != nil && t.tree != nil {
		t.tree.Close()
	}
}

// Point is a (row, column) position in tree-sitter's byte-oriented coordinate
// system — row and column are 0-based, column counted in bytes, not runes.
type Point struct {
	Row    uint
	Column uint
}
