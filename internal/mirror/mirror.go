// Package mirror maintains the authoritative in-memory view of every file
// the editor or crawler has disclosed to the daemon, keyed by URI. It is the
// shared state the Orchestrator's Mirror-queue consumer single-threads
// access to (internal/orchestrator): callers here must already hold
// whatever external serialization the orchestrator provides, so Mirror's own
// lock exists only to protect against the crawler's goroutine racing a
// didChange notification, not as the primary concurrency boundary.
package mirror

import (
	"strings"
	"sync"
	"unicode/utf8"

	lspaierrors "github.com/standardbeagle/lspaid/internal/errors"
	"github.com/standardbeagle/lspaid/internal/rope"
	"github.com/standardbeagle/lspaid/internal/synrope"
	"github.com/standardbeagle/lspaid/pkg/uriutil"
)

// Mirror holds every open Document plus a most-recently-used order over
// their URIs, consulted by CodeWindow when pulling context from sibling
// files.
type Mirror struct {
	mu         sync.Mutex
	docs       map[string]*Document
	recency    []string // recency[0] is most recently touched
	buildTrees bool

	// crawlTrigger is invoked after a successful Open, outside the lock, so
	// the crawler's filesystem walk never blocks another Mirror call. Set
	// via SetCrawlTrigger; nil is a valid no-op default so tests that don't
	// need a crawler can construct a Mirror directly.
	crawlTrigger func(uri string)
}

// New creates an empty Mirror. buildTrees enables best-effort tree-sitter
// parsing on Open/Change.
func New(buildTrees bool) *Mirror {
	return &Mirror{
		docs:       make(map[string]*Document),
		buildTrees: buildTrees,
	}
}

// SetCrawlTrigger installs the callback Open uses to kick off a crawl. The
// Mirror package deliberately does not import internal/crawl: the crawler
// depends on the Mirror to admit files, so the dependency runs the other
// direction and this hook is how internal/lspglue wires them together
// without a cycle.
func (m *Mirror) SetCrawlTrigger(fn func(uri string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.crawlTrigger = fn
}

func (m *Mirror) touch(uri string) {
	for i, u := range m.recency {
		if u == uri {
			m.recency = append(m.recency[:i], m.recency[i+1:]...)
			break
		}
	}
	m.recency = append([]string{uri}, m.recency...)
}

func (m *Mirror) untrack(uri string) {
	for i, u := range m.recency {
		if u == uri {
			m.recency = append(m.recency[:i], m.recency[i+1:]...)
			return
		}
	}
}

// Open inserts a Document for uri, best-effort-parsing it if tree-building
// is enabled and a grammar is linked for its extension, then moves uri to
// the head of the recency list and fires the crawl trigger.
func (m *Mirror) Open(uri, text string) {
	ext := uriutil.Ext(uri)
	r := rope.New(text)

	doc := &Document{URI: uri, Ext: ext, Rope: r}
	if m.buildTrees && synrope.HasGrammar(ext) {
		if tree, ok := synrope.Parse(ext, []byte(text)); ok {
			doc.Tree = tree
		}
	}

	m.mu.Lock()
	m.docs[uri] = doc
	m.touch(uri)
	trigger := m.crawlTrigger
	m.mu.Unlock()

	if trigger != nil {
		trigger(uri)
	}
}

// Change applies each Change in changes to the Document named by uri, in
// order
func (m *Mirror) Change(uri string, changes []Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[uri]
	if !ok {
		return lspaierrors.NewMirrorError(lspaierrors.MirrorFileNotFound, "change", uri, nil)
	}

	for _, ch := range changes {
		if ch.Range == nil {
			doc.Rope = rope.New(ch.Text)
			doc.Tree = nil
			if m.buildTrees && synrope.HasGrammar(doc.Ext) {
				if tree, ok := synrope.Parse(doc.Ext, []byte(ch.Text)); ok {
					doc.Tree = tree
				}
			}
			continue
		}
		if err := m.applySplice(doc, *ch.Range, ch.Text); err != nil {
			return err
		}
	}

	m.touch(uri)
	return nil
}

func (m *Mirror) applySplice(doc *Document, rng Range, text string) error {
	old := doc.Rope

	startChar, err := old.PositionToChar(rng.Start.Line, rng.Start.Character)
	if err != nil {
		return mirrorBoundsErr(err, "change", doc.URI)
	}
	endChar, err := old.PositionToChar(rng.End.Line, rng.End.Character)
	if err != nil {
		return mirrorBoundsErr(err, "change", doc.URI)
	}

	var startPoint, oldEndPoint synrope.Point
	var startByte, oldEndByte int
	haveTree := m.buildTrees && doc.Tree != nil
	if haveTree {
		startPoint, err = pointOf(old, startChar)
		if err != nil {
			return mirrorBoundsErr(err, "change", doc.URI)
		}
		oldEndPoint, err = pointOf(old, endChar)
		if err != nil {
			return mirrorBoundsErr(err, "change", doc.URI)
		}
		startByte, err = old.CharToByte(startChar)
		if err != nil {
			return mirrorBoundsErr(err, "change", doc.URI)
		}
		oldEndByte, err = old.CharToByte(endChar)
		if err != nil {
			return mirrorBoundsErr(err, "change", doc.URI)
		}
	}

	if err := old.Splice(startChar, endChar, text); err != nil {
		return lspaierrors.NewMirrorError(lspaierrors.MirrorRopeEdit, "change", doc.URI, err)
	}

	if haveTree {
		newEndChar := startChar + utf8.RuneCountInString(text)
		newEndPoint, err := pointOf(old, newEndChar)
		if err != nil {
			// The post-splice Rope no longer reflects this position; drop the
			// tree rather than fail the whole change. A stale or missing parse
			// tree is never fatal.
			doc.Tree = nil
		} else {
			newEndByte, err := old.CharToByte(newEndChar)
			if err != nil {
				doc.Tree = nil
			} else {
				doc.Tree.Edit(uint(startByte), uint(oldEndByte), uint(newEndByte), startPoint, oldEndPoint, newEndPoint)
				if nt, ok := doc.Tree.Reparse([]byte(old.String())); ok {
					doc.Tree = nt
				}
			}
		}
	}

	return nil
}

func mirrorBoundsErr(err error, op, uri string) error {
	if err == rope.ErrLineOutOfBounds {
		return lspaierrors.NewMirrorError(lspaierrors.MirrorLineOutOfBounds, op, uri, err)
	}
	return lspaierrors.NewMirrorError(lspaierrors.MirrorSliceRangeOutOfBounds, op, uri, err)
}

// Rename rekeys each (old, new) pair atomically. Pairs whose old URI is
// absent are skipped silently
func (m *Mirror) Rename(pairs [][2]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range pairs {
		oldURI, newURI := p[0], p[1]
		doc, ok := m.docs[oldURI]
		if !ok {
			continue
		}
		delete(m.docs, oldURI)
		doc.URI = newURI
		m.docs[newURI] = doc
		m.untrack(oldURI)
		m.touch(newURI)
	}
}

// FilterText returns the substring of the line at position from column 0 up
// to position.Character, used as an LSP completion item's filter text.
func (m *Mirror) FilterText(uri string, pos Position) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[uri]
	if !ok {
		return "", lspaierrors.NewMirrorError(lspaierrors.MirrorFileNotFound, "filter_text", uri, nil)
	}

	lineStart, err := doc.Rope.LineToChar(pos.Line)
	if err != nil {
		return "", mirrorBoundsErr(err, "filter_text", uri)
	}
	cursor, err := doc.Rope.PositionToChar(pos.Line, pos.Character)
	if err != nil {
		return "", mirrorBoundsErr(err, "filter_text", uri)
	}
	text, err := doc.Rope.Slice(lineStart, cursor)
	if err != nil {
		return "", mirrorBoundsErr(err, "filter_text", uri)
	}
	return text, nil
}

// CodeWindow returns a snapshot Rope for uri at position, optionally
// prepended with sibling documents in recency order, and the character
// index of the cursor within that snapshot.
func (m *Mirror) CodeWindow(uri string, pos Position, charBudget int, pullFromMultipleFiles bool) (*rope.Rope, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[uri]
	if !ok {
		return nil, 0, lspaierrors.NewMirrorError(lspaierrors.MirrorFileNotFound, "code_window", uri, nil)
	}
	cursorInDoc, err := doc.Rope.PositionToChar(pos.Line, pos.Character)
	if err != nil {
		return nil, 0, mirrorBoundsErr(err, "code_window", uri)
	}

	var prefix strings.Builder
	if pullFromMultipleFiles {
		for _, sib := range m.recency {
			if sib == uri {
				continue
			}
			if utf8.RuneCountInString(prefix.String()) >= charBudget+1 {
				break
			}
			sibDoc := m.docs[sib]
			if sibDoc == nil {
				continue
			}
			prefix.WriteString(sibDoc.Rope.String())
			prefix.WriteByte('\n')
		}
	}

	cursorIdx := utf8.RuneCountInString(prefix.String()) + cursorInDoc
	combined := prefix.String() + doc.Rope.String()
	return rope.New(combined), cursorIdx, nil
}

// Document returns the Document for uri, or (nil, false) if it is not open.
// Exposed for the crawler's "already present in the Mirror" dedup check.
func (m *Mirror) Document(uri string) (*Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[uri]
	return doc, ok
}
