// Package rope implements the text-storage primitive behind every Document in
// the mirror: a character sequence that converts cheaply between byte
// offsets, character indices, and line/column positions.
//
// No third-party rope or piece-table library fits here (see DESIGN.md), so
// this is a from-scratch, stdlib-only implementation. The text is held as a
// list of leaf chunks rather than one flat []rune, and every mutator
// (Insert/Remove/Splice) touches only the leaf(s) the edit range spans:
// leaves outside that span are neither rescanned nor reallocated. Leaf
// buffers are recycled through internal/alloc's slab allocator, which is
// exactly the kind of many-small-allocations churn a keystroke-at-a-time
// editor produces.
package rope

import (
	"strings"
	"unicode/utf8"

	"github.com/standardbeagle/lspaid/internal/alloc"
)

// maxLeafRunes bounds how large a single leaf is allowed to grow before a
// subsequent edit splits it. It is sized to the largest tier in
// RopeLeafTierConfigs so a freshly chunked leaf buffer actually comes out of
// (and returns to) the slab allocator instead of falling through to a direct
// allocation on every split.
const maxLeafRunes = 128

var leafPool = alloc.NewRopeLeafSlabAllocator[rune]()

type leaf struct {
	runes []rune

	// newlines holds the offsets (relative to the start of runes) of every
	// '\n' in runes, ascending. Computed once when a leaf's content is set;
	// reindex reuses it instead of rescanning the leaf, so an edit confined
	// to one leaf never touches any other leaf's character content.
	newlines []int
}

func newLeaf(runes []rune) *leaf {
	return &leaf{runes: runes, newlines: scanNewlines(runes)}
}

func scanNewlines(runes []rune) []int {
	var nl []int
	for i, ru := range runes {
		if ru == '\n' {
			nl = append(nl, i)
		}
	}
	return nl
}

// Rope is NOT safe for concurrent use; callers (the Mirror) serialize access
// with their own lock. The Mirror's CodeWindow hands out a fresh Rope, but
// Mirror.Document exposes the live one.
type Rope struct {
	leaves []*leaf

	// lineStarts[i] is the character index of the first character of line i.
	lineStarts []int
	charLen    int
}

// New builds a Rope from the given text, which must be valid UTF-8.
func New(text string) *Rope {
	r := &Rope{}
	r.leaves = chunk(text)
	for _, l := range r.leaves {
		r.charLen += len(l.runes)
	}
	r.reindex()
	return r
}

func chunk(text string) []*leaf {
	return chunkRunes([]rune(text))
}

// chunkRunes splits runes into leaf-sized leaves backed by leafPool buffers.
// It copies runes into each leaf's own buffer, so the caller's slice is
// never aliased and remains safe to discard or reuse afterward.
func chunkRunes(runes []rune) []*leaf {
	if len(runes) == 0 {
		return []*leaf{newLeaf(leafPool.Get(0))}
	}
	var leaves []*leaf
	for len(runes) > 0 {
		n := len(runes)
		if n > maxLeafRunes {
			n = maxLeafRunes
		}
		buf := leafPool.Get(n)
		buf = append(buf, runes[:n]...)
		leaves = append(leaves, newLeaf(buf))
		runes = runes[n:]
	}
	return leaves
}

// spliceLeaves replaces leaves[i:j] with repl. The tail is copied out before
// the append into leaves[:i] so a capacity large enough to write in place
// can't clobber it first.
func spliceLeaves(leaves []*leaf, i, j int, repl []*leaf) []*leaf {
	tail := append([]*leaf{}, leaves[j:]...)
	out := append(leaves[:i:i], repl...)
	out = append(out, tail...)
	return out
}

// leafAt returns the index of the leaf containing character index charIdx
// and the offset within that leaf's runes. charIdx == r.charLen resolves to
// the tail of the last leaf, which is what an append-at-end edit needs.
func (r *Rope) leafAt(charIdx int) (leafIdx, offset int) {
	idx := 0
	for i, l := range r.leaves {
		n := len(l.runes)
		if charIdx <= idx+n {
			return i, charIdx - idx
		}
		idx += n
	}
	last := len(r.leaves) - 1
	return last, len(r.leaves[last].runes)
}

// reindex rebuilds the line-start table from each leaf's cached newline
// offsets. It never rereads rune content, but it walks every leaf and
// rebuilds the whole table, so its cost grows with the document's leaf and
// line counts. Together with the linear leafAt scan and the tail copy in
// spliceLeaves, this makes every Splice linear in document size, however
// small the edit.
func (r *Rope) reindex() {
	starts := make([]int, 0, len(r.lineStarts))
	starts = append(starts, 0)
	idx := 0
	for _, l := range r.leaves {
		for _, off := range l.newlines {
			starts = append(starts, idx+off+1)
		}
		idx += len(l.runes)
	}
	r.lineStarts = starts
}

// String returns the full contents as a Go string.
func (r *Rope) String() string {
	var b strings.Builder
	b.Grow(r.charLen)
	for _, l := range r.leaves {
		b.WriteString(string(l.runes))
	}
	return b.String()
}

// Len returns the character (rune) length of the rope.
func (r *Rope) Len() int { return r.charLen }

// ByteLen returns the UTF-8 byte length of the rope.
func (r *Rope) ByteLen() int {
	n := 0
	for _, l := range r.leaves {
		for _, ru := range l.runes {
			n += utf8.RuneLen(ru)
		}
	}
	return n
}

// LineCount returns the number of lines; a document with no trailing newline
// still has at least one line.
func (r *Rope) LineCount() int { return len(r.lineStarts) }

// LineToChar returns the character index of the first character of line.
func (r *Rope) LineToChar(line int) (int, error) {
	if line < 0 || line >= len(r.lineStarts) {
		return 0, ErrLineOutOfBounds
	}
	return r.lineStarts[line], nil
}

// CharToLine returns the line containing character index charIdx.
func (r *Rope) CharToLine(charIdx int) (int, error) {
	if charIdx < 0 || charIdx > r.charLen {
		return 0, ErrSliceRangeOutOfBounds
	}
	// Binary search the largest lineStarts[i] <= charIdx.
	lo, hi := 0, len(r.lineStarts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if r.lineStarts[mid] <= charIdx {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo, nil
}

// PositionToChar converts a (line, column) position — column counted in
// runes from the start of the line, matching how the Mirror receives
// splice ranges — into a character index.
func (r *Rope) PositionToChar(line, column int) (int, error) {
	start, err := r.LineToChar(line)
	if err != nil {
		return 0, err
	}
	lineLen, err := r.lineLength(line)
	if err != nil {
		return 0, err
	}
	if column < 0 || column > lineLen {
		return 0, ErrLineOutOfBounds
	}
	return start + column, nil
}

// CharToPosition converts a character index back to (line, column).
func (r *Rope) CharToPosition(charIdx int) (line, column int, err error) {
	line, err = r.CharToLine(charIdx)
	if err != nil {
		return 0, 0, err
	}
	start, _ := r.LineToChar(line)
	return line, charIdx - start, nil
}

func (r *Rope) lineLength(line int) (int, error) {
	start, err := r.LineToChar(line)
	if err != nil {
		return 0, err
	}
	var end int
	if line+1 < len(r.lineStarts) {
		end = r.lineStarts[line+1] - 1 // exclude the newline itself
		if end < start {
			end = start
		}
	} else {
		end = r.charLen
	}
	return end - start, nil
}

// Slice returns the text between character indices [start, end).
func (r *Rope) Slice(start, end int) (string, error) {
	if start < 0 || end > r.charLen || start > end {
		return "", ErrSliceRangeOutOfBounds
	}
	if start == end {
		return "", nil
	}
	var b strings.Builder
	b.Grow(end - start)
	idx := 0
	for _, l := range r.leaves {
		leafStart := idx
		leafEnd := idx + len(l.runes)
		idx = leafEnd
		if leafEnd <= start || leafStart >= end {
			continue
		}
		from := max(0, start-leafStart)
		to := min(len(l.runes), end-leafStart)
		b.WriteString(string(l.runes[from:to]))
	}
	return b.String(), nil
}

// LineText returns the text of a single line, excluding its trailing newline.
func (r *Rope) LineText(line int) (string, error) {
	start, err := r.LineToChar(line)
	if err != nil {
		return "", err
	}
	n, err := r.lineLength(line)
	if err != nil {
		return "", err
	}
	return r.Slice(start, start+n)
}

// CharToByte converts a character index to a byte offset into the UTF-8
// encoding of the rope's contents.
func (r *Rope) CharToByte(charIdx int) (int, error) {
	if charIdx < 0 || charIdx > r.charLen {
		return 0, ErrSliceRangeOutOfBounds
	}
	byteOff := 0
	idx := 0
	for _, l := range r.leaves {
		for _, ru := range l.runes {
			if idx == charIdx {
				return byteOff, nil
			}
			byteOff += utf8.RuneLen(ru)
			idx++
		}
	}
	return byteOff, nil
}

// ByteToChar converts a byte offset back to a character index.
func (r *Rope) ByteToChar(byteIdx int) (int, error) {
	if byteIdx < 0 {
		return 0, ErrSliceRangeOutOfBounds
	}
	byteOff := 0
	idx := 0
	for _, l := range r.leaves {
		for _, ru := range l.runes {
			if byteOff == byteIdx {
				return idx, nil
			}
			byteOff += utf8.RuneLen(ru)
			idx++
		}
	}
	if byteOff == byteIdx {
		return idx, nil
	}
	return 0, ErrSliceRangeOutOfBounds
}

// Insert inserts text at character index charIdx. Only the leaf charIdx
// falls in (and whatever it splits into) is touched.
func (r *Rope) Insert(charIdx int, text string) error {
	if charIdx < 0 || charIdx > r.charLen {
		return ErrSliceRangeOutOfBounds
	}
	if text == "" {
		return nil
	}
	return r.Splice(charIdx, charIdx, text)
}

// Remove deletes the character range [start, end). Only the leaf(s) the
// range overlaps are touched.
func (r *Rope) Remove(start, end int) error {
	if start < 0 || end > r.charLen || start > end {
		return ErrSliceRangeOutOfBounds
	}
	if start == end {
		return nil
	}
	return r.Splice(start, end, "")
}

// Splice removes [start, end) and inserts replacement in its place. It
// reads and reallocates only the leaf(s) spanned by [start, end): the head
// of the leaf holding start, the tail of the leaf holding end, and anything
// wholly between them are merged with replacement and re-chunked, then
// spliced back into r.leaves in place. Every leaf outside that span is
// untouched — not rescanned, not reallocated.
func (r *Rope) Splice(start, end int, replacement string) error {
	if start < 0 || end > r.charLen || start > end {
		return ErrSliceRangeOutOfBounds
	}
	if start == end && replacement == "" {
		return nil
	}

	startLeaf, startOff := r.leafAt(start)
	endLeaf, endOff := r.leafAt(end)

	replRunes := []rune(replacement)
	head := r.leaves[startLeaf].runes[:startOff]
	tail := r.leaves[endLeaf].runes[endOff:]

	merged := make([]rune, 0, len(head)+len(replRunes)+len(tail))
	merged = append(merged, head...)
	merged = append(merged, replRunes...)
	merged = append(merged, tail...)

	for i := startLeaf; i <= endLeaf; i++ {
		leafPool.Put(r.leaves[i].runes)
	}

	newLeaves := chunkRunes(merged)
	r.leaves = spliceLeaves(r.leaves, startLeaf, endLeaf+1, newLeaves)
	r.charLen += len(replRunes) - (end - start)
	r.reindex()
	return nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
