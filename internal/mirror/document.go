package mirror

import (
	"github.com/standardbeagle/lspaid/internal/rope"
	"github.com/standardbeagle/lspaid/internal/synrope"
)

// Document is the Mirror's authoritative view of a single file.
type Document struct {
	URI  string
	Ext  string
	Rope *rope.Rope
	Tree *synrope.Tree // nil when tree-building is disabled or the grammar/parse is unavailable
}

func pointOf(r *rope.Rope, charIdx int) (synrope.Point, error) {
	line, _, err := r.CharToPosition(charIdx)
	if err != nil {
		return synrope.Point{}, err
	}
	lineStart, err := r.LineToChar(line)
	if err != nil {
		return synrope.Point{}, err
	}
	prefix, err := r.Slice(lineStart, charIdx)
	if err != nil {
		return synrope.Point{}, err
	}
	return synrope.Point{Row: uint(line), Column: uint(len(prefix))}, nil
}
